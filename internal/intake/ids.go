package intake

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeSender reduces an address to a short lowercase token for ids.
func sanitizeSender(sender string) string {
	s := strings.ToLower(sender)
	if i := strings.Index(s, "<"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(nonAlnum.ReplaceAllString(s, "-"), "-")
	if len(s) > 24 {
		s = s[:24]
	}
	if s == "" {
		return "unknown"
	}
	return s
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// newDocumentID builds doc-<unix-ms>-<sender>-<random>. Uniqueness rests on
// the millisecond timestamp plus randomness; collisions are not checked.
func newDocumentID(at time.Time, sender string) string {
	return fmt.Sprintf("doc-%d-%s-%s", at.UnixMilli(), sanitizeSender(sender), randomSuffix())
}

func newGroupID(at time.Time) string {
	return fmt.Sprintf("email-%d-%s", at.UnixMilli(), randomSuffix())
}

func newRequestID(at time.Time) string {
	return fmt.Sprintf("req-%d-%s", at.UnixMilli(), randomSuffix())
}
