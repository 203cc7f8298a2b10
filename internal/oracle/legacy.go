package oracle

import (
	"encoding/json"
	"regexp"
	"strings"

	"materialflow/internal/domain"
)

const legacySummary = "Extracted with fallback due to parsing issues"

var legacyPatterns = []struct {
	field string
	re    *regexp.Regexp
}{
	{domain.FieldName, regexp.MustCompile(`(?i)\bname["'\s:]+([^"\n]+)`)},
	{domain.FieldBrand, regexp.MustCompile(`(?i)\bbrand["'\s:]+([^"\n]+)`)},
	{domain.FieldDimensions, regexp.MustCompile(`(?i)\bdimensions["'\s:]+([^"\n]+)`)},
}

// ParseLegacy is the last-resort path for free-text responses. It pulls
// name, brand and dimensions out with regular expressions. Extracted fields
// carry no confidence. It fails when none of the three can be found.
func ParseLegacy(text string) (*Parsed, error) {
	p := domain.Product{}
	for _, lp := range legacyPatterns {
		m := lp.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v := strings.Trim(strings.TrimSpace(m[1]), `",`)
		if v == "" {
			continue
		}
		p.Fields = append(p.Fields, domain.FieldExtraction{Name: lp.field, Value: domain.TextValue(v)})
	}
	if len(p.Fields) == 0 {
		return nil, malformed("free-text response has no recognizable fields (raw: %s)", truncate(text, 200))
	}
	p.Fields = append(p.Fields, domain.FieldExtraction{Name: domain.FieldSummary, Value: domain.TextValue(legacySummary)})

	summary, _ := json.Marshal(map[string]string{"notes": legacySummary})
	return &Parsed{Products: []domain.Product{p}, ProcessingSummary: summary, Legacy: true}, nil
}
