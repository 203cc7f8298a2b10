package intake

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"materialflow/internal/domain"
)

const defaultLanguage = "en"

var subjectKeywords = map[string]string{
	"nl": "nl", "dutch": "nl", "nederlands": "nl",
	"de": "de", "german": "de", "deutsch": "de",
	"fr": "fr", "french": "fr", "français": "fr", "francais": "fr",
}

var stopWords = map[string][]string{
	"en": {"the", "and", "of", "to", "in", "is", "it", "that", "for", "with"},
	"nl": {"de", "het", "een", "en", "van", "in", "is", "dat", "op", "te"},
	"de": {"der", "die", "das", "und", "in", "von", "zu", "den", "mit", "ist"},
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// DetectLanguage guesses a language code. Explicit keywords in the subject
// win; otherwise common words in subject and body are counted, with English
// as the default.
func DetectLanguage(subject, body string) string {
	for _, w := range words(subject) {
		if lang, ok := subjectKeywords[w]; ok {
			return lang
		}
	}

	tokens := make(map[string]bool)
	for _, w := range words(subject + " " + BodyText(body)) {
		tokens[w] = true
	}
	counts := make(map[string]int, len(stopWords))
	for lang, list := range stopWords {
		for _, w := range list {
			if tokens[w] {
				counts[lang]++
			}
		}
	}
	switch {
	case counts["nl"] > counts["en"] && counts["nl"] > counts["de"]:
		return "nl"
	case counts["de"] > counts["en"] && counts["de"] > counts["nl"]:
		return "de"
	}
	return defaultLanguage
}

// BodyText reduces an HTML body to its visible text. Plain text passes through.
func BodyText(body string) string {
	if !looksLikeHTML(body) {
		return body
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	doc.Find("script, style, head").Remove()

	var parts []string
	doc.Find("body").Find("*").AddBack().Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			parts = append(parts, s.Text())
		}
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func looksLikeHTML(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(t, "<") && strings.Contains(t, ">")
}

// GuessDocumentType classifies a supplier document by file name.
func GuessDocumentType(fileName string) domain.DocumentType {
	name := strings.ToLower(fileName)
	switch {
	case strings.Contains(name, "catalog"):
		return domain.DocumentTypeCatalogue
	case strings.Contains(name, "spec"):
		return domain.DocumentTypeSpecification
	}
	return domain.DocumentTypeDatasheet
}
