package feed

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// Summarizer turns feed markup into a short plain-text excerpt.
type Summarizer struct {
	policy *bluemonday.Policy
	limit  int
}

func NewSummarizer() *Summarizer {
	return &Summarizer{
		policy: bluemonday.StrictPolicy(),
		limit:  SummaryLimit,
	}
}

func (s *Summarizer) Run(markup string) string {
	if markup == "" {
		return ""
	}

	// StrictPolicy escapes the text it keeps.
	text := html.UnescapeString(s.policy.Sanitize(markup))
	text = strings.Join(strings.Fields(norm.NFC.String(text)), " ")

	return truncate(text, s.limit)
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
