package ingestion

import (
	"html"
	"regexp"
	"strings"

	"github.com/STRATINT/newsdesk/internal/models"
	"github.com/microcosm-cc/bluemonday"
)

const summaryFallbackRunes = 200

var (
	stripPolicy = newStripPolicy()
	whitespace  = regexp.MustCompile(`\s+`)

	boilerplatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bread more\b\.*`),
		regexp.MustCompile(`(?i)\bcontinue reading\b\.*`),
		regexp.MustCompile(`(?i)\bclick here\b\.*`),
		regexp.MustCompile(`(?i)\bsubscribe( now)?\b\.*`),
		regexp.MustCompile(`(?i)\badvertisement\b`),
	}
)

func newStripPolicy() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}

// CleanText strips markup from s, removes boilerplate phrases and collapses whitespace.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	text := html.UnescapeString(stripPolicy.Sanitize(s))
	for _, pattern := range boilerplatePatterns {
		text = pattern.ReplaceAllString(text, " ")
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// Excerpt returns the first n runes of s followed by "..." when s is longer.
func Excerpt(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}

func fallbackSummary(item models.RawItem) string {
	if item.Content != "" {
		return Excerpt(item.Content, summaryFallbackRunes)
	}
	return item.Title
}
