package ingestion

import (
	"net/url"
	"strings"
	"time"

	"github.com/STRATINT/newsdesk/internal/models"
)

// FilterConfig holds the source filters applied to items that classified as new.
// Zero values disable the corresponding check.
type FilterConfig struct {
	MinContentLength  int
	MaxArticleAgeDays int
	BlockedDomains    []string
	RequiredKeywords  []string
}

// FilterReason names why an item was dropped; empty means it passed.
type FilterReason string

const (
	FilterPass          FilterReason = ""
	FilterInvalid       FilterReason = "invalid"
	FilterTooShort      FilterReason = "too_short"
	FilterTooOld        FilterReason = "too_old"
	FilterBlockedDomain FilterReason = "blocked_domain"
	FilterNoKeyword     FilterReason = "missing_keyword"
)

// Check evaluates item against the filters. Source-level filter_keywords are combined
// with the global RequiredKeywords: an item must mention at least one of them.
func (f FilterConfig) Check(item models.RawItem, source models.Source, now time.Time) FilterReason {
	if !validItem(item) {
		return FilterInvalid
	}

	if f.MinContentLength > 0 && len([]rune(item.Content)) < f.MinContentLength {
		return FilterTooShort
	}

	if f.MaxArticleAgeDays > 0 && item.PublishedAt != nil {
		cutoff := now.Add(-time.Duration(f.MaxArticleAgeDays) * 24 * time.Hour)
		if item.PublishedAt.Before(cutoff) {
			return FilterTooOld
		}
	}

	if len(f.BlockedDomains) > 0 {
		if host := hostOf(item.URL); host != "" {
			for _, blocked := range f.BlockedDomains {
				blocked = strings.ToLower(strings.TrimSpace(blocked))
				if blocked != "" && (host == blocked || strings.HasSuffix(host, "."+blocked)) {
					return FilterBlockedDomain
				}
			}
		}
	}

	keywords := append(append([]string(nil), f.RequiredKeywords...), source.ConfigStrings("filter_keywords")...)
	if len(keywords) > 0 && !mentionsAny(item.Title+" "+item.Content, keywords) {
		return FilterNoKeyword
	}

	return FilterPass
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
}

func mentionsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)
	checked := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		checked++
		if strings.Contains(text, kw) {
			return true
		}
	}
	return checked == 0
}

// validItem reports whether item has the url and title every later stage relies on.
func validItem(item models.RawItem) bool {
	return strings.TrimSpace(item.URL) != "" && strings.TrimSpace(item.Title) != ""
}
