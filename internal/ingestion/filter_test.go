package ingestion

import (
	"strings"
	"testing"
	"time"

	"github.com/STRATINT/newsdesk/internal/models"
)

func TestFilterConfig_Check(t *testing.T) {
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	old := now.Add(-8 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	base := models.RawItem{
		URL:     "https://news.example.com/story",
		Title:   "Central bank raises rates",
		Content: "The central bank raised interest rates by a quarter point.",
	}
	with := func(mut func(*models.RawItem)) models.RawItem {
		item := base
		mut(&item)
		return item
	}

	tests := []struct {
		name   string
		cfg    FilterConfig
		source models.Source
		item   models.RawItem
		want   FilterReason
	}{
		{"no filters", FilterConfig{}, models.Source{}, base, FilterPass},
		{"missing url", FilterConfig{}, models.Source{}, with(func(i *models.RawItem) { i.URL = "" }), FilterInvalid},
		{"blank title", FilterConfig{}, models.Source{}, with(func(i *models.RawItem) { i.Title = "  " }), FilterInvalid},
		{"too short", FilterConfig{MinContentLength: 100}, models.Source{}, base, FilterTooShort},
		{"long enough", FilterConfig{MinContentLength: 10}, models.Source{}, base, FilterPass},
		{"too old", FilterConfig{MaxArticleAgeDays: 7}, models.Source{}, with(func(i *models.RawItem) { i.PublishedAt = &old }), FilterTooOld},
		{"recent", FilterConfig{MaxArticleAgeDays: 7}, models.Source{}, with(func(i *models.RawItem) { i.PublishedAt = &recent }), FilterPass},
		{"no date is kept", FilterConfig{MaxArticleAgeDays: 7}, models.Source{}, base, FilterPass},
		{"blocked subdomain", FilterConfig{BlockedDomains: []string{"example.com"}}, models.Source{}, base, FilterBlockedDomain},
		{"other domain", FilterConfig{BlockedDomains: []string{"example.org"}}, models.Source{}, base, FilterPass},
		{"keyword case-insensitive", FilterConfig{RequiredKeywords: []string{"INTEREST"}}, models.Source{}, base, FilterPass},
		{"keyword missing", FilterConfig{RequiredKeywords: []string{"football"}}, models.Source{}, base, FilterNoKeyword},
		{
			"source keywords",
			FilterConfig{},
			models.Source{Config: map[string]any{"filter_keywords": []any{"election"}}},
			base,
			FilterNoKeyword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Check(tt.item, tt.source, now); got != tt.want {
				t.Errorf("Check() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"strips tags", "<p>Hello <b>world</b></p>", "Hello world"},
		{"unescapes entities", "Fish &amp; Chips", "Fish & Chips"},
		{"collapses whitespace", "a \n\t  b", "a b"},
		{"removes boilerplate", "Markets rallied. Read more... Click here", "Markets rallied."},
		{"drops scripts", "<script>alert(1)</script>Text", "Text"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.input); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("short", 10); got != "short" {
		t.Errorf("Excerpt short = %q", got)
	}

	long := strings.Repeat("é", 250)
	got := Excerpt(long, 200)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 203 {
		t.Errorf("Excerpt long has %d runes", len([]rune(got)))
	}
}
