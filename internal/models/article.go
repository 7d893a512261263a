package models

import (
	"sort"
	"strings"
	"time"
)

// RawItem is an unprocessed entry produced by a collector, before duplicate
// classification or enrichment.
type RawItem struct {
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	Content     string         `json:"content,omitempty"`
	Author      string         `json:"author,omitempty"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Article is a persisted, deduplicated news item. The URL is its identity.
type Article struct {
	ID              int64          `json:"id,omitempty"`
	URL             string         `json:"url"`
	Title           string         `json:"title"`
	NormalizedTitle string         `json:"-"`
	Content         string         `json:"content,omitempty"`
	Summary         string         `json:"summary,omitempty"`
	Author          string         `json:"author,omitempty"`
	Source          string         `json:"source"`
	Language        string         `json:"language,omitempty"`
	PublishedAt     *time.Time     `json:"published_at,omitempty"`
	CollectedAt     time.Time      `json:"collected_at"`
	Tags            []string       `json:"tags,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// MergeTags returns the union of the given tag lists, trimmed, deduplicated and sorted.
func MergeTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			seen[tag] = struct{}{}
		}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
