package models

import (
	"fmt"
	"strings"
	"time"
)

// Source is a configured upstream that the collector polls on every pass.
type Source struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	URL             string         `json:"url"`
	Kind            SourceKind     `json:"kind"`
	Language        string         `json:"language,omitempty"`
	Enabled         bool           `json:"enabled"`
	LastCollectedAt *time.Time     `json:"last_collected_at,omitempty"`
	CollectionCount int            `json:"collection_count"`
	ErrorCount      int            `json:"error_count"`
	Tags            []string       `json:"tags,omitempty"`   // Default tags applied to every article
	Config          map[string]any `json:"config,omitempty"` // Kind-specific settings (selectors, tokens, keywords)
}

// SourceKind selects the collector variant used for a source.
type SourceKind string

const (
	SourceKindRSS     SourceKind = "rss"
	SourceKindWebsite SourceKind = "website"
	SourceKindSocial  SourceKind = "social"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindRSS, SourceKindWebsite, SourceKindSocial:
		return true
	}
	return false
}

// Validate checks the fields required before a source can be stored.
func (s *Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("source name is required")
	}
	if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
		return fmt.Errorf("source %q: url must be http(s), got %q", s.Name, s.URL)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("source %q: unsupported kind %q", s.Name, s.Kind)
	}
	return nil
}

// ConfigString returns a string value from the kind-specific config, or fallback.
func (s *Source) ConfigString(key, fallback string) string {
	if s.Config == nil {
		return fallback
	}
	if v, ok := s.Config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// ConfigStrings returns a list value from the kind-specific config. Both []string and
// the []any produced by JSON/YAML decoding are accepted.
func (s *Source) ConfigStrings(key string) []string {
	if s.Config == nil {
		return nil
	}
	switch v := s.Config[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// MarkCollected applies the bookkeeping done after every run: the error counter grows
// on failure and resets otherwise.
func (s *Source) MarkCollected(at time.Time, failed bool) {
	s.LastCollectedAt = &at
	s.CollectionCount++
	if failed {
		s.ErrorCount++
	} else {
		s.ErrorCount = 0
	}
}
