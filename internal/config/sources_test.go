package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/STRATINT/newsdesk/internal/models"
)

const sampleSources = `
sources:
  - name: Hacker News
    url: https://news.ycombinator.com/rss
    kind: rss
    language: english
    tags: [tech, hn]
  - name: Lab Blog
    url: https://lab.example.com/blog
    kind: website
    enabled: false
    config:
      item_selector: div.post
      filter_keywords: [ai, robotics]
`

func TestParseSources(t *testing.T) {
	sources, err := ParseSources([]byte(sampleSources))
	if err != nil {
		t.Fatalf("ParseSources returned error: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}

	hn := sources[0]
	if hn.Kind != models.SourceKindRSS || !hn.Enabled {
		t.Errorf("unexpected first source: %+v", hn)
	}
	if len(hn.Tags) != 2 || hn.Tags[0] != "hn" {
		t.Errorf("expected sorted tags, got %v", hn.Tags)
	}

	blog := sources[1]
	if blog.Enabled {
		t.Error("expected explicit enabled: false to be honoured")
	}
	if got := blog.ConfigString("item_selector", ""); got != "div.post" {
		t.Errorf("item_selector = %q", got)
	}
	if got := blog.ConfigStrings("filter_keywords"); len(got) != 2 {
		t.Errorf("filter_keywords = %v", got)
	}
}

func TestParseSourcesRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown kind": "sources:\n  - name: X\n    url: https://x.example\n    kind: fax\n",
		"duplicate":    "sources:\n  - {name: X, url: 'https://x.example', kind: rss}\n  - {name: X, url: 'https://y.example', kind: rss}\n",
		"bad yaml":     "sources: [",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSources([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadSourcesMissingFile(t *testing.T) {
	sources, err := LoadSources(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if len(sources) != 0 {
		t.Fatalf("expected no sources, got %d", len(sources))
	}
}

func TestLoadSourcesFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(sampleSources), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources returned error: %v", err)
	}
	if !strings.Contains(sources[0].URL, "ycombinator") {
		t.Errorf("unexpected url %q", sources[0].URL)
	}
}
