package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/STRATINT/newsdesk/internal/models"
)

// SourcesFile is the on-disk list of sources the binary seeds into the store.
type SourcesFile struct {
	Sources []SourceEntry `yaml:"sources"`
}

// SourceEntry is one source as written in the YAML file.
type SourceEntry struct {
	Name     string         `yaml:"name"`
	URL      string         `yaml:"url"`
	Kind     string         `yaml:"kind"`
	Language string         `yaml:"language"`
	Enabled  *bool          `yaml:"enabled"`
	Tags     []string       `yaml:"tags"`
	Config   map[string]any `yaml:"config"`
}

// LoadSources reads and validates a sources file. A missing file yields no sources.
func LoadSources(path string) ([]models.Source, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes YAML source definitions. Sources default to enabled.
func ParseSources(data []byte) ([]models.Source, error) {
	var file SourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode sources file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Sources))
	sources := make([]models.Source, 0, len(file.Sources))
	for _, entry := range file.Sources {
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}

		src := models.Source{
			Name:     entry.Name,
			URL:      entry.URL,
			Kind:     models.SourceKind(entry.Kind),
			Language: entry.Language,
			Enabled:  enabled,
			Tags:     models.MergeTags(entry.Tags),
			Config:   entry.Config,
		}
		if err := src.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[src.Name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = struct{}{}
		sources = append(sources, src)
	}

	return sources, nil
}
