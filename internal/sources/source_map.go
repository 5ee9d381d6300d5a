package sources

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultName is the name given to the fallback source
const DefaultName = "vpngate"

// Kind tells where a source's text comes from
type Kind string

const (
	KindURL  Kind = "url"
	KindFile Kind = "file"
)

// Source describes one snapshot to harvest
type Source struct {
	Name    string `yaml:"-"`
	URL     string `yaml:"url"`
	Path    string `yaml:"path"`
	Enabled *bool  `yaml:"enabled"`
	// AnyContentType skips the text/plain check for URL sources
	AnyContentType bool   `yaml:"any_content_type"`
	Notes          string `yaml:"notes"`
}

// Kind returns KindURL or KindFile
func (s Source) Kind() Kind {
	if s.URL != "" {
		return KindURL
	}
	return KindFile
}

// IsEnabled treats a missing enabled flag as true
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Location returns the URL or file path
func (s Source) Location() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Path
}

// SourceMap maps source names to their definitions
type SourceMap struct {
	Sources map[string]Source `yaml:"sources"`
}

// LoadSourceMap loads sources.yaml
// A missing file yields a single default source pointing at defaultURL
func LoadSourceMap(path, defaultURL string) (*SourceMap, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(defaultURL), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read source map: %w", err)
	}

	var sm SourceMap
	if err := yaml.Unmarshal(data, &sm); err != nil {
		return nil, fmt.Errorf("failed to parse source map: %w", err)
	}

	// Initialize map if nil
	if sm.Sources == nil {
		sm.Sources = make(map[string]Source)
	}

	for name, src := range sm.Sources {
		if (src.URL == "") == (src.Path == "") {
			return nil, fmt.Errorf("source %q: exactly one of url or path must be set", name)
		}
		src.Name = name
		sm.Sources[name] = src
	}

	return &sm, nil
}

// Default returns a map holding only the public VPN Gate list
func Default(url string) *SourceMap {
	return &SourceMap{
		Sources: map[string]Source{
			DefaultName: {Name: DefaultName, URL: url},
		},
	}
}

// Enabled returns enabled sources ordered by name
func (sm *SourceMap) Enabled() []Source {
	var out []Source
	for _, src := range sm.Sources {
		if src.IsEnabled() {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
