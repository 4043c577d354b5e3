package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Source kinds select the parser variant once at load time.
const (
	KindFeed = "feed"
	KindHTML = "html"
)

// SelectorSet describes how to locate repeating item blocks on an HTML page.
// Title, URL, Date and Summary are fallback lists tried in order per block.
type SelectorSet struct {
	Item    string   `yaml:"item"`
	Title   []string `yaml:"title"`
	URL     []string `yaml:"url"`
	Date    []string `yaml:"date"`
	Summary []string `yaml:"summary"`
}

// Source is a configured origin to crawl. Immutable during a cycle; the
// whole list is replaced on reload, never patched in place.
type Source struct {
	ID        string       `yaml:"id"`
	URL       string       `yaml:"url"`
	Kind      string       `yaml:"kind"`
	IntervalS int          `yaml:"interval_s"` // 0 means the global cycle interval
	Enabled   bool         `yaml:"enabled"`
	Selector  *SelectorSet `yaml:"selector,omitempty"`
}

// DomainLimit overrides the default token bucket for one domain.
type DomainLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// SourceFile is the on-disk YAML document listing sources and per-domain
// politeness overrides.
type SourceFile struct {
	Sources        []Source               `yaml:"sources"`
	DomainLimits   map[string]DomainLimit `yaml:"domain_limits,omitempty"`
	BlockedDomains []string               `yaml:"blocked_domains,omitempty"`
}

// LoadSources reads and validates the source list. Any validation failure
// is fatal: the pipeline must not start crawling with an invalid list.
func LoadSources(path string) (*SourceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var sf SourceFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	if err := sf.Validate(); err != nil {
		return nil, fmt.Errorf("sources validation error: %w", err)
	}

	return &sf, nil
}

// Validate checks every source entry and the domain overrides.
func (sf *SourceFile) Validate() error {
	if len(sf.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}

	seen := make(map[string]bool, len(sf.Sources))
	for i, src := range sf.Sources {
		if src.ID == "" {
			return fmt.Errorf("source %d: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("source %q: duplicate id", src.ID)
		}
		seen[src.ID] = true

		u, err := url.Parse(src.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("source %q: invalid url %q", src.ID, src.URL)
		}

		switch src.Kind {
		case KindFeed:
		case KindHTML:
			// Unconfigured HTML parsing produces unreliable noise, so a
			// missing selector set is rejected here rather than at parse time.
			if src.Selector == nil || src.Selector.Item == "" {
				return fmt.Errorf("source %q: html kind requires selector.item", src.ID)
			}
			if len(src.Selector.Title) == 0 {
				return fmt.Errorf("source %q: html kind requires selector.title", src.ID)
			}
			if len(src.Selector.URL) == 0 {
				return fmt.Errorf("source %q: html kind requires selector.url", src.ID)
			}
		default:
			return fmt.Errorf("source %q: kind must be %q or %q", src.ID, KindFeed, KindHTML)
		}

		if src.IntervalS < 0 {
			return fmt.Errorf("source %q: interval_s must be >= 0", src.ID)
		}
	}

	for domain, limit := range sf.DomainLimits {
		if limit.PerSecond <= 0 {
			return fmt.Errorf("domain_limits[%s]: per_second must be > 0", domain)
		}
		if limit.Burst <= 0 {
			return fmt.Errorf("domain_limits[%s]: burst must be > 0", domain)
		}
	}

	return nil
}

// Enabled returns the enabled subset of sources.
func (sf *SourceFile) EnabledSources() []Source {
	out := make([]Source, 0, len(sf.Sources))
	for _, src := range sf.Sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out
}
