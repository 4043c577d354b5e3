package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validSources = `
sources:
  - id: feed-1
    url: https://example.com/rss.xml
    kind: feed
    enabled: true
  - id: html-1
    url: https://example.org/news
    kind: html
    enabled: true
    selector:
      item: "article.post"
      title: ["h2 a"]
      url: ["h2 a"]
  - id: off-1
    url: https://example.net/atom.xml
    kind: feed
    enabled: false
domain_limits:
  example.org:
    per_second: 0.5
    burst: 1
blocked_domains:
  - bad.example.com
`

func writeSources(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write sources file: %v", err)
	}
	return path
}

func TestLoadSources(t *testing.T) {
	sf, err := LoadSources(writeSources(t, validSources))
	if err != nil {
		t.Fatalf("LoadSources failed: %v", err)
	}

	if len(sf.Sources) != 3 {
		t.Errorf("expected 3 sources, got %d", len(sf.Sources))
	}
	if enabled := sf.EnabledSources(); len(enabled) != 2 {
		t.Errorf("expected 2 enabled sources, got %d", len(enabled))
	}
	if limit, ok := sf.DomainLimits["example.org"]; !ok || limit.PerSecond != 0.5 || limit.Burst != 1 {
		t.Errorf("domain limit not parsed: %+v", sf.DomainLimits)
	}
	if len(sf.BlockedDomains) != 1 || sf.BlockedDomains[0] != "bad.example.com" {
		t.Errorf("blocked domains not parsed: %v", sf.BlockedDomains)
	}
}

func TestLoadSourcesMissingFile(t *testing.T) {
	if _, err := LoadSources(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file must fail")
	}
}

func TestSourceValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "empty list",
			content: "sources: []",
			wantErr: "at least one source",
		},
		{
			name: "duplicate id",
			content: `
sources:
  - {id: a, url: https://example.com/x, kind: feed}
  - {id: a, url: https://example.com/y, kind: feed}`,
			wantErr: "duplicate id",
		},
		{
			name: "invalid url",
			content: `
sources:
  - {id: a, url: "not a url", kind: feed}`,
			wantErr: "invalid url",
		},
		{
			name: "unknown kind",
			content: `
sources:
  - {id: a, url: https://example.com/x, kind: json}`,
			wantErr: "kind must be",
		},
		{
			name: "html without item selector",
			content: `
sources:
  - id: a
    url: https://example.com/x
    kind: html
    selector:
      title: ["h2"]
      url: ["h2 a"]`,
			wantErr: "selector.item",
		},
		{
			name: "html without title selector",
			content: `
sources:
  - id: a
    url: https://example.com/x
    kind: html
    selector:
      item: "article"
      url: ["h2 a"]`,
			wantErr: "selector.title",
		},
		{
			name: "bad domain limit",
			content: `
sources:
  - {id: a, url: https://example.com/x, kind: feed}
domain_limits:
  example.com: {per_second: 0, burst: 1}`,
			wantErr: "per_second",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadSources(writeSources(t, tc.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}
