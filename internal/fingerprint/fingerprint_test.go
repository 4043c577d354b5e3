package fingerprint

import "testing"

func TestNewDeterministic(t *testing.T) {
	fp1 := New("https://example.com/news/123", "src-1", "abc")
	fp2 := New("https://example.com/news/123", "src-1", "abc")

	if fp1 != fp2 {
		t.Errorf("Fingerprint not deterministic: %s != %s", fp1, fp2)
	}
	if len(fp1) != 64 {
		t.Errorf("Fingerprint wrong length: %d, expected 64", len(fp1))
	}
}

func TestNewNormalizationInvariance(t *testing.T) {
	base := New("https://example.com/news/123", "src-1", "abc")

	variants := []string{
		"HTTPS://EXAMPLE.COM/news/123",
		"https://example.com/news/123/",
		"https://example.com/news/123?utm_source=feed&utm_medium=rss",
		"https://example.com/news/123/?fbclid=xyz#comments",
	}
	for _, raw := range variants {
		if got := New(raw, "src-1", "abc"); got != base {
			t.Errorf("Fingerprint changed for variant %q", raw)
		}
	}
}

func TestNewPreservesRealParams(t *testing.T) {
	a := New("https://example.com/story?id=1", "src-1", "abc")
	b := New("https://example.com/story?id=2", "src-1", "abc")

	if a == b {
		t.Error("Fingerprint must distinguish different non-tracking query params")
	}

	// Parameter order must not matter.
	c := New("https://example.com/story?id=1&page=2", "src-1", "abc")
	d := New("https://example.com/story?page=2&id=1", "src-1", "abc")
	if c != d {
		t.Error("Fingerprint must be independent of query parameter order")
	}
}

func TestNewContentFallback(t *testing.T) {
	a := New("", "src-1", ContentHash("title", "text"))
	b := New("", "src-1", ContentHash("title", "text"))
	c := New("", "src-2", ContentHash("title", "text"))

	if a != b {
		t.Error("Content fallback fingerprint not deterministic")
	}
	if a == c {
		t.Error("Content fallback must include the source id")
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/A", "https://example.com/A"},
		{"strips trailing slash", "https://example.com/a/", "https://example.com/a"},
		{"strips tracking params", "https://example.com/a?utm_source=x&id=1", "https://example.com/a?id=1"},
		{"strips fragment", "https://example.com/a#top", "https://example.com/a"},
		{"empty input", "", ""},
		{"no host", "/relative/path", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.in); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
