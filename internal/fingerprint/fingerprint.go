package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Tracking query parameters stripped during URL normalization. Two links
// that differ only in these refer to the same real-world item.
var trackingParams = map[string]bool{
	"fbclid":       true,
	"gclid":        true,
	"igshid":       true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
	"ref_src":      true,
	"spm":          true,
	"utm_campaign": true,
	"utm_content":  true,
	"utm_medium":   true,
	"utm_source":   true,
	"utm_term":     true,
}

// New derives a stable identifier for an item. The canonical URL is
// preferred; when it is absent or unparseable the fingerprint falls back
// to the source id combined with the content hash, covering HTML listings
// without per-item permalinks.
func New(rawURL, sourceID, contentHash string) string {
	if norm := NormalizeURL(rawURL); norm != "" {
		return hash("url|" + norm)
	}
	return hash("content|" + sourceID + "|" + contentHash)
}

// ContentHash produces the raw content hash carried on candidate items.
// Only title and link feed the hash, so description drift on an article
// update does not create a new identity.
func ContentHash(parts ...string) string {
	return hash(strings.Join(parts, "|"))
}

// NormalizeURL canonicalizes a URL: scheme and host are lowercased, the
// trailing slash is stripped, tracking parameters and fragments are
// removed, and the remaining query is re-encoded in sorted key order.
// Returns "" when the URL is empty or unusable.
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	q := u.Query()
	for param := range q {
		if trackingParams[strings.ToLower(param)] {
			q.Del(param)
		}
	}
	// Encode sorts keys, making parameter order irrelevant.
	u.RawQuery = q.Encode()

	return u.String()
}

func hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
