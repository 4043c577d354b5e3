package parser

import (
	"bytes"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"driftwatch/crawler/internal/config"
	"driftwatch/crawler/internal/fetcher"
	"driftwatch/crawler/internal/fingerprint"
)

// Date layouts tried against the raw date text of an HTML block.
var htmlDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// HTMLParser extracts repeating item blocks from a listing page using a
// configured selector set.
type HTMLParser struct {
	sourceID      string
	selectors     *config.SelectorSet
	summaryMaxLen int
}

func NewHTMLParser(sourceID string, selectors *config.SelectorSet, summaryMaxLen int) *HTMLParser {
	return &HTMLParser{
		sourceID:      sourceID,
		selectors:     selectors,
		summaryMaxLen: summaryMaxLen,
	}
}

// Parse walks every item block and extracts title, link, date and summary
// via the configured fallback selector lists. A missing selector set is a
// ParseError, not a silent empty result.
func (p *HTMLParser) Parse(res *fetcher.Result) ([]CandidateItem, error) {
	if p.selectors == nil || p.selectors.Item == "" {
		return nil, &ParseError{SourceID: p.sourceID, Reason: "no item selector configured"}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, &ParseError{SourceID: p.sourceID, Reason: "invalid HTML payload", Err: err}
	}

	base, _ := url.Parse(res.URL)

	var items []CandidateItem
	doc.Find(p.selectors.Item).Each(func(_ int, sel *goquery.Selection) {
		title := trySelectorsText(sel, p.selectors.Title)
		if title == "" {
			return
		}

		href := trySelectorsHref(sel, p.selectors.URL)
		link := resolveURL(base, href)

		item := CandidateItem{
			SourceID:    p.sourceID,
			Title:       title,
			URL:         link,
			Summary:     truncate(trySelectorsText(sel, p.selectors.Summary), p.summaryMaxLen),
			ContentHash: fingerprint.ContentHash(title, link),
		}

		if raw := trySelectorsText(sel, p.selectors.Date); raw != "" {
			if t, ok := parseHTMLDate(raw); ok {
				item.PublishedAt = &t
			}
		}

		items = append(items, item)
	})

	return items, nil
}

// trySelectorsText returns the first non-empty text match, in order.
func trySelectorsText(sel *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		text := strings.TrimSpace(sel.Find(s).First().Text())
		if text != "" {
			return stripHTML(text)
		}
	}
	return ""
}

// trySelectorsHref returns the first non-empty href attribute, in order.
func trySelectorsHref(sel *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		if href, ok := sel.Find(s).First().Attr("href"); ok && href != "" {
			return strings.TrimSpace(href)
		}
	}
	return ""
}

func resolveURL(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func parseHTMLDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range htmlDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
