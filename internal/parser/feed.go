package parser

import (
	"bytes"

	"github.com/mmcdole/gofeed"

	"driftwatch/crawler/internal/fetcher"
	"driftwatch/crawler/internal/fingerprint"
)

// FeedParser handles RSS and Atom payloads.
type FeedParser struct {
	inner         *gofeed.Parser
	sourceID      string
	summaryMaxLen int
}

func NewFeedParser(sourceID string, summaryMaxLen int) *FeedParser {
	return &FeedParser{
		inner:         gofeed.NewParser(),
		sourceID:      sourceID,
		summaryMaxLen: summaryMaxLen,
	}
}

// Parse extracts one candidate item per feed entry, in document order.
// Entries without a title and link are dropped rather than emitted as
// empty noise.
func (p *FeedParser) Parse(res *fetcher.Result) ([]CandidateItem, error) {
	feed, err := p.inner.Parse(bytes.NewReader(res.Body))
	if err != nil {
		return nil, &ParseError{SourceID: p.sourceID, Reason: "invalid feed payload", Err: err}
	}

	items := make([]CandidateItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		link := coalesce(entry.Link, entry.GUID)
		title := stripHTML(entry.Title)
		if title == "" && link == "" {
			continue
		}

		item := CandidateItem{
			SourceID:    p.sourceID,
			Title:       title,
			URL:         link,
			Summary:     truncate(stripHTML(coalesce(entry.Description, entry.Content)), p.summaryMaxLen),
			ContentHash: fingerprint.ContentHash(title, link),
		}

		// Publish timestamp falls back to fetch time downstream when the
		// entry carries none.
		if entry.PublishedParsed != nil {
			t := entry.PublishedParsed.UTC()
			item.PublishedAt = &t
		} else if entry.UpdatedParsed != nil {
			t := entry.UpdatedParsed.UTC()
			item.PublishedAt = &t
		}

		items = append(items, item)
	}

	return items, nil
}

// coalesce returns the first non-empty string from the provided values.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
