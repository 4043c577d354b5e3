package parser

import (
	"fmt"
	"time"

	"driftwatch/crawler/internal/fetcher"
)

// CandidateItem is one normalized entry extracted from a fetched payload.
// It is consumed and discarded by the deduplicator within the same cycle.
type CandidateItem struct {
	SourceID    string
	Title       string
	URL         string
	PublishedAt *time.Time // nil when the source carries no usable timestamp
	Summary     string
	ContentHash string
}

// Parser converts a raw fetch result into candidate items. The variant is
// selected once per source at configuration load, not by sniffing payloads.
type Parser interface {
	Parse(res *fetcher.Result) ([]CandidateItem, error)
}

// ParseError marks content that will not become valid on retry.
type ParseError struct {
	SourceID string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.SourceID, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.SourceID, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
