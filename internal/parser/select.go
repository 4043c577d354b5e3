package parser

import (
	"fmt"

	"driftwatch/crawler/internal/config"
)

// ForSource binds the parser variant declared by the source kind. Called
// once per source at configuration load; an HTML source without selectors
// never makes it past here.
func ForSource(src config.Source, summaryMaxLen int) (Parser, error) {
	switch src.Kind {
	case config.KindFeed:
		return NewFeedParser(src.ID, summaryMaxLen), nil
	case config.KindHTML:
		if src.Selector == nil || src.Selector.Item == "" {
			return nil, fmt.Errorf("source %q: html kind requires a selector set", src.ID)
		}
		return NewHTMLParser(src.ID, src.Selector, summaryMaxLen), nil
	default:
		return nil, fmt.Errorf("source %q: unknown kind %q", src.ID, src.Kind)
	}
}
