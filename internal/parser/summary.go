package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var spaceRe = regexp.MustCompile(`\s+`)

// stripHTML reduces an HTML fragment to plain text: tags removed, NBSP
// replaced, whitespace collapsed.
func stripHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}

	doc.Find("script, style").Remove()

	text := doc.Text()
	text = strings.ReplaceAll(text, "\u00A0", " ")
	text = spaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// truncate cuts text to at most maxLen bytes at a word boundary,
// appending an ellipsis when something was dropped. Spaceless text is
// cut back to a rune boundary so the result stays valid UTF-8.
func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}

	cut := text[:maxLen]
	for len(cut) > 0 {
		if r, size := utf8.DecodeLastRuneInString(cut); r != utf8.RuneError || size > 1 {
			break
		}
		cut = cut[:len(cut)-1]
	}
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}

	return cut + "…"
}
