package models

import (
	"database/sql"
	"time"
)

// Item represents a row in the items table: an accepted, normalized item
// kept for the read API. The cache holds the recent subset of these.
type Item struct {
	ID          int64        `db:"id" json:"id"`
	Fingerprint string       `db:"fingerprint" json:"fingerprint"`
	SourceID    string       `db:"source_id" json:"source_id"`
	Title       string       `db:"title" json:"title"`
	URL         string       `db:"url" json:"url"`
	Summary     string       `db:"summary" json:"summary"`
	PublishedAt sql.NullTime `db:"published_at" json:"published_at"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}
