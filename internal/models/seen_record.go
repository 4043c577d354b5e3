package models

import "time"

// SeenRecord is the durable dedup bookkeeping row, one per fingerprint.
// It is upserted on every re-observation of the same item.
type SeenRecord struct {
	Fingerprint string    `db:"fingerprint"`
	SourceID    string    `db:"source_id"`
	FirstSeenAt time.Time `db:"first_seen_at"`
	LastSeenAt  time.Time `db:"last_seen_at"`
}
