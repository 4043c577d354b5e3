package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"driftwatch/crawler/internal/fingerprint"
	"driftwatch/crawler/internal/models"
	"driftwatch/crawler/internal/parser"
	"driftwatch/crawler/internal/storage"
)

// Result of an Accept decision.
type Result int

const (
	Accepted Result = iota
	Duplicate
)

func (r Result) String() string {
	if r == Accepted {
		return "accepted"
	}
	return "duplicate"
}

// Deduplicator decides whether a candidate item has been emitted before.
// All atomicity lives in the store's upsert; two workers racing on the
// same fingerprint cannot both observe "new".
type Deduplicator struct {
	store *storage.Repository
}

func New(store *storage.Repository) *Deduplicator {
	return &Deduplicator{store: store}
}

// Accept fingerprints the item and upserts the seen record. A fresh
// fingerprint is also written to the items table for the read path;
// a known one only bumps last_seen_at.
func (d *Deduplicator) Accept(ctx context.Context, item parser.CandidateItem) (Result, string, error) {
	fp := fingerprint.New(item.URL, item.SourceID, item.ContentHash)
	now := time.Now().UTC()

	wasNew, err := d.store.UpsertSeen(ctx, fp, item.SourceID, now)
	if err != nil {
		return Duplicate, fp, fmt.Errorf("dedup store: %w", err)
	}
	if !wasNew {
		return Duplicate, fp, nil
	}

	row := &models.Item{
		Fingerprint: fp,
		SourceID:    item.SourceID,
		Title:       item.Title,
		URL:         item.URL,
		Summary:     item.Summary,
		CreatedAt:   now,
	}
	if item.PublishedAt != nil {
		row.PublishedAt = sql.NullTime{Time: *item.PublishedAt, Valid: true}
	}
	if err := d.store.InsertItem(ctx, row); err != nil {
		// Roll the seen record back so the item can be accepted on a later
		// observation instead of becoming a permanent silent duplicate.
		if delErr := d.store.DeleteSeen(ctx, fp); delErr != nil {
			return Duplicate, fp, fmt.Errorf("store accepted item: %w (seen rollback failed: %v)", err, delErr)
		}
		return Duplicate, fp, fmt.Errorf("store accepted item: %w", err)
	}

	return Accepted, fp, nil
}
