package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"driftwatch/crawler/internal/database"
	"driftwatch/crawler/internal/models"
)

// Repository is the durable side of the pipeline: dedup state, accepted
// items for the read path, and the cycle audit log.
type Repository struct {
	db *database.DB
}

func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// UpsertSeen records an observation of a fingerprint and reports whether
// it was new. The insert is atomic per fingerprint at the store: when two
// workers race on the same fingerprint, exactly one insert wins and the
// other lands in the update branch.
func (r *Repository) UpsertSeen(ctx context.Context, fp, sourceID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO seen_records (fingerprint, source_id, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING`,
		fp, sourceID, now, now)
	if err != nil {
		return false, fmt.Errorf("insert seen record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for seen record: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	_, err = r.db.ExecContext(ctx,
		"UPDATE seen_records SET last_seen_at = ? WHERE fingerprint = ?",
		now, fp)
	if err != nil {
		return false, fmt.Errorf("update seen record: %w", err)
	}
	return false, nil
}

// DeleteSeen removes one seen record. Used to roll back a failed accept
// so the item is not a permanent silent duplicate.
func (r *Repository) DeleteSeen(ctx context.Context, fp string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM seen_records WHERE fingerprint = ?", fp)
	if err != nil {
		return fmt.Errorf("delete seen record: %w", err)
	}
	return nil
}

// GetSeen fetches one seen record, or nil when the fingerprint is unknown.
func (r *Repository) GetSeen(ctx context.Context, fp string) (*models.SeenRecord, error) {
	var rec models.SeenRecord
	err := r.db.GetContext(ctx, &rec,
		"SELECT fingerprint, source_id, first_seen_at, last_seen_at FROM seen_records WHERE fingerprint = ?", fp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get seen record: %w", err)
	}
	return &rec, nil
}

// InsertItem stores an accepted item for the read API. Re-delivery of the
// same fingerprint is a no-op, keeping at-least-once publication safe.
func (r *Repository) InsertItem(ctx context.Context, item *models.Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (fingerprint, source_id, title, url, summary, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING`,
		item.Fingerprint, item.SourceID, item.Title, item.URL, item.Summary,
		item.PublishedAt, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// FetchItems returns accepted items newest-first. A non-nil beforeID
// restricts the page to items older than that id (cursor pagination).
func (r *Repository) FetchItems(ctx context.Context, limit int, beforeID *int64) ([]models.Item, error) {
	query := `
		SELECT id, fingerprint, source_id, title, url, summary, published_at, created_at
		FROM items`
	args := []interface{}{}

	if beforeID != nil {
		query += " WHERE id < ?"
		args = append(args, *beforeID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	items := []models.Item{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}
	return items, nil
}

// SaveReport appends a finished cycle report to the audit log.
func (r *Repository) SaveReport(ctx context.Context, report *models.CycleReport) error {
	outcomes, err := json.Marshal(report.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cycle_reports
			(cycle_id, started_at, finished_at, sources_ok, sources_failed, items_accepted, items_duplicate, outcomes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.CycleID, report.StartedAt, report.FinishedAt,
		report.SourcesOK, report.SourcesFailed,
		report.ItemsAccepted, report.ItemsDuplicate, string(outcomes))
	if err != nil {
		return fmt.Errorf("save cycle report: %w", err)
	}
	return nil
}

// LastReport returns the most recent cycle report, or nil when no cycle
// has finished yet.
func (r *Repository) LastReport(ctx context.Context) (*models.CycleReport, error) {
	row := r.db.QueryRowxContext(ctx, `
		SELECT cycle_id, started_at, finished_at, sources_ok, sources_failed,
		       items_accepted, items_duplicate, outcomes
		FROM cycle_reports ORDER BY id DESC LIMIT 1`)

	var report models.CycleReport
	var outcomes string
	err := row.Scan(&report.CycleID, &report.StartedAt, &report.FinishedAt,
		&report.SourcesOK, &report.SourcesFailed,
		&report.ItemsAccepted, &report.ItemsDuplicate, &outcomes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last report: %w", err)
	}

	if err := json.Unmarshal([]byte(outcomes), &report.Outcomes); err != nil {
		return nil, fmt.Errorf("unmarshal outcomes: %w", err)
	}
	return &report, nil
}

// PurgeOld removes seen records and items not observed within the
// retention window, bounding durable state the way the cache bounds
// memory.
func (r *Repository) PurgeOld(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retentionDays must be positive")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	res, err := r.db.ExecContext(ctx,
		"DELETE FROM seen_records WHERE last_seen_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge seen records: %w", err)
	}
	purged, _ := res.RowsAffected()

	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM items WHERE created_at < ?", cutoff); err != nil {
		return purged, fmt.Errorf("purge items: %w", err)
	}

	return purged, nil
}
