package models

import "time"

// SourceOutcome records how one source fared within a cycle.
type SourceOutcome struct {
	SourceID       string `json:"source_id"`
	OK             bool   `json:"ok"`
	Error          string `json:"error,omitempty"`
	ItemsAccepted  int    `json:"items_accepted"`
	ItemsDuplicate int    `json:"items_duplicate"`
}

// CycleReport is produced once per crawl cycle and appended to the audit
// log; it is never mutated after FinishedAt is set.
type CycleReport struct {
	CycleID        int64           `json:"cycle_id"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	SourcesOK      int             `json:"sources_ok"`
	SourcesFailed  int             `json:"sources_failed"`
	ItemsAccepted  int             `json:"items_accepted"`
	ItemsDuplicate int             `json:"items_duplicate"`
	Outcomes       []SourceOutcome `json:"outcomes"`
}
