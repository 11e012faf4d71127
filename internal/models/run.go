package models

import "time"

// RunStatus is the terminal status of a collection run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// RunOutcome represents a row in the 'run_outcomes' table.
// Outcomes are append-only: once stored they are never updated.
type RunOutcome struct {
	ID               string     `db:"id" json:"id"`
	SourceID         int64      `db:"source_id" json:"source_id"`
	SourceName       string     `db:"source_name" json:"source_name"`
	StartedAt        time.Time  `db:"started_at" json:"started_at"`
	ItemsFound       int        `db:"items_found" json:"items_found"`
	ItemsAfterFilter int        `db:"items_after_filter" json:"items_after_filter"`
	ItemsNew         int        `db:"items_new" json:"items_new"`
	Errors           StringList `db:"errors" json:"errors"`
	DurationMS       int64      `db:"duration_ms" json:"duration_ms"`
	Status           RunStatus  `db:"status" json:"status"`
}

// Duration returns the wall time the run took.
func (o RunOutcome) Duration() time.Duration {
	return time.Duration(o.DurationMS) * time.Millisecond
}

// WithNew returns a copy of the outcome with the persisted item count set.
// A failed or partial status is kept as is.
func (o RunOutcome) WithNew(n int) RunOutcome {
	o.ItemsNew = n
	o.Errors = append(StringList{}, o.Errors...)
	return o
}

// WithError returns a copy with msg appended and the status downgraded to partial
// unless the run already failed.
func (o RunOutcome) WithError(msg string) RunOutcome {
	o.Errors = append(append(StringList{}, o.Errors...), msg)
	if o.Status == RunStatusSuccess {
		o.Status = RunStatusPartial
	}
	return o
}
