package database

import (
	"context"
	"fmt"
	"time"

	"reddot-watch/collector/internal/models"
)

// AppendRunOutcome stores a run outcome. Outcomes are never updated afterwards.
func (db *DB) AppendRunOutcome(ctx context.Context, o models.RunOutcome) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO run_outcomes (id, source_id, source_name, started_at, items_found,
			items_after_filter, items_new, errors, duration_ms, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.SourceID, o.SourceName, formatTime(o.StartedAt), o.ItemsFound,
		o.ItemsAfterFilter, o.ItemsNew, o.Errors, o.DurationMS, string(o.Status))
	if err != nil {
		return fmt.Errorf("failed to append run outcome %s: %w", o.ID, err)
	}
	return nil
}

// ListRunOutcomes returns the most recent outcomes first. An empty sourceName
// returns outcomes of every source.
func (db *DB) ListRunOutcomes(ctx context.Context, sourceName string, limit int) ([]models.RunOutcome, error) {
	query := `SELECT id, source_id, source_name, started_at, items_found, items_after_filter,
		items_new, errors, duration_ms, status FROM run_outcomes`
	var args []any
	if sourceName != "" {
		query += ` WHERE source_name = ?`
		args = append(args, sourceName)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	outcomes := []models.RunOutcome{}
	if err := db.SelectContext(ctx, &outcomes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list run outcomes: %w", err)
	}
	return outcomes, nil
}

// SourceStats aggregates the run outcomes of one source.
type SourceStats struct {
	SourceName    string `db:"source_name" json:"source_name"`
	Runs          int    `db:"runs" json:"runs"`
	Failed        int    `db:"failed" json:"failed"`
	ItemsFound    int    `db:"items_found" json:"items_found"`
	ItemsNew      int    `db:"items_new" json:"items_new"`
	AvgDurationMS int64  `db:"avg_duration_ms" json:"avg_duration_ms"`
}

// Stats summarizes collection activity over a period.
type Stats struct {
	Since      time.Time     `json:"since"`
	TotalItems int           `json:"total_items"`
	NewItems   int           `json:"new_items"`
	Sources    []SourceStats `json:"sources"`
}

// CollectionStats returns run statistics for the last days days.
func (db *DB) CollectionStats(ctx context.Context, days int) (*Stats, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	stats := &Stats{Since: since, Sources: []SourceStats{}}

	if err := db.GetContext(ctx, &stats.TotalItems, `SELECT COUNT(*) FROM items`); err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	if err := db.GetContext(ctx, &stats.NewItems,
		`SELECT COUNT(*) FROM items WHERE collected_at >= ?`, formatTime(since)); err != nil {
		return nil, fmt.Errorf("failed to count new items: %w", err)
	}

	err := db.SelectContext(ctx, &stats.Sources, `
		SELECT source_name,
			COUNT(*) AS runs,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed,
			SUM(items_found) AS items_found,
			SUM(items_new) AS items_new,
			CAST(AVG(duration_ms) AS INTEGER) AS avg_duration_ms
		FROM run_outcomes
		WHERE started_at >= ?
		GROUP BY source_name
		ORDER BY source_name`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate run outcomes: %w", err)
	}
	return stats, nil
}
