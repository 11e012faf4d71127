package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/models"
)

// ErrSourceNotFound is returned when a source lookup matches no row.
var ErrSourceNotFound = errors.New("source not found")

const sourceColumns = `id, name, url, kind, language, enabled, tags, config, last_collected_at,
	collection_count, consecutive_error_count, created_at, updated_at`

// UpsertSource inserts src or updates the definition of the existing source with
// the same name. Collection counters are left untouched. src.ID is set on return.
func (db *DB) UpsertSource(ctx context.Context, src *models.Source) error {
	now := formatTime(time.Now().UTC())
	err := db.QueryRowxContext(ctx, `
		INSERT INTO sources (name, url, kind, language, enabled, tags, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			url = excluded.url,
			kind = excluded.kind,
			language = excluded.language,
			enabled = excluded.enabled,
			tags = excluded.tags,
			config = excluded.config,
			updated_at = excluded.updated_at
		RETURNING id`,
		src.Name, src.URL, string(src.Kind), src.Language, src.Enabled, src.Tags, src.Config, now, now,
	).Scan(&src.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert source %s: %w", src.Name, err)
	}
	return nil
}

// SyncSources upserts every configured source in one transaction.
func (db *DB) SyncSources(ctx context.Context, sources []models.Source) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now().UTC())
	for _, src := range sources {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sources (name, url, kind, language, enabled, tags, config, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				url = excluded.url,
				kind = excluded.kind,
				language = excluded.language,
				enabled = excluded.enabled,
				tags = excluded.tags,
				config = excluded.config,
				updated_at = excluded.updated_at`,
			src.Name, src.URL, string(src.Kind), src.Language, src.Enabled, src.Tags, src.Config, now, now)
		if err != nil {
			return fmt.Errorf("failed to sync source %s: %w", src.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit source sync: %w", err)
	}
	log.Debug().Int("count", len(sources)).Msg("Sources synchronized")
	return nil
}

// ListSources returns sources ordered by id, optionally only the enabled ones.
func (db *DB) ListSources(ctx context.Context, enabledOnly bool) ([]models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY id ASC`

	sources := []models.Source{}
	if err := db.SelectContext(ctx, &sources, query); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

// GetSourceByName returns the source with the given name or ErrSourceNotFound.
func (db *DB) GetSourceByName(ctx context.Context, name string) (*models.Source, error) {
	var src models.Source
	err := db.GetContext(ctx, &src, `SELECT `+sourceColumns+` FROM sources WHERE name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSourceNotFound
		}
		return nil, fmt.Errorf("failed to get source %s: %w", name, err)
	}
	return &src, nil
}

// RecordCollection updates the collection counters of a source after a run.
// A failed run increments the consecutive error count, a successful one resets it.
func (db *DB) RecordCollection(ctx context.Context, sourceID int64, at time.Time, failed bool) error {
	_, err := db.ExecContext(ctx, `
		UPDATE sources SET
			last_collected_at = ?,
			collection_count = collection_count + 1,
			consecutive_error_count = CASE WHEN ? THEN consecutive_error_count + 1 ELSE 0 END,
			updated_at = ?
		WHERE id = ?`,
		formatTime(at), failed, formatTime(time.Now().UTC()), sourceID)
	if err != nil {
		return fmt.Errorf("failed to record collection for source %d: %w", sourceID, err)
	}
	return nil
}
