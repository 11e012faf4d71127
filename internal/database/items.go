package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/models"
)

const insertItemQuery = `
	INSERT INTO items (url, title, title_key, content, summary, language, source_name, author,
		published_at, published_zone_known, collected_at, tags, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO NOTHING;`

// InsertItemIfAbsent stores item unless an item with the same URL exists.
// It reports whether a row was written.
func (db *DB) InsertItemIfAbsent(ctx context.Context, item *models.Item) (bool, error) {
	res, err := db.ExecContext(ctx, insertItemQuery, itemArgs(item)...)
	if err != nil {
		return false, fmt.Errorf("failed to insert item %s: %w", item.URL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for %s: %w", item.URL, err)
	}
	if n == 0 {
		return false, nil
	}
	if id, err := res.LastInsertId(); err == nil {
		item.ID = id
	}
	return true, nil
}

// InsertItems writes items in a single transaction with insert-if-absent semantics
// and returns the items that were actually stored, with their IDs set.
// Nothing is written if the context is cancelled before commit.
func (db *DB) InsertItems(ctx context.Context, items []models.Item) ([]models.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, insertItemQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	inserted := make([]models.Item, 0, len(items))
	duplicates := 0
	for i := range items {
		item := items[i]
		res, err := stmt.ExecContext(ctx, itemArgs(&item)...)
		if err != nil {
			return nil, fmt.Errorf("failed to insert item %s: %w", item.URL, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed get rows affected for %s: %w", item.URL, err)
		}
		if n == 0 {
			duplicates++
			log.Debug().Str("url", item.URL).Str("source", item.SourceName).Msg("Duplicate URL detected")
			continue
		}
		if id, err := res.LastInsertId(); err == nil {
			item.ID = id
		}
		inserted = append(inserted, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Debug().
		Int("inserted", len(inserted)).
		Int("duplicates", duplicates).
		Msg("Batch processed")
	return inserted, nil
}

func itemArgs(item *models.Item) []any {
	return []any{
		item.URL,
		item.Title,
		models.TitleKey(item.Title),
		item.Content,
		item.Summary,
		item.Language,
		item.SourceName,
		item.Author,
		formatTimePtr(item.PublishedAt),
		item.PublishedZoneKnown,
		formatTime(item.CollectedAt),
		item.Tags,
		item.Metadata,
	}
}

// ExistsByURL reports whether an item with the given URL is stored.
func (db *DB) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM items WHERE url = ?)`, url)
	if err != nil {
		return false, fmt.Errorf("failed to check url %s: %w", url, err)
	}
	return exists, nil
}

// ExistsByTitle reports whether an item with the same normalized title is stored.
// An empty sourceName matches any source.
func (db *DB) ExistsByTitle(ctx context.Context, title, sourceName string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM items WHERE title_key = ?)`
	args := []any{models.TitleKey(title)}
	if sourceName != "" {
		query = `SELECT EXISTS(SELECT 1 FROM items WHERE title_key = ? AND source_name = ?)`
		args = append(args, sourceName)
	}

	var exists bool
	if err := db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("failed to check title: %w", err)
	}
	return exists, nil
}

// FindRecentURLs returns the URLs of items from sourceName collected at or after since.
func (db *DB) FindRecentURLs(ctx context.Context, sourceName string, since time.Time) ([]string, error) {
	var urls []string
	err := db.SelectContext(ctx, &urls,
		`SELECT url FROM items WHERE source_name = ? AND collected_at >= ?`,
		sourceName, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent urls for %s: %w", sourceName, err)
	}
	return urls, nil
}

// FindRecentTitles returns the normalized titles of items from sourceName
// collected at or after since.
func (db *DB) FindRecentTitles(ctx context.Context, sourceName string, since time.Time) ([]string, error) {
	var titles []string
	err := db.SelectContext(ctx, &titles,
		`SELECT title_key FROM items WHERE source_name = ? AND collected_at >= ?`,
		sourceName, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent titles for %s: %w", sourceName, err)
	}
	return titles, nil
}

// ListItems returns items collected strictly after the (collectedAt, id) position,
// ordered by collection time then id.
func (db *DB) ListItems(ctx context.Context, after time.Time, afterID int64, limit int) ([]models.Item, error) {
	items := []models.Item{}
	err := db.SelectContext(ctx, &items, `
		SELECT id, url, title, content, summary, language, source_name, author,
			published_at, published_zone_known, collected_at, tags, metadata
		FROM items
		WHERE (collected_at > ?) OR (collected_at = ? AND id > ?)
		ORDER BY collected_at ASC, id ASC
		LIMIT ?`,
		formatTime(after), formatTime(after), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return items, nil
}

// PurgeOldItems deletes items collected more than retentionDays ago.
func (db *DB) PurgeOldItems(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retentionDays must be positive")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	cutoffStr := formatTime(cutoff)

	log.Info().
		Str("cutoff_date", cutoffStr).
		Int("retention_days", retentionDays).
		Msg("Purging old items")

	result, err := db.ExecContext(ctx, "DELETE FROM items WHERE collected_at < ?", cutoffStr)
	if err != nil {
		return 0, fmt.Errorf("failed to execute purge command on items: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Warn().Err(err).Msg("Could not get RowsAffected after purging items")
		return 0, nil
	}

	log.Info().Int64("rows_affected", rowsAffected).Msg("Purged old items")
	return rowsAffected, nil
}
