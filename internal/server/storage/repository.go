package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"reddot-watch/collector/internal/database"
	"reddot-watch/collector/internal/models"
	"reddot-watch/collector/internal/server/pagination"
)

// Repository defines the read operations the API needs.
type Repository interface {
	FetchItems(ctx context.Context, limit int, since *time.Time, cursor *pagination.Cursor) ([]models.Item, error)
	FetchRuns(ctx context.Context, sourceName string, limit int) ([]models.RunOutcome, error)
	FetchStats(ctx context.Context, days int) (*database.Stats, error)
	FetchSources(ctx context.Context) ([]models.Source, error)
	Ping(ctx context.Context) error
}

// sqlxRepository implements Repository on top of the database layer.
type sqlxRepository struct {
	db *database.DB
}

// NewRepository creates a new repository instance.
func NewRepository(db *database.DB) Repository {
	return &sqlxRepository{db: db}
}

// FetchItems returns items collected strictly after the cursor position or,
// for a first page, strictly after since.
func (r *sqlxRepository) FetchItems(ctx context.Context, limit int, since *time.Time, cursor *pagination.Cursor) ([]models.Item, error) {
	switch {
	case cursor != nil:
		return r.db.ListItems(ctx, cursor.CollectedAt, cursor.ID, limit)
	case since != nil:
		// No id exceeds MaxInt64, so only later timestamps match.
		return r.db.ListItems(ctx, *since, math.MaxInt64, limit)
	default:
		return nil, fmt.Errorf("either 'since' or cursor parameters must be provided")
	}
}

func (r *sqlxRepository) FetchRuns(ctx context.Context, sourceName string, limit int) ([]models.RunOutcome, error) {
	return r.db.ListRunOutcomes(ctx, sourceName, limit)
}

func (r *sqlxRepository) FetchStats(ctx context.Context, days int) (*database.Stats, error) {
	return r.db.CollectionStats(ctx, days)
}

func (r *sqlxRepository) FetchSources(ctx context.Context) ([]models.Source, error) {
	return r.db.ListSources(ctx, false)
}

func (r *sqlxRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
