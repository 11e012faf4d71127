package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/config"
	"reddot-watch/collector/internal/database/migrations"
)

// DB represents the database connection
type DB struct {
	*sqlx.DB
}

// Open connects to the database described by cfg. A writable connection
// applies pending migrations before it is returned.
func Open(cfg config.DatabaseConfig, readOnly bool) (*DB, error) {
	set := newSettings(cfg, readOnly)
	logger := log.With().Str("path", set.Path).Str("mode", set.mode()).Logger()

	if dir := filepath.Dir(set.Path); dir != "." && !readOnly {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for database: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", set.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(set.MaxOpenConns)
	db.SetMaxIdleConns(set.MaxOpenConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	for _, pragma := range set.pragmas() {
		if _, err := db.Exec(pragma); err != nil {
			logger.Warn().Err(err).Str("pragma", pragma).Msg("Failed to set PRAGMA")
		}
	}

	if !readOnly {
		if err := migrate(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db (%s): %w", set.mode(), err)
	}

	logger.Info().Msg("Database opened")
	return &DB{db}, nil
}

func migrate(db *sqlx.DB) error {
	list, err := migrations.LoadMigrations(migrations.Files)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := migrations.RunMigrations(db.DB, list); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Debug().Int("migrations", len(list)).Msg("Database schema up to date")
	return nil
}

// timeLayout is fixed-width so that stored timestamps compare correctly as text.
const timeLayout = "2006-01-02 15:04:05.000000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// DeleteDB removes the database file and its WAL side files.
func DeleteDB(dbPath string) error {
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
