package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/collect"
	"reddot-watch/collector/internal/config"
	"reddot-watch/collector/internal/database"
	"reddot-watch/collector/internal/importer"
	"reddot-watch/collector/internal/server"
	"reddot-watch/collector/internal/server/storage"
)

type importCommand struct {
	CSV   string `long:"csv" env:"COLLECTOR_SOURCES_CSV" default:"./sources.csv" description:"Path or URL of the sources CSV file"`
	Reset bool   `long:"reset" description:"Delete the existing database before importing"`
}

// Execute imports sources into the database.
func (c *importCommand) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if c.Reset {
		if err := resetDatabase(cfg.Database.Path); err != nil {
			return err
		}
	}

	db, err := openDB(cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signalContext()
	defer stop()

	result, err := importer.NewImporter(db).ImportSources(ctx, c.CSV)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d of %d sources\n", result.Imported, result.Total)
	if len(result.Errors) > 0 {
		fmt.Printf("Encountered %d errors:\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}

// resetDatabase asks for confirmation, then removes the database file.
func resetDatabase(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	fmt.Printf("Database %s already exists.\n", path)
	fmt.Print("Delete and recreate? (y/N): ")

	var answer string
	fmt.Scanln(&answer)
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		log.Info().Msg("Operation canceled by user")
		return errors.New("operation canceled by user")
	}

	if err := database.DeleteDB(path); err != nil {
		return fmt.Errorf("failed to delete existing database: %w", err)
	}
	log.Info().Str("path", path).Msg("Deleted existing database")
	return nil
}

type collectCommand struct {
	Language string `long:"language" description:"Only collect sources with this language"`
	Source   string `long:"source" description:"Only collect the source with this name"`
}

// Execute runs a single collection cycle.
func (c *collectCommand) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDB(cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signalContext()
	defer stop()

	if err := syncConfiguredSources(ctx, db, cfg); err != nil {
		return err
	}

	collector, err := newCollector(cfg, db)
	if err != nil {
		return err
	}

	report, err := collector.RunCycle(ctx, collect.Selection{Language: c.Language, SourceName: c.Source})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("Collection canceled by shutdown signal")
			return nil
		}
		return err
	}

	for _, o := range report.Outcomes {
		fmt.Printf("%-30s %-8s found=%d kept=%d new=%d\n", o.SourceName, o.Status, o.ItemsFound, o.ItemsAfterFilter, o.ItemsNew)
	}
	fmt.Printf("Collected %d new items from %d sources (%d failed)\n", len(report.NewItems), len(report.Outcomes), report.Failed())
	return nil
}

type startCommand struct {
	Interval int  `long:"interval" default:"-1" description:"Minutes between cycles, 0 for one-shot mode, -1 keeps schedule.interval_minutes"`
	NoServer bool `long:"no-server" description:"Do not serve the HTTP API while running"`
}

// Execute runs collection cycles until a shutdown signal arrives.
func (c *startCommand) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Interval >= 0 {
		cfg.Schedule.IntervalMinutes = c.Interval
	}
	interval := cfg.Schedule.Interval()

	if interval <= 0 {
		log.Info().Msg("Running in one-shot mode")
	} else {
		log.Info().Int("interval_minutes", cfg.Schedule.IntervalMinutes).Msg("Running in periodic mode")
	}

	db, err := openDB(cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signalContext()
	defer stop()

	if err := syncConfiguredSources(ctx, db, cfg); err != nil {
		return err
	}

	collector, err := newCollector(cfg, db)
	if err != nil {
		return err
	}

	if !c.NoServer && interval > 0 {
		srv := newServer(cfg, db)
		if err := srv.Start(); err != nil {
			return err
		}
		defer shutdownServer(srv)
	}

	if err := runCycle(ctx, collector, cfg); err != nil {
		return err
	}
	if interval <= 0 {
		log.Info().Msg("One-shot collection completed, exiting")
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", interval).
		Time("next_run", time.Now().Add(interval)).
		Msg("Waiting for next collection cycle")

	for {
		select {
		case <-ticker.C:
			log.Info().Msg("Starting scheduled collection cycle")
			if err := runCycle(ctx, collector, cfg); err != nil {
				return err
			}
			log.Info().
				Time("next_run", time.Now().Add(interval)).
				Msg("Waiting for next collection cycle")

		case <-ctx.Done():
			log.Info().Msg("Shutting down periodic collection")
			return nil
		}
	}
}

// runCycle runs one cycle followed by a purge. Only a dead database is fatal;
// cancellation ends quietly.
func runCycle(ctx context.Context, collector *collect.Collector, cfg *config.Config) error {
	cycleCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	if _, err := collector.RunCycle(cycleCtx, collect.Selection{}); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Info().Msg("Collection cycle canceled by shutdown signal")
			return nil
		}
		log.Error().Err(err).Msg("Collection cycle failed")
		// Continue to the next cycle rather than exiting
	}

	stored, duplicates := collector.Stats()
	log.Info().
		Int64("stored", stored).
		Int64("duplicates", duplicates).
		Msg("Collection stats")

	purgeCtx, purgeCancel := context.WithTimeout(ctx, 5*time.Minute)
	defer purgeCancel()

	purged, err := collector.Purge(purgeCtx, cfg.Database.RetentionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge old items")
	} else if purged > 0 {
		log.Info().Int64("purged_count", purged).Msg("Successfully purged old items")
	} else {
		log.Info().Msg("No old items needed purging")
	}
	return nil
}

type serverCommand struct {
	Host string `long:"host" description:"Host to bind the server to (overrides server.host)"`
	Port int    `long:"port" description:"Port to listen on (overrides server.port)"`
}

// Execute serves the HTTP API until a shutdown signal arrives.
func (c *serverCommand) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	db, err := openDB(cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signalContext()
	defer stop()

	srv := newServer(cfg, db)
	if err := srv.Start(); err != nil {
		return err
	}

	select {
	case err := <-srv.Done():
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}
	shutdownServer(srv)
	log.Info().Msg("Server exiting.")
	return nil
}

func openDB(cfg *config.Config, readOnly bool) (*database.DB, error) {
	db, err := database.Open(cfg.Database, readOnly)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Database.Path).Msg("Failed to initialize database")
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

func newServer(cfg *config.Config, db *database.DB) *server.Server {
	return server.New(storage.NewRepository(db), server.Options{
		Addr:        cfg.Server.ListenAddr(),
		APIKey:      cfg.Server.APIKey,
		ServiceName: config.DefaultServiceName,
	}, log.Logger)
}

func shutdownServer(srv *server.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
