package database

import (
	"fmt"
	"time"

	"reddot-watch/collector/internal/config"
)

const (
	defaultMaxOpenConns    = 12
	defaultBusyTimeoutMS   = 5000
	defaultCacheSizeMB     = 64
	defaultConnMaxLifetime = time.Hour
)

// settings is a DatabaseConfig with defaults applied.
type settings struct {
	config.DatabaseConfig
	readOnly bool
}

func newSettings(cfg config.DatabaseConfig, readOnly bool) settings {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.BusyTimeoutMS <= 0 {
		cfg.BusyTimeoutMS = defaultBusyTimeoutMS
	}
	if cfg.CacheSizeMB <= 0 {
		cfg.CacheSizeMB = defaultCacheSizeMB
	}
	return settings{DatabaseConfig: cfg, readOnly: readOnly}
}

// dsn enables WAL so the API can read while a cycle writes.
func (s settings) dsn() string {
	dsn := fmt.Sprintf("%s?_journal=WAL&_synchronous=NORMAL&_busy_timeout=%d", s.Path, s.BusyTimeoutMS)
	if s.readOnly {
		dsn += "&mode=ro"
	}
	return dsn
}

func (s settings) pragmas() []string {
	// negative cache_size is in KiB
	out := []string{
		fmt.Sprintf("PRAGMA cache_size = %d;", -s.CacheSizeMB*1000),
		"PRAGMA temp_store = MEMORY;",
	}
	if s.readOnly {
		return append(out, "PRAGMA query_only = ON;")
	}
	return append(out, "PRAGMA foreign_keys = ON;")
}

func (s settings) mode() string {
	if s.readOnly {
		return "read-only"
	}
	return "read-write"
}
