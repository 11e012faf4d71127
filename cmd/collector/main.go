package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/config"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// globalOptions apply to every command.
type globalOptions struct {
	ConfigPath string `short:"c" long:"config" env:"COLLECTOR_CONFIG" default:"./config/config.yaml" description:"Path to the YAML configuration file"`
	DBPath     string `long:"db" description:"Path to the SQLite database file (overrides database.path)"`
	LogLevel   string `long:"log-level" description:"Log level: debug, info, warn, error (overrides logging.level)"`
}

var globals globalOptions

func main() {
	parser := flags.NewParser(&globals, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "collector"

	parser.AddCommand("import", "Import sources from CSV",
		"Imports sources from a local CSV file or an http(s) URL. Existing sources with the same name are updated.",
		&importCommand{})
	parser.AddCommand("collect", "Run one collection cycle",
		"Collects every enabled source once, optionally narrowed by language or source name.",
		&collectCommand{})
	parser.AddCommand("start", "Run collection cycles periodically",
		"Runs a collection cycle, purges old items and repeats every interval. Also serves the HTTP API.",
		&startCommand{})
	parser.AddCommand("server", "Serve the read-only HTTP API",
		"Serves health, items, runs, stats and source export endpoints.",
		&serverCommand{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(flagsErr.Message)
			os.Exit(0)
		}
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies global flag overrides.
// A missing file at the default path falls back to built-in defaults.
func loadConfig() (*config.Config, error) {
	path := globals.ConfigPath
	if _, err := os.Stat(path); err != nil && path == config.DefaultConfigPath {
		log.Debug().Str("path", path).Msg("No configuration file, using defaults")
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if globals.DBPath != "" {
		cfg.Database.Path = globals.DBPath
	}
	if globals.LogLevel != "" {
		level, err := zerolog.ParseLevel(globals.LogLevel)
		if err != nil {
			return nil, err
		}
		cfg.Logging.Level = level.String()
	}

	zerolog.SetGlobalLevel(cfg.LogLevel())
	return cfg, nil
}
