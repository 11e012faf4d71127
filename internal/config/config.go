package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"reddot-watch/collector/internal/models"
)

// Config holds all configuration for the application
type Config struct {
	Filtering     FilteringConfig     `yaml:"filtering"`
	Performance   PerformanceConfig   `yaml:"performance"`
	Deduplication DeduplicationConfig `yaml:"deduplication"`
	Sources       []SourceEntry       `yaml:"sources"`
	Database      DatabaseConfig      `yaml:"database"`
	Summarizer    SummarizerConfig    `yaml:"summarizer"`
	Tagging       TaggingConfig       `yaml:"tagging"`
	Notifier      NotifierConfig      `yaml:"notifier"`
	Server        ServerConfig        `yaml:"server"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Logging       LoggingConfig       `yaml:"logging"`

	// Timezone is used to interpret timestamps that carry no zone.
	Timezone string `yaml:"timezone"`
}

type FilteringConfig struct {
	MinContentLength int      `yaml:"min_content_length"`
	MaxAgeDays       int      `yaml:"max_age_days"`
	BlockedDomains   []string `yaml:"blocked_domains"`
	RequiredKeywords []string `yaml:"required_keywords"`
}

type RateLimitingConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	BurstLimit        int `yaml:"burst_limit"`
}

// PerformanceConfig durations are expressed in seconds.
type PerformanceConfig struct {
	RequestTimeout        int                `yaml:"request_timeout"`
	RetryAttempts         int                `yaml:"retry_attempts"`
	RetryDelay            int                `yaml:"retry_delay"`
	MaxConcurrentRequests int                `yaml:"max_concurrent_requests"`
	UserAgent             string             `yaml:"user_agent"`
	RateLimiting          RateLimitingConfig `yaml:"rate_limiting"`
}

type DeduplicationConfig struct {
	URLWindowHours   int `yaml:"url_window_hours"`
	TitleWindowHours int `yaml:"title_window_hours"`
}

// SourceEntry is a source as declared in the configuration file.
type SourceEntry struct {
	Name     string              `yaml:"name"`
	URL      string              `yaml:"url"`
	Kind     string              `yaml:"kind"`
	Language string              `yaml:"language"`
	Enabled  *bool               `yaml:"enabled"`
	Tags     []string            `yaml:"tags"`
	Config   models.SourceConfig `yaml:"config"`
}

// DatabaseConfig configures the SQLite store. Zero tuning values fall back
// to the store's defaults.
type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
	CacheSizeMB   int    `yaml:"cache_size_mb"`
}

type SummarizerConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Model           string `yaml:"model"`
	Timeout         int    `yaml:"timeout"`
	MaxSummaryChars int    `yaml:"max_summary_chars"`
}

type TaggingConfig struct {
	MaxTags int                 `yaml:"max_tags"`
	Rules   map[string][]string `yaml:"rules"`
	UseLLM  bool                `yaml:"use_llm"`
}

type NotifierConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	MaxItems   int    `yaml:"max_items"`
}

type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type ScheduleConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns an initial configuration with hardcoded defaults.
func DefaultConfig() *Config {
	return &Config{
		Filtering: FilteringConfig{
			MinContentLength: DefaultMinContentLength,
			MaxAgeDays:       DefaultMaxAgeDays,
			BlockedDomains:   []string{},
			RequiredKeywords: []string{},
		},
		Performance: PerformanceConfig{
			RequestTimeout:        DefaultRequestTimeout,
			RetryAttempts:         DefaultRetryAttempts,
			RetryDelay:            DefaultRetryDelay,
			MaxConcurrentRequests: DefaultMaxConcurrentRequests,
			UserAgent:             DefaultUserAgent,
			RateLimiting: RateLimitingConfig{
				RequestsPerMinute: DefaultRequestsPerMinute,
				BurstLimit:        DefaultBurstLimit,
			},
		},
		Deduplication: DeduplicationConfig{
			URLWindowHours:   DefaultURLWindowHours,
			TitleWindowHours: DefaultTitleWindowHours,
		},
		Database: DatabaseConfig{
			Path:          DefaultDBPath,
			RetentionDays: DefaultRetentionDays,
		},
		Summarizer: SummarizerConfig{
			Timeout:         DefaultSummarizerTimeout,
			MaxSummaryChars: DefaultMaxSummaryChars,
		},
		Tagging:  TaggingConfig{MaxTags: DefaultMaxTags},
		Notifier: NotifierConfig{MaxItems: DefaultNotifyMaxItems},
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
		Schedule: ScheduleConfig{IntervalMinutes: DefaultIntervalMinutes},
		Logging:  LoggingConfig{Level: DefaultLogLevel},
		Timezone: DefaultTimezone,
	}
}

// Load reads the YAML file at path on top of the defaults, applies environment
// overrides and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the collector cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Filtering.MinContentLength < 0 {
		errs = append(errs, errors.New("filtering.min_content_length must not be negative"))
	}
	if c.Filtering.MaxAgeDays < 0 {
		errs = append(errs, errors.New("filtering.max_age_days must not be negative"))
	}
	if c.Performance.RequestTimeout <= 0 {
		errs = append(errs, errors.New("performance.request_timeout must be positive"))
	}
	if c.Performance.RetryAttempts < 1 {
		errs = append(errs, errors.New("performance.retry_attempts must be at least 1"))
	}
	if c.Performance.RetryDelay < 0 {
		errs = append(errs, errors.New("performance.retry_delay must not be negative"))
	}
	if c.Performance.MaxConcurrentRequests < 1 {
		errs = append(errs, errors.New("performance.max_concurrent_requests must be at least 1"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level %q: %w", c.Logging.Level, err))
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("source %q: url is required", s.Name))
		}
	}

	return errors.Join(errs...)
}

// Location returns the timezone used for zone-less timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LogLevel returns the configured zerolog level, defaulting to info.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// RequestTimeoutDuration returns the per-attempt fetch timeout.
func (p PerformanceConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(p.RequestTimeout) * time.Second
}

// RetryDelayDuration returns the wait between fetch attempts.
func (p PerformanceConfig) RetryDelayDuration() time.Duration {
	return time.Duration(p.RetryDelay) * time.Second
}

// Interval returns the time between scheduled cycles. Zero means run once.
func (s ScheduleConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ToSource converts a declared source into its stored form.
// Kind defaults to feed and enabled defaults to true.
func (e SourceEntry) ToSource() models.Source {
	src := models.NewSource(e.Name, e.URL)
	if e.Kind != "" {
		src.Kind = models.SourceKind(e.Kind)
	}
	src.Language = e.Language
	if e.Enabled != nil {
		src.Enabled = *e.Enabled
	}
	if e.Tags != nil {
		src.Tags = models.StringList(append([]string{}, e.Tags...))
	}
	src.Config = e.Config
	return *src
}

// SourceModels converts every declared source.
func (c *Config) SourceModels() []models.Source {
	out := make([]models.Source, 0, len(c.Sources))
	for _, e := range c.Sources {
		out = append(out, e.ToSource())
	}
	return out
}
