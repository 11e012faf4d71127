package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reddot-watch/collector/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
filtering:
  max_age_days: 3
sources:
  - name: blog
    url: https://example.com/feed
    tags: [go]
    config:
      filter_keywords: [golang]
  - name: site
    url: https://example.com/news
    kind: site
    enabled: false
    config:
      selector: article
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Filtering.MaxAgeDays != 3 {
		t.Errorf("max_age_days = %d, want 3", cfg.Filtering.MaxAgeDays)
	}
	if cfg.Filtering.MinContentLength != DefaultMinContentLength {
		t.Errorf("min_content_length = %d, want default", cfg.Filtering.MinContentLength)
	}
	if cfg.Performance.RequestTimeoutDuration() != 30*time.Second {
		t.Errorf("request timeout = %v", cfg.Performance.RequestTimeoutDuration())
	}
	if cfg.Performance.RetryAttempts != 3 || cfg.Performance.RetryDelayDuration() != 5*time.Second {
		t.Errorf("retry = %d/%v", cfg.Performance.RetryAttempts, cfg.Performance.RetryDelayDuration())
	}

	sources := cfg.SourceModels()
	if len(sources) != 2 {
		t.Fatalf("got %d sources", len(sources))
	}
	if sources[0].Kind != models.SourceKindFeed || !sources[0].Enabled {
		t.Errorf("first source defaults not applied: %+v", sources[0])
	}
	if len(sources[0].Config.FilterKeywords) != 1 {
		t.Errorf("filter keywords = %v", sources[0].Config.FilterKeywords)
	}
	if sources[1].Kind != models.SourceKindSite || sources[1].Enabled {
		t.Errorf("second source = %+v", sources[1])
	}
	if sources[1].Config.Selector != "article" {
		t.Errorf("selector = %q", sources[1].Config.Selector)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COLLECTOR_DB_PATH", "/tmp/other.db")
	t.Setenv("COLLECTOR_PORT", "9090")
	t.Setenv("COLLECTOR_INTERVAL", "2h")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Path != "/tmp/other.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.Server.ListenAddr() != ":9090" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr())
	}
	if cfg.Schedule.Interval() != 2*time.Hour {
		t.Errorf("interval = %v", cfg.Schedule.Interval())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"negative length", func(c *Config) { c.Filtering.MinContentLength = -1 }, "min_content_length"},
		{"no attempts", func(c *Config) { c.Performance.RetryAttempts = 0 }, "retry_attempts"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"duplicate source", func(c *Config) {
			c.Sources = []SourceEntry{{Name: "a", URL: "u"}, {Name: "a", URL: "u"}}
		}, "duplicate name"},
		{"missing url", func(c *Config) { c.Sources = []SourceEntry{{Name: "a"}} }, "url is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("X_DUR_MIN", "15")
	t.Setenv("X_DUR_UNIT", "90s")
	t.Setenv("X_DUR_BAD", "abc")

	if got := GetEnvDuration("X_DUR_MIN", 0); got != 15*time.Minute {
		t.Errorf("plain minutes = %v", got)
	}
	if got := GetEnvDuration("X_DUR_UNIT", 0); got != 90*time.Second {
		t.Errorf("with unit = %v", got)
	}
	if got := GetEnvDuration("X_DUR_BAD", time.Second); got != time.Second {
		t.Errorf("invalid = %v", got)
	}
}
