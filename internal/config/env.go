package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvString retrieves a string from environment variables or returns the default value.
func GetEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvInt retrieves an integer from environment variables or returns the default value.
func GetEnvInt(key string, defaultValue int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultValue
	}
	return val
}

// GetEnvBool retrieves a boolean from environment variables or returns the default value.
func GetEnvBool(key string, defaultValue bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}

	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultValue
	}
	return val
}

// GetEnvDuration retrieves a duration from environment variables or returns the default value.
// If the string contains time units (m, h, s), they'll be parsed accordingly.
// Otherwise, the value is interpreted as minutes.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}

	if strings.Contains(valStr, "m") || strings.Contains(valStr, "h") || strings.Contains(valStr, "s") {
		val, err := time.ParseDuration(valStr)
		if err != nil {
			return defaultValue
		}
		return val
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultValue
	}
	return time.Duration(val) * time.Minute
}

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "COLLECTOR_"

// ApplyEnv overrides configuration values from COLLECTOR_* environment variables.
func (c *Config) ApplyEnv() {
	c.Database.Path = GetEnvString(EnvPrefix+"DB_PATH", c.Database.Path)
	c.Database.RetentionDays = GetEnvInt(EnvPrefix+"RETENTION_DAYS", c.Database.RetentionDays)
	c.Logging.Level = GetEnvString(EnvPrefix+"LOG_LEVEL", c.Logging.Level)
	c.Timezone = GetEnvString(EnvPrefix+"TIMEZONE", c.Timezone)

	c.Summarizer.Endpoint = GetEnvString(EnvPrefix+"SUMMARIZER_ENDPOINT", c.Summarizer.Endpoint)
	c.Summarizer.Model = GetEnvString(EnvPrefix+"SUMMARIZER_MODEL", c.Summarizer.Model)
	c.Notifier.WebhookURL = GetEnvString(EnvPrefix+"WEBHOOK_URL", c.Notifier.WebhookURL)
	c.Tagging.UseLLM = GetEnvBool(EnvPrefix+"TAGGING_USE_LLM", c.Tagging.UseLLM)

	c.Server.Host = GetEnvString(EnvPrefix+"HOST", c.Server.Host)
	c.Server.Port = GetEnvInt(EnvPrefix+"PORT", c.Server.Port)
	c.Server.APIKey = GetEnvString(EnvPrefix+"API_KEY", c.Server.APIKey)

	interval := GetEnvDuration(EnvPrefix+"INTERVAL", c.Schedule.Interval())
	c.Schedule.IntervalMinutes = int(interval / time.Minute)
}
