package config

// Constants defining default values for application configuration
const (
	DefaultConfigPath    = "./config/config.yaml"
	DefaultSourcesCSV    = "./sources.csv"
	DefaultDBPath        = "./data/collector.db"
	DefaultTimezone      = "UTC"
	DefaultLogLevel      = "info"
	DefaultUserAgent     = "reddot-collector/1.0"
	DefaultServiceName   = "collector"
	DefaultRetentionDays = 30 // Days to keep items before purging

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultIntervalMinutes = 60 // Minutes between collection cycles

	DefaultMinContentLength = 100
	DefaultMaxAgeDays       = 7

	DefaultRequestTimeout        = 30 // seconds
	DefaultRetryAttempts         = 3
	DefaultRetryDelay            = 5 // seconds
	DefaultMaxConcurrentRequests = 4
	DefaultRequestsPerMinute     = 60
	DefaultBurstLimit            = 10

	DefaultURLWindowHours   = 24
	DefaultTitleWindowHours = 48

	DefaultSummarizerTimeout = 60 // seconds
	DefaultMaxSummaryChars   = 300
	DefaultMaxTags           = 5
	DefaultNotifyMaxItems    = 5
)
