// Package config defines the global configuration structure for the notekeeper
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import "time"

// Config is the top-level configuration struct for the notekeeper service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Email    EmailConfig
	Delay    DelayConfig
	Auth     AuthConfig
	Archive  ArchiveConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// CorsAllowedOrigins lists origins allowed by the browser security layer.
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS regional configuration for SES and CloudWatch.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// MetricNamespace is the CloudWatch namespace for dispatcher telemetry.
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Notekeeper/Reminders"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig holds email delivery provider settings.
type EmailConfig struct {
	// Provider selects the outbound email implementation: "ses" or "stub".
	Provider    string `envconfig:"EMAIL_PROVIDER" default:"ses" validate:"oneof=ses stub"`
	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" default:"reminders@notekeeper.app"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"Notekeeper Reminders"`
	// SESConfigSet is the SES configuration set name for tracking. Optional.
	SESConfigSet string `envconfig:"SES_CONFIG_SET"`
}

// DelayConfig tunes the delay store runner that dispatches due reminders.
type DelayConfig struct {
	PollInterval time.Duration `envconfig:"DELAY_POLL_INTERVAL" default:"1s"`
	BatchSize    int           `envconfig:"DELAY_BATCH_SIZE" default:"25"`
	Concurrency  int           `envconfig:"DELAY_CONCURRENCY" default:"8"`
	// VisibilityTimeout bounds how long an entry may sit in the delivering
	// state before a restarted worker reclaims it.
	VisibilityTimeout time.Duration `envconfig:"DELAY_VISIBILITY_TIMEOUT" default:"2m"`

	// Default attempt policy applied to reminder entries.
	MaxAttempts  int           `envconfig:"REMINDER_MAX_ATTEMPTS" default:"5"`
	RetryBackoff time.Duration `envconfig:"REMINDER_RETRY_BACKOFF" default:"5m"`
}

// AuthConfig holds session management settings.
type AuthConfig struct {
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	// MinPasswordLength is enforced at registration.
	MinPasswordLength int `envconfig:"MIN_PASSWORD_LENGTH" default:"8"`
}

// ArchiveConfig tunes the maintenance job that archives terminal delay
// entries and purges old trash.
type ArchiveConfig struct {
	// Dir is where compressed archives of pruned delay entries are written.
	Dir string `envconfig:"ARCHIVE_DIR" default:"/var/lib/notekeeper/archive"`
	// EntryRetention is how long exhausted delay entries are kept visible
	// before being archived and pruned.
	EntryRetention time.Duration `envconfig:"ARCHIVE_ENTRY_RETENTION" default:"720h"`
	// TrashRetention is how long soft-deleted notes stay in the trash before
	// permanent deletion.
	TrashRetention time.Duration `envconfig:"TRASH_RETENTION" default:"720h"`
	// Interval is how often the maintenance pass runs.
	Interval time.Duration `envconfig:"ARCHIVE_INTERVAL" default:"1h"`
}
