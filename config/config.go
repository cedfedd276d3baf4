package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Lifecycle  LifecycleConfig  `mapstructure:"lifecycle"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Transfer   TransferConfig   `mapstructure:"transfer"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	NATS       NATSConfig       `mapstructure:"nats"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
	InternalAPIKey  string        `mapstructure:"internal_api_key"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections" validate:"min=1"`
	MinConnections  int           `mapstructure:"min_connections" validate:"min=0"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// QueueConfig holds dispatcher and queue maintenance settings
type QueueConfig struct {
	WorkerID         string        `mapstructure:"worker_id"`
	PollInterval     time.Duration `mapstructure:"poll_interval" validate:"required"`
	BatchSize        int           `mapstructure:"batch_size" validate:"min=1,max=100"`
	Concurrency      int           `mapstructure:"concurrency" validate:"min=1,max=64"`
	MaxAttempts      int           `mapstructure:"max_attempts" validate:"min=1"`
	CleanupAfterDays int           `mapstructure:"cleanup_after_days" validate:"min=0"`
	StuckAfter       time.Duration `mapstructure:"stuck_after" validate:"required"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval" validate:"required"`
	NotifyChannel    string        `mapstructure:"notify_channel"`
}

// LifecycleConfig holds retention lifecycle settings
type LifecycleConfig struct {
	Enabled                     bool          `mapstructure:"enabled"`
	CheckInterval               time.Duration `mapstructure:"check_interval" validate:"required"`
	Schedule                    string        `mapstructure:"schedule"`
	ReviewWindowDays            int           `mapstructure:"review_window_days" validate:"min=0"`
	PermanentTransferAfterYears int           `mapstructure:"permanent_transfer_after_years" validate:"min=0"`
	EnableAutoTransfer          bool          `mapstructure:"enable_auto_transfer"`
	EnableAutoDestruction       bool          `mapstructure:"enable_auto_destruction"`
	EnableAutoReview            bool          `mapstructure:"enable_auto_review"`
	TransferPriority            int           `mapstructure:"transfer_priority"`
	AdvisoryLockKey             int64         `mapstructure:"advisory_lock_key"`
}

// ProcessingConfig holds external processing collaborator endpoints
type ProcessingConfig struct {
	EnrichmentURL     string        `mapstructure:"enrichment_url" validate:"omitempty,url"`
	OCRURL            string        `mapstructure:"ocr_url" validate:"omitempty,url"`
	RedactionURL      string        `mapstructure:"redaction_url" validate:"omitempty,url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int           `mapstructure:"burst" validate:"min=1"`
}

// TransferConfig holds BagIt packaging settings
type TransferConfig struct {
	SourceOrganization string `mapstructure:"source_organization"`
	SourcePrefix       string `mapstructure:"source_prefix"`
	OutputPrefix       string `mapstructure:"output_prefix"`
}

// RateLimitConfig holds rate limiting for the internal API
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int     `mapstructure:"burst" validate:"min=1"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string `mapstructure:"type" validate:"oneof=local"`
	BasePath string `mapstructure:"base_path" validate:"required"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format  string `mapstructure:"format" validate:"oneof=json console"`
	NoColor bool   `mapstructure:"no_color"`
}

// TelemetryConfig holds OpenTelemetry exporter settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// NATSConfig holds the optional audit event publisher settings
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.SetEnvPrefix("RETENTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Validate checks field constraints declared in struct tags
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("invalid configuration: database.min_connections (%d) exceeds max_connections (%d)",
			c.Database.MinConnections, c.Database.MaxConnections)
	}
	return nil
}

// loadEnvFile loads the first .env file found into the process environment
func loadEnvFile() error {
	for _, path := range []string{".", "./config"} {
		envFile := fmt.Sprintf("%s/.env", path)
		if _, err := os.Stat(envFile); err == nil {
			return loadDotEnvFile(envFile)
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads KEY=VALUE lines. Variables already set in the
// environment win over the file.
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		os.Setenv(key, strings.Trim(strings.TrimSpace(value), "\"'"))
	}
	return scanner.Err()
}

// bindEnvVars binds conventional unprefixed variables
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", "DATABASE_URL", "RETENTION_DATABASE_URL")
	v.BindEnv("server.port", "PORT", "RETENTION_SERVER_PORT")
	v.BindEnv("server.internal_api_key", "INTERNAL_API_KEY", "RETENTION_SERVER_INTERNAL_API_KEY")
	v.BindEnv("logging.level", "LOG_LEVEL", "RETENTION_LOGGING_LEVEL")
	v.BindEnv("storage.base_path", "STORAGE_PATH", "RETENTION_STORAGE_BASE_PATH")
	v.BindEnv("nats.url", "NATS_URL", "RETENTION_NATS_URL")
	v.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", "RETENTION_TELEMETRY_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("queue.worker_id", "")
	v.SetDefault("queue.poll_interval", 5*time.Second)
	v.SetDefault("queue.batch_size", 5)
	v.SetDefault("queue.concurrency", 1)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.cleanup_after_days", 30)
	v.SetDefault("queue.stuck_after", 30*time.Minute)
	v.SetDefault("queue.sweep_interval", 5*time.Minute)
	v.SetDefault("queue.notify_channel", "task_queue")

	v.SetDefault("lifecycle.enabled", true)
	v.SetDefault("lifecycle.check_interval", 24*time.Hour)
	v.SetDefault("lifecycle.schedule", "")
	v.SetDefault("lifecycle.review_window_days", 180)
	v.SetDefault("lifecycle.permanent_transfer_after_years", 30)
	v.SetDefault("lifecycle.enable_auto_transfer", true)
	v.SetDefault("lifecycle.enable_auto_destruction", false)
	v.SetDefault("lifecycle.enable_auto_review", true)
	v.SetDefault("lifecycle.transfer_priority", 3)
	v.SetDefault("lifecycle.advisory_lock_key", 7262001)

	v.SetDefault("processing.timeout", 2*time.Minute)
	v.SetDefault("processing.requests_per_second", 5.0)
	v.SetDefault("processing.burst", 5)

	v.SetDefault("transfer.source_organization", "OpenArchive")
	v.SetDefault("transfer.source_prefix", "documents")
	v.SetDefault("transfer.output_prefix", "transfers")

	v.SetDefault("rate_limit.requests_per_second", 100.0)
	v.SetDefault("rate_limit.burst", 200)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_path", "./data/archive")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "retention-service")
	v.SetDefault("telemetry.environment", "development")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "archive.audit")
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// ReviewWindow returns the pre-deadline review window as a duration
func (c LifecycleConfig) ReviewWindow() time.Duration {
	return time.Duration(c.ReviewWindowDays) * 24 * time.Hour
}
