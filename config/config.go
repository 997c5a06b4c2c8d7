// Package config handles loading and validation of application configuration
// from environment variables, plus the per-variant transform definitions.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/TripCarbon/trip-carbon-backend/logger"
	"github.com/spf13/viper"
)

// Environment represents the application's running environment (development or production).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"

	// Validation constants
	minJWTLength = 32
)

// ServerConfig holds API server configuration.
type ServerConfig struct {
	Environment    Environment `mapstructure:"ENVIRONMENT" yaml:"environment"`
	Port           string      `mapstructure:"PORT" yaml:"port"`
	AllowedOrigins []string    `mapstructure:"ALLOWED_ORIGINS" yaml:"allowed_origins"`
	Version        string      `mapstructure:"VERSION" yaml:"version"`
	JwtSecretKey   string      `mapstructure:"JWT_SECRET_KEY" yaml:"jwt_secret_key"`
	// TrustedProxies is a list of CIDR ranges or IPs of trusted reverse proxies.
	// If empty, X-Forwarded-For headers are ignored entirely (safe default).
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES" yaml:"trusted_proxies"`
	// RateLimitPerMinute caps authenticated API requests per caller per
	// minute. Zero disables rate limiting.
	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MINUTE" yaml:"rate_limit_per_minute"`
}

// DatabaseConfig holds PostgreSQL warehouse connection details.
type DatabaseConfig struct {
	// ConnectionString, when set, takes precedence over the discrete fields.
	ConnectionString string `mapstructure:"CONNECTION_STRING" yaml:"connection_string"`
	Host             string `mapstructure:"HOST" yaml:"host"`
	Port             int    `mapstructure:"PORT" yaml:"port"`
	User             string `mapstructure:"USER" yaml:"user"`
	Password         string `mapstructure:"PASSWORD" yaml:"password"`
	Name             string `mapstructure:"NAME" yaml:"name"`
	MaxConnections   int    `mapstructure:"MAX_CONNECTIONS" yaml:"max_connections"`
	SSLMode          string `mapstructure:"SSL_MODE" yaml:"ssl_mode"`
}

// URL returns a postgres:// connection URL suitable for pgx, golang-migrate
// and other URL-based database tools.
func (c *DatabaseConfig) URL() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		sslmode,
	)
}

// RedisConfig holds Redis connection details for the analysis cache.
type RedisConfig struct {
	Address      string `mapstructure:"ADDRESS" yaml:"address"`
	Password     string `mapstructure:"PASSWORD" yaml:"password"`
	DB           int    `mapstructure:"DB" yaml:"db"`
	UseTLS       bool   `mapstructure:"USE_TLS" yaml:"use_tls"`
	PoolSize     int    `mapstructure:"POOL_SIZE" yaml:"pool_size"`
	MinIdleConns int    `mapstructure:"MIN_IDLE_CONNS" yaml:"min_idle_conns"`
}

// EmailConfig holds configuration for run-completion emails.
type EmailConfig struct {
	// Enabled turns completion emails on. When on but the API key is
	// missing, the service auto-disables with a warning instead of failing
	// the run.
	Enabled      bool     `mapstructure:"ENABLED" yaml:"enabled"`
	FromAddress  string   `mapstructure:"FROM_ADDRESS" yaml:"from_address"`
	FromName     string   `mapstructure:"FROM_NAME" yaml:"from_name"`
	ToAddresses  []string `mapstructure:"TO_ADDRESSES" yaml:"to_addresses"`
	ResendAPIKey string   `mapstructure:"RESEND_API_KEY" yaml:"resend_api_key"`
}

// ETLConfig holds the batch pipeline's execution parameters.
type ETLConfig struct {
	// VariantsFile is the YAML file declaring the transform variants.
	VariantsFile string `mapstructure:"VARIANTS_FILE" yaml:"variants_file"`
	// BatchSize is the number of raw rows enriched and written per job.
	BatchSize int `mapstructure:"BATCH_SIZE" yaml:"batch_size"`
	// MaxWorkers is the number of concurrent enrichment workers.
	MaxWorkers int `mapstructure:"MAX_WORKERS" yaml:"max_workers"`
	// QueueSize is the maximum number of pending batch jobs.
	QueueSize int `mapstructure:"QUEUE_SIZE" yaml:"queue_size"`
	// ShutdownTimeoutSeconds is the max time to wait for workers to drain.
	ShutdownTimeoutSeconds int `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS" yaml:"shutdown_timeout_seconds"`
}

// AnalysisConfig tunes the analysis read path.
type AnalysisConfig struct {
	// CacheTTLSeconds is how long cached analysis responses stay valid.
	CacheTTLSeconds int `mapstructure:"CACHE_TTL_SECONDS" yaml:"cache_ttl_seconds"`
}

// ReportConfig holds configuration for the PDF report and its sinks.
type ReportConfig struct {
	Enabled   bool   `mapstructure:"ENABLED" yaml:"enabled"`
	OutputDir string `mapstructure:"OUTPUT_DIR" yaml:"output_dir"`
	// S3Bucket, when set, enables upload to S3-compatible object storage.
	S3Bucket          string `mapstructure:"S3_BUCKET" yaml:"s3_bucket"`
	S3Endpoint        string `mapstructure:"S3_ENDPOINT" yaml:"s3_endpoint"`
	S3Region          string `mapstructure:"S3_REGION" yaml:"s3_region"`
	S3AccessKeyID     string `mapstructure:"S3_ACCESS_KEY_ID" yaml:"s3_access_key_id"`
	S3SecretAccessKey string `mapstructure:"S3_SECRET_ACCESS_KEY" yaml:"s3_secret_access_key"`
	S3KeyPrefix       string `mapstructure:"S3_KEY_PREFIX" yaml:"s3_key_prefix"`
}

// Config aggregates all application configuration sections.
type Config struct {
	Server   ServerConfig   `mapstructure:"SERVER" yaml:"server"`
	Database DatabaseConfig `mapstructure:"DATABASE" yaml:"database"`
	Redis    RedisConfig    `mapstructure:"REDIS" yaml:"redis"`
	Email    EmailConfig    `mapstructure:"EMAIL" yaml:"email"`
	ETL      ETLConfig      `mapstructure:"ETL" yaml:"etl"`
	Analysis AnalysisConfig `mapstructure:"ANALYSIS" yaml:"analysis"`
	Report   ReportConfig   `mapstructure:"REPORT" yaml:"report"`
}

// IsDevelopment returns true if the application is running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if the application is running in production environment.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// bindEnvVars binds multiple environment variables to config keys.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables using Viper,
// sets default values, binds environment variables to config struct fields,
// unmarshals the configuration, and validates it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("SERVER.TRUSTED_PROXIES", []string{}) // Empty = trust no one (safe default)
	v.SetDefault("SERVER.VERSION", "dev")
	v.SetDefault("SERVER.RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.NAME", "tripcarbon_dev")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.MAX_CONNECTIONS", 20)
	v.SetDefault("REDIS.ADDRESS", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("REDIS.POOL_SIZE", 3)
	v.SetDefault("REDIS.MIN_IDLE_CONNS", 1)
	v.SetDefault("EMAIL.ENABLED", false)
	v.SetDefault("EMAIL.FROM_NAME", "TripCarbon")
	v.SetDefault("ETL.VARIANTS_FILE", "transforms.yaml")
	v.SetDefault("ETL.BATCH_SIZE", 5000)
	v.SetDefault("ETL.MAX_WORKERS", 4)
	v.SetDefault("ETL.QUEUE_SIZE", 64)
	v.SetDefault("ETL.SHUTDOWN_TIMEOUT_SECONDS", 30)
	v.SetDefault("ANALYSIS.CACHE_TTL_SECONDS", 300)
	v.SetDefault("REPORT.ENABLED", false)
	v.SetDefault("REPORT.OUTPUT_DIR", "reports")
	v.SetDefault("REPORT.S3_REGION", "auto")
	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind environment variables
	envBindings := [][2]string{
		// Server config
		{"SERVER.ENVIRONMENT", "SERVER_ENVIRONMENT"},
		{"SERVER.PORT", "PORT"},
		{"SERVER.ALLOWED_ORIGINS", "ALLOWED_ORIGINS"},
		{"SERVER.JWT_SECRET_KEY", "JWT_SECRET_KEY"},
		{"SERVER.TRUSTED_PROXIES", "TRUSTED_PROXIES"},
		{"SERVER.VERSION", "VERSION"},
		{"SERVER.RATE_LIMIT_PER_MINUTE", "RATE_LIMIT_PER_MINUTE"},
		// Database config
		{"DATABASE.CONNECTION_STRING", "DB_CONNECTION_STRING"},
		{"DATABASE.HOST", "DB_HOST"},
		{"DATABASE.PORT", "DB_PORT"},
		{"DATABASE.USER", "DB_USER"},
		{"DATABASE.PASSWORD", "DB_PASSWORD"},
		{"DATABASE.NAME", "DB_NAME"},
		{"DATABASE.SSL_MODE", "DB_SSL_MODE"},
		{"DATABASE.MAX_CONNECTIONS", "DB_MAX_CONNECTIONS"},
		// Redis config
		{"REDIS.ADDRESS", "REDIS_ADDRESS"},
		{"REDIS.PASSWORD", "REDIS_PASSWORD"},
		{"REDIS.DB", "REDIS_DB"},
		{"REDIS.USE_TLS", "REDIS_USE_TLS"},
		// Email config
		{"EMAIL.ENABLED", "EMAIL_ENABLED"},
		{"EMAIL.FROM_ADDRESS", "EMAIL_FROM_ADDRESS"},
		{"EMAIL.FROM_NAME", "EMAIL_FROM_NAME"},
		{"EMAIL.TO_ADDRESSES", "EMAIL_TO_ADDRESSES"},
		{"EMAIL.RESEND_API_KEY", "RESEND_API_KEY"},
		// ETL config
		{"ETL.VARIANTS_FILE", "ETL_VARIANTS_FILE"},
		{"ETL.BATCH_SIZE", "ETL_BATCH_SIZE"},
		{"ETL.MAX_WORKERS", "ETL_MAX_WORKERS"},
		{"ETL.QUEUE_SIZE", "ETL_QUEUE_SIZE"},
		{"ETL.SHUTDOWN_TIMEOUT_SECONDS", "ETL_SHUTDOWN_TIMEOUT_SECONDS"},
		// Analysis config
		{"ANALYSIS.CACHE_TTL_SECONDS", "ANALYSIS_CACHE_TTL_SECONDS"},
		// Report config
		{"REPORT.ENABLED", "REPORT_ENABLED"},
		{"REPORT.OUTPUT_DIR", "REPORT_OUTPUT_DIR"},
		{"REPORT.S3_BUCKET", "REPORT_S3_BUCKET"},
		{"REPORT.S3_ENDPOINT", "REPORT_S3_ENDPOINT"},
		{"REPORT.S3_REGION", "REPORT_S3_REGION"},
		{"REPORT.S3_ACCESS_KEY_ID", "REPORT_S3_ACCESS_KEY_ID"},
		{"REPORT.S3_SECRET_ACCESS_KEY", "REPORT_S3_SECRET_ACCESS_KEY"},
		{"REPORT.S3_KEY_PREFIX", "REPORT_S3_KEY_PREFIX"},
	}

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	env := v.GetString("SERVER.ENVIRONMENT")
	log.Infow("Configuration loaded",
		"environment", env,
		"server_port", v.GetString("SERVER.PORT"),
		"db_host", v.GetString("DATABASE.HOST"),
		"variants_file", v.GetString("ETL.VARIANTS_FILE"),
		"etl_batch_size", v.GetInt("ETL.BATCH_SIZE"),
		"etl_max_workers", v.GetInt("ETL.MAX_WORKERS"),
	)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Info("Configuration validated successfully")
	return &cfg, nil
}

// validateConfig checks if the loaded configuration values are valid.
func validateConfig(cfg *Config) error {
	log := logger.GetLogger()

	// Validate Server Config
	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if cfg.IsProduction() {
		if len(cfg.Server.JwtSecretKey) < minJWTLength {
			return fmt.Errorf("JWT secret key must be at least %d characters long", minJWTLength)
		}
	} else if cfg.Server.JwtSecretKey != "" && len(cfg.Server.JwtSecretKey) < minJWTLength {
		return fmt.Errorf("JWT secret key must be at least %d characters long", minJWTLength)
	}
	// Validate AllowedOrigins format if not wildcard
	if !containsWildcard(cfg.Server.AllowedOrigins) {
		for _, origin := range cfg.Server.AllowedOrigins {
			if _, err := url.ParseRequestURI(origin); err != nil {
				return fmt.Errorf("invalid allowed origin '%s': %w", origin, err)
			}
		}
	}

	// Validate Database Config
	if cfg.Database.ConnectionString == "" {
		if cfg.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if cfg.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if cfg.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
		if cfg.Database.Password == "" {
			log.Warn("Database password is not set. Ensure this is intended (e.g., using trusted auth).")
		}
	}

	// Validate Redis Config
	if cfg.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}
	if cfg.Redis.Password == "" && cfg.Redis.UseTLS {
		log.Warn("Redis password is not set, but TLS is enabled. Ensure this is correct for your Redis provider.")
	}

	// Validate Email Config
	if err := validateEmailConfig(&cfg.Email); err != nil {
		return err
	}

	// Validate ETL Config
	if cfg.ETL.VariantsFile == "" {
		return fmt.Errorf("variants file path is required")
	}
	if cfg.ETL.BatchSize <= 0 {
		return fmt.Errorf("etl batch size must be positive")
	}
	if cfg.ETL.MaxWorkers <= 0 {
		return fmt.Errorf("etl max workers must be positive")
	}
	if cfg.ETL.QueueSize <= 0 {
		return fmt.Errorf("etl queue size must be positive")
	}
	if cfg.ETL.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("etl shutdown timeout must be positive")
	}

	// Validate Analysis Config
	if cfg.Analysis.CacheTTLSeconds <= 0 {
		return fmt.Errorf("analysis cache TTL must be positive")
	}

	// Validate Report Config
	if cfg.Report.Enabled && cfg.Report.OutputDir == "" && cfg.Report.S3Bucket == "" {
		return fmt.Errorf("report is enabled but has no output directory or S3 bucket")
	}
	if cfg.Report.S3Bucket != "" && cfg.Report.S3AccessKeyID == "" {
		log.Warn("Report S3 bucket is set without static credentials; falling back to the default AWS credential chain.")
	}

	return nil
}

// validateEmailConfig validates the completion email settings. When enabled
// but missing its API key or recipients, the feature auto-disables with a
// warning so a misconfigured mailer never fails an ETL run.
func validateEmailConfig(cfg *EmailConfig) error {
	if !cfg.Enabled {
		return nil
	}

	log := logger.GetLogger()

	if cfg.ResendAPIKey == "" {
		log.Warn("Email enabled without a Resend API key, auto-disabling completion emails")
		cfg.Enabled = false
		return nil
	}
	if len(cfg.ToAddresses) == 0 {
		log.Warn("Email enabled without recipients, auto-disabling completion emails")
		cfg.Enabled = false
		return nil
	}
	if cfg.FromAddress == "" {
		return fmt.Errorf("email from address is required when email is enabled")
	}
	return nil
}

// containsWildcard checks if the list of allowed origins contains the wildcard "*".
func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
