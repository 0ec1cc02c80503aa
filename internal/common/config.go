package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	QuickBooks QuickBooksConfig `yaml:"quickbooks"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Log        LogConfig        `yaml:"log"`
}

// QuickBooksConfig holds QuickBooks Online API configuration
type QuickBooksConfig struct {
	BaseURL      string        `yaml:"base_url"`
	RealmID      string        `yaml:"realm_id"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RefreshToken string        `yaml:"refresh_token"`
	TokenURL     string        `yaml:"token_url"`
	MinorVersion string        `yaml:"minor_version"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	RatePerSec   float64       `yaml:"rate_per_sec"`
	RateBurst    int           `yaml:"rate_burst"`
}

// CatalogConfig holds item catalog caching configuration
type CatalogConfig struct {
	TTL  time.Duration `yaml:"ttl"`
	File string        `yaml:"file"`
}

// ReconcileConfig holds defaults for line reconciliation
type ReconcileConfig struct {
	Mode             string `yaml:"mode"`
	DefaultAccountID string `yaml:"default_account_id"`
	DefaultVendorID  string `yaml:"default_vendor_id"`
	BlockOnDropped   bool   `yaml:"block_on_dropped"`
}

// DatabaseConfig holds run-history database configuration
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string  `yaml:"http_addr"`
	GRPCAddr       string  `yaml:"grpc_addr"`
	JWTSecret      string  `yaml:"jwt_secret"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
	RateBurst      int     `yaml:"rate_burst"`
	MaxUploadBytes int64   `yaml:"max_upload_bytes"`
}

// IngestConfig holds inbox watching and worker configuration
type IngestConfig struct {
	InboxDir  string        `yaml:"inbox_dir"`
	ReportDir string        `yaml:"report_dir"`
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
	Debounce  time.Duration `yaml:"debounce"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from an optional .env file, the environment,
// and an optional YAML overlay (yamlPath, or CONFIG_FILE when empty).
func LoadConfig(envFile, yamlPath string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "load env file "+envFile, err)
		}
	} else {
		// a missing .env is normal outside local development
		_ = godotenv.Load()
	}

	cfg := &Config{
		QuickBooks: QuickBooksConfig{
			BaseURL:      getEnv("QB_BASE_URL", "https://sandbox-quickbooks.api.intuit.com"),
			RealmID:      getEnv("QB_REALM_ID", ""),
			ClientID:     getEnv("QB_CLIENT_ID", ""),
			ClientSecret: getEnv("QB_CLIENT_SECRET", ""),
			RefreshToken: getEnv("QB_REFRESH_TOKEN", ""),
			TokenURL:     getEnv("QB_TOKEN_URL", "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"),
			MinorVersion: getEnv("QB_MINOR_VERSION", "75"),
			Timeout:      getEnvAsDuration("QB_TIMEOUT", 30*time.Second),
			MaxRetries:   getEnvAsInt("QB_MAX_RETRIES", 3),
			RetryBackoff: getEnvAsDuration("QB_RETRY_BACKOFF", 500*time.Millisecond),
			RatePerSec:   getEnvAsFloat("QB_RATE_PER_SEC", 8),
			RateBurst:    getEnvAsInt("QB_RATE_BURST", 4),
		},
		Catalog: CatalogConfig{
			TTL:  getEnvAsDuration("CATALOG_TTL", time.Hour),
			File: getEnv("CATALOG_FILE", ""),
		},
		Reconcile: ReconcileConfig{
			Mode:             getEnv("RECONCILE_MODE", "item"),
			DefaultAccountID: getEnv("DEFAULT_ACCOUNT_ID", ""),
			DefaultVendorID:  getEnv("DEFAULT_VENDOR_ID", ""),
			BlockOnDropped:   getEnvAsBool("BLOCK_ON_DROPPED", false),
		},
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", "cfdi-bills.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:       getEnv("GRPC_ADDR", ":8081"),
			JWTSecret:      getEnv("API_JWT_SECRET", ""),
			RatePerSec:     getEnvAsFloat("API_RATE_PER_SEC", 5),
			RateBurst:      getEnvAsInt("API_RATE_BURST", 10),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 5<<20),
		},
		Ingest: IngestConfig{
			InboxDir:  getEnv("INBOX_DIR", ""),
			ReportDir: getEnv("REPORT_DIR", ""),
			Workers:   getEnvAsInt("INGEST_WORKERS", 2),
			QueueSize: getEnvAsInt("INGEST_QUEUE_SIZE", 64),
			Timeout:   getEnvAsDuration("INGEST_TIMEOUT", 2*time.Minute),
			Debounce:  getEnvAsDuration("INGEST_DEBOUNCE", 500*time.Millisecond),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if yamlPath == "" {
		yamlPath = os.Getenv("CONFIG_FILE")
	}
	if yamlPath != "" {
		if err := overlayYAML(cfg, yamlPath); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// overlayYAML decodes the file on top of cfg; keys absent from the file keep
// their environment values.
func overlayYAML(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "read config file "+path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return NewAppError("CONFIG_ERROR", "parse config file "+path, err)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks settings every binary depends on.
func (c *Config) Validate() error {
	if c.Catalog.TTL < 0 {
		return NewAppError("CONFIG_ERROR", "CATALOG_TTL must not be negative", ErrInvalidInput)
	}
	if c.QuickBooks.MaxRetries < 0 {
		return NewAppError("CONFIG_ERROR", "QB_MAX_RETRIES must not be negative", ErrInvalidInput)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("LOG_FORMAT %q is not json or text", c.Log.Format), ErrInvalidInput)
	}
	return nil
}

// ValidateQuickBooks checks the settings needed to talk to QuickBooks.
func (c *Config) ValidateQuickBooks() error {
	v := NewValidator().
		Field("QB_BASE_URL", c.QuickBooks.BaseURL, Required).
		Field("QB_REALM_ID", c.QuickBooks.RealmID, Required).
		Field("QB_CLIENT_ID", c.QuickBooks.ClientID, Required).
		Field("QB_CLIENT_SECRET", c.QuickBooks.ClientSecret, Required).
		Field("QB_REFRESH_TOKEN", c.QuickBooks.RefreshToken, Required)
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

// ValidateServer checks the settings needed by the daemon.
func (c *Config) ValidateServer() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_UPLOAD_BYTES must be positive", ErrInvalidInput)
	}
	return nil
}
