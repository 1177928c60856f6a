// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Agent providers.
const (
	AgentHTTP   = "http"
	AgentGemini = "gemini"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
	UIEnabled           bool
	MCPEnabled          bool

	// Project store.
	Store       string // "file", "sqlite" or "postgres"
	DataFile    string // JSON file for the file store.
	SQLitePath  string
	DatabaseURL string

	// Design agent.
	AgentProvider string // "http" or "gemini"
	AgentEndpoint string
	AgentAPIKey   string
	AgentID       string
	AgentTimeout  time.Duration
	// AgentMaxResponseBytes caps the body read from the http agent.
	AgentMaxResponseBytes int64
	GeminiAPIKey          string
	GeminiModel           string

	// Optional API auth. At most one of APIKey and APIKeyHash may be set.
	APIKey            string
	APIKeyHash        string // Argon2id "salt$hash", see archdocctl hash-key.
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiration     time.Duration

	// Rate limiting of agent-calling endpoints.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// S3-compatible export archive. Disabled when S3Bucket is empty.
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
	S3URLExpiry time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel        string
	ReportCacheSize int
}

// Load reads configuration from environment variables with defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	str := func(key, def string) string { return envStr(key, def) }
	num := func(key string, def int) int {
		v, err := envInt(key, def)
		errs = append(errs, err)
		return v
	}
	flt := func(key string, def float64) float64 {
		v, err := envFloat(key, def)
		errs = append(errs, err)
		return v
	}
	flag := func(key string, def bool) bool {
		v, err := envBool(key, def)
		errs = append(errs, err)
		return v
	}
	dur := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		errs = append(errs, err)
		return v
	}

	cfg := Config{
		Port:                  num("ARCHDOC_PORT", 8080),
		ReadTimeout:           dur("ARCHDOC_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:          dur("ARCHDOC_WRITE_TIMEOUT", 5*time.Minute),
		MaxRequestBodyBytes:   int64(num("ARCHDOC_MAX_REQUEST_BODY_BYTES", 1*1024*1024)),
		UIEnabled:             flag("ARCHDOC_UI_ENABLED", true),
		MCPEnabled:            flag("ARCHDOC_MCP_ENABLED", true),
		Store:                 strings.ToLower(str("ARCHDOC_STORE", StoreFile)),
		DataFile:              str("ARCHDOC_DATA_FILE", "data/design_projects.json"),
		SQLitePath:            str("ARCHDOC_SQLITE_PATH", "data/archdoc.db"),
		DatabaseURL:           str("DATABASE_URL", ""),
		AgentProvider:         strings.ToLower(str("ARCHDOC_AGENT_PROVIDER", AgentHTTP)),
		AgentEndpoint:         str("ARCHDOC_AGENT_ENDPOINT", "http://localhost:9000/agent/invoke"),
		AgentAPIKey:           str("ARCHDOC_AGENT_API_KEY", ""),
		AgentID:               str("ARCHDOC_AGENT_ID", ""),
		AgentTimeout:          dur("ARCHDOC_AGENT_TIMEOUT", 3*time.Minute),
		AgentMaxResponseBytes: int64(num("ARCHDOC_AGENT_MAX_RESPONSE_BYTES", 8*1024*1024)),
		GeminiAPIKey:          str("GEMINI_API_KEY", ""),
		GeminiModel:           str("ARCHDOC_GEMINI_MODEL", ""),
		APIKey:                str("ARCHDOC_API_KEY", ""),
		APIKeyHash:            str("ARCHDOC_API_KEY_HASH", ""),
		JWTPrivateKeyPath:     str("ARCHDOC_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:      str("ARCHDOC_JWT_PUBLIC_KEY", ""),
		JWTExpiration:         dur("ARCHDOC_JWT_EXPIRATION", 24*time.Hour),
		RateLimitEnabled:      flag("ARCHDOC_RATE_LIMIT_ENABLED", true),
		RateLimitRPS:          flt("ARCHDOC_RATE_LIMIT_RPS", 0.2),
		RateLimitBurst:        num("ARCHDOC_RATE_LIMIT_BURST", 5),
		S3Endpoint:            str("ARCHDOC_S3_ENDPOINT", "localhost:9000"),
		S3Region:              str("ARCHDOC_S3_REGION", "us-east-1"),
		S3AccessKey:           str("ARCHDOC_S3_ACCESS_KEY", ""),
		S3SecretKey:           str("ARCHDOC_S3_SECRET_KEY", ""),
		S3Bucket:              str("ARCHDOC_S3_BUCKET", ""),
		S3UseSSL:              flag("ARCHDOC_S3_USE_SSL", true),
		S3URLExpiry:           dur("ARCHDOC_S3_URL_EXPIRY", time.Hour),
		OTELEndpoint:          str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:          flag("ARCHDOC_OTEL_INSECURE", false),
		ServiceName:           str("OTEL_SERVICE_NAME", "archdoc"),
		LogLevel:              str("ARCHDOC_LOG_LEVEL", "info"),
		ReportCacheSize:       num("ARCHDOC_REPORT_CACHE_SIZE", 256),
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("ARCHDOC_PORT must be between 1 and 65535"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("ARCHDOC_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	switch c.Store {
	case StoreFile:
		if c.DataFile == "" {
			errs = append(errs, fmt.Errorf("ARCHDOC_DATA_FILE is required for the file store"))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("ARCHDOC_SQLITE_PATH is required for the sqlite store"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("ARCHDOC_STORE=%q must be one of file, sqlite, postgres", c.Store))
	}
	switch c.AgentProvider {
	case AgentHTTP:
		if c.AgentEndpoint == "" {
			errs = append(errs, fmt.Errorf("ARCHDOC_AGENT_ENDPOINT is required for the http agent"))
		}
	case AgentGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, fmt.Errorf("GEMINI_API_KEY is required for the gemini agent"))
		}
	default:
		errs = append(errs, fmt.Errorf("ARCHDOC_AGENT_PROVIDER=%q must be one of http, gemini", c.AgentProvider))
	}
	if c.AgentMaxResponseBytes <= 0 {
		errs = append(errs, fmt.Errorf("ARCHDOC_AGENT_MAX_RESPONSE_BYTES must be positive"))
	}
	if c.APIKey != "" && c.APIKeyHash != "" {
		errs = append(errs, fmt.Errorf("set ARCHDOC_API_KEY or ARCHDOC_API_KEY_HASH, not both"))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, fmt.Errorf("ARCHDOC_RATE_LIMIT_RPS and ARCHDOC_RATE_LIMIT_BURST must be positive"))
	}
	if c.ReportCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("ARCHDOC_REPORT_CACHE_SIZE must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// AuthEnabled reports whether API clients must authenticate.
func (c Config) AuthEnabled() bool {
	return c.APIKey != "" || c.APIKeyHash != ""
}

// ArchiveEnabled reports whether exports can be archived to S3.
func (c Config) ArchiveEnabled() bool {
	return c.S3Bucket != ""
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
