package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort     string
	AppEnv         string
	PublicBaseURL  string
	SiteURL        string
	AllowedOrigins []string

	// Database configuration
	DatabaseURL        string
	DatabaseServiceKey string
	DBMaxConns         int
	DBMinConns         int
	DBAutoMigrate      bool

	// Redis configuration
	RedisURL string

	// CinetPay API credentials
	CinetPayAPIKey  string
	CinetPaySiteID  string
	CinetPayBaseURL string
	CinetPayTimeout time.Duration

	// Security settings
	AdminJWTSecret string
	CinetPayIPs    []string
	TrustProxy     bool

	// Request limits
	MaxRequestSize int64
	RateLimitRPS   float64
	RateLimitBurst int

	// Worker settings
	WorkerConcurrency int
}

// ConfigurationError reports a missing or malformed setting
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Key, e.Reason)
}

// Load reads configuration from environment variables, after an optional .env file
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Server
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		AppEnv:        getEnv("APP_ENV", "production"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		SiteURL:       strings.TrimRight(getEnv("SITE_URL", "https://impact-digital.ci"), "/"),

		// Database
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		DatabaseServiceKey: getEnv("DATABASE_SERVICE_KEY", ""),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 25),
		DBMinConns:         getEnvInt("DB_MIN_CONNS", 2),
		DBAutoMigrate:      getEnvBool("DB_AUTO_MIGRATE", false),

		// Redis
		RedisURL: getEnv("REDIS_URL", ""),

		// CinetPay
		CinetPayAPIKey:  getEnv("CINETPAY_API_KEY", ""),
		CinetPaySiteID:  getEnv("CINETPAY_SITE_ID", ""),
		CinetPayBaseURL: strings.TrimRight(getEnv("CINETPAY_BASE_URL", "https://client.cinetpay.com"), "/"),
		CinetPayTimeout: getEnvDuration("CINETPAY_TIMEOUT", 15*time.Second),

		// Security
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		TrustProxy:     getEnvBool("TRUST_PROXY", false),
		MaxRequestSize: getEnvInt64("MAX_REQUEST_SIZE", 1<<20), // 1MB
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 5),

		// Worker
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),
	}

	cfg.CinetPayIPs = getEnvList("CINETPAY_IPS")
	cfg.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS")
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"CINETPAY_API_KEY", c.CinetPayAPIKey},
		{"CINETPAY_SITE_ID", c.CinetPaySiteID},
		{"DATABASE_URL", c.DatabaseURL},
		{"DATABASE_SERVICE_KEY", c.DatabaseServiceKey},
		{"REDIS_URL", c.RedisURL},
		{"PUBLIC_BASE_URL", c.PublicBaseURL},
		{"ADMIN_JWT_SECRET", c.AdminJWTSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return &ConfigurationError{Key: r.key, Reason: "is required"}
		}
	}

	if u, err := url.Parse(c.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigurationError{Key: "PUBLIC_BASE_URL", Reason: "must be an absolute URL (public URL for notifications)"}
	}
	if c.CinetPayTimeout <= 0 {
		return &ConfigurationError{Key: "CINETPAY_TIMEOUT", Reason: "must be positive"}
	}

	return nil
}

// NotifyURL is the webhook target handed to CinetPay
func (c *Config) NotifyURL() string {
	return c.PublicBaseURL + "/payment?action=notify"
}

// LogSafeConfig logs configuration without secrets
func (c *Config) LogSafeConfig(log *zap.Logger) {
	log.Info("configuration loaded",
		zap.String("server_port", c.ServerPort),
		zap.String("env", c.AppEnv),
		zap.String("public_base_url", c.PublicBaseURL),
		zap.String("site_url", c.SiteURL),
		zap.String("database_url", maskConnectionString(c.DatabaseURL)),
		zap.String("redis_url", maskConnectionString(c.RedisURL)),
		zap.Int("db_min_conns", c.DBMinConns),
		zap.Int("db_max_conns", c.DBMaxConns),
		zap.Int("worker_concurrency", c.WorkerConcurrency),
		zap.String("cinetpay_site_id", c.CinetPaySiteID),
		zap.String("cinetpay_base_url", c.CinetPayBaseURL),
		zap.Duration("cinetpay_timeout", c.CinetPayTimeout),
		zap.Strings("cinetpay_ip_allowlist", c.CinetPayIPs),
		zap.Bool("trust_proxy", c.TrustProxy),
		zap.Strings("cors_allowed_origins", c.AllowedOrigins),
		zap.Int64("max_request_size", c.MaxRequestSize),
	)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func maskConnectionString(connStr string) string {
	if strings.Contains(connStr, "@") {
		parts := strings.Split(connStr, "@")
		if len(parts) == 2 {
			return "***@" + parts[1]
		}
	}
	return "***"
}
