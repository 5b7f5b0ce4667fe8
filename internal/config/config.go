package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Alerts    AlertConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// SecurityConfig holds process-level settings for the security core.
// Policy values (attempt limits, timeouts) live in the database.
type SecurityConfig struct {
	ConfigCacheTTL      time.Duration
	TOTPEncryptionKey   []byte
	TOTPIssuer          string
	CleanupInterval     time.Duration
	AttemptRetention    time.Duration
	AuditQueueSize      int
	LoginBurstPerMinute int
	CookieDomain        string
	CookieSecure        bool
	CookieSameSite      string
	FailureDelayBase    time.Duration
	FailureDelayJitter  time.Duration

	// Failed TOTP code checks allowed per admin within TwoFactorFailureWindow
	TwoFactorMaxFailures   int
	TwoFactorFailureWindow time.Duration
}

type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
	RedisAddr   string
	RedisDB     int
}

type AlertConfig struct {
	AWSRegion   string
	FromAddress string
	Recipients  []string
}

// Enabled reports whether security alert e-mails should be sent
func (a AlertConfig) Enabled() bool {
	return len(a.Recipients) > 0 && a.FromAddress != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	totpKey, err := parseTOTPKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", ""),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", ""),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Security: SecurityConfig{
			ConfigCacheTTL:      getEnvAsDuration("SECURITY_CONFIG_CACHE_TTL", 60*time.Second),
			TOTPEncryptionKey:   totpKey,
			TOTPIssuer:          getEnv("TOTP_ISSUER", "Platform Admin"),
			CleanupInterval:     getEnvAsDuration("SECURITY_CLEANUP_INTERVAL", 1*time.Hour),
			AttemptRetention:    getEnvAsDuration("LOGIN_ATTEMPT_RETENTION", 30*24*time.Hour),
			AuditQueueSize:      getEnvAsInt("AUDIT_QUEUE_SIZE", 1024),
			LoginBurstPerMinute: getEnvAsInt("LOGIN_BURST_PER_MINUTE", 10),
			CookieDomain:        getEnv("SESSION_COOKIE_DOMAIN", ""),
			CookieSecure:        getEnvAsBool("SESSION_COOKIE_SECURE", env == "production"),
			CookieSameSite:      strings.ToLower(getEnv("SESSION_COOKIE_SAMESITE", "strict")),
			FailureDelayBase:    getEnvAsDuration("LOGIN_FAILURE_DELAY_BASE", 300*time.Millisecond),
			FailureDelayJitter:  getEnvAsDuration("LOGIN_FAILURE_DELAY_JITTER", 200*time.Millisecond),

			TwoFactorMaxFailures:   getEnvAsInt("TWO_FACTOR_MAX_FAILURES", 5),
			TwoFactorFailureWindow: getEnvAsDuration("TWO_FACTOR_FAILURE_WINDOW", 15*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Window:      getEnvAsDuration("RATE_LIMIT_WINDOW", 60*time.Second),
			MaxRequests: getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 30),
			RedisAddr:   getEnv("RATE_LIMIT_REDIS_ADDR", ""),
			RedisDB:     getEnvAsInt("RATE_LIMIT_REDIS_DB", 0),
		},
		Alerts: AlertConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("ALERT_FROM_ADDRESS", ""),
			Recipients:  getEnvAsList("ALERT_RECIPIENTS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	switch cfg.Security.CookieSameSite {
	case "strict", "lax", "none":
	default:
		return nil, fmt.Errorf("SESSION_COOKIE_SAMESITE must be strict, lax or none")
	}

	if cfg.RateLimit.Window <= 0 || cfg.RateLimit.MaxRequests <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW and RATE_LIMIT_MAX_REQUESTS must be positive")
	}

	if cfg.Security.CleanupInterval <= 0 {
		return nil, fmt.Errorf("SECURITY_CLEANUP_INTERVAL must be positive")
	}

	if cfg.Security.TwoFactorMaxFailures <= 0 || cfg.Security.TwoFactorFailureWindow <= 0 {
		return nil, fmt.Errorf("TWO_FACTOR_MAX_FAILURES and TWO_FACTOR_FAILURE_WINDOW must be positive")
	}

	// Pruning attempts younger than a counting window would hide failures from it.
	minRetention := max(models.LockoutLookbackWindow, cfg.Security.TwoFactorFailureWindow)
	if cfg.Security.AttemptRetention < minRetention {
		return nil, fmt.Errorf("LOGIN_ATTEMPT_RETENTION must be at least %s", minRetention)
	}

	return cfg, nil
}

// parseTOTPKey decodes the hex-encoded AES-256 key used to encrypt TOTP secrets at rest
func parseTOTPKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key))
	}
	return key, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return []string{}
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
