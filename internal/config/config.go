package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	Monitor   MonitorConfig
	Redis     RedisConfig
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
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret     string
	Issuer        string
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// RateLimitConfig carries the two limiter policies. Backend selects the
// counter store: "memory" for a single instance, "redis" when several
// instances must share budgets.
type RateLimitConfig struct {
	Backend string

	IPMaxAttempts   int
	IPWindow        time.Duration
	IPBlockDuration time.Duration

	AccountMaxAttempts   int
	AccountWindow        time.Duration
	AccountBlockDuration time.Duration
}

type LockoutConfig struct {
	MaxFailedAttempts int
	LockDuration      time.Duration
}

type MonitorConfig struct {
	Window                time.Duration
	MaxFailuresPerIP      int
	MaxFailuresPerAccount int
	MaxTokenInvalidPerIP  int
	RapidWindow           time.Duration
	RapidThreshold        int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "authgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:     jwtSecret,
			Issuer:        getEnv("JWT_ISSUER", "authgate"),
			SessionTTL:    getEnvAsDuration("SESSION_TTL", 12*time.Hour),
			SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Backend:              getEnv("RATE_LIMIT_BACKEND", "memory"),
			IPMaxAttempts:        getEnvAsInt("RATE_LIMIT_IP_MAX_ATTEMPTS", 10),
			IPWindow:             getEnvAsDuration("RATE_LIMIT_IP_WINDOW", 15*time.Minute),
			IPBlockDuration:      getEnvAsDuration("RATE_LIMIT_IP_BLOCK", 15*time.Minute),
			AccountMaxAttempts:   getEnvAsInt("RATE_LIMIT_ACCOUNT_MAX_ATTEMPTS", 5),
			AccountWindow:        getEnvAsDuration("RATE_LIMIT_ACCOUNT_WINDOW", 15*time.Minute),
			AccountBlockDuration: getEnvAsDuration("RATE_LIMIT_ACCOUNT_BLOCK", 30*time.Minute),
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: getEnvAsInt("LOCKOUT_MAX_FAILED_ATTEMPTS", 10),
			LockDuration:      getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
		},
		Monitor: MonitorConfig{
			Window:                getEnvAsDuration("MONITOR_WINDOW", 15*time.Minute),
			MaxFailuresPerIP:      getEnvAsInt("MONITOR_MAX_FAILURES_PER_IP", 10),
			MaxFailuresPerAccount: getEnvAsInt("MONITOR_MAX_FAILURES_PER_ACCOUNT", 5),
			MaxTokenInvalidPerIP:  getEnvAsInt("MONITOR_MAX_TOKEN_INVALID_PER_IP", 5),
			RapidWindow:           getEnvAsDuration("MONITOR_RAPID_WINDOW", 30*time.Second),
			RapidThreshold:        getEnvAsInt("MONITOR_RAPID_THRESHOLD", 3),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	switch cfg.RateLimit.Backend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND must be \"memory\" or \"redis\" (got %q)", cfg.RateLimit.Backend)
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
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

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		return parseList(originsStr)
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
	}
}
