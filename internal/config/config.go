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
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Risk     RiskConfig
	Email    EmailConfig
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
	TrustedProxies []string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite string
}

type AuthConfig struct {
	JWTSecret            string
	SessionTokenExpiry   time.Duration
	RememberTokenExpiry  time.Duration
	TimingDelayBaseMs    int
	TimingDelayRandomMs  int
	TimingDelayOnSuccess bool
	CleanupInterval      time.Duration
	LogRetention         time.Duration
	LoginRatePerMinute   int
}

// RiskConfig drives the decision pipeline: feature extraction windows, the
// external scorer invocation, the advisory refinement call, and the step-up
// challenge lifecycle.
type RiskConfig struct {
	// Feature extraction windows
	ShortWindow time.Duration // per-IP and per-user short count window
	LongWindow  time.Duration // per-IP and per-user long count window
	RatioWindow time.Duration // trailing fail-ratio window
	BurstLimit  int           // recent timestamps scanned for burst length

	// External scorer subprocess
	ScorerCommand string // executable plus arguments, empty disables scoring
	ScorerTimeout time.Duration

	// Advisory refinement endpoint
	AdvisoryURL     string // empty disables refinement
	AdvisoryAPIKey  string
	AdvisoryModel   string
	AdvisoryTimeout time.Duration

	// Step-up challenge
	StepUpTTL        time.Duration
	StepUpMaxRetries int
	OTPDigits        int
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "arbiter"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            getEnv("ENV", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES", nil),
			CookieDomain:   getEnv("COOKIE_DOMAIN", ""),
			CookieSecure:   getEnvAsBool("COOKIE_SECURE", false),
			CookieSameSite: getEnv("COOKIE_SAMESITE", "lax"),
		},
		Auth: AuthConfig{
			JWTSecret:            jwtSecret,
			SessionTokenExpiry:   getEnvAsDuration("SESSION_TOKEN_EXPIRY", 12*time.Hour),
			RememberTokenExpiry:  getEnvAsDuration("REMEMBER_TOKEN_EXPIRY", 7*24*time.Hour),
			TimingDelayBaseMs:    getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs:  getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
			TimingDelayOnSuccess: getEnvAsBool("TIMING_DELAY_ON_SUCCESS", false),
			CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			LogRetention:         getEnvAsDuration("LOG_RETENTION", 90*24*time.Hour),
			LoginRatePerMinute:   getEnvAsInt("LOGIN_RATE_PER_MINUTE", 10),
		},
		Risk: RiskConfig{
			ShortWindow:      getEnvAsDuration("RISK_SHORT_WINDOW", 1*time.Minute),
			LongWindow:       getEnvAsDuration("RISK_LONG_WINDOW", 5*time.Minute),
			RatioWindow:      getEnvAsDuration("RISK_RATIO_WINDOW", 10*time.Minute),
			BurstLimit:       getEnvAsInt("RISK_BURST_LIMIT", 10),
			ScorerCommand:    getEnv("RISK_SCORER_CMD", ""),
			ScorerTimeout:    getEnvAsDuration("RISK_SCORER_TIMEOUT", 10*time.Second),
			AdvisoryURL:      getEnv("RISK_ADVISORY_URL", ""),
			AdvisoryAPIKey:   getEnv("RISK_ADVISORY_API_KEY", ""),
			AdvisoryModel:    getEnv("RISK_ADVISORY_MODEL", "gpt-4o-mini"),
			AdvisoryTimeout:  getEnvAsDuration("RISK_ADVISORY_TIMEOUT", 25*time.Second),
			StepUpTTL:        getEnvAsDuration("STEP_UP_TTL", 10*time.Minute),
			StepUpMaxRetries: getEnvAsInt("STEP_UP_MAX_RETRIES", 5),
			OTPDigits:        getEnvAsInt("STEP_UP_OTP_DIGITS", 6),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@example.com"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateRisk(&cfg.Risk); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateRisk(rc *RiskConfig) error {
	if rc.ShortWindow <= 0 || rc.LongWindow <= 0 || rc.RatioWindow <= 0 {
		return fmt.Errorf("risk windows must be positive")
	}
	if rc.ShortWindow >= rc.LongWindow {
		return fmt.Errorf("RISK_SHORT_WINDOW must be shorter than RISK_LONG_WINDOW")
	}
	if rc.BurstLimit < 1 {
		return fmt.Errorf("RISK_BURST_LIMIT must be at least 1")
	}
	if rc.OTPDigits < 6 || rc.OTPDigits > 8 {
		return fmt.Errorf("STEP_UP_OTP_DIGITS must be between 6 and 8")
	}
	if rc.StepUpMaxRetries < 1 {
		return fmt.Errorf("STEP_UP_MAX_RETRIES must be at least 1")
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

func getEnvAsSlice(key string, defaultVal []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
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
