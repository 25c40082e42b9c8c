package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Tracking  TrackingConfig
	Leave     LeaveConfig
	Scheduler SchedulerConfig
	SMTP      SMTPConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Port        int
	Env         string
	LogLevel    string
	CORSOrigins []string
}

// DatabaseConfig selects the store. Driver is one of sqlite, postgres or
// memory; Path is the SQLite file and URL the PostgreSQL DSN.
type DatabaseConfig struct {
	Driver string
	Path   string
	URL    string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type TrackingConfig struct {
	AllowFutureClockIn          bool
	FutureSkew                  time.Duration
	MaxDailyHours               decimal.Decimal
	ManualEntryMaxAge           time.Duration
	ManualEntryRequiresApproval bool
	MaxShiftDuration            time.Duration
}

type LeaveConfig struct {
	LowBalanceThreshold decimal.Decimal
}

type SchedulerConfig struct {
	Enabled         bool
	AccrualInterval time.Duration
	SweepInterval   time.Duration
}

// SMTPConfig enables e-mail notifications when Host is set.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" }

// Load reads the environment, after applying a .env file when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	var p parser
	config := &Config{}

	config.App = AppConfig{
		Port:        p.getEnvInt("APP_PORT", 8080),
		Env:         getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
	}

	config.Database = DatabaseConfig{
		Driver: getEnv("DB_DRIVER", "sqlite"),
		Path:   getEnv("DB_PATH", "hrmis.db"),
		URL:    getEnv("DATABASE_URL", ""),
	}

	config.Auth = AuthConfig{
		JWTSecret: getEnv("JWT_SECRET_KEY", ""),
		TokenTTL:  p.getEnvDuration("JWT_ACCESS_EXPIRATION_TIME", time.Hour),
	}

	config.Tracking = TrackingConfig{
		AllowFutureClockIn:          p.getEnvBool("TRACKING_ALLOW_FUTURE_CLOCK_IN", false),
		FutureSkew:                  p.getEnvDuration("TRACKING_FUTURE_SKEW", time.Minute),
		MaxDailyHours:               p.getEnvDecimal("TRACKING_MAX_DAILY_HOURS", decimal.NewFromInt(16)),
		ManualEntryMaxAge:           p.getEnvDuration("TRACKING_MANUAL_ENTRY_MAX_AGE", 30*24*time.Hour),
		ManualEntryRequiresApproval: p.getEnvBool("TRACKING_MANUAL_ENTRY_REQUIRES_APPROVAL", true),
		MaxShiftDuration:            p.getEnvDuration("TRACKING_MAX_SHIFT_DURATION", 12*time.Hour),
	}

	config.Leave = LeaveConfig{
		LowBalanceThreshold: p.getEnvDecimal("LEAVE_LOW_BALANCE_THRESHOLD", decimal.NewFromInt(2)),
	}

	config.Scheduler = SchedulerConfig{
		Enabled:         p.getEnvBool("SCHEDULER_ENABLED", true),
		AccrualInterval: p.getEnvDuration("SCHEDULER_ACCRUAL_INTERVAL", time.Hour),
		SweepInterval:   p.getEnvDuration("SCHEDULER_SWEEP_INTERVAL", 15*time.Minute),
	}

	config.SMTP = SMTPConfig{
		Host:     getEnv("SMTP_HOST", ""),
		Port:     p.getEnvInt("SMTP_PORT", 587),
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", "hr-noreply@localhost"),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT %d is out of range", c.App.Port))
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of sqlite, postgres, memory", c.Database.Driver))
	}
	if c.App.Env == "production" && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is required in production"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_EXPIRATION_TIME must be positive"))
	}
	if !c.Tracking.MaxDailyHours.IsPositive() {
		errs = append(errs, errors.New("TRACKING_MAX_DAILY_HOURS must be positive"))
	}
	if c.Tracking.MaxShiftDuration <= 0 {
		errs = append(errs, errors.New("TRACKING_MAX_SHIFT_DURATION must be positive"))
	}
	if c.Leave.LowBalanceThreshold.IsNegative() {
		errs = append(errs, errors.New("LEAVE_LOW_BALANCE_THRESHOLD must not be negative"))
	}
	if c.Scheduler.Enabled && (c.Scheduler.AccrualInterval <= 0 || c.Scheduler.SweepInterval <= 0) {
		errs = append(errs, errors.New("scheduler intervals must be positive"))
	}
	if c.SMTP.Enabled() && c.SMTP.From == "" {
		errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) getEnvBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}
