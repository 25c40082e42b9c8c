package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Tracking.MaxDailyHours.Equal(decimal.NewFromInt(16)))
	assert.True(t, cfg.Tracking.ManualEntryRequiresApproval)
	assert.Equal(t, 12*time.Hour, cfg.Tracking.MaxShiftDuration)
	assert.False(t, cfg.SMTP.Enabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	// GIVEN: A postgres deployment with SMTP and tuned tracking limits
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://hr:hr@localhost:5432/hr")
	t.Setenv("TRACKING_MAX_SHIFT_DURATION", "10h")
	t.Setenv("LEAVE_LOW_BALANCE_THRESHOLD", "1.5")
	t.Setenv("CORS_ORIGINS", "https://hr.example.com, https://admin.example.com")
	t.Setenv("SMTP_HOST", "smtp.example.com")

	// WHEN: Loading
	cfg, err := FromEnv()

	// THEN: Every override is applied
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 10*time.Hour, cfg.Tracking.MaxShiftDuration)
	assert.True(t, cfg.Leave.LowBalanceThreshold.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, []string{"https://hr.example.com", "https://admin.example.com"}, cfg.App.CORSOrigins)
	assert.True(t, cfg.SMTP.Enabled())
}

func TestFromEnv_ReportsEveryBadVariable(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("SCHEDULER_SWEEP_INTERVAL", "often")

	_, err := FromEnv()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_PORT")
	assert.Contains(t, err.Error(), "SCHEDULER_SWEEP_INTERVAL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without url", func(c *Config) { c.Database.Driver = "postgres" }, "DATABASE_URL"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"production without secret", func(c *Config) { c.App.Env = "production" }, "JWT_SECRET_KEY"},
		{"zero shift", func(c *Config) { c.Tracking.MaxShiftDuration = 0 }, "TRACKING_MAX_SHIFT_DURATION"},
		{"negative threshold", func(c *Config) { c.Leave.LowBalanceThreshold = decimal.NewFromInt(-1) }, "LEAVE_LOW_BALANCE_THRESHOLD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromEnv()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
