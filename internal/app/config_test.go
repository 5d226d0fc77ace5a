package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		AppEnv:                 "test",
		AppRequestTimeout:      5 * time.Second,
		LogFormat:              "json",
		AuditStore:             StoreMemory,
		AuditCapacity:          1000,
		AuditRetention:         30 * 24 * time.Hour,
		AuditCleanupInterval:   24 * time.Hour,
		AuditTimezone:          "UTC",
		AuditRedisKey:          "tripwell:audit:log",
		DetectFailedLoginLimit: 5,
		DetectMultiIPLimit:     3,
		DetectOffHoursStart:    6,
		DetectOffHoursEnd:      22,
		RateLimitPerMinute:     1000,
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUDIT_STORE", "Redis")
	t.Setenv("AUDIT_TIMEZONE", "UTC")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, cfg.AuditStore)
	assert.Equal(t, 1000, cfg.AuditCapacity)
	assert.Equal(t, 30*24*time.Hour, cfg.AuditRetention)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.IsProduction())
}

func TestConfigValidateCollectsErrors(t *testing.T) {
	cfg := testConfig()
	cfg.AuditStore = "sqlite"
	cfg.AuditCapacity = 0
	cfg.DetectOffHoursStart = 23
	cfg.DetectOffHoursEnd = 5
	cfg.AuditTimezone = "Mars/Olympus"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "AUDIT_STORE")
	assert.Contains(t, msg, "AUDIT_CAPACITY")
	assert.Contains(t, msg, "DETECT_OFF_HOURS")
	assert.Contains(t, msg, "AUDIT_TIMEZONE")
}

func TestConfigThresholds(t *testing.T) {
	cfg := testConfig()
	cfg.DetectFailedLoginLimit = 9
	cfg.DetectOffHoursEnd = 20
	require.NoError(t, cfg.Validate())

	th := cfg.Thresholds()
	assert.Equal(t, 9, th.FailedLoginThreshold)
	assert.Equal(t, 3, th.MultiIPThreshold)
	assert.Equal(t, 6, th.OffHoursStart)
	assert.Equal(t, 20, th.OffHoursEnd)
	assert.Equal(t, time.UTC, th.Location)
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(testConfig(), &buf)
	logger.Debug("probe", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"probe"`)

	buf.Reset()
	prod := testConfig()
	prod.AppEnv = "production"
	prod.LogFormat = "pretty"
	newLogger(prod, &buf).Debug("hidden")
	assert.Empty(t, buf.String())
}
