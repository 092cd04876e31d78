package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	viper.Reset()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
upstream:
  base_url: "https://core.nimba.internal"
audit:
  collector_url: "https://audit.nimba.internal/events"
fraud:
  scorer_url: "https://fraud.nimba.internal/analyze"
  blocking: true
routes:
  - fragment: "/wallet"
    auditable: true
    fraud_checked: true
    encrypted: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "https://core.nimba.internal", cfg.Upstream.BaseURL)
	assert.True(t, cfg.Fraud.Blocking)
	assert.Equal(t, 100000, cfg.Security.KeyIterations)
	assert.Equal(t, 24*time.Hour, cfg.Security.SessionTTL)
	assert.Equal(t, 256, cfg.Audit.BufferSize)
	assert.False(t, cfg.Database.Enabled)

	require.Len(t, cfg.Routes, 1)
	table := cfg.RouteTable()
	classification := table.Classify("/wallet/deposit", "POST")
	assert.True(t, classification.Encrypted)
}

func TestLoadConfigMissingUpstream(t *testing.T) {
	path := writeConfigFile(t, `
audit:
  collector_url: "https://audit.nimba.internal/events"
fraud:
  scorer_url: "https://fraud.nimba.internal/analyze"
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestRouteTableDefaultsWhenUnconfigured(t *testing.T) {
	cfg := &Config{}
	table := cfg.RouteTable()

	classification := table.Classify("/wallet/deposit", "POST")
	assert.True(t, classification.Auditable)
	assert.True(t, classification.FraudChecked)
	assert.True(t, classification.Encrypted)
}

func TestGetRedisAddr(t *testing.T) {
	cfg := &Config{Redis: RedisConfig{Host: "cache.internal", Port: 6380}}
	assert.Equal(t, "cache.internal:6380", cfg.GetRedisAddr())
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		Username: "gateway",
		Password: "secret",
		Database: "audit",
		SSLMode:  "require",
	}}
	assert.Equal(t,
		"host=db.internal port=5432 user=gateway password=secret dbname=audit sslmode=require",
		cfg.GetDatabaseDSN())
}
