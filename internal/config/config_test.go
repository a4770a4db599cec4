package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careflowhq/careflow/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_PORT", "MONGODB_URI", "MONGODB_DB_NAME",
		"LOCAL_DB_PATH", "LOCAL_CAPACITY_BYTES", "BACKUP_DIR",
		"SYNC_DEBOUNCE_MS", "ALERT_WEBHOOK_URL",
		"ALERT_CRON_SCHEDULE", "BACKUP_CRON_SCHEDULE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Empty(t, cfg.MongoDB.URI)
	assert.Equal(t, "careflow", cfg.MongoDB.DBName)
	assert.Equal(t, "careflow.db", cfg.Local.Path)
	assert.Equal(t, 5*1024*1024, cfg.Local.CapacityBytes)
	assert.Equal(t, "backups", cfg.Local.BackupDir)
	assert.Equal(t, 1000, cfg.Sync.DebounceMS)
	assert.Empty(t, cfg.Alerts.WebhookURL)
	assert.Equal(t, "0 8 * * *", cfg.Alerts.CronSchedule)
	assert.Equal(t, "0 3 * * *", cfg.Alerts.BackupCronSchedule)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "9000")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("LOCAL_CAPACITY_BYTES", "2048")
	t.Setenv("SYNC_DEBOUNCE_MS", "250")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoDB.URI)
	assert.Equal(t, 2048, cfg.Local.CapacityBytes)
	assert.Equal(t, 250, cfg.Sync.DebounceMS)
}

func TestLoad_RejectsNonIntegerCapacity(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOCAL_CAPACITY_BYTES", "five megabytes")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCAL_CAPACITY_BYTES")
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Server: config.ServerConfig{Port: "8080"},
			Local:  config.LocalConfig{Path: "careflow.db", CapacityBytes: 1024},
			Sync:   config.SyncConfig{DebounceMS: 1000},
			Alerts: config.AlertsConfig{
				CronSchedule:       "0 8 * * *",
				BackupCronSchedule: "0 3 * * *",
			},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing port", func(c *config.Config) { c.Server.Port = "" }},
		{"uri without db name", func(c *config.Config) { c.MongoDB.URI = "mongodb://x" }},
		{"missing local path", func(c *config.Config) { c.Local.Path = "" }},
		{"negative capacity", func(c *config.Config) { c.Local.CapacityBytes = -1 }},
		{"zero debounce", func(c *config.Config) { c.Sync.DebounceMS = 0 }},
		{"missing alert schedule", func(c *config.Config) { c.Alerts.CronSchedule = "" }},
		{"missing backup schedule", func(c *config.Config) { c.Alerts.BackupCronSchedule = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
