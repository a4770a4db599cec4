package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server  ServerConfig
	MongoDB MongoDBConfig
	Local   LocalConfig
	Sync    SyncConfig
	Alerts  AlertsConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// MongoDBConfig holds settings for the remote authoritative store. An empty
// URI disables remote synchronization entirely; the application then runs on
// the local store alone.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// LocalConfig holds settings for the on-disk slot store.
type LocalConfig struct {
	Path          string
	CapacityBytes int
	BackupDir     string
}

// SyncConfig holds reconciliation tuning knobs.
type SyncConfig struct {
	DebounceMS int
}

// AlertsConfig holds settings for scheduled jobs and the low-stock webhook.
type AlertsConfig struct {
	WebhookURL         string
	CronSchedule       string
	BackupCronSchedule string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	capacity, err := getenvInt("LOCAL_CAPACITY_BYTES", 5*1024*1024)
	if err != nil {
		return nil, err
	}
	debounce, err := getenvInt("SYNC_DEBOUNCE_MS", 1000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "careflow"),
		},
		Local: LocalConfig{
			Path:          getenvWithDefault("LOCAL_DB_PATH", "careflow.db"),
			CapacityBytes: capacity,
			BackupDir:     getenvWithDefault("BACKUP_DIR", "backups"),
		},
		Sync: SyncConfig{
			DebounceMS: debounce,
		},
		Alerts: AlertsConfig{
			WebhookURL:         os.Getenv("ALERT_WEBHOOK_URL"),
			CronSchedule:       getenvWithDefault("ALERT_CRON_SCHEDULE", "0 8 * * *"),
			BackupCronSchedule: getenvWithDefault("BACKUP_CRON_SCHEDULE", "0 3 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.MongoDB.URI != "" && c.MongoDB.DBName == "" {
		return errors.New("MONGODB_DB_NAME must be provided when MONGODB_URI is set")
	}

	if c.Local.Path == "" {
		return errors.New("LOCAL_DB_PATH must be provided")
	}

	if c.Local.CapacityBytes < 0 {
		return errors.New("LOCAL_CAPACITY_BYTES must not be negative")
	}

	if c.Sync.DebounceMS <= 0 {
		return errors.New("SYNC_DEBOUNCE_MS must be positive")
	}

	if c.Alerts.CronSchedule == "" {
		return errors.New("ALERT_CRON_SCHEDULE must be provided")
	}

	if c.Alerts.BackupCronSchedule == "" {
		return errors.New("BACKUP_CRON_SCHEDULE must be provided")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, nil
}
