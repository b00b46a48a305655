// Package config provides application configuration loaded from environment
// variables. A .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. Load it once at startup.
type Config struct {
	// PostgresDSN is the database connection string.
	PostgresDSN string

	// KISAppKey / KISAppSecret are the provider API credentials.
	KISAppKey    string
	KISAppSecret string

	// KISBaseURL overrides the provider endpoint (demo endpoint by default).
	KISBaseURL string

	// HTTPAddr is the listen address for the manual trigger surface.
	HTTPAddr string

	// ProviderRatePerSec caps provider calls per second.
	ProviderRatePerSec int

	// Timezone anchors the scheduler's wall-clock triggers.
	Timezone string

	// MasterCron / CollectCron are the daily trigger specs (with seconds).
	MasterCron  string
	CollectCron string

	// SyncOnStartup also fires master sync and incremental collection once
	// at process start.
	SyncOnStartup bool
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := &Config{
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		KISAppKey:          os.Getenv("KIS_APP_KEY"),
		KISAppSecret:       os.Getenv("KIS_APP_SECRET"),
		KISBaseURL:         getEnv("KIS_BASE_URL", ""),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		ProviderRatePerSec: getEnvInt("PROVIDER_RATE_PER_SEC", 2),
		Timezone:           getEnv("SCHEDULE_TIMEZONE", "Asia/Seoul"),
		MasterCron:         getEnv("MASTER_SYNC_CRON", "0 0 2 * * *"),
		CollectCron:        getEnv("PRICE_COLLECT_CRON", "0 0 3 * * *"),
		SyncOnStartup:      getEnvBool("SYNC_ON_STARTUP", true),
	}

	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.KISAppKey == "" || cfg.KISAppSecret == "" {
		return nil, fmt.Errorf("KIS_APP_KEY and KIS_APP_SECRET are required")
	}

	return cfg, nil
}

// getEnv returns the value of key or fallback when unset.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of key or fallback when unset or
// malformed.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvBool returns the boolean value of key or fallback when unset or
// malformed.
func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
