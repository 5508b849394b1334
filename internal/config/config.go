// Package config provides configuration management for the scraper service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the scraper service.
type Config struct {
	// Server settings
	Port     int
	LogLevel string

	// Data layout (profiles, outputs, logs live under DataDir)
	DataDir string

	// Browser settings
	ChromePath string
	Headless   bool
	ProxyURL   string

	// Session lifecycle settings
	HardIdleTimeout time.Duration // close a session idle longer than this
	JanitorInterval time.Duration

	// Warm (keep-alive) job settings
	WarmIdleFloor       time.Duration // minimum idle before the janitor triggers a warm job
	WarmCooldown        time.Duration // minimum gap between warm jobs on one session
	WarmHitsThreshold   int           // foreground jobs between hit-count warm triggers

	// Browser recycle policy
	RecyclePolicy string // never | before_each | every_n
	RecycleEveryN int

	// Outbound callback settings
	WebhookTimeout time.Duration

	// Shutdown
	ShutdownTimeout time.Duration

	// Task journal
	JournalDBPath string
}

// Load creates a Config from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:              getEnvInt("PORT", 8000),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DataDir:           getEnv("DATA_DIR", "FDATA"),
		ChromePath:        getEnv("CHROME_PATH", ""),
		Headless:          getEnv("HEADLESS", "true") == "true",
		ProxyURL:          getEnv("PROXY_URL", ""),
		HardIdleTimeout:   getEnvDuration("API_IDLE_TIMEOUT", 30*time.Minute),
		JanitorInterval:   getEnvDuration("JANITOR_INTERVAL", 2*time.Second),
		WarmIdleFloor:     getEnvDuration("WARM_IDLE_FLOOR", 25*time.Minute),
		WarmCooldown:      getEnvDuration("WARM_COOLDOWN", 30*time.Minute),
		WarmHitsThreshold: getEnvInt("WARM_HITS_BEFORE_TRIGGER", 8),
		RecyclePolicy:     getEnv("RECHROME_POLICY", "never"),
		RecycleEveryN:     getEnvInt("RECHROME_EVERY_N", 0),
		WebhookTimeout:    getEnvDuration("WEBHOOK_TIMEOUT", 15*time.Second),
		ShutdownTimeout:   getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		JournalDBPath:     getEnv("JOURNAL_DB_PATH", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
