package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Storage backends
const (
	BackendFile       = "file"
	BackendClickHouse = "clickhouse"
	BackendMemory     = "memory"
)

// Config holds the application configuration
type Config struct {
	TelegramToken  string
	AllowedUserIDs []int64 // empty means everyone

	// Bot mode configuration
	WebhookMode bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL  string // URL for webhook (required if WebhookMode is true)
	Port        string

	StorageBackend  string
	PreferencesFile string
	ConferencesFile string

	// ClickHouse configuration
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	// Discovery and notifications
	NotifyEnabled      bool
	NotifySchedule     string
	DiscoveryURL       string
	DiscoveryEarlyBird bool

	LogLevel string
	AppEnv   string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	// Telegram Bot Token (required)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	ids, err := ParseUserIDs(os.Getenv("ALLOWED_USER_IDS"))
	if err != nil {
		return nil, err
	}
	config.AllowedUserIDs = ids

	// Bot mode configuration
	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = os.Getenv("WEBHOOK_URL")
		if config.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}
	config.Port = getEnv("PORT", "8080")
	if _, err := strconv.Atoi(config.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	config.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", BackendFile))
	config.PreferencesFile = getEnv("PREFERENCES_FILE", "users.json")
	config.ConferencesFile = os.Getenv("CONFERENCES_FILE")

	switch config.StorageBackend {
	case BackendFile, BackendMemory:
	case BackendClickHouse:
		if err := loadClickHouse(config, ""); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q (want file, clickhouse or memory)", config.StorageBackend)
	}

	config.NotifyEnabled, err = getBool("NOTIFY_ENABLED", true)
	if err != nil {
		return nil, err
	}
	config.NotifySchedule = getEnv("NOTIFY_SCHEDULE", "@every 12h")
	config.DiscoveryURL = os.Getenv("DISCOVERY_URL")
	config.DiscoveryEarlyBird, err = getBool("DISCOVERY_EARLY_BIRD", false)
	if err != nil {
		return nil, err
	}

	config.LogLevel = getEnv("LOG_LEVEL", "info")
	config.AppEnv = getEnv("APP_ENV", "development")

	return config, nil
}

// ClickHouseFromEnv reads only the ClickHouse settings, for tooling that does
// not run the bot. The host defaults to localhost.
func ClickHouseFromEnv() (*Config, error) {
	config := &Config{StorageBackend: BackendClickHouse}
	if err := loadClickHouse(config, "localhost"); err != nil {
		return nil, err
	}
	return config, nil
}

func loadClickHouse(config *Config, defaultHost string) error {
	config.ClickHouseHost = getEnv("CLICKHOUSE_HOST", defaultHost)
	if config.ClickHouseHost == "" {
		return fmt.Errorf("CLICKHOUSE_HOST is required when STORAGE_BACKEND is clickhouse")
	}

	portStr := os.Getenv("CLICKHOUSE_PORT")
	if portStr == "" {
		config.ClickHousePort = 9000 // Default ClickHouse native port
	} else {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid CLICKHOUSE_PORT: %w", err)
		}
		config.ClickHousePort = port
	}

	config.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
	config.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
	config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
	config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	return nil
}

// ParseUserIDs parses a comma-separated list of Telegram user IDs
func ParseUserIDs(s string) ([]int64, error) {
	var ids []int64
	for _, idStr := range strings.Split(s, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID in ALLOWED_USER_IDS: %s", idStr)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// NewLogger builds a JSON logger for production and a console logger otherwise.
// level may be debug, info, warn or error.
func NewLogger(level, env string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
