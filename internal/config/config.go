package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Storefront
	BaseURL              string
	DefaultCity          string
	DefaultRestaurantURL string
	LiveOrderEnabled     bool
	MenuPageSize         int

	// Local files
	ConfigDir     string
	SessionFile   string
	FlowStateFile string

	// Browser bridge
	BridgeURL     string
	BridgeTimeout time.Duration

	// Server
	Port           string
	AllowedOrigins string

	// Database
	DatabaseURL string
	SQLitePath  string

	// Bot authentication
	JWTSecret           string
	JWTExpiry           time.Duration
	BotClientID         string
	BotClientSecretHash string

	// Environment
	Environment string

	// OCR
	OCRLanguage string

	// S3/Garage Storage
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
	S3Region    string
}

func Load() *Config {
	configDir := getEnv("RAPPI_CONFIG_DIR", defaultConfigDir())

	return &Config{
		BaseURL:              getEnv("RAPPI_BASE_URL", "https://www.rappi.com.ar"),
		DefaultCity:          getEnv("RAPPI_DEFAULT_CITY", "Buenos Aires"),
		DefaultRestaurantURL: getEnv("RAPPI_DEFAULT_RESTAURANT_URL", "https://www.rappi.com.ar/restaurantes/215137-guber"),
		LiveOrderEnabled:     getBoolEnv("RAPPI_LIVE_ORDER_ENABLED", false),
		MenuPageSize:         getIntEnv("RAPPI_MENU_PAGE_SIZE", 6),
		ConfigDir:            configDir,
		SessionFile:          getEnv("RAPPI_SESSION_FILE", filepath.Join(configDir, "session-state.json")),
		FlowStateFile:        getEnv("RAPPI_FLOW_STATE_FILE", filepath.Join(configDir, "flow-state.json")),
		BridgeURL:            getEnv("RAPPI_BRIDGE_URL", "http://localhost:3001"),
		BridgeTimeout:        getDurationEnv("RAPPI_BRIDGE_TIMEOUT_SECONDS", 90) * time.Second,
		Port:                 getEnv("PORT", "8080"),
		AllowedOrigins:       getEnv("ALLOWED_ORIGINS", "*"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		SQLitePath:           getEnv("SQLITE_PATH", filepath.Join(configDir, "flows.db")),
		JWTSecret:            getEnv("JWT_SECRET", "change-me-in-production-please"),
		JWTExpiry:            getDurationEnv("JWT_EXPIRY_HOURS", 24) * time.Hour,
		BotClientID:          getEnv("BOT_CLIENT_ID", "rappi-bot"),
		BotClientSecretHash:  getEnv("BOT_CLIENT_SECRET_HASH", ""),
		Environment:          getEnv("ENVIRONMENT", "development"),
		OCRLanguage:          getEnv("OCR_LANGUAGE", "spa"),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3AccessKey:          getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:          getEnv("S3_SECRET_KEY", ""),
		S3Bucket:             getEnv("S3_BUCKET", "rappi-flow"),
		S3UseSSL:             getBoolEnv("S3_USE_SSL", false),
		S3Region:             getEnv("S3_REGION", "garage"),
	}
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rappi-cli"
	}
	return filepath.Join(home, ".config", "rappi-cli")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getBoolEnv also accepts yes/y/on, which the bot deployment scripts use
func getBoolEnv(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return ParseBool(value, defaultValue)
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal)
		}
	}
	return time.Duration(defaultValue)
}

// ParseBool reads a loose boolean flag value
func ParseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return fallback
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// StorageEnabled reports whether artifact archiving is configured
func (c *Config) StorageEnabled() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}
