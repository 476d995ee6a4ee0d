package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Resource paths
	DataDir     string
	CatalogPath string
	BadgesPath  string

	// Economy tuning
	StartingBalance int64
	TradeExpiry     time.Duration

	// Logging
	LogLevel string
	LogFile  string // when set, logs also rotate into this file

	// Optional sinks
	ESAddress        string
	DiscordToken     string
	DiscordChannelID string

	// Environment
	Environment string // "development" or "production"
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Only return error if file exists but couldn't be loaded
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	// Get working directory for resource paths
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	startingBalance, err := getEnvInt64("STARTING_BALANCE", 100)
	if err != nil {
		return nil, err
	}

	expiryHours, err := getEnvInt64("TRADE_EXPIRY_HOURS", 24)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:          getEnvWithDefault("DATA_DIR", filepath.Join(wd, "data")),
		CatalogPath:      getEnvWithDefault("CATALOG_PATH", filepath.Join(wd, "catalog.yaml")),
		BadgesPath:       getEnvWithDefault("BADGES_PATH", filepath.Join(wd, "badges.yaml")),
		StartingBalance:  startingBalance,
		TradeExpiry:      time.Duration(expiryHours) * time.Hour,
		LogLevel:         getEnvWithDefault("LOG_LEVEL", "info"),
		LogFile:          os.Getenv("LOG_FILE"),
		ESAddress:        os.Getenv("ES_ADDRESS"),
		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
		Environment:      getEnvWithDefault("ENVIRONMENT", "development"),
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// validate checks if all required configuration is present
func (c *Config) validate() error {
	if c.StartingBalance < 0 {
		return fmt.Errorf("STARTING_BALANCE cannot be negative")
	}
	if c.TradeExpiry <= 0 {
		return fmt.Errorf("TRADE_EXPIRY_HOURS must be positive")
	}
	if c.DiscordToken != "" && c.DiscordChannelID == "" {
		return fmt.Errorf("DISCORD_CHANNEL_ID is required when DISCORD_TOKEN is set")
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt64 returns an integer environment variable or its default
func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, nil
}
