package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Storage
	DBPath string // BoltDB file with server histories

	// Sources
	SourcesPath string // sources.yaml
	SourceURL   string // used when SourcesPath does not exist

	// Harvest settings
	HarvestInterval time.Duration
	FetchTimeout    time.Duration
	PruneStale      bool // drop servers missing from the latest snapshot

	// Export
	OvpnDir string

	// MCP settings
	MCPPort int

	// Observability
	LogLevel       string
	LogFile        string
	TracingEnabled bool
	OTELEndpoint   string
	OTELProtocol   string
	MetricsAddr    string // Prometheus listen address, empty disables

	// ClickHouse mirror
	ClickHouseEnabled bool
	ClickHouseHost    string
	ClickHousePort    int
	ClickHouseDB      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DBPath: getEnv("DB_PATH", "vpngate.db"),

		SourcesPath: getEnv("SOURCES_PATH", "configs/sources.yaml"),
		SourceURL:   getEnv("SOURCE_URL", "http://www.vpngate.net/api/iphone/"),

		HarvestInterval: getEnvDuration("HARVEST_INTERVAL", time.Hour),
		FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 20*time.Second),
		PruneStale:      getEnvBool("PRUNE_STALE", false),

		OvpnDir: getEnv("OVPN_DIR", "ovpns"),

		MCPPort: getEnvInt("MCP_PORT", 8080),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        getEnv("LOG_FILE", ""),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTELEndpoint:   getEnv("OTEL_ENDPOINT", ""),
		OTELProtocol:   strings.ToLower(getEnv("OTEL_PROTOCOL", "grpc")),
		MetricsAddr:    getEnv("METRICS_ADDR", ""),

		ClickHouseEnabled: getEnvBool("CLICKHOUSE_ENABLED", false),
		ClickHouseHost:    getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:    getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDB:      getEnv("CLICKHOUSE_DB", "vpngate"),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.SourceURL == "" {
		return fmt.Errorf("SOURCE_URL is required")
	}
	if c.HarvestInterval < time.Minute {
		return fmt.Errorf("HARVEST_INTERVAL must be at least 1m")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.MCPPort <= 0 || c.MCPPort > 65535 {
		return fmt.Errorf("MCP_PORT must be between 1 and 65535")
	}
	if c.OTELProtocol != "grpc" && c.OTELProtocol != "http" {
		return fmt.Errorf("OTEL_PROTOCOL must be grpc or http")
	}
	if c.ClickHouseEnabled {
		if c.ClickHouseHost == "" {
			return fmt.Errorf("CLICKHOUSE_HOST is required")
		}
		if c.ClickHousePort <= 0 || c.ClickHousePort > 65535 {
			return fmt.Errorf("CLICKHOUSE_PORT must be between 1 and 65535")
		}
		if c.ClickHouseDB == "" {
			return fmt.Errorf("CLICKHOUSE_DB is required")
		}
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "1h") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
