package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Cod-e-Codes/clack/shared"
	"github.com/Cod-e-Codes/clack/transport"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Server bind ports must stay out of the well-known and dynamic ranges.
const (
	MinPort = 1024
	MaxPort = 49151

	DefaultPort = 7777
)

// Staging backends.
const (
	StoreDir      = "dir"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all server configuration
type Config struct {
	// Listener settings
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Transport  string `json:"transport"`
	ServerName string `json:"server_name"`

	// File staging settings
	Store        string `json:"store"`
	StagingDir   string `json:"staging_dir"`
	DBPath       string `json:"db_path"`
	DatabaseURL  string `json:"database_url"`
	MaxFileBytes int64  `json:"max_file_bytes"`

	// Staging cleanup
	CleanupSchedule  string        `json:"cleanup_schedule"`
	StagingRetention time.Duration `json:"staging_retention"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Config directory
	ConfigDir string `json:"config_dir"`
}

// LoadConfig loads configuration from the .env file in configDir and from
// CLACK_* environment variables, then validates it.
func LoadConfig(configDir string) (*Config, error) {
	cfg, err := LoadConfigWithoutValidation(configDir)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithoutValidation loads configuration without validating it, so
// callers can apply flag overrides first.
func LoadConfigWithoutValidation(configDir string) (*Config, error) {
	cfg := &Config{}

	// Environment wins over the parameter, which wins over the default
	if envConfigDir := os.Getenv("CLACK_CONFIG_DIR"); envConfigDir != "" {
		cfg.ConfigDir = envConfigDir
	} else if configDir != "" {
		cfg.ConfigDir = configDir
	} else {
		cfg.ConfigDir = getDefaultConfigDir()
	}

	if err := ensureConfigDir(cfg.ConfigDir); err != nil {
		return nil, fmt.Errorf("%w: failed to create config directory: %w", shared.ErrConfiguration, err)
	}

	envPath := filepath.Join(cfg.ConfigDir, ".env")
	if err := loadEnvFile(envPath); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
	}

	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.Host = os.Getenv("CLACK_HOST")

	if portStr := os.Getenv("CLACK_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid CLACK_PORT: %s", portStr)
		}
		c.Port = port
	} else {
		c.Port = DefaultPort
	}

	c.Transport = strings.ToLower(GetEnvWithDefault("CLACK_TRANSPORT", string(transport.WebSocket)))
	c.ServerName = GetEnvWithDefault("CLACK_SERVER_NAME", "server")

	c.Store = strings.ToLower(GetEnvWithDefault("CLACK_STORE", StoreDir))
	c.StagingDir = GetEnvWithDefault("CLACK_STAGING_DIR", filepath.Join(c.ConfigDir, "staging"))
	c.DBPath = GetEnvWithDefault("CLACK_DB_PATH", filepath.Join(c.ConfigDir, "clack.db"))
	c.DatabaseURL = os.Getenv("CLACK_DATABASE_URL")

	// Priority: CLACK_MAX_FILE_BYTES > CLACK_MAX_FILE_MB > default 1MB
	const oneMB int64 = 1024 * 1024
	if bytesStr := os.Getenv("CLACK_MAX_FILE_BYTES"); bytesStr != "" {
		val, err := strconv.ParseInt(bytesStr, 10, 64)
		if err != nil || val <= 0 {
			return fmt.Errorf("invalid CLACK_MAX_FILE_BYTES: %s", bytesStr)
		}
		c.MaxFileBytes = val
	} else if mbStr := os.Getenv("CLACK_MAX_FILE_MB"); mbStr != "" {
		val, err := strconv.ParseInt(mbStr, 10, 64)
		if err != nil || val <= 0 {
			return fmt.Errorf("invalid CLACK_MAX_FILE_MB: %s", mbStr)
		}
		c.MaxFileBytes = val * oneMB
	} else {
		c.MaxFileBytes = oneMB
	}

	c.CleanupSchedule = GetEnvWithDefault("CLACK_CLEANUP_SCHEDULE", "@every 1h")
	if retention := os.Getenv("CLACK_STAGING_RETENTION"); retention != "" {
		d, err := time.ParseDuration(retention)
		if err != nil {
			return fmt.Errorf("invalid CLACK_STAGING_RETENTION: %s", retention)
		}
		c.StagingRetention = d
	} else {
		c.StagingRetention = 24 * time.Hour
	}

	c.LogLevel = strings.ToLower(GetEnvWithDefault("CLACK_LOG_LEVEL", "info"))
	c.LogFile = os.Getenv("CLACK_LOG_FILE")

	return nil
}

// Validate checks every setting. All failures wrap shared.ErrConfiguration.
func (c *Config) Validate() error {
	if c.Port < MinPort || c.Port > MaxPort {
		return fmt.Errorf("%w: port must be between %d and %d, got %d", shared.ErrConfiguration, MinPort, MaxPort, c.Port)
	}

	if _, err := transport.ParseKind(c.Transport); err != nil {
		return err
	}

	if strings.TrimSpace(c.ServerName) == "" {
		return fmt.Errorf("%w: server name cannot be empty", shared.ErrConfiguration)
	}

	switch c.Store {
	case StoreDir:
		if c.StagingDir == "" {
			return fmt.Errorf("%w: CLACK_STAGING_DIR is required for the dir store", shared.ErrConfiguration)
		}
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("%w: CLACK_DB_PATH is required for the sqlite store", shared.ErrConfiguration)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: CLACK_DATABASE_URL is required for the postgres store", shared.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown store %q (want dir, sqlite or postgres)", shared.ErrConfiguration, c.Store)
	}

	if c.MaxFileBytes <= 0 {
		return fmt.Errorf("%w: max file size must be positive, got %d", shared.ErrConfiguration, c.MaxFileBytes)
	}

	if c.StagingRetention < 0 {
		return fmt.Errorf("%w: staging retention cannot be negative", shared.ErrConfiguration)
	}
	if c.StagingRetention > 0 {
		if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
			return fmt.Errorf("%w: invalid CLACK_CLEANUP_SCHEDULE %q: %w", shared.ErrConfiguration, c.CleanupSchedule, err)
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", shared.ErrConfiguration, c.LogLevel)
	}

	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// getDefaultConfigDir returns the default configuration directory
func getDefaultConfigDir() string {
	// Development mode: running from the project root
	if _, err := os.Stat("go.mod"); err == nil {
		return "./config"
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "clack")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config"
	}

	return filepath.Join(homeDir, ".config", "clack")
}

func ensureConfigDir(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// loadEnvFile loads a .env file if present. Variables already set in the
// environment are not overridden.
func loadEnvFile(envPath string) error {
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		return nil
	}

	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("failed to load .env file %s: %w", envPath, err)
	}

	return nil
}

// GetEnvWithDefault returns an environment variable value or a default
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
