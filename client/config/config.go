package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Cod-e-Codes/clack/shared"
	"github.com/Cod-e-Codes/clack/transport"
)

const (
	DefaultUsername = "client"
	DefaultHost     = "localhost"
	DefaultPort     = 7777
	DefaultTheme    = "default"

	MinPort = 1
	MaxPort = 49151
)

// Themes lists the accepted values of Config.Theme.
var Themes = []string{"plain", "default", "slack", "discord", "aim"}

type Config struct {
	Username  string `json:"username"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Transport string `json:"transport"`
	Theme     string `json:"theme"`
}

// DefaultConfig returns the settings used when no file or flag overrides
// them.
func DefaultConfig() Config {
	return Config{
		Username:  DefaultUsername,
		Host:      DefaultHost,
		Port:      DefaultPort,
		Transport: string(transport.WebSocket),
		Theme:     DefaultTheme,
	}
}

// LoadConfig reads a JSON config over the defaults. Fields absent from the
// file keep their default values. A missing file returns the defaults and an
// error matching fs.ErrNotExist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("%w: failed to parse %s: %w", shared.ErrConfiguration, path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as indented JSON, creating the parent directory.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks every field. Errors wrap shared.ErrConfiguration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: %w", shared.ErrConfiguration, shared.ErrEmptyUsername)
	}
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: host cannot be empty", shared.ErrConfiguration)
	}
	if c.Port < MinPort || c.Port > MaxPort {
		return fmt.Errorf("%w: port %d not in range %d - %d", shared.ErrConfiguration, c.Port, MinPort, MaxPort)
	}
	if _, err := transport.ParseKind(c.Transport); err != nil {
		return err
	}
	if !validTheme(c.Theme) {
		return fmt.Errorf("%w: unknown theme %q (want one of %s)",
			shared.ErrConfiguration, c.Theme, strings.Join(Themes, ", "))
	}
	return nil
}

func validTheme(theme string) bool {
	for _, t := range Themes {
		if t == theme {
			return true
		}
	}
	return false
}

// DefaultConfigPath returns client.json in the user's config directory.
func DefaultConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "clack", "client.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "client.json"
	}
	return filepath.Join(home, ".config", "clack", "client.json")
}

// IsNotExist reports whether err came from a missing config file.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
