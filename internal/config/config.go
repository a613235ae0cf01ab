// Package config provides configuration loading and structs for the docchat client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvBackendURL = "DOCCHAT_BACKEND_URL"
	EnvDebug      = "DOCCHAT_DEBUG"
	EnvDropDir    = "DOCCHAT_DROP_DIR"
)

// Config holds all configuration for the client.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Backend BackendConfig `yaml:"backend"`
	Upload  UploadConfig  `yaml:"upload"`
	Chat    ChatConfig    `yaml:"chat"`
}

// BackendConfig holds the backend origin and HTTP settings.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	// RequestTimeout bounds each request; 0 leaves requests unbounded.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// UploadConfig holds drop folder settings.
type UploadConfig struct {
	DropDirectory string        `yaml:"drop_directory"`
	DropSettle    time.Duration `yaml:"drop_settle"`
}

// ChatConfig holds chat presentation settings.
type ChatConfig struct {
	Suggestions    []string `yaml:"suggestions"`
	ShowTimestamps *bool    `yaml:"show_timestamps"`
}

// ShowTimestampsOrDefault returns whether to print message times; defaults to true when unset.
func (c *ChatConfig) ShowTimestampsOrDefault() bool {
	if c.ShowTimestamps != nil {
		return *c.ShowTimestamps
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.Upload.DropDirectory = expandPath(cfg.Upload.DropDirectory, filepath.Dir(path))
	return &cfg, nil
}

// Default returns a config with only defaults applied, used when no file exists.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if wd, err := os.Getwd(); err == nil {
		cfg.Upload.DropDirectory = expandPath(cfg.Upload.DropDirectory, wd)
	}
	return cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv loads envFile (if it exists) into the process environment without overriding
// variables already set, then applies DOCCHAT_* overrides to cfg.
func ApplyEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv(EnvDebug)); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDebug, err)
		}
		cfg.Debug = debug
	}
	if v := strings.TrimSpace(os.Getenv(EnvDropDir)); v != "" {
		if abs, err := filepath.Abs(v); err == nil {
			v = abs
		}
		cfg.Upload.DropDirectory = v
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to baseDir;
// other relative paths are relative to the home directory.
func expandPath(path string, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(baseDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
