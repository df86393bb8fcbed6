// Package config loads the tgrender service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
)

// Config holds all configuration for the render service.
type Config struct {
	Render RenderConfig `yaml:"render"`
	Cache  CacheConfig  `yaml:"cache"`
	Admin  AdminConfig  `yaml:"admin"`
	Log    LogConfig    `yaml:"log"`
}

// RenderConfig defines render quality and execution options.
type RenderConfig struct {
	DPI             int           `yaml:"dpi"`             // raster density (0 = default)
	Padding         float64       `yaml:"padding"`         // image margin in pixels
	Timeout         time.Duration `yaml:"timeout"`         // per tool invocation (0 = default)
	Workers         int           `yaml:"workers"`         // pool size (0 = derive from GOMAXPROCS)
	PuppeteerConfig string        `yaml:"puppeteerConfig"` // mmdc -p config file (empty = none)
}

// CacheConfig defines the two cache tiers.
type CacheConfig struct {
	MaxEntries int    `yaml:"maxEntries"` // in-memory entries (0 = default)
	MaxBytes   int64  `yaml:"maxBytes"`   // in-memory artifact bytes (0 = default)
	Path       string `yaml:"path"`       // SQLite file for the durable tier (empty = memory only)
}

// AdminConfig defines the admin/health HTTP server.
type AdminConfig struct {
	Addr  string `yaml:"addr"`  // listen address (empty = server disabled)
	Token string `yaml:"token"` // bearer token for mutating endpoints (empty = no auth)
}

// LogConfig defines logging options.
type LogConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error" (default: "info")
}

// DefaultConfig returns a configuration with the durable tier and admin
// server disabled.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if isFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := decodeStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	return &cfg, nil
}

// maxConfigSize bounds the config read; anything larger is not a
// configuration file.
const maxConfigSize = 1 << 20

// decodeStrict parses YAML into cfg, rejecting unknown fields so typos
// in a config file surface as errors instead of silently applied
// defaults.
func decodeStrict(data []byte, cfg *Config) error {
	if len(data) == 0 {
		return errors.New("empty file")
	}
	if len(data) > maxConfigSize {
		return fmt.Errorf("file is %d bytes (max %d)", len(data), maxConfigSize)
	}
	return yaml.UnmarshalWithOptions(data, cfg, yaml.Strict())
}

// isFilePath returns true if the string looks like a file path.
func isFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/go-tgrender/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2) // 2 locations

	for _, ext := range extensions {
		localPath := name + ext
		if fileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "go-tgrender", name+ext)
			if fileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
