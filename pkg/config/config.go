// Package config provides configuration parsing and validation for jacx.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default name for the jacx configuration file
const ConfigFileName = ".jacx.yaml"

// Default timeouts applied when the config file omits them
const (
	DefaultProbeTimeout     = 5 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second
)

// Config represents the .jacx.yaml structure
type Config struct {
	// Tool overrides the name of the Jac executable ("jac" by default).
	Tool string `yaml:"tool,omitempty"`

	// SearchDirs lists extra directories scanned for environments, in
	// addition to the built-in search locations.
	SearchDirs []string `yaml:"search_dirs,omitempty"`

	// ProbeTimeoutSeconds bounds the version probe on each candidate.
	ProbeTimeoutSeconds int `yaml:"probe_timeout_seconds,omitempty"`

	Server   ServerConfig   `yaml:"server,omitempty"`
	Resolver ResolverConfig `yaml:"resolver,omitempty"`
}

// ServerConfig configures the supervised language server process
type ServerConfig struct {
	// Args are appended after the "lsp" subcommand.
	Args []string `yaml:"args,omitempty"`

	// HandshakeTimeoutSeconds bounds the initialize round trip.
	HandshakeTimeoutSeconds int `yaml:"handshake_timeout_seconds,omitempty"`
}

// ResolverConfig configures import resolution
type ResolverConfig struct {
	// ExcludeDirs are directory names skipped during the recursive
	// workspace scan, merged with the built-in exclusions.
	ExcludeDirs []string `yaml:"exclude_dirs,omitempty"`
}

// DefaultConfig returns a configuration with all defaults applied
func DefaultConfig() *Config {
	return &Config{Tool: "jac"}
}

// LoadConfig loads the jacx configuration for a workspace. A missing config
// file is not an error; defaults are returned.
func LoadConfig(workspaceRoot string) (*Config, error) {
	configPath := filepath.Join(workspaceRoot, ConfigFileName)

	// Basic path validation to address gosec G304
	if strings.Contains(configPath, "..") {
		return nil, fmt.Errorf("invalid config path: %s", configPath)
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- path is validated above
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if strings.TrimSpace(string(data)) == "" {
		return DefaultConfig(), nil
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if config.Tool == "" {
		config.Tool = "jac"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ProbeTimeoutSeconds < 0 {
		return fmt.Errorf("probe_timeout_seconds must not be negative, got %d", c.ProbeTimeoutSeconds)
	}
	if c.Server.HandshakeTimeoutSeconds < 0 {
		return fmt.Errorf(
			"server.handshake_timeout_seconds must not be negative, got %d",
			c.Server.HandshakeTimeoutSeconds,
		)
	}
	if strings.ContainsAny(c.Tool, `/\`) {
		return fmt.Errorf("tool must be a bare executable name, got %q", c.Tool)
	}
	for i, dir := range c.SearchDirs {
		if dir == "" {
			return fmt.Errorf("search_dirs[%d]: directory must not be empty", i)
		}
	}
	return nil
}

// ProbeTimeout returns the configured probe timeout or the default
func (c *Config) ProbeTimeout() time.Duration {
	if c.ProbeTimeoutSeconds > 0 {
		return time.Duration(c.ProbeTimeoutSeconds) * time.Second
	}
	return DefaultProbeTimeout
}

// HandshakeTimeout returns the configured handshake timeout or the default
func (c *Config) HandshakeTimeout() time.Duration {
	if c.Server.HandshakeTimeoutSeconds > 0 {
		return time.Duration(c.Server.HandshakeTimeoutSeconds) * time.Second
	}
	return DefaultHandshakeTimeout
}
