// Package config loads and persists toolcheck.yaml, the per-workspace
// configuration for validation runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"toolcheck/internal/mcp"
)

// ConfigFileName is the workspace configuration file.
const ConfigFileName = "toolcheck.yaml"

// Config holds all toolcheck configuration.
type Config struct {
	// Server describes how to reach the MCP server under test.
	Server mcp.ServerConfig `yaml:"server"`

	// Validation holds run defaults.
	Validation ValidationConfig `yaml:"validation"`

	// History configures the run archive.
	History HistoryConfig `yaml:"history"`

	// Logging configures categorized debug logging. The logging
	// package reads this section independently.
	Logging LoggingConfig `yaml:"logging"`
}

// ValidationConfig holds run defaults overridable per invocation.
type ValidationConfig struct {
	// ToolsDir is the contract search root, relative to the workspace
	// unless absolute.
	ToolsDir string `yaml:"tools_dir"`

	// CallTimeout bounds a single tool call when the contract declares
	// no max_execution_time.
	CallTimeout string `yaml:"call_timeout"`

	// Strict promotes warnings to errors.
	Strict bool `yaml:"strict"`

	// CheckDeterminism enables repeated-execution probes for contracts
	// declaring deterministic: true.
	CheckDeterminism bool `yaml:"check_determinism"`

	// DeterminismRuns is how many probe executions to perform.
	DeterminismRuns int `yaml:"determinism_runs"`
}

// HistoryConfig configures the run archive.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: mcp.ServerConfig{
			Protocol: mcp.ProtocolStdio,
		},
		Validation: ValidationConfig{
			ToolsDir:        "tools",
			CallTimeout:     "30s",
			DeterminismRuns: 3,
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(".toolcheck", "history.db"),
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads toolcheck.yaml from the workspace, overlaying defaults.
// A missing file yields pure defaults.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(workspace, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to toolcheck.yaml in the workspace.
func (c *Config) Save(workspace string) error {
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(workspace, ConfigFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if cmd := os.Getenv("TOOLCHECK_SERVER_COMMAND"); cmd != "" {
		c.Server.Command = cmd
		c.Server.Protocol = mcp.ProtocolStdio
	}
	if url := os.Getenv("TOOLCHECK_SERVER_URL"); url != "" {
		c.Server.BaseURL = url
		c.Server.Protocol = mcp.ProtocolHTTP
	}
	if dir := os.Getenv("TOOLCHECK_TOOLS_DIR"); dir != "" {
		c.Validation.ToolsDir = dir
	}
	if path := os.Getenv("TOOLCHECK_DB"); path != "" {
		c.History.DatabasePath = path
	}
}

// GetCallTimeout returns the default per-call timeout as a duration.
func (c *Config) GetCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Validation.CallTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ResolveToolsDir resolves the contract search root against the
// workspace.
func (c *Config) ResolveToolsDir(workspace string) string {
	if filepath.IsAbs(c.Validation.ToolsDir) {
		return c.Validation.ToolsDir
	}
	return filepath.Join(workspace, c.Validation.ToolsDir)
}

// ResolveHistoryPath resolves the archive database path against the
// workspace.
func (c *Config) ResolveHistoryPath(workspace string) string {
	if filepath.IsAbs(c.History.DatabasePath) {
		return c.History.DatabasePath
	}
	return filepath.Join(workspace, c.History.DatabasePath)
}

// Validate checks the server section is usable.
func (c *Config) Validate() error {
	switch c.Server.Protocol {
	case mcp.ProtocolStdio:
		if c.Server.Command == "" {
			return fmt.Errorf("server.command is required for stdio protocol")
		}
	case mcp.ProtocolHTTP:
		if c.Server.BaseURL == "" {
			return fmt.Errorf("server.base_url is required for http protocol")
		}
	default:
		return fmt.Errorf("unknown server.protocol %q (valid: stdio, http)", c.Server.Protocol)
	}
	return nil
}
