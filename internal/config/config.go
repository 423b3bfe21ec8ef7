package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Evaluator kinds
const (
	EvaluatorNone = "none"
	EvaluatorGoja = "goja"
	EvaluatorWasm = "wasm"
)

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server" toml:"server"`
	Features  FeaturesConfig  `json:"features" yaml:"features" toml:"features"`
	Evaluator EvaluatorConfig `json:"evaluator" yaml:"evaluator" toml:"evaluator"`
	Storage   StorageConfig   `json:"storage" yaml:"storage" toml:"storage"`
	Log       LogConfig       `json:"log" yaml:"log" toml:"log"`
}

// ServerConfig selects the MCP transport. Port 0 serves over stdio.
type ServerConfig struct {
	Host string `json:"host,omitempty" yaml:"host,omitempty" toml:"host,omitempty"`
	Port int    `json:"port" yaml:"port" toml:"port"`
}

// Addr returns the HTTP listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FeaturesConfig holds feature switches
type FeaturesConfig struct {
	MapScopes bool `json:"mapScopes" yaml:"mapScopes" toml:"mapScopes"`
}

// MapScopesEnabled reports whether original scope mapping is on
func (f FeaturesConfig) MapScopesEnabled() bool {
	return f.MapScopes
}

// EvaluatorConfig selects how unmatched bindings are evaluated in a frame
type EvaluatorConfig struct {
	Kind      string `json:"kind" yaml:"kind" toml:"kind"` // "none", "goja", or "wasm"
	WasmPath  string `json:"wasmPath,omitempty" yaml:"wasmPath,omitempty" toml:"wasmPath,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty" toml:"timeoutMs,omitempty"`
}

// Timeout returns the per-evaluation time limit, zero meaning the default
func (e EvaluatorConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// StorageConfig locates the pending breakpoint database. An empty path
// disables persistence.
type StorageConfig struct {
	DBPath string `json:"dbPath,omitempty" yaml:"dbPath,omitempty" toml:"dbPath,omitempty"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level       string `json:"level,omitempty" yaml:"level,omitempty" toml:"level,omitempty"`
	Development bool   `json:"development,omitempty" yaml:"development,omitempty" toml:"development,omitempty"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Port: 0},
		Features:  FeaturesConfig{MapScopes: true},
		Evaluator: EvaluatorConfig{Kind: EvaluatorGoja},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads and parses the configuration file. The format follows the file
// extension: .json, .yaml/.yml or .toml. An empty path yields the defaults.
// Variables from a .env file and SCOPEMAP_* environment variables override
// file values.
func Load(configPath string) (*Config, error) {
	// Load .env if exists
	_ = godotenv.Load()

	config := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(configPath, data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func decode(path string, data []byte, config *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return json.Unmarshal(data, config)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".toml":
		return toml.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}

// applyEnv overrides config with SCOPEMAP_* environment variables
func applyEnv(config *Config) error {
	if v := os.Getenv("SCOPEMAP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCOPEMAP_PORT: %w", err)
		}
		config.Server.Port = port
	}
	if v := os.Getenv("SCOPEMAP_MAP_SCOPES"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SCOPEMAP_MAP_SCOPES: %w", err)
		}
		config.Features.MapScopes = enabled
	}
	if v := os.Getenv("SCOPEMAP_EVALUATOR"); v != "" {
		config.Evaluator.Kind = v
	}
	if v := os.Getenv("SCOPEMAP_WASM_PATH"); v != "" {
		config.Evaluator.WasmPath = v
	}
	if v := os.Getenv("SCOPEMAP_DB_PATH"); v != "" {
		config.Storage.DBPath = v
	}
	if v := os.Getenv("SCOPEMAP_VERBOSE"); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SCOPEMAP_VERBOSE: %w", err)
		}
		if verbose {
			config.Log.Level = "debug"
		}
	}
	return nil
}

// validate checks if the configuration is valid
func validate(config *Config) error {
	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range", config.Server.Port)
	}

	switch config.Evaluator.Kind {
	case EvaluatorNone, EvaluatorGoja:
	case EvaluatorWasm:
		if config.Evaluator.WasmPath == "" {
			return fmt.Errorf("evaluator: wasmPath is required for wasm kind")
		}
	default:
		return fmt.Errorf("evaluator: invalid kind %q (must be none, goja, or wasm)", config.Evaluator.Kind)
	}

	if config.Evaluator.TimeoutMs < 0 {
		return fmt.Errorf("evaluator: timeoutMs must not be negative")
	}

	switch config.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: invalid level %q", config.Log.Level)
	}

	return nil
}
