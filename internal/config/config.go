// Package config provides configuration management for tabula filter and grouping operations
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the configuration shared by filter and grouping executions
type Config struct {
	// Grouping Configuration
	MaxInMemoryRows int64  `json:"max_in_memory_rows" yaml:"max_in_memory_rows"` // Largest known table size grouped by hashing
	SortRunRows     int    `json:"sort_run_rows" yaml:"sort_run_rows"`           // Rows per sorted run before spilling
	SpillBatchRows  int    `json:"spill_batch_rows" yaml:"spill_batch_rows"`     // Rows per Arrow record in a spill file
	SpillDir        string `json:"spill_dir" yaml:"spill_dir"`                   // Directory for spill files ("" = os.TempDir)

	// Execution Configuration
	CancelCheckInterval int           `json:"cancel_check_interval" yaml:"cancel_check_interval"` // Rows between cancellation checks
	ProgressInterval    time.Duration `json:"progress_interval" yaml:"progress_interval"`         // Minimum time between progress reports
	OrderStrings        bool          `json:"order_strings" yaml:"order_strings"`                 // Allow ordering operators on strings and row keys

	// Debugging Configuration
	VerboseLogging    bool   `json:"verbose_logging" yaml:"verbose_logging"`       // Enable debug logging
	LogFormat         string `json:"log_format" yaml:"log_format"`                 // "text" or "json"
	MetricsCollection bool   `json:"metrics_collection" yaml:"metrics_collection"` // Enable metrics collection
}

// Global configuration instance
var (
	globalConfig Config
	configMutex  sync.RWMutex
)

// Default configuration values
const (
	DefaultMaxInMemoryRows     = 1_000_000
	DefaultSortRunRows         = 100_000
	DefaultSpillBatchRows      = 4096
	DefaultCancelCheckInterval = 1
	DefaultProgressInterval    = 250 * time.Millisecond
	DefaultLogFormat           = "text"
)

func init() {
	globalConfig = NewConfig()
}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		MaxInMemoryRows: DefaultMaxInMemoryRows,
		SortRunRows:     DefaultSortRunRows,
		SpillBatchRows:  DefaultSpillBatchRows,
		SpillDir:        "", // os.TempDir

		CancelCheckInterval: DefaultCancelCheckInterval,
		ProgressInterval:    DefaultProgressInterval,
		OrderStrings:        true,

		VerboseLogging:    false,
		LogFormat:         DefaultLogFormat,
		MetricsCollection: false,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.MaxInMemoryRows < 0 {
		return fmt.Errorf("MaxInMemoryRows must be non-negative, got %d", c.MaxInMemoryRows)
	}

	if c.SortRunRows <= 0 {
		return fmt.Errorf("SortRunRows must be positive, got %d", c.SortRunRows)
	}

	if c.SpillBatchRows <= 0 {
		return fmt.Errorf("SpillBatchRows must be positive, got %d", c.SpillBatchRows)
	}

	if c.CancelCheckInterval <= 0 {
		return fmt.Errorf("CancelCheckInterval must be positive, got %d", c.CancelCheckInterval)
	}

	if c.ProgressInterval < 0 {
		return fmt.Errorf("ProgressInterval must be non-negative, got %s", c.ProgressInterval)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LogFormat must be text or json, got %q", c.LogFormat)
	}

	return nil
}

// SpillDirectory returns the directory spill runs are created in.
func (c Config) SpillDirectory() string {
	if c.SpillDir == "" {
		return os.TempDir()
	}
	return c.SpillDir
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = config
}

// GetGlobalConfig returns the current global configuration
func GetGlobalConfig() Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// UnmarshalJSON accepts progress_interval as a duration string ("250ms") or
// as integer nanoseconds.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		*plain
		ProgressInterval json.RawMessage `json:"progress_interval"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.ProgressInterval) == 0 || string(aux.ProgressInterval) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(aux.ProgressInterval, &text); err == nil {
		d, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("progress_interval: %w", err)
		}
		c.ProgressInterval = d
		return nil
	}
	var nanos int64
	if err := json.Unmarshal(aux.ProgressInterval, &nanos); err != nil {
		return fmt.Errorf("progress_interval must be a duration string or integer nanoseconds, got %s", aux.ProgressInterval)
	}
	c.ProgressInterval = time.Duration(nanos)
	return nil
}

// LoadFromJSON loads configuration from JSON data. Keys absent from data keep
// their defaults; explicit zeros are kept and left to Validate.
func LoadFromJSON(data []byte) (Config, error) {
	config := NewConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing JSON configuration: %w", err)
	}
	return config, nil
}

// LoadFromYAML loads configuration from YAML data. Keys absent from data keep
// their defaults; explicit zeros are kept and left to Validate.
func LoadFromYAML(data []byte) (Config, error) {
	config := NewConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing YAML configuration: %w", err)
	}
	return config, nil
}

// LoadFromFile loads configuration from a file (supports JSON, YAML)
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		config, err = LoadFromJSON(data)
	case ".yaml", ".yml":
		config, err = LoadFromYAML(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", filename, err)
	}

	return config, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() Config {
	return ApplyEnv(NewConfig())
}

// ApplyEnv overrides fields of config with TABULA_* environment variables.
// Unparseable values are ignored.
func ApplyEnv(config Config) Config {
	if val := os.Getenv("TABULA_MAX_IN_MEMORY_ROWS"); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.MaxInMemoryRows = parsed
		}
	}

	if val := os.Getenv("TABULA_SORT_RUN_ROWS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.SortRunRows = parsed
		}
	}

	if val := os.Getenv("TABULA_SPILL_BATCH_ROWS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.SpillBatchRows = parsed
		}
	}

	if val := os.Getenv("TABULA_SPILL_DIR"); val != "" {
		config.SpillDir = val
	}

	if val := os.Getenv("TABULA_CANCEL_CHECK_INTERVAL"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.CancelCheckInterval = parsed
		}
	}

	if val := os.Getenv("TABULA_PROGRESS_INTERVAL"); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			config.ProgressInterval = parsed
		}
	}

	if val := os.Getenv("TABULA_ORDER_STRINGS"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.OrderStrings = parsed
		}
	}

	if val := os.Getenv("TABULA_VERBOSE_LOGGING"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.VerboseLogging = parsed
		}
	}

	if val := os.Getenv("TABULA_LOG_FORMAT"); val != "" {
		config.LogFormat = val
	}

	if val := os.Getenv("TABULA_METRICS_COLLECTION"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.MetricsCollection = parsed
		}
	}

	return config
}
