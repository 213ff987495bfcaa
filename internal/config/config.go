package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds process-level settings for the logger. The tag list and
// connection settings live in the separate JSON tag configuration document
// (see the tagcfg package); everything here controls the process itself.
type Config struct {
	// TagConfigPath is the path to the JSON tag configuration document.
	TagConfigPath string `yaml:"tag_config_path"`

	// LogsDir is the directory that receives the SQLite database files.
	LogsDir string `yaml:"logs_dir"`

	// JournalPath is the bbolt file recording session history.
	JournalPath string `yaml:"journal_path"`

	// APIAddr is the listen address for the history/diagnostics HTTP API.
	APIAddr string `yaml:"api_addr"`

	// Observability
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPProtocol   string `yaml:"otlp_protocol"`

	// DiagInterval is the diagnostics probe cadence in seconds.
	DiagInterval float64 `yaml:"diag_interval"`
}

// Load builds configuration from environment variables, then applies the
// optional YAML settings file named by PLCLOGGER_SETTINGS on top.
func Load() (*Config, error) {
	cfg := &Config{
		TagConfigPath: getEnv("PLCLOGGER_TAG_CONFIG", "plc_logger_config.json"),
		LogsDir:       getEnv("PLCLOGGER_LOGS_DIR", defaultLogsDir()),
		JournalPath:   getEnv("PLCLOGGER_JOURNAL", "plclogger_journal.db"),
		APIAddr:       getEnv("PLCLOGGER_API_ADDR", ":8484"),

		LogLevel:       getEnv("PLCLOGGER_LOG_LEVEL", "info"),
		LogFile:        getEnv("PLCLOGGER_LOG_FILE", ""),
		TracingEnabled: getEnvBool("PLCLOGGER_TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("PLCLOGGER_OTLP_ENDPOINT", ""),
		OTLPProtocol:   getEnv("PLCLOGGER_OTLP_PROTOCOL", "grpc"),

		DiagInterval: getEnvFloat("PLCLOGGER_DIAG_INTERVAL", 5.0),
	}

	if overlay := os.Getenv("PLCLOGGER_SETTINGS"); overlay != "" {
		if err := cfg.applyFile(overlay); err != nil {
			return nil, fmt.Errorf("settings file %s: %w", overlay, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.TagConfigPath == "" {
		return fmt.Errorf("tag config path is required")
	}
	if c.LogsDir == "" {
		return fmt.Errorf("logs dir is required")
	}
	if c.JournalPath == "" {
		return fmt.Errorf("journal path is required")
	}
	if c.DiagInterval <= 0 {
		return fmt.Errorf("diag interval must be positive")
	}
	switch c.OTLPProtocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("otlp protocol must be 'grpc' or 'http'")
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// defaultLogsDir mirrors the historical location under the user's documents
// folder so databases land where the chart viewer expects them.
func defaultLogsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "PLC_Logs"
	}
	return filepath.Join(home, "Documents", "PLC_Logs")
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
