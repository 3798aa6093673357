package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ManagerConfig holds log-manager-specific configurations.
type ManagerConfig struct {
	SenderID                string `yaml:"sender_id"`
	OrderPreserving         bool   `yaml:"order_preserving"`
	ReadPollInterval        string `yaml:"read_poll_interval"`
	CheckpointFlushInterval string `yaml:"checkpoint_flush_interval"`
}

// FileBackendConfig holds file-backend-specific configurations.
type FileBackendConfig struct {
	Dir                 string `yaml:"dir"`
	Compression         string `yaml:"compression"` // "none", "snappy", "lz4" or "zstd"
	MaxSegmentSizeBytes int64  `yaml:"max_segment_size_bytes"`
	SyncMode            string `yaml:"sync_mode"` // "always" or "disabled"
}

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	Type string            `yaml:"type"` // "file" or "memory"
	File FileBackendConfig `yaml:"file"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// Config is the top-level configuration struct.
type Config struct {
	Manager ManagerConfig `yaml:"manager"`
	Backend BackendConfig `yaml:"backend"`
	Logging LoggingConfig `yaml:"logging"`
}

// ParseDuration parses a duration string. Returns the default duration if the
// string is empty or invalid. Logs a warning if the string is invalid but not
// empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	// Set default values
	cfg := &Config{
		Manager: ManagerConfig{
			SenderID:                defaultSenderID(),
			OrderPreserving:         true,
			ReadPollInterval:        "20ms",
			CheckpointFlushInterval: "500ms",
		},
		Backend: BackendConfig{
			Type: "file",
			File: FileBackendConfig{
				Dir:                 "./logdata",
				Compression:         "snappy",
				MaxSegmentSizeBytes: 64 * 1024 * 1024, // 64 MiB
				SyncMode:            "always",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "nexuslog.log",
		},
	}

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	// If data is empty, return defaults.
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// defaultSenderID derives a stable per-host default so two instances sharing
// a backend are distinguishable even without explicit configuration.
func defaultSenderID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fmt.Sprintf("nexuslog-%d", os.Getpid())
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// NewLogger builds a slog.Logger from the logging section.
func (c LoggingConfig) NewLogger() (*slog.Logger, error) {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", c.Level)
	}

	var w io.Writer
	switch c.Output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	case "none":
		w = io.Discard
	case "file":
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", c.File, err)
		}
		w = f
	default:
		return nil, fmt.Errorf("unknown log output %q", c.Output)
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}
