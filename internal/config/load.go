package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values.
const (
	DefaultBackend     = BackendSQLite
	DefaultBrokerPath  = "h5export.db"
	DefaultBusyTimeout = 5 * time.Second
	DefaultOutput      = "export.h5"
	DefaultCompression = 6
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
)

// Load reads the YAML file at path, applies defaults and H5EXPORT_*
// environment overrides, then validates. An empty path starts from
// defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field.
func ApplyDefaults(cfg *Config) {
	if cfg.Broker.Backend == "" {
		cfg.Broker.Backend = DefaultBackend
		if cfg.Broker.Path == "" {
			cfg.Broker.Path = DefaultBrokerPath
		}
	}
	if cfg.Broker.BusyTimeout == 0 {
		cfg.Broker.BusyTimeout = DefaultBusyTimeout
	}

	if cfg.Export.Output == "" {
		cfg.Export.Output = DefaultOutput
	}
	if cfg.Export.UseUID == nil {
		cfg.Export.UseUID = boolPtr(true)
	}
	if cfg.Export.Timestamps == nil {
		cfg.Export.Timestamps = boolPtr(true)
	}
	if cfg.Export.Compression == nil {
		cfg.Export.Compression = intPtr(DefaultCompression)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// applyEnvOverrides applies H5EXPORT_SECTION_FIELD variables. Values that
// fail to parse are ignored.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("H5EXPORT_BROKER_BACKEND"); val != "" {
		cfg.Broker.Backend = val
	}
	if val, ok := os.LookupEnv("H5EXPORT_BROKER_PATH"); ok {
		cfg.Broker.Path = val
	}
	if val := os.Getenv("H5EXPORT_BROKER_BUSY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Broker.BusyTimeout = d
		}
	}

	if val := os.Getenv("H5EXPORT_EXPORT_OUTPUT"); val != "" {
		cfg.Export.Output = val
	}
	if val := os.Getenv("H5EXPORT_EXPORT_FIELDS"); val != "" {
		cfg.Export.Fields = splitList(val)
	}
	if val := os.Getenv("H5EXPORT_EXPORT_EXCLUDE"); val != "" {
		cfg.Export.Exclude = splitList(val)
	}
	if val := os.Getenv("H5EXPORT_EXPORT_USE_UID"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Export.UseUID = boolPtr(b)
		}
	}
	if val := os.Getenv("H5EXPORT_EXPORT_STREAM"); val != "" {
		cfg.Export.Stream = val
	}
	if val := os.Getenv("H5EXPORT_EXPORT_TIMESTAMPS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Export.Timestamps = boolPtr(b)
		}
	}
	if val := os.Getenv("H5EXPORT_EXPORT_COMPRESSION"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Export.Compression = intPtr(i)
		}
	}
	if val := os.Getenv("H5EXPORT_EXPORT_APPEND"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Export.Append = b
		}
	}

	if val := os.Getenv("H5EXPORT_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("H5EXPORT_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("H5EXPORT_METRICS_TEXTFILE"); val != "" {
		cfg.Metrics.Textfile = val
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }
