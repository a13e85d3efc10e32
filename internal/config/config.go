// Package config loads the h5export command configuration from YAML with
// environment overrides.
package config

import "time"

// Broker backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config is the root configuration.
type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// BrokerConfig selects the store runs are read from.
type BrokerConfig struct {
	// Backend is one of "memory", "sqlite" or "badger".
	Backend string `yaml:"backend"`

	// Path is the SQLite file or Badger directory. Empty opens the store
	// in memory.
	Path string `yaml:"path"`

	// BusyTimeout applies to the SQLite backend.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// ExportConfig holds the export defaults. Pointer fields distinguish unset
// from an explicit false or zero.
type ExportConfig struct {
	Output      string   `yaml:"output"`
	Fields      []string `yaml:"fields"`
	Exclude     []string `yaml:"exclude"`
	UseUID      *bool    `yaml:"use_uid"`
	Stream      string   `yaml:"stream"`
	Timestamps  *bool    `yaml:"timestamps"`
	Compression *int     `yaml:"compression"`
	Append      bool     `yaml:"append"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// MetricsConfig configures metric output.
type MetricsConfig struct {
	// Textfile, when set, receives the export metrics in Prometheus text
	// format after each command.
	Textfile string `yaml:"textfile"`
}
