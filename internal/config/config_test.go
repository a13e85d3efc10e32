package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "h5export.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
broker:
  backend: badger
  path: /var/lib/runs
export:
  output: out.h5
  fields: [Tsam, point_det]
  use_uid: false
  timestamps: false
  compression: 0
logging:
  level: debug
  format: json
metrics:
  textfile: /tmp/h5export.prom
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendBadger, cfg.Broker.Backend)
	assert.Equal(t, "/var/lib/runs", cfg.Broker.Path)
	assert.Equal(t, DefaultBusyTimeout, cfg.Broker.BusyTimeout)
	assert.Equal(t, "out.h5", cfg.Export.Output)
	assert.Equal(t, []string{"Tsam", "point_det"}, cfg.Export.Fields)
	assert.False(t, *cfg.Export.UseUID)
	assert.False(t, *cfg.Export.Timestamps)
	assert.Equal(t, 0, *cfg.Export.Compression)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/tmp/h5export.prom", cfg.Metrics.Textfile)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultBackend, cfg.Broker.Backend)
	assert.Equal(t, DefaultBrokerPath, cfg.Broker.Path)
	assert.Equal(t, DefaultOutput, cfg.Export.Output)
	assert.True(t, *cfg.Export.UseUID)
	assert.True(t, *cfg.Export.Timestamps)
	assert.Equal(t, DefaultCompression, *cfg.Export.Compression)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
}

func TestLoad_ExplicitBackendKeepsEmptyPath(t *testing.T) {
	cfg, err := Load(writeConfig(t, "broker:\n  backend: sqlite\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Broker.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "export:\n  output: file.h5\n")
	t.Setenv("H5EXPORT_BROKER_BACKEND", "memory")
	t.Setenv("H5EXPORT_BROKER_PATH", "")
	t.Setenv("H5EXPORT_BROKER_BUSY_TIMEOUT", "2s")
	t.Setenv("H5EXPORT_EXPORT_OUTPUT", "env.h5")
	t.Setenv("H5EXPORT_EXPORT_EXCLUDE", "point_det, ,Tsam")
	t.Setenv("H5EXPORT_EXPORT_USE_UID", "false")
	t.Setenv("H5EXPORT_EXPORT_COMPRESSION", "9")
	t.Setenv("H5EXPORT_EXPORT_APPEND", "true")
	t.Setenv("H5EXPORT_LOG_LEVEL", "warn")
	t.Setenv("H5EXPORT_EXPORT_TIMESTAMPS", "not-a-bool")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Broker.Backend)
	assert.Empty(t, cfg.Broker.Path)
	assert.Equal(t, 2*time.Second, cfg.Broker.BusyTimeout)
	assert.Equal(t, "env.h5", cfg.Export.Output)
	assert.Equal(t, []string{"point_det", "Tsam"}, cfg.Export.Exclude)
	assert.False(t, *cfg.Export.UseUID)
	assert.Equal(t, 9, *cfg.Export.Compression)
	assert.True(t, cfg.Export.Append)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, *cfg.Export.Timestamps, "unparsable override is ignored")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "broker: [not, a, map]\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{"valid", func(*Config) {}, nil},
		{"unknown backend", func(c *Config) { c.Broker.Backend = "postgres" }, []string{"broker.backend"}},
		{"memory with path", func(c *Config) { c.Broker.Backend = BackendMemory }, []string{"broker.path"}},
		{"negative timeout", func(c *Config) { c.Broker.BusyTimeout = -time.Second }, []string{"broker.busy_timeout"}},
		{"fields and exclude", func(c *Config) {
			c.Export.Fields = []string{"a"}
			c.Export.Exclude = []string{"b"}
		}, []string{"export.exclude"}},
		{"compression range", func(c *Config) { c.Export.Compression = intPtr(10) }, []string{"export.compression"}},
		{"stream with slash", func(c *Config) { c.Export.Stream = "a/b" }, []string{"export.stream"}},
		{"logging", func(c *Config) {
			c.Logging.Level = "trace"
			c.Logging.Format = "xml"
		}, []string{"logging.level", "logging.format"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			ApplyDefaults(&cfg)
			tt.mutate(&cfg)

			err := Validate(&cfg)
			if tt.fields == nil {
				require.NoError(t, err)
				return
			}
			var verr ValidationError
			require.True(t, errors.As(err, &verr))
			got := make([]string, len(verr.Errors))
			for i, fe := range verr.Errors {
				got[i] = fe.Field
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	one := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	assert.Equal(t, "configuration validation failed: a: bad", one.Error())

	two := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	assert.Contains(t, two.Error(), "with 2 errors")
	assert.Contains(t, two.Error(), "  - b: worse\n")
}
