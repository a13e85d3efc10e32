package h5export

import "go.uber.org/zap"

// DefaultCompressionLevel is the GZIP level used for numeric datasets unless
// WithCompression or WithoutCompression says otherwise.
const DefaultCompressionLevel = 6

// maxChunkRows bounds the first chunk dimension of compressed datasets.
const maxChunkRows = 1024

// Option is a functional option for configuring Export.
type Option func(*exportConfig)

// exportConfig holds export options.
type exportConfig struct {
	fields      map[string]struct{} // nil means every field
	useUID      bool
	stream      string
	timestamps  bool
	compression int // 0 disables
	fletcher32  bool
	appendMode  bool
	logger      *zap.Logger
	metrics     *Metrics
}

func newExportConfig(opts []Option) *exportConfig {
	cfg := &exportConfig{
		useUID:      true,
		timestamps:  true,
		compression: DefaultCompressionLevel,
		fletcher32:  true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	return cfg
}

// allowed reports whether field passes the allow-list.
func (c *exportConfig) allowed(field string) bool {
	if c.fields == nil {
		return true
	}
	_, ok := c.fields[field]
	return ok
}

// WithFields restricts the export to the named fields. Fields outside the
// list never produce a dataset. Calling it with no names exports no field
// datasets at all.
func WithFields(names ...string) Option {
	return func(cfg *exportConfig) {
		cfg.fields = make(map[string]struct{}, len(names))
		for _, n := range names {
			cfg.fields[n] = struct{}{}
		}
	}
}

// WithUID selects UID-based group names (the default). With false, runs are
// grouped as "data_<scan_id>" and descriptors by their stream name.
func WithUID(useUID bool) Option {
	return func(cfg *exportConfig) {
		cfg.useUID = useUID
	}
}

// WithStream exports only descriptors whose stream name is name.
func WithStream(name string) Option {
	return func(cfg *exportConfig) {
		cfg.stream = name
	}
}

// WithTimestamps controls whether timestamps/<field> datasets are written.
// Default: true.
func WithTimestamps(enabled bool) Option {
	return func(cfg *exportConfig) {
		cfg.timestamps = enabled
	}
}

// WithCompression stores numeric datasets chunked with GZIP at level (1-9)
// and a Fletcher32 checksum.
func WithCompression(level int) Option {
	return func(cfg *exportConfig) {
		cfg.compression = level
		cfg.fletcher32 = true
	}
}

// WithoutCompression stores every dataset contiguously.
func WithoutCompression() Option {
	return func(cfg *exportConfig) {
		cfg.compression = 0
		cfg.fletcher32 = false
	}
}

// WithAppend opens an existing file for modification instead of truncating.
func WithAppend(enabled bool) Option {
	return func(cfg *exportConfig) {
		cfg.appendMode = enabled
	}
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *exportConfig) {
		cfg.logger = logger
	}
}

// WithMetrics records export counters into m.
func WithMetrics(m *Metrics) Option {
	return func(cfg *exportConfig) {
		cfg.metrics = m
	}
}
