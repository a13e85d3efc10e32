package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/scigolib/h5export"
	"github.com/scigolib/h5export/broker"
	"github.com/scigolib/h5export/broker/badgerstore"
	"github.com/scigolib/h5export/broker/sqlitestore"
	"github.com/scigolib/h5export/internal/config"
	"github.com/scigolib/h5export/internal/logging"
)

// environment is what the store-backed commands share.
type environment struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    broker.Store
	registry *prometheus.Registry
	metrics  *h5export.Metrics
}

func newEnvironment(ctx context.Context, a *arguments) (*environment, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, errors.WithMessage(err, "could not create logger")
	}

	store, err := openStore(ctx, &cfg.Broker, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	return &environment{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: reg,
		metrics:  h5export.NewMetrics(reg),
	}, nil
}

// openStore opens the configured broker backend.
func openStore(ctx context.Context, cfg *config.BrokerConfig, logger *zap.Logger) (broker.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return broker.NewMemory(), nil
	case config.BackendSQLite:
		store, err := sqlitestore.Open(ctx, &sqlitestore.Config{
			Path:        cfg.Path,
			BusyTimeout: cfg.BusyTimeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, errors.WithMessage(err, "could not open sqlite store")
		}
		return store, nil
	case config.BackendBadger:
		store, err := badgerstore.Open(cfg.Path)
		if err != nil {
			return nil, errors.WithMessage(err, "could not open badger store")
		}
		return store, nil
	}
	return nil, errors.Errorf("unknown broker backend %q", cfg.Backend)
}

// flushMetrics writes the registry to the configured textfile, if any.
func (e *environment) flushMetrics() error {
	path := e.cfg.Metrics.Textfile
	if path == "" {
		return nil
	}
	return errors.WithMessagef(prometheus.WriteToTextfile(path, e.registry), "could not write metrics to %s", path)
}

func (e *environment) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("closing store", zap.Error(err))
	}
	_ = e.logger.Sync()
}
