package service

import (
	"soundmark/internal/fingerprint"
	"soundmark/internal/storage"
	"soundmark/pkg/logger"
)

type config struct {
	DBPath string
	Store  Store
	Logger *logger.Logger
	Engine fingerprint.SpectrumEngine
}

type Option func(*config)

// WithDBPath sets the SQLite catalog path used when no Store is supplied.
func WithDBPath(path string) Option {
	return func(c *config) {
		c.DBPath = path
	}
}

// WithStore supplies a pre-opened store; the service will not close it.
func WithStore(store Store) Option {
	return func(c *config) {
		c.Store = store
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *config) {
		c.Logger = log
	}
}

// WithSpectrumEngine substitutes the power-spectrum implementation used by
// the pipeline (the default is the CPU path).
func WithSpectrumEngine(eng fingerprint.SpectrumEngine) Option {
	return func(c *config) {
		c.Engine = eng
	}
}

func defaultConfig() *config {
	return &config{
		DBPath: storage.DefaultDBFile,
		Logger: logger.GetLogger(),
	}
}
