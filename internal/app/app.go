// Package app wires configuration, observability, the database and the preloader
// into one load run.
package app

import (
	"database/sql"
	"fmt"
	"sync"

	"rowpreload/internal/config"
	"rowpreload/internal/dialect"
	"rowpreload/internal/introspection"
	"rowpreload/internal/logging"
	"rowpreload/internal/observability"
	"rowpreload/internal/preload"
)

// App owns the runtime resources of a rowpreload invocation.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	dialect           dialect.Dialect
	effectiveDatabase string

	meterProvider  *observability.MeterProvider
	preloadMetrics *observability.PreloadMetrics
	schemaMetrics  *observability.SchemaMetrics
	tracerProvider *observability.TracerProvider

	db     *sql.DB
	schema *introspection.Schema
	loader *preload.Loader

	cleanup cleanupStack

	stateMu     sync.Mutex
	initialized bool

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	d, err := cfg.Database.Dialect()
	if err != nil {
		return nil, err
	}

	var effectiveDatabase string
	if cfg.Schema.Introspect {
		effectiveDatabase, err = cfg.Database.EffectiveDatabaseName()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
		}
	}

	return &App{
		cfg:               cfg,
		logger:            logger,
		dialect:           d,
		effectiveDatabase: effectiveDatabase,
	}, nil
}

// AttachLoggerProvider hands the OTLP logger provider to the app so Shutdown
// flushes it last.
func (a *App) AttachLoggerProvider(lp *observability.LoggerProvider) {
	a.loggerProvider = lp
}

// Schema returns the table catalog built by Init.
func (a *App) Schema() *introspection.Schema {
	return a.schema
}

// RegisterMethod adds a derived per-row value that requests can name in Methods.
// The schema exists only after Init.
func (a *App) RegisterMethod(table, name string, fn introspection.Method) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if a.schema == nil {
		return fmt.Errorf("app is not initialized")
	}
	return a.schema.RegisterMethod(table, name, fn)
}

// Loader returns the loader built by Init.
func (a *App) Loader() *preload.Loader {
	return a.loader
}
