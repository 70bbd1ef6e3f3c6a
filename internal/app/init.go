package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"rowpreload/internal/dbexec"
	"rowpreload/internal/fetch/sqlfetch"
	"rowpreload/internal/naming"
	"rowpreload/internal/preload"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	meterProvider, preloadMetrics, schemaMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	a.logger.Info("connecting to database",
		slog.String("driver", a.dialect.Driver),
		slog.String("host", a.cfg.Database.Host),
		slog.String("database", a.cfg.Database.Database),
		slog.Bool("dsn_present", a.cfg.Database.ConnectionString != ""),
	)

	db, dbStatsReg, err := connectDB(a.cfg, a.dialect, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(_ context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}

	a.meterProvider = meterProvider
	a.preloadMetrics = preloadMetrics
	a.schemaMetrics = schemaMetrics
	a.tracerProvider = tracerProvider

	if err := a.attach(ctx, db); err != nil {
		return err
	}

	a.stateMu.Lock()
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()
	success = true
	return nil
}

// attach builds the schema over db and the loader that reads through it.
func (a *App) attach(ctx context.Context, db *sql.DB) error {
	namer := naming.New(a.cfg.Naming, a.logger.Logger)

	source := "declarations"
	if a.cfg.Schema.Introspect {
		source = "introspection"
	}
	start := time.Now()
	schema, err := buildSchema(ctx, a.cfg, db, a.effectiveDatabase, namer)
	if err != nil {
		a.schemaMetrics.RecordBuild(ctx, time.Since(start), source, false, 0, 0)
		return fmt.Errorf("failed to build schema: %w", err)
	}
	relations := 0
	for _, table := range schema.Tables {
		relations += len(table.Relationships)
	}
	a.schemaMetrics.RecordBuild(ctx, time.Since(start), source, true, len(schema.Tables), relations)
	a.logger.Info("schema ready",
		slog.String("source", source),
		slog.Int("tables", len(schema.Tables)),
		slog.Int("relations", relations),
	)

	fetcher := sqlfetch.New(dbexec.NewStandardExecutor(db), a.dialect, a.logger.Logger)
	a.db = db
	a.schema = schema
	a.loader = preload.NewLoader(preload.New(schema, fetcher, preload.Config{
		MaxInList:        a.cfg.Preload.MaxInList,
		BatchConcurrency: a.cfg.Preload.BatchConcurrency,
		Namer:            namer,
		Logger:           a.logger.Logger,
		Metrics:          a.preloadMetrics,
	}))
	return nil
}
