package dbexec

import (
	"database/sql"
	"log/slog"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	// Drivers selectable through configuration.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"rowpreload/internal/dialect"
)

// OpenOptions controls database instrumentation.
type OpenOptions struct {
	Metrics      bool
	Tracing      bool
	SQLCommenter bool
}

// Open opens a connection pool for the dialect's driver. When metrics or tracing
// is enabled the driver is wrapped with otelsql; the returned registration (nil
// otherwise) must be unregistered on shutdown.
func Open(d dialect.Dialect, dsn string, opts OpenOptions, logger *slog.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !opts.Metrics && !opts.Tracing {
		db, err := sql.Open(d.Driver, dsn)
		return db, nil, err
	}

	system := dbSystem(d)
	otelOpts := []otelsql.Option{otelsql.WithAttributes(system)}
	if opts.Tracing {
		otelOpts = append(otelOpts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}
	if opts.SQLCommenter && opts.Tracing {
		otelOpts = append(otelOpts, otelsql.WithSQLCommenter(true))
	} else if opts.SQLCommenter {
		logger.Warn("SQLCommenter requires tracing to be enabled - skipping SQLCommenter")
	}

	db, err := otelsql.Open(d.Driver, dsn, otelOpts...)
	if err != nil {
		return nil, nil, err
	}

	var reg interface{ Unregister() error }
	if opts.Metrics {
		reg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.String("driver", d.Driver),
		slog.Bool("metrics", opts.Metrics),
		slog.Bool("tracing", opts.Tracing),
		slog.Bool("sqlcommenter", opts.SQLCommenter && opts.Tracing),
	)
	return db, reg, nil
}

func dbSystem(d dialect.Dialect) attribute.KeyValue {
	switch d.Name {
	case dialect.Postgres.Name:
		return semconv.DBSystemPostgreSQL
	case dialect.SQLite.Name:
		return semconv.DBSystemSqlite
	default:
		return semconv.DBSystemMySQL
	}
}
