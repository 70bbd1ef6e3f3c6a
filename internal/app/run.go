package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"rowpreload/internal/fetch"
	"rowpreload/internal/introspection"
	"rowpreload/internal/loaderr"
	"rowpreload/internal/logging"
	"rowpreload/internal/preload"
	"rowpreload/internal/relspec"
	"rowpreload/internal/rowset"
	"rowpreload/internal/sqltype"
	"rowpreload/internal/uuidutil"
)

// Request describes one top-level load.
type Request struct {
	Table string
	// Include is a YAML or JSON relation specification.
	Include string
	Only    []string
	Except  []string
	// Methods name table methods registered with App.RegisterMethod.
	Methods []string
	// IDs restricts rows to these primary key values.
	IDs []string
	// Where holds column=value equality conditions.
	Where   map[string]string
	OrderBy []string
	// Mode overrides preload.output_mode when set.
	Mode string
}

// Run loads the requested rows and their relations.
func (a *App) Run(ctx context.Context, req Request) ([]rowset.Row, error) {
	if a.loader == nil {
		return nil, fmt.Errorf("app is not initialized")
	}

	runID := logging.NewRunID()
	logger := a.logger.WithRunID(runID)
	ctx = logging.WithRunIDContext(logging.WithLogger(ctx, logger), runID)

	query, opts, mode, err := a.prepare(req)
	if err != nil {
		return nil, err
	}

	logger.Info("loading rows",
		slog.String("table", query.Table),
		slog.String("mode", mode.String()),
		slog.Int("relations", len(opts.Include.Normalize())),
	)
	rows, err := a.loader.Load(ctx, query, opts, mode)
	if err != nil {
		logger.Error("load failed", slog.String("error", err.Error()))
		return nil, err
	}
	logger.Info("load complete", slog.Int("rows", len(rows)))
	return rows, nil
}

func (a *App) prepare(req Request) (preload.Query, relspec.Options, rowset.Mode, error) {
	modeName := req.Mode
	if modeName == "" {
		modeName = a.cfg.Preload.OutputMode
	}
	mode, err := rowset.ParseMode(modeName)
	if err != nil {
		return preload.Query{}, relspec.Options{}, 0, err
	}

	table := a.schema.Table(req.Table)
	if table == nil {
		return preload.Query{}, relspec.Options{}, 0, loaderr.UnknownEntity(req.Table)
	}

	include, err := relspec.ParseDocument([]byte(req.Include))
	if err != nil {
		return preload.Query{}, relspec.Options{}, 0, err
	}
	opts := relspec.Options{
		Only:    req.Only,
		Except:  req.Except,
		Methods: req.Methods,
		Include: include,
	}

	query := preload.Query{Table: table.Name, OrderBy: req.OrderBy}
	if len(req.IDs) > 0 {
		pk := table.Column(introspection.PrimaryKey(*table))
		if pk == nil {
			return preload.Query{}, relspec.Options{}, 0, &loaderr.ConfigurationError{
				Entity: table.Name,
				Reason: "table has no primary key to filter ids on",
			}
		}
		values := make([]any, 0, len(req.IDs))
		for _, raw := range req.IDs {
			v, err := parseColumnValue(pk, raw)
			if err != nil {
				return preload.Query{}, relspec.Options{}, 0, err
			}
			values = append(values, v)
		}
		query.Filter = &fetch.InFilter{Column: pk.Name, Values: values}
	}
	if len(req.Where) > 0 {
		query.Scope = make(map[string]any, len(req.Where))
		for column, raw := range req.Where {
			col := table.Column(column)
			if col == nil {
				return preload.Query{}, relspec.Options{}, 0, &loaderr.ConfigurationError{
					Entity: table.Name,
					Value:  column,
					Reason: "unknown column",
				}
			}
			v, err := parseColumnValue(col, raw)
			if err != nil {
				return preload.Query{}, relspec.Options{}, 0, err
			}
			query.Scope[col.Name] = v
		}
	}
	return query, opts, mode, nil
}

// parseColumnValue converts a command-line value to the Go type the column's
// driver expects. "null" selects NULL.
func parseColumnValue(col *introspection.Column, raw string) (any, error) {
	if strings.EqualFold(raw, "null") {
		return nil, nil
	}
	var (
		v   any
		err error
	)
	switch col.Type() {
	case sqltype.TypeInt:
		v, err = cast.ToInt64E(raw)
	case sqltype.TypeFloat:
		v, err = cast.ToFloat64E(raw)
	case sqltype.TypeBoolean:
		v, err = cast.ToBoolE(raw)
	case sqltype.TypeUUID:
		var (
			id        uuid.UUID
			canonical string
		)
		id, canonical, err = uuidutil.ParseString(raw)
		if uuidutil.IsBinaryStorageType(col.DataType) {
			v = uuidutil.ToBytes(id)
		} else {
			v = canonical
		}
	default:
		v = raw
	}
	if err != nil {
		return nil, &loaderr.ConfigurationError{
			Entity: col.Name,
			Value:  raw,
			Reason: fmt.Sprintf("not a valid %s value", col.Type()),
		}
	}
	return v, nil
}
