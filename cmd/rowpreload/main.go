package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"rowpreload/internal/app"
	"rowpreload/internal/config"
	"rowpreload/internal/rowset"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("rowpreload failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// runFlags are the per-invocation flags. Their names carry no section prefix so
// the config loader leaves them alone.
type runFlags struct {
	version *bool
	table   *string
	include *string
	only    *[]string
	except  *[]string
	ids     *[]string
	where   *map[string]string
	orderBy *[]string
	mode    *string
	pretty  *bool
}

func defineRunFlags(fs *pflag.FlagSet) *runFlags {
	return &runFlags{
		version: fs.Bool("version", false, "Print version and exit"),
		table:   fs.StringP("table", "t", "", "Table to load rows from"),
		include: fs.StringP("include", "i", "", "Relations to preload as YAML or JSON (@file reads a file, @- stdin)"),
		only:    fs.StringSlice("only", nil, "Columns or SQL expressions to select"),
		except:  fs.StringSlice("except", nil, "Columns to leave out"),
		ids:     fs.StringSlice("id", nil, "Primary key values to load"),
		where:   fs.StringToString("where", nil, "Column equality conditions (col=value, value null for NULL)"),
		orderBy: fs.StringSlice("order-by", nil, "ORDER BY terms, e.g. \"created_at DESC\""),
		mode:    fs.String("mode", "", "Row representation: map or record (default preload.output_mode)"),
		pretty:  fs.Bool("pretty", false, "Indent JSON output"),
	}
}

func (f *runFlags) request(stdin io.Reader) (app.Request, error) {
	if strings.TrimSpace(*f.table) == "" {
		return app.Request{}, fmt.Errorf("--table is required")
	}
	include, err := readInclude(*f.include, stdin)
	if err != nil {
		return app.Request{}, err
	}
	return app.Request{
		Table:   *f.table,
		Include: include,
		Only:    *f.only,
		Except:  *f.except,
		IDs:     *f.ids,
		Where:   *f.where,
		OrderBy: *f.orderBy,
		Mode:    *f.mode,
	}, nil
}

// readInclude resolves an --include value: inline text, @path or @- for stdin.
func readInclude(value string, stdin io.Reader) (string, error) {
	path, ok := strings.CutPrefix(value, "@")
	if !ok {
		return value, nil
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read include specification: %w", err)
	}
	return string(data), nil
}

func writeRows(w io.Writer, rows []rowset.Row, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(rows)
}

func run() error {
	flags := defineRunFlags(pflag.CommandLine)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if *flags.version {
		fmt.Printf("rowpreload %s (%s)\n", Version, Commit)
		return nil
	}

	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	req, err := flags.request(os.Stdin)
	if err != nil {
		return err
	}

	logger, loggerProvider, err := app.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	a.AttachLoggerProvider(loggerProvider)
	defer func() {
		if err := a.Shutdown(context.Background()); err != nil {
			logger.Warn("shutdown error", slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Init(ctx); err != nil {
		return err
	}

	rows, err := a.Run(ctx, req)
	if err != nil {
		return err
	}
	return writeRows(os.Stdout, rows, *flags.pretty)
}
