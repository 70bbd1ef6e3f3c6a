package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"rowpreload/internal/dialect"
	"rowpreload/internal/introspection"
	"rowpreload/internal/naming"
	"rowpreload/internal/rowset"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Preload.validate(result)
	c.Schema.validate(result, c.Database.Driver)
	validateNamingConfig(result, c.Naming)
	c.Observability.validate(result)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	dia, err := d.Dialect()
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.driver",
			Message: err.Error(),
			Hint:    "valid values are: mysql, postgres, pgx, sqlite3",
		})
		return
	}

	if d.ConnectionString == "" {
		if dia.Driver == dialect.SQLite.Driver {
			if strings.TrimSpace(d.Database) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   "database.database",
					Message: "sqlite3 requires a database file path",
				})
			}
		} else if d.Port < 1 || d.Port > 65535 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.port",
				Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
			})
		}
	} else if dia.Driver == dialect.MySQL.Driver {
		if _, err := d.mysqlDSN(); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.dsn",
				Message: err.Error(),
				Hint:    "use user:pass@tcp(host:port)/database",
			})
		}
	}

	d.TLS.validate(result, dia)

	if d.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if d.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if d.ConnectionTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_timeout",
			Message: "connection_timeout cannot be negative",
		})
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval must be positive when connection_timeout is set",
		})
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: "max_idle is greater than max_open",
			Hint:    "idle connections will be limited to max_open",
		})
	}
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult, dia dialect.Dialect) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.mode",
			Message: fmt.Sprintf("invalid TLS mode %q", t.Mode),
			Hint:    "valid values are: off, skip-verify, verify-ca, verify-full",
		})
	}
	if t.Mode != "" && t.Mode != "off" && dia.Driver == dialect.SQLite.Driver {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.tls.mode",
			Message: "TLS settings are ignored for sqlite3",
		})
	}

	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.ca_file",
			Message: "CA file is required for verify-ca and verify-full modes",
		})
	}
	if (t.CertFile != "") != (t.KeyFile != "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.cert_file",
			Message: "both cert_file and key_file must be specified for client certificate authentication",
			Hint:    "provide both cert_file and key_file, or neither",
		})
	}
	if t.Mode == "skip-verify" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.tls.mode",
			Message: "skip-verify mode does not verify server certificates",
			Hint:    "use verify-ca or verify-full in production",
		})
	}
}

func (p *PreloadConfig) validate(result *ValidationResult) {
	if p.MaxInList < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "preload.max_in_list",
			Message: "max_in_list cannot be negative",
			Hint:    "use 0 for the default of 1000",
		})
	}
	if p.BatchConcurrency < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "preload.batch_concurrency",
			Message: "batch_concurrency cannot be negative",
		})
	}
	if _, err := rowset.ParseMode(p.OutputMode); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "preload.output_mode",
			Message: err.Error(),
			Hint:    "valid values are: map, record",
		})
	}
}

func (s *SchemaConfig) validate(result *ValidationResult, driver string) {
	if s.Introspect {
		if dia, err := dialect.ForDriver(driver); err == nil && dia.Driver != dialect.MySQL.Driver {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "schema.introspect",
				Message: fmt.Sprintf("introspection reads MySQL information_schema and is not available for %s", dia.Driver),
				Hint:    "set schema.introspect=false and declare schema.tables and schema.relations",
			})
		}
	} else if len(s.Tables) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "schema.tables",
			Message: "no schema source: introspection is disabled and no tables are declared",
		})
	}

	validatePatternMap(result, "schema.uuid_columns", s.UUIDColumns)
	validatePatternList(result, "schema.filter.allow_tables", s.Filter.AllowTables)
	validatePatternList(result, "schema.filter.deny_tables", s.Filter.DenyTables)
	validatePatternMap(result, "schema.filter.allow_columns", s.Filter.AllowColumns)
	validatePatternMap(result, "schema.filter.deny_columns", s.Filter.DenyColumns)

	for i, td := range s.Tables {
		if strings.TrimSpace(td.Name) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fmt.Sprintf("schema.tables[%d].name", i),
				Message: "table name cannot be empty",
			})
		}
	}
	for i, rd := range s.Relations {
		field := fmt.Sprintf("schema.relations[%d]", i)
		if strings.TrimSpace(rd.Table) == "" || strings.TrimSpace(rd.Name) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: "relation declarations need a table and a name",
			})
			continue
		}
		kind, err := introspection.ParseRelationKind(rd.Kind, rd.Through != "")
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("relation %s.%s: %v", rd.Table, rd.Name, err),
				Hint:    "valid kinds are: belongs_to, has_many, has_one, has_many_through, has_one_through",
			})
			continue
		}
		if kind.IsThrough() && rd.Through == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".through",
				Message: fmt.Sprintf("relation %s.%s needs a through table", rd.Table, rd.Name),
			})
		}
		if rd.Polymorphic && kind != introspection.DirectReference {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".polymorphic",
				Message: fmt.Sprintf("relation %s.%s: only belongs_to relations can be polymorphic", rd.Table, rd.Name),
			})
		}
	}
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	check := func(field string, overrides map[string]string) {
		for from, to := range overrides {
			if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("override %q -> %q cannot have an empty side", from, to),
				})
			}
		}
	}
	check("naming.plural_overrides", cfg.PluralOverrides)
	check("naming.singular_overrides", cfg.SingularOverrides)
}

func validatePatternList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if _, err := path.Match(strings.ToLower(pattern), "probe"); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid glob pattern %q: %v", pattern, err),
			})
		}
	}
}

func validatePatternMap(result *ValidationResult, field string, patternMap map[string][]string) {
	for tablePattern, columnPatterns := range patternMap {
		if strings.TrimSpace(tablePattern) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: "table pattern cannot be empty",
			})
			continue
		}
		if _, err := path.Match(strings.ToLower(tablePattern), "probe"); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid table glob pattern %q: %v", tablePattern, err),
			})
		}
		for _, columnPattern := range columnPatterns {
			if strings.TrimSpace(columnPattern) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("column pattern for table pattern %q cannot be empty", tablePattern),
				})
				continue
			}
			if _, err := path.Match(strings.ToLower(columnPattern), "probe"); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("invalid column glob pattern %q for table pattern %q: %v", columnPattern, tablePattern, err),
				})
			}
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v is outside [0, 1]", o.TraceSampleRatio),
		})
	}

	if o.MetricsFile != "" && !o.MetricsEnabled {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "observability.metrics_file",
			Message: "metrics_file is set but metrics are disabled",
			Hint:    "enable observability.metrics_enabled to write the textfile",
		})
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".endpoint",
			Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			Hint:    "use host:port or a full URL",
		})
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
