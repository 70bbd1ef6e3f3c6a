package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"rowpreload/internal/dialect"
)

// tlsConfigName is the name used to register custom TLS configs with the MySQL driver.
const tlsConfigName = "rowpreload-custom"

// Dialect returns the SQL dialect of the configured driver.
func (d *DatabaseConfig) Dialect() (dialect.Dialect, error) {
	return dialect.ForDriver(d.Driver)
}

// DSN returns the data source name for the configured driver. An explicit
// ConnectionString is used as is, except that MySQL DSNs gain parseTime and UTC
// locations when they do not set them.
func (d *DatabaseConfig) DSN() (string, error) {
	dia, err := d.Dialect()
	if err != nil {
		return "", err
	}
	switch dia.Driver {
	case dialect.MySQL.Driver:
		return d.mysqlDSN()
	case dialect.SQLite.Driver:
		if d.ConnectionString != "" {
			return d.ConnectionString, nil
		}
		return d.Database, nil
	default:
		if d.ConnectionString != "" {
			return d.ConnectionString, nil
		}
		return d.postgresDSN(), nil
	}
}

func (d *DatabaseConfig) mysqlDSN() (string, error) {
	var cfg *mysql.Config
	if d.ConnectionString != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		cfg = parsed
		// ParseDSN cannot tell an explicit parseTime=false from an absent one.
		if !strings.Contains(d.ConnectionString, "parseTime") {
			cfg.ParseTime = true
		}
		if !strings.Contains(d.ConnectionString, "loc=") {
			cfg.Loc = time.UTC
		}
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = d.Database
		cfg.ParseTime = true
		cfg.Loc = time.UTC
	}
	if param := d.mysqlTLSParam(); param != "" && cfg.TLSConfig == "" {
		cfg.TLSConfig = param
	}
	return cfg.FormatDSN(), nil
}

func (d *DatabaseConfig) postgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	query := url.Values{}
	switch d.TLS.Mode {
	case "off":
		query.Set("sslmode", "disable")
	case "skip-verify":
		query.Set("sslmode", "require")
	case "verify-ca", "verify-full":
		query.Set("sslmode", d.TLS.Mode)
	}
	if d.TLS.CAFile != "" {
		query.Set("sslrootcert", d.TLS.CAFile)
	}
	if d.TLS.CertFile != "" && d.TLS.KeyFile != "" {
		query.Set("sslcert", d.TLS.CertFile)
		query.Set("sslkey", d.TLS.KeyFile)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// EffectiveDatabaseName returns the database whose information_schema is
// introspected: database.database, else the one named by the DSN.
func (d *DatabaseConfig) EffectiveDatabaseName() (string, error) {
	configured := strings.TrimSpace(d.Database)
	fromDSN, err := d.dsnDatabaseName()
	if err != nil {
		return "", err
	}
	if configured != "" {
		if fromDSN != "" && fromDSN != configured {
			return "", fmt.Errorf(
				"database mismatch: database.database=%q but database.dsn targets %q",
				configured,
				fromDSN,
			)
		}
		return configured, nil
	}
	if fromDSN != "" {
		return fromDSN, nil
	}
	return "", fmt.Errorf("no database configured: set database.database or include /<database> in database.dsn")
}

func (d *DatabaseConfig) dsnDatabaseName() (string, error) {
	dsn := strings.TrimSpace(d.ConnectionString)
	if dsn == "" {
		return "", nil
	}
	dia, err := d.Dialect()
	if err != nil {
		return "", err
	}
	switch dia.Driver {
	case dialect.MySQL.Driver:
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		return strings.TrimSpace(parsed.DBName), nil
	case dialect.SQLite.Driver:
		path := strings.TrimPrefix(dsn, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		return filepath.Base(path), nil
	default:
		u, err := url.Parse(dsn)
		if err != nil || u.Scheme == "" {
			// key=value connection strings carry dbname explicitly
			for _, field := range strings.Fields(dsn) {
				if name, ok := strings.CutPrefix(field, "dbname="); ok {
					return name, nil
				}
			}
			return "", nil
		}
		return strings.TrimPrefix(u.Path, "/"), nil
	}
}

// mysqlTLSParam returns the tls DSN parameter for the configured mode: the
// registered config name for custom TLS, or empty when no TLS is configured.
func (d *DatabaseConfig) mysqlTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return d.TLS.Mode
	}
}

// RegisterTLS registers a custom TLS configuration with the MySQL driver.
// Must be called before opening the database connection when using verify-ca or
// verify-full with MySQL. Other drivers take TLS settings from the DSN.
func (d *DatabaseConfig) RegisterTLS() error {
	if d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full" {
		return nil
	}
	if dia, err := d.Dialect(); err != nil || dia.Driver != dialect.MySQL.Driver {
		return err
	}

	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

// buildTLSConfig creates a tls.Config from the DatabaseTLSConfig settings.
func (d *DatabaseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if d.TLS.CAFile != "" {
		caCert, err := os.ReadFile(d.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", d.TLS.CAFile, err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", d.TLS.CAFile)
		}
		tlsCfg.RootCAs = certPool
	}

	switch {
	case d.TLS.CertFile != "" && d.TLS.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(d.TLS.CertFile, d.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	case d.TLS.CertFile != "" || d.TLS.KeyFile != "":
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if d.TLS.Mode == "verify-full" {
		tlsCfg.ServerName = d.TLS.ServerName
		if tlsCfg.ServerName == "" {
			tlsCfg.ServerName = d.Host
		}
	} else {
		// verify-ca checks the chain against the CA but not the host name.
		tlsCfg.InsecureSkipVerify = true
		roots := tlsCfg.RootCAs
		tlsCfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return verifyChain(rawCerts, roots)
		}
	}
	return tlsCfg, nil
}

func verifyChain(rawCerts [][]byte, roots *x509.CertPool) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("server presented no certificates")
	}
	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return err
		}
		certs = append(certs, cert)
	}
	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	_, err := certs[0].Verify(x509.VerifyOptions{Roots: roots, Intermediates: intermediates})
	return err
}
