// Package dialect captures the few per-store differences the loader cares about:
// identifier quoting, bind placeholder style and the bind parameter limit.
package dialect

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect describes one SQL store family.
type Dialect struct {
	// Name is the canonical dialect name.
	Name string
	// Driver is the database/sql driver name used to open connections.
	Driver      string
	quote       string
	Placeholder sq.PlaceholderFormat
	// MaxInList is the number of bind parameters a single statement may carry, or 0
	// when the store declares no limit. Scope arguments share it with the IN list.
	MaxInList int
}

var (
	// MySQL covers MySQL and TiDB through go-sql-driver/mysql.
	MySQL = Dialect{Name: "mysql", Driver: "mysql", quote: "`", Placeholder: sq.Question}
	// Postgres uses lib/pq. Bind parameters are capped at 65535 per statement.
	Postgres = Dialect{Name: "postgres", Driver: "postgres", quote: `"`, Placeholder: sq.Dollar, MaxInList: 65535}
	// PGX is Postgres through the pgx stdlib driver.
	PGX = Dialect{Name: "postgres", Driver: "pgx", quote: `"`, Placeholder: sq.Dollar, MaxInList: 65535}
	// SQLite uses mattn/go-sqlite3. Its bundled SQLite (3.32+) defaults
	// SQLITE_MAX_VARIABLE_NUMBER to 32766.
	SQLite = Dialect{Name: "sqlite", Driver: "sqlite3", quote: `"`, Placeholder: sq.Question, MaxInList: 32766}
)

// ForDriver returns the dialect for a configured driver name.
func ForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "mysql", "tidb":
		return MySQL, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "pgx":
		return PGX, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// QuoteIdentifier quotes a table or column name, doubling embedded quote characters.
func (d Dialect) QuoteIdentifier(name string) string {
	q := d.quote
	if q == "" {
		q = "`"
	}
	return q + strings.ReplaceAll(name, q, q+q) + q
}
