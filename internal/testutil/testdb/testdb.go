// Package testdb provisions throwaway databases for end-to-end tests.
package testdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// TestDB is an isolated database that is dropped when the test finishes.
type TestDB struct {
	DB           *sql.DB
	Driver       string
	DatabaseName string
	// Path is the database file for sqlite3.
	Path string
	// Config describes the MySQL server the database lives on.
	Config *mysql.Config

	admin *sql.DB
}

// NewSQLite opens a file-backed SQLite database in the test's temp directory.
func NewSQLite(t *testing.T) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), sanitizeName(t.Name())+".db")
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open sqlite database: %v", err)
	}
	// A single connection keeps writes and reads on the same handle.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to ping sqlite database: %v", err)
	}

	testDB := &TestDB{DB: db, Driver: "sqlite3", DatabaseName: "main", Path: path}
	t.Cleanup(func() {
		testDB.Teardown(t)
	})
	return testDB
}

// NewMySQL creates a uniquely named database on the server named by
// RPL_TEST_MYSQL_HOST, RPL_TEST_MYSQL_USER and RPL_TEST_MYSQL_PASSWORD. The test
// is skipped when those are not set.
func NewMySQL(t *testing.T) *TestDB {
	t.Helper()

	cfg := mysqlConfigFromEnv(t)
	dbName := fmt.Sprintf("rpl_%s_%d", sanitizeName(t.Name()), time.Now().UnixMilli())
	if !isValidDatabaseName(dbName) {
		t.Fatalf("Invalid database name generated: %s", dbName)
	}

	admin, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		t.Fatalf("Failed to connect to MySQL: %v", err)
	}
	configureTestPool(admin)
	if err := admin.Ping(); err != nil {
		_ = admin.Close()
		t.Fatalf("Failed to ping MySQL: %v", err)
	}

	// Safe to format: dbName is validated above.
	if _, err := admin.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName)); err != nil {
		_ = admin.Close()
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}

	dbCfg := cfg.Clone()
	dbCfg.DBName = dbName
	db, err := sql.Open("mysql", dbCfg.FormatDSN())
	if err != nil {
		_ = admin.Close()
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	configureTestPool(db)

	testDB := &TestDB{DB: db, Driver: "mysql", DatabaseName: dbName, Config: dbCfg, admin: admin}
	t.Cleanup(func() {
		testDB.Teardown(t)
	})
	return testDB
}

// Teardown closes the connection and drops the MySQL database if one was created.
func (tdb *TestDB) Teardown(t *testing.T) {
	t.Helper()

	if tdb.DB != nil {
		if err := tdb.DB.Close(); err != nil {
			t.Logf("Warning: failed to close test database connection: %v", err)
		}
	}
	if tdb.admin != nil {
		if isValidDatabaseName(tdb.DatabaseName) {
			if _, err := tdb.admin.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", tdb.DatabaseName)); err != nil {
				t.Logf("Warning: failed to drop test database %s: %v", tdb.DatabaseName, err)
			}
		}
		if err := tdb.admin.Close(); err != nil {
			t.Logf("Warning: failed to close admin connection: %v", err)
		}
	}
}

// Exec runs a semicolon separated script against the test database.
func (tdb *TestDB) Exec(t *testing.T, script string) {
	t.Helper()
	execScript(t, tdb.DB, script)
}

// LoadSQLFile runs the statements in a SQL file against the test database.
func (tdb *TestDB) LoadSQLFile(t *testing.T, filePath string) {
	t.Helper()

	payload, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read SQL file %s: %v", filePath, err)
	}
	execScript(t, tdb.DB, string(payload))
}

func execScript(t *testing.T, db *sql.DB, script string) {
	t.Helper()

	for i, stmt := range splitSQL(script) {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to execute SQL statement %d: %v\nStatement: %s", i+1, err, stmt)
		}
	}
}

func mysqlConfigFromEnv(t *testing.T) *mysql.Config {
	t.Helper()

	host := os.Getenv("RPL_TEST_MYSQL_HOST")
	user := os.Getenv("RPL_TEST_MYSQL_USER")
	password := os.Getenv("RPL_TEST_MYSQL_PASSWORD")
	if host == "" || user == "" {
		t.Skip("MySQL credentials not set. Set RPL_TEST_MYSQL_HOST, RPL_TEST_MYSQL_USER and RPL_TEST_MYSQL_PASSWORD to run these tests")
	}
	port := os.Getenv("RPL_TEST_MYSQL_PORT")
	if port == "" {
		port = "3306"
	}

	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = host + ":" + port
	cfg.DBName = "information_schema"
	cfg.ParseTime = true
	cfg.TLSConfig = os.Getenv("RPL_TEST_MYSQL_TLS")
	return cfg
}

func configureTestPool(db *sql.DB) {
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
}

// sanitizeName makes a test name safe for use as a database or file name.
func sanitizeName(name string) string {
	var result strings.Builder
	for _, ch := range name {
		if isValidDatabaseChar(ch) {
			result.WriteRune(ch)
		} else {
			result.WriteRune('_')
		}
	}

	sanitized := result.String()
	// Leave room for the prefix and timestamp within MySQL's 64 characters.
	if len(sanitized) > 40 {
		sanitized = sanitized[:40]
	}
	return sanitized
}

// splitSQL splits on semicolons. It doesn't handle semicolons inside strings or comments.
func splitSQL(script string) []string {
	statements := strings.Split(script, ";")
	result := make([]string, 0, len(statements))
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}

func isValidDatabaseName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, ch := range name {
		if !isValidDatabaseChar(ch) {
			return false
		}
	}
	return true
}

func isValidDatabaseChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '_'
}
