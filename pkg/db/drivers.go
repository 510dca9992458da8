package db

import (
	"fmt"
	"strings"

	// database/sql drivers selectable through StoreConfig.Driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

// dialect holds the statements that differ between drivers.
type dialect struct {
	createTable string
	selectValue string
	upsertValue string
}

func dialectFor(driver, table string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return dialect{
			createTable: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name TEXT PRIMARY KEY,
	value INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, table),
			selectValue: fmt.Sprintf(`SELECT value FROM %s WHERE name = ?`, table),
			upsertValue: fmt.Sprintf(`INSERT INTO %s (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, table),
		}, nil
	case DriverPostgres, DriverPgx:
		return dialect{
			createTable: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name TEXT PRIMARY KEY,
	value BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table),
			selectValue: fmt.Sprintf(`SELECT value FROM %s WHERE name = $1`, table),
			upsertValue: fmt.Sprintf(`INSERT INTO %s (name, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, table),
		}, nil
	default:
		return dialect{}, &Error{Code: "INVALID_CONFIG", Message: "unsupported driver: " + driver}
	}
}

// SQLiteDSN turns a file path into a sqlite3 DSN with the pragmas a
// snapshot store wants. Locations that already carry a query string or are
// in-memory are returned unchanged.
func SQLiteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") || strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL"
}
