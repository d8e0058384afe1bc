package db

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	driverPgx    = "pgx"
	driverSQLite = "sqlite"
)

// driverFor maps a DSN to a database/sql driver name and the data source that
// driver expects.
//
//	postgres://... postgresql://... host=... -> pgx
//	sqlite:path, sqlite://path               -> sqlite (prefix stripped)
//	file:..., *.db, *.sqlite, *.sqlite3      -> sqlite
func driverFor(dsn string) (driver, source string, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", fmt.Errorf("empty DSN")
	}
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		if _, err := url.Parse(dsn); err != nil {
			return "", "", err
		}
		return driverPgx, dsn, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return driverSQLite, dsn[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "sqlite:"):
		return driverSQLite, dsn[len("sqlite:"):], nil
	case strings.HasPrefix(lower, "file:"):
		return driverSQLite, dsn, nil
	}
	path := lower
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(path, ext) {
			return driverSQLite, dsn, nil
		}
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return driverPgx, dsn, nil
	}
	return "", "", fmt.Errorf("unrecognised DSN %q: want postgres://, sqlite: or a .db file", dsn)
}
