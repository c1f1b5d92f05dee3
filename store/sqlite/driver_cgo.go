//go:build cgo_sqlite

package sqlite

import (
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

// dsn builds the connection string for the cgo driver. Foreign key
// enforcement is always on; WAL only applies to on-disk files, so
// in-memory databases keep the default journal mode. mattn encodes
// pragmas as _key=value query parameters.
func dsn(path string, wal bool) string {
	s := path + "?_foreign_keys=1"
	if wal {
		s += "&_journal_mode=WAL"
	}
	return s
}
