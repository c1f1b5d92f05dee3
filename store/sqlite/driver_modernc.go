//go:build !cgo_sqlite

package sqlite

import (
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// dsn builds the connection string for the pure-Go driver. Foreign key
// enforcement is always on; WAL only applies to on-disk files, so
// in-memory databases keep the default journal mode. modernc encodes
// pragmas as _pragma=key(value) query parameters.
func dsn(path string, wal bool) string {
	s := path + "?_pragma=foreign_keys(1)"
	if wal {
		s += "&_pragma=journal_mode(WAL)"
	}
	return s
}
