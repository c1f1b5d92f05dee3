// Package config resolves where the worker keeps its persistent state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDatabaseFile is the database file name used when a request omits
// one. Only one logical database is active per worker, so most callers
// never name the file explicitly.
const DefaultDatabaseFile = "local_db.sqlite3"

// appDir is the subdirectory of the user data directory that holds all
// worker state.
const appDir = "mealframe"

// StorageDirs holds the storage location for the worker:
//
//	{base}/      - storage root
//	{base}/db/   - database files
//
// StorageDirs is immutable after construction. Use NewStorageDirs to create.
// Fields are unexported to prevent construction of invalid instances.
type StorageDirs struct {
	base string // storage root
	db   string // database directory
}

// NewStorageDirs creates StorageDirs rooted at the given base path.
// Returns an error if base is empty or not an absolute path.
func NewStorageDirs(base string) (StorageDirs, error) {
	if base == "" {
		return StorageDirs{}, fmt.Errorf("base path cannot be empty")
	}
	if !filepath.IsAbs(base) {
		return StorageDirs{}, fmt.Errorf("base path must be absolute, got %q", base)
	}
	return StorageDirs{
		base: base,
		db:   filepath.Join(base, "db"),
	}, nil
}

// DefaultStorageDirs returns StorageDirs rooted under the OS user config
// directory.
func DefaultStorageDirs() (StorageDirs, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return StorageDirs{}, fmt.Errorf("resolve user config dir: %w", err)
	}
	return NewStorageDirs(filepath.Join(dir, appDir))
}

// Base returns the storage root.
func (d StorageDirs) Base() string { return d.base }

// DB returns the database directory.
func (d StorageDirs) DB() string { return d.db }

// DatabasePath resolves a database file name to its on-disk path. An empty
// name resolves to DefaultDatabaseFile. Names naming a path rather than a
// plain file are rejected so a request cannot escape the database directory.
func (d StorageDirs) DatabasePath(name string) (string, error) {
	if name == "" {
		name = DefaultDatabaseFile
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid database file name %q", name)
	}
	return filepath.Join(d.db, name), nil
}
