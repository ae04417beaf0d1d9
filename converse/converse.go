// Package converse holds application-level defaults shared across the
// converse-harness packages.
package converse

import (
	"os"
	"path/filepath"
)

const (
	// DefaultAppName is used for config search paths and env prefixes.
	DefaultAppName = "converse"

	// DefaultDatabaseFile is the embedded libsql database file name.
	DefaultDatabaseFile = "conversations.db"

	// DefaultDatabaseType identifies the embedded libsql driver.
	DefaultDatabaseType = "libsql"
)

// DefaultConfigPath is the system-wide config directory.
var DefaultConfigPath = filepath.Join("/etc", DefaultAppName)

// DefaultDataDir is the per-user data directory for embedded databases.
var DefaultDataDir = defaultDataDir()

// DefaultDatabaseDSN points at the embedded database in the data directory.
var DefaultDatabaseDSN = "file:" + filepath.Join(DefaultDataDir, DefaultDatabaseFile)

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+DefaultAppName)
	}
	return filepath.Join(home, "."+DefaultAppName)
}
