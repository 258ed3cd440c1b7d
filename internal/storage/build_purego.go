//go:build purego || !sqlite_vec

package storage

// Default build: modernc.org/sqlite, a pure Go SQLite with no C toolchain.
// Combined-vector ranking runs as a linear cosine scan in Go, which suits
// corpora of a few thousand profiles.
//
//	CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver registered by modernc.org/sqlite
	DriverName = "sqlite"

	// VectorExtensionAvailable reports whether ranking can run in SQL
	VectorExtensionAvailable = false

	// BuildMode names this storage build
	BuildMode = "purego"
)

// driverDSN adds the busy timeout in the form modernc.org/sqlite reads
func driverDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(" + busyTimeoutMs + ")"
}
