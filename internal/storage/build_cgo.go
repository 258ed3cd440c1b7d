//go:build sqlite_vec && !purego

package storage

// Built with -tags sqlite_vec: github.com/mattn/go-sqlite3 with the sqlite-vec
// extension loaded, so vec_distance_cosine ranks combined vectors in SQL.
// Recommended for large developer and project corpora.
//
//	CGO_ENABLED=1 go build -tags sqlite_vec ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver registered by go-sqlite3
	DriverName = "sqlite3"

	// VectorExtensionAvailable reports whether ranking can run in SQL
	VectorExtensionAvailable = true

	// BuildMode names this storage build
	BuildMode = "cgo"
)

// driverDSN adds the busy timeout in the form go-sqlite3 reads
func driverDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_busy_timeout=" + busyTimeoutMs
}
