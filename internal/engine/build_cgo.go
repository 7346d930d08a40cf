//go:build sqlite_cgo

package engine

// This file is compiled when building with CGO and the sqlite_cgo tag.
// It links the C SQLite amalgamation, which is the fastest option for large
// workspaces.
//
// Build command:
//   CGO_ENABLED=1 go build -tags sqlite_cgo ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQL driver the engine opens
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
