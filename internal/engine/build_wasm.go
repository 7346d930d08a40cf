//go:build sqlite_wasm && !sqlite_cgo

package engine

// This file is compiled with the sqlite_wasm tag. SQLite runs as a WASM
// module inside the process (wazero runtime), isolated from the Go heap.
//
// Build command:
//   go build -tags sqlite_wasm ./...
//
// Driver used: github.com/ncruces/go-sqlite3

import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	// DriverName is the SQL driver the engine opens
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "wasm"
)
