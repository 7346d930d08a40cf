// Package engine bootstraps the embedded SQL engine and serialises all access
// to it through one connection.
//
// # Storage Modes
//
// Initialize asks a Prober whether persistent storage is usable. In
// persistent mode the database lives in a file inside the data directory; if
// that file cannot be opened, Initialize falls back to an in-memory database
// and records a warning instead of failing. The only fatal condition is a
// missing engine runtime (no SQL driver registered).
//
// # Concurrency
//
// Exactly one connection is opened. A single worker goroutine owns it and
// processes requests from a channel, one at a time, in arrival order:
//
//	res := eng.Query(ctx, "SELECT id, name FROM tables WHERE workspace_id = ?", wsID)
//	if !res.Success {
//	    return res.Err
//	}
//	for _, row := range res.Rows {
//	    fmt.Println(row.String("name"))
//	}
//
// Transactions run their body on the worker goroutine, so the body must use
// the Tx it receives and never call back into the Engine:
//
//	res := eng.Transaction(ctx, func(tx *engine.Tx) error {
//	    return tx.Execute(ctx, "DELETE FROM columns WHERE table_id = ?", id).Err
//	})
//
// This layer does not promise isolation between transactions beyond what the
// single worker happens to provide. Contexts only bound the wait to enqueue a
// request; a statement handed to the worker is never aborted.
//
// # Drivers
//
// The driver is selected at build time:
//
//	go build ./...                        # modernc.org/sqlite (pure Go, default)
//	go build -tags sqlite_cgo ./...       # github.com/mattn/go-sqlite3
//	go build -tags sqlite_wasm ./...      # github.com/ncruces/go-sqlite3 (WASM)
package engine
