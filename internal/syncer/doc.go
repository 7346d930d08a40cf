// Package syncer reconciles the model held in memory, and the external files
// it is saved to, with the embedded store.
//
// # Entities
//
// SyncFromMemory writes a Snapshot entity by entity. A failing entity is
// recorded as a SyncError and the run continues; the Result is successful
// only when nothing failed. Only one run may be active at a time, a second
// caller gets ErrSyncInProgress in Result.Err.
//
//	res := s.SyncFromMemory(ctx, &syncer.Snapshot{Workspace: ws, Tables: tables})
//	if !res.Success {
//	    for _, e := range res.Errors {
//	        log.Printf("%s %s: %v", e.EntityType, e.EntityID, e.Err)
//	    }
//	}
//
// LoadFromDatabase goes the other way and returns nil for an unknown
// workspace.
//
// # Files
//
// Each tracked external file has one sync_metadata row holding the SHA-256
// of its content at the last sync. RecordFileSync marks a file synced,
// HasFileChanged compares content against the stored hash and
// GetChangedFiles returns the files still waiting to be reconciled.
//
// A Watcher marks tracked files modified or deleted as the file system
// reports changes. A Reconciler re-syncs a SnapshotSource periodically.
package syncer
