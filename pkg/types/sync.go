package types

import "time"

// SyncStatus is the reconciliation state of a tracked external file
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusModified SyncStatus = "modified"
	SyncStatusNew      SyncStatus = "new"
	SyncStatusDeleted  SyncStatus = "deleted"
)

// Valid reports whether s is one of the known statuses
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusSynced, SyncStatusModified, SyncStatusNew, SyncStatusDeleted:
		return true
	}
	return false
}

// SyncMetadata is the bookkeeping row for one tracked external file
type SyncMetadata struct {
	FilePath     string       `json:"file_path" yaml:"file_path"` // Key
	FileHash     string       `json:"file_hash" yaml:"file_hash"` // Hex-encoded SHA-256 of the file content
	ResourceType ResourceType `json:"resource_type" yaml:"resource_type"`
	ResourceID   *string      `json:"resource_id,omitempty" yaml:"resource_id,omitempty"` // Nullable
	LastSyncedAt time.Time    `json:"last_synced_at" yaml:"last_synced_at"`
	SyncStatus   SyncStatus   `json:"sync_status" yaml:"sync_status"`
}

// TrackedFile is what the external file collaborator hands the sync engine:
// a stable path, the raw content and the resource it declares
type TrackedFile struct {
	Path         string       `json:"path" yaml:"path"`
	Content      []byte       `json:"-" yaml:"-"`
	ResourceType ResourceType `json:"resource_type" yaml:"resource_type"`
	ResourceID   string       `json:"resource_id" yaml:"resource_id"`
}
