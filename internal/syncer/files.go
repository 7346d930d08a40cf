package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/query"
	"github.com/dshills/modelstore/pkg/types"
)

// ErrFileNotTracked is returned for a path with no sync metadata row
var ErrFileNotTracked = errors.New("file is not tracked")

const metadataTable = "sync_metadata"

// ComputeHash returns the hex-encoded SHA-256 digest of content
func ComputeHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// RecordFileSync stores the hash of content for path and marks the file
// synced, replacing any previous row
func (s *Syncer) RecordFileSync(ctx context.Context, path string, resourceType types.ResourceType, resourceID string, content []byte) error {
	return s.upsertMetadata(ctx, s.db, path, ComputeHash(content), resourceType, resourceID, types.SyncStatusSynced)
}

func (s *Syncer) upsertMetadata(ctx context.Context, ex engine.Executor, path, hash string, resourceType types.ResourceType, resourceID string, status types.SyncStatus) error {
	var id any
	if resourceID != "" {
		id = resourceID
	}
	_, err := query.Insert(metadataTable).
		OrReplace().
		Columns("file_path", "file_hash", "resource_type", "resource_id", "last_synced_at", "sync_status").
		AddRow(path, hash, string(resourceType), id, engine.FormatTime(s.now()), string(status)).
		Exec(ctx, ex)
	if err != nil {
		return fmt.Errorf("failed to record sync metadata for %s: %w", path, err)
	}
	return nil
}

// HasFileChanged reports whether content differs from what was last
// recorded for path. An untracked path counts as changed.
func (s *Syncer) HasFileChanged(ctx context.Context, path string, content []byte) (bool, error) {
	meta, err := s.GetFileSync(ctx, path)
	if errors.Is(err, ErrFileNotTracked) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return meta.FileHash != ComputeHash(content), nil
}

// GetFileSync returns the metadata row of path, or ErrFileNotTracked
func (s *Syncer) GetFileSync(ctx context.Context, path string) (*types.SyncMetadata, error) {
	row, err := query.Select(metadataTable).Where("file_path", "=", path).First(ctx, s.db)
	if errors.Is(err, query.ErrNoRows) {
		return nil, ErrFileNotTracked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync metadata: %w", err)
	}
	return metadataFromRow(row), nil
}

// MarkFileModified flags path as changed outside the store. The stored
// hash is left as it was.
func (s *Syncer) MarkFileModified(ctx context.Context, path string) error {
	return s.SetFileStatus(ctx, path, types.SyncStatusModified)
}

// MarkFileDeleted flags path as removed outside the store
func (s *Syncer) MarkFileDeleted(ctx context.Context, path string) error {
	return s.SetFileStatus(ctx, path, types.SyncStatusDeleted)
}

// SetFileStatus changes the status of a tracked file
func (s *Syncer) SetFileStatus(ctx context.Context, path string, status types.SyncStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", types.ErrInvalidSyncStatus, status)
	}
	n, err := setStatus(ctx, s.db, path, status)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", path, ErrFileNotTracked)
	}
	return nil
}

// GetChangedFiles returns every tracked file whose status is not synced,
// ordered by path
func (s *Syncer) GetChangedFiles(ctx context.Context) ([]*types.SyncMetadata, error) {
	rows, err := query.Select(metadataTable).
		Where("sync_status", "!=", string(types.SyncStatusSynced)).
		OrderBy("file_path", "ASC").
		All(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list changed files: %w", err)
	}
	out := make([]*types.SyncMetadata, 0, len(rows))
	for _, row := range rows {
		out = append(out, metadataFromRow(row))
	}
	return out, nil
}

// ReconcileReport lists the paths whose status a ReconcileFiles call set
type ReconcileReport struct {
	New       []string `json:"new,omitempty"`
	Modified  []string `json:"modified,omitempty"`
	Deleted   []string `json:"deleted,omitempty"`
	Unchanged []string `json:"unchanged,omitempty"`
}

// ReconcileFiles compares the complete current set of external files with
// the stored metadata, in one transaction:
//   - untracked files are recorded with status new
//   - files whose hash differs are marked modified, keeping the old hash
//   - tracked paths absent from files are marked deleted
//
// Unchanged files keep their status, except that a file marked deleted
// which reappears with its recorded content is synced again.
func (s *Syncer) ReconcileFiles(ctx context.Context, files []types.TrackedFile) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	res := s.db.Transaction(ctx, func(tx *engine.Tx) error {
		rows, err := query.Select(metadataTable).All(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to read sync metadata: %w", err)
		}
		stored := make(map[string]*types.SyncMetadata, len(rows))
		for _, row := range rows {
			m := metadataFromRow(row)
			stored[m.FilePath] = m
		}

		seen := make(map[string]bool, len(files))
		for _, f := range files {
			seen[f.Path] = true
			hash := ComputeHash(f.Content)
			prev, ok := stored[f.Path]
			switch {
			case !ok:
				if err := s.upsertMetadata(ctx, tx, f.Path, hash, f.ResourceType, f.ResourceID, types.SyncStatusNew); err != nil {
					return err
				}
				report.New = append(report.New, f.Path)
			case prev.FileHash != hash:
				if _, err := setStatus(ctx, tx, f.Path, types.SyncStatusModified); err != nil {
					return err
				}
				report.Modified = append(report.Modified, f.Path)
			case prev.SyncStatus == types.SyncStatusDeleted:
				if _, err := setStatus(ctx, tx, f.Path, types.SyncStatusSynced); err != nil {
					return err
				}
				report.Unchanged = append(report.Unchanged, f.Path)
			default:
				report.Unchanged = append(report.Unchanged, f.Path)
			}
		}

		for _, row := range rows {
			path := row.String("file_path")
			if seen[path] || stored[path].SyncStatus == types.SyncStatusDeleted {
				continue
			}
			if _, err := setStatus(ctx, tx, path, types.SyncStatusDeleted); err != nil {
				return err
			}
			report.Deleted = append(report.Deleted, path)
		}
		return nil
	})
	if !res.Success {
		return nil, res.Err
	}

	s.log.WithFields(logrus.Fields{
		"new":      len(report.New),
		"modified": len(report.Modified),
		"deleted":  len(report.Deleted),
	}).Debug("Reconciled tracked files")
	return report, nil
}

func setStatus(ctx context.Context, ex engine.Executor, path string, status types.SyncStatus) (int64, error) {
	n, err := query.Update(metadataTable).
		Set("sync_status", string(status)).
		Where("file_path", "=", path).
		Exec(ctx, ex)
	if err != nil {
		return 0, fmt.Errorf("failed to update sync status of %s: %w", path, err)
	}
	return n, nil
}

func metadataFromRow(r engine.Row) *types.SyncMetadata {
	return &types.SyncMetadata{
		FilePath:     r.String("file_path"),
		FileHash:     r.String("file_hash"),
		ResourceType: types.ResourceType(r.String("resource_type")),
		ResourceID:   r.NullString("resource_id"),
		LastSyncedAt: r.Time("last_synced_at"),
		SyncStatus:   types.SyncStatus(r.String("sync_status")),
	}
}
