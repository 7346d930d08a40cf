package syncer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/modelstore/pkg/types"
)

func TestComputeHash(t *testing.T) {
	// SHA-256 of the empty input
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeHash(nil))
	assert.Equal(t, ComputeHash([]byte("orders")), ComputeHash([]byte("orders")))
	assert.NotEqual(t, ComputeHash([]byte("orders")), ComputeHash([]byte("orders ")))
}

func TestComputeHash_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	content := gen.SliceOf(gen.UInt8())

	properties.Property("hash is deterministic", prop.ForAll(
		func(c []byte) bool {
			return ComputeHash(c) == ComputeHash(bytes.Clone(c))
		},
		content,
	))

	properties.Property("hash is 64 hex characters", prop.ForAll(
		func(c []byte) bool {
			h := ComputeHash(c)
			if len(h) != 64 {
				return false
			}
			for _, r := range h {
				if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
					return false
				}
			}
			return true
		},
		content,
	))

	properties.Property("distinct content hashes differently", prop.ForAll(
		func(a, b []byte) bool {
			if bytes.Equal(a, b) {
				return ComputeHash(a) == ComputeHash(b)
			}
			return ComputeHash(a) != ComputeHash(b)
		},
		content, content,
	))

	properties.TestingRun(t)
}

func TestRecordFileSync(t *testing.T) {
	s, _ := setupTestSyncer(t)
	ctx := context.Background()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	content := []byte("name: orders\n")
	require.NoError(t, s.RecordFileSync(ctx, "tables/orders.yaml", types.ResourceTable, "t_orders", content))

	meta, err := s.GetFileSync(ctx, "tables/orders.yaml")
	require.NoError(t, err)
	assert.Equal(t, &types.SyncMetadata{
		FilePath:     "tables/orders.yaml",
		FileHash:     ComputeHash(content),
		ResourceType: types.ResourceTable,
		ResourceID:   func() *string { s := "t_orders"; return &s }(),
		LastSyncedAt: fixed,
		SyncStatus:   types.SyncStatusSynced,
	}, meta)

	t.Run("one row per path", func(t *testing.T) {
		require.NoError(t, s.RecordFileSync(ctx, "tables/orders.yaml", types.ResourceTable, "t_orders", []byte("v2")))
		res := s.db.Query(ctx, "SELECT COUNT(*) AS n FROM sync_metadata WHERE file_path = ?", "tables/orders.yaml")
		require.NoError(t, res.Err)
		assert.Equal(t, int64(1), res.Rows[0].Int64("n"))
	})

	t.Run("empty resource id is null", func(t *testing.T) {
		require.NoError(t, s.RecordFileSync(ctx, "workspace.yaml", types.ResourceWorkspace, "", []byte("x")))
		meta, err := s.GetFileSync(ctx, "workspace.yaml")
		require.NoError(t, err)
		assert.Nil(t, meta.ResourceID)
	})
}

func TestHasFileChanged(t *testing.T) {
	s, _ := setupTestSyncer(t)
	ctx := context.Background()
	content := []byte("name: orders\n")

	changed, err := s.HasFileChanged(ctx, "orders.yaml", content)
	require.NoError(t, err)
	assert.True(t, changed, "untracked file counts as changed")

	require.NoError(t, s.RecordFileSync(ctx, "orders.yaml", types.ResourceTable, "t1", content))

	changed, err = s.HasFileChanged(ctx, "orders.yaml", content)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.HasFileChanged(ctx, "orders.yaml", []byte("name: orders2\n"))
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestMarkFileModified(t *testing.T) {
	s, _ := setupTestSyncer(t)
	ctx := context.Background()
	content := []byte("a")

	require.NoError(t, s.RecordFileSync(ctx, "a.yaml", types.ResourceTable, "t1", content))
	require.NoError(t, s.RecordFileSync(ctx, "b.yaml", types.ResourceTable, "t2", content))
	require.NoError(t, s.MarkFileModified(ctx, "a.yaml"))

	meta, err := s.GetFileSync(ctx, "a.yaml")
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusModified, meta.SyncStatus)
	assert.Equal(t, ComputeHash(content), meta.FileHash, "hash is not recomputed")

	changed, err := s.GetChangedFiles(ctx)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "a.yaml", changed[0].FilePath)

	assert.ErrorIs(t, s.MarkFileModified(ctx, "missing.yaml"), ErrFileNotTracked)
	assert.ErrorIs(t, s.SetFileStatus(ctx, "a.yaml", "stale"), types.ErrInvalidSyncStatus)

	_, err = s.GetFileSync(ctx, "missing.yaml")
	assert.ErrorIs(t, err, ErrFileNotTracked)
}

func TestReconcileFiles(t *testing.T) {
	s, _ := setupTestSyncer(t)
	ctx := context.Background()

	require.NoError(t, s.RecordFileSync(ctx, "same.yaml", types.ResourceTable, "t1", []byte("same")))
	require.NoError(t, s.RecordFileSync(ctx, "edit.yaml", types.ResourceTable, "t2", []byte("before")))
	require.NoError(t, s.RecordFileSync(ctx, "gone.yaml", types.ResourceTable, "t3", []byte("gone")))

	report, err := s.ReconcileFiles(ctx, []types.TrackedFile{
		{Path: "same.yaml", Content: []byte("same"), ResourceType: types.ResourceTable, ResourceID: "t1"},
		{Path: "edit.yaml", Content: []byte("after"), ResourceType: types.ResourceTable, ResourceID: "t2"},
		{Path: "added.yaml", Content: []byte("new"), ResourceType: types.ResourceSystem, ResourceID: "s1"},
	})
	require.NoError(t, err)
	assert.Equal(t, &ReconcileReport{
		New:       []string{"added.yaml"},
		Modified:  []string{"edit.yaml"},
		Deleted:   []string{"gone.yaml"},
		Unchanged: []string{"same.yaml"},
	}, report)

	changed, err := s.GetChangedFiles(ctx)
	require.NoError(t, err)
	statuses := map[string]types.SyncStatus{}
	for _, m := range changed {
		statuses[m.FilePath] = m.SyncStatus
	}
	assert.Equal(t, map[string]types.SyncStatus{
		"added.yaml": types.SyncStatusNew,
		"edit.yaml":  types.SyncStatusModified,
		"gone.yaml":  types.SyncStatusDeleted,
	}, statuses)

	edit, err := s.GetFileSync(ctx, "edit.yaml")
	require.NoError(t, err)
	assert.Equal(t, ComputeHash([]byte("before")), edit.FileHash)

	t.Run("deleted file comes back unchanged", func(t *testing.T) {
		report, err := s.ReconcileFiles(ctx, []types.TrackedFile{
			{Path: "gone.yaml", Content: []byte("gone"), ResourceType: types.ResourceTable, ResourceID: "t3"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"gone.yaml"}, report.Unchanged)

		meta, err := s.GetFileSync(ctx, "gone.yaml")
		require.NoError(t, err)
		assert.Equal(t, types.SyncStatusSynced, meta.SyncStatus)
	})
}
