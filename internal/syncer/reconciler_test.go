package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotYAML = `workspace:
  id: ws1
  name: Sales
domains:
  - id: dom1
    name: orders
tables:
  - id: t_orders
    domain_id: dom1
    name: orders
    tags: [core]
    columns:
      - name: id
        logical_type: uuid
        primary_key: true
      - name: total
        logical_type: decimal
        nullable: true
systems:
  - id: sys1
    domain_id: dom1
    name: crm
    metadata:
      vendor: acme
`

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshotYAML), 0o644))

	snap, err := FileSource{Path: path}.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Sales", snap.Workspace.Name)
	require.Len(t, snap.Tables, 1)
	assert.Equal(t, []string{"core"}, snap.Tables[0].Tags)
	require.Len(t, snap.Tables[0].Columns, 2)
	assert.True(t, snap.Tables[0].Columns[0].PrimaryKey)
	require.Len(t, snap.Systems, 1)
	assert.Equal(t, "acme", snap.Systems[0].Metadata["vendor"])

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestReconciler_RunOnce(t *testing.T) {
	s, adapter := setupTestSyncer(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshotYAML), 0o644))

	r := NewReconciler(s, FileSource{Path: path}, 0, Options{}, quietLogger())
	assert.Equal(t, DefaultInterval, r.interval)

	res, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Stats.Tables.Added)

	table, err := adapter.GetTable(ctx, "t_orders")
	require.NoError(t, err)
	assert.Equal(t, "ws1", table.WorkspaceID)
	assert.Len(t, table.Columns, 2)

	failing := NewReconciler(s, SnapshotSourceFunc(func(context.Context) (*Snapshot, error) {
		return nil, errors.New("source offline")
	}), time.Second, Options{}, quietLogger())
	_, err = failing.RunOnce(ctx)
	assert.EqualError(t, err, "source offline")
}

func TestReconciler_Run(t *testing.T) {
	s, _ := setupTestSyncer(t)
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	source := SnapshotSourceFunc(func(context.Context) (*Snapshot, error) {
		calls.Add(1)
		return testSnapshot(), nil
	})

	r := NewReconciler(s, source, 10*time.Millisecond, Options{}, quietLogger())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}
