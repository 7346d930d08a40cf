package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultInterval is how often a Reconciler syncs when no interval is given
const DefaultInterval = 30 * time.Second

// SnapshotSource produces the current in-memory state of a workspace
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// SnapshotSourceFunc adapts a function to SnapshotSource
type SnapshotSourceFunc func(ctx context.Context) (*Snapshot, error)

func (f SnapshotSourceFunc) Snapshot(ctx context.Context) (*Snapshot, error) {
	return f(ctx)
}

// FileSource reads a snapshot from a YAML document on disk
type FileSource struct {
	Path string
}

// Snapshot decodes the document at Path
func (f FileSource) Snapshot(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", f.Path, err)
	}
	return &snap, nil
}

// Reconciler pulls snapshots from a source and syncs them on a fixed interval
type Reconciler struct {
	syncer   *Syncer
	source   SnapshotSource
	interval time.Duration
	opts     Options
	log      logrus.FieldLogger
}

// NewReconciler creates a Reconciler. A non-positive interval means
// DefaultInterval.
func NewReconciler(s *Syncer, source SnapshotSource, interval time.Duration, opts Options, log logrus.FieldLogger) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconciler{
		syncer:   s,
		source:   source,
		interval: interval,
		opts:     opts,
		log:      log.WithField("component", "reconciler"),
	}
}

// RunOnce performs a single pull and sync
func (r *Reconciler) RunOnce(ctx context.Context) (*Result, error) {
	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return r.syncer.SyncFromMemoryWithOptions(ctx, snap, r.opts), nil
}

// Run syncs immediately and then on every tick until ctx is done. Failed
// runs are logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	res, err := r.RunOnce(ctx)
	switch {
	case err != nil:
		r.log.WithError(err).Warn("Failed to read snapshot")
	case errors.Is(res.Err, ErrSyncInProgress):
		r.log.Debug("Skipping tick, sync already running")
	case !res.Success:
		r.log.WithFields(logrus.Fields{
			"errors": len(res.Errors),
		}).WithError(res.Err).Warn("Sync finished with errors")
	}
}
