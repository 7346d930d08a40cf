package syncer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/dshills/modelstore/pkg/types"
)

// Watcher follows a workspace directory and flags tracked files that change
// or disappear. Tracked paths are relative to the root, slash separated.
// Files that were never recorded are ignored.
type Watcher struct {
	syncer *Syncer
	root   string
	fsw    *fsnotify.Watcher
	log    logrus.FieldLogger
}

// NewWatcher watches root and every directory below it
func NewWatcher(s *Syncer, root string, log logrus.FieldLogger) (*Watcher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		syncer: s,
		root:   abs,
		fsw:    fsw,
		log:    log.WithFields(logrus.Fields{"component": "watcher", "root": abs}),
	}
	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run processes events until ctx is done or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()
	w.log.Info("Watching for file changes")

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if err := w.handle(ctx, event); err != nil {
				w.log.WithError(err).WithField("path", event.Name).Warn("Failed to process file event")
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("Watcher error")
		case <-ctx.Done():
			return nil
		}
	}
}

// Close stops the watcher
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) error {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return err
	}
	rel = filepath.ToSlash(rel)

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return w.ignoreUntracked(w.syncer.MarkFileDeleted(ctx, rel))

	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			if event.Has(fsnotify.Create) {
				return w.addTree(event.Name)
			}
			return nil
		}
		content, err := os.ReadFile(event.Name)
		if err != nil {
			return err
		}
		meta, err := w.syncer.GetFileSync(ctx, rel)
		if errors.Is(err, ErrFileNotTracked) {
			w.log.WithField("path", rel).Debug("Ignoring untracked file")
			return nil
		}
		if err != nil {
			return err
		}
		if meta.FileHash == ComputeHash(content) {
			if meta.SyncStatus == types.SyncStatusDeleted {
				w.log.WithField("path", rel).Debug("Tracked file restored")
				return w.syncer.SetFileStatus(ctx, rel, types.SyncStatusSynced)
			}
			return nil
		}
		w.log.WithField("path", rel).Debug("Tracked file modified")
		return w.syncer.MarkFileModified(ctx, rel)
	}
	return nil
}

func (w *Watcher) ignoreUntracked(err error) error {
	if errors.Is(err, ErrFileNotTracked) {
		return nil
	}
	return err
}
