package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/modelstore/internal/capability"
	"github.com/dshills/modelstore/internal/config"
	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/export"
	"github.com/dshills/modelstore/internal/filestore"
	"github.com/dshills/modelstore/internal/schema"
	"github.com/dshills/modelstore/internal/storage"
	"github.com/dshills/modelstore/internal/syncer"
)

// ErrVolatile is returned for operations that need the database on disk
var ErrVolatile = errors.New("database is not persistent")

// Options adjust New
type Options struct {
	// SkipMigrations leaves the schema as found
	SkipMigrations bool
}

// App is the composition root
type App struct {
	Config   *config.Config
	Log      logrus.FieldLogger
	Files    *filestore.Manager
	Engine   *engine.Engine
	Schema   *schema.Manager
	Store    *storage.Adapter
	Syncer   *syncer.Syncer
	Exporter *export.Exporter

	// Init is the engine initialization outcome, warnings included
	Init *engine.InitResult
}

// New opens the file area and the engine, then brings the schema up to
// date. Persistent storage that cannot be opened falls back to volatile
// storage with a warning in Init.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts Options) (*App, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	a := &App{
		Config: cfg,
		Log:    log,
		Files:  filestore.New(cfg.DataDir, cfg.DataSubdir, log),
	}

	eng := engine.Config{
		DatabaseName: cfg.DatabaseName,
		Mode:         cfg.StorageMode,
	}
	if cfg.StorageMode != capability.StorageModeVolatile {
		if err := a.Files.Initialize(); err != nil {
			log.WithError(err).Warn("Data directory unavailable")
		} else {
			eng.DataDir = a.Files.DataPath()
		}
	}

	a.Engine = engine.New(capability.New(engine.DriverName), log)
	a.Init = a.Engine.Initialize(ctx, eng)
	if a.Init.Err != nil {
		_ = a.Files.Close()
		return nil, fmt.Errorf("failed to initialize engine: %w", a.Init.Err)
	}

	a.Schema = schema.NewManager(a.Engine, log)
	a.Store = storage.New(a.Engine, log)
	a.Syncer = syncer.New(a.Store, a.Engine, log)
	a.Exporter = export.New(a.Engine, log)

	if !opts.SkipMigrations {
		if _, err := a.Migrate(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

// Persistent reports whether the database lives on disk
func (a *App) Persistent() bool {
	return a.Init.StorageMode == capability.StorageModePersistent
}

// Migrate applies pending migrations. A persistent database is backed up
// first when anything is pending.
func (a *App) Migrate(ctx context.Context) (*schema.RunResult, error) {
	status, err := a.Schema.GetMigrationStatus(ctx)
	if err != nil {
		return nil, err
	}
	if len(status.Pending) > 0 && status.CurrentVersion > 0 && a.Persistent() {
		if _, err := a.BackupDatabase(ctx, "pre-migrate"); err != nil {
			return nil, err
		}
	}
	return a.Schema.RunMigrations(ctx)
}

// BackupDatabase copies the database file into a backup and prunes old
// backups down to the configured retention
func (a *App) BackupDatabase(ctx context.Context, suffix string) (string, error) {
	if !a.Persistent() {
		return "", ErrVolatile
	}
	// Fold the write-ahead log into the main file so the copy is complete
	if res := a.Engine.Execute(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); res.Err != nil {
		return "", fmt.Errorf("failed to checkpoint database: %w", res.Err)
	}
	name, err := a.Files.CreateBackup(a.databaseName(), suffix)
	if err != nil {
		return "", err
	}
	if a.Config.Backup.Retention > 0 {
		if _, err := a.Files.PruneBackups(a.databaseName(), a.Config.Backup.Retention); err != nil {
			return name, err
		}
	}
	return name, nil
}

func (a *App) databaseName() string {
	if a.Config.DatabaseName == "" {
		return engine.DefaultDatabaseName
	}
	return a.Config.DatabaseName
}

// ScanWorkspace reconciles the tracked files with the configured watch
// directory
func (a *App) ScanWorkspace(ctx context.Context) (*syncer.ScanResult, error) {
	if a.Config.Sync.WatchDir == "" {
		return nil, errors.New("no watch directory configured")
	}
	return a.Syncer.ScanDirectory(ctx, a.Config.Sync.WatchDir, nil)
}

// NewWatcher watches the configured workspace directory
func (a *App) NewWatcher() (*syncer.Watcher, error) {
	if a.Config.Sync.WatchDir == "" {
		return nil, errors.New("no watch directory configured")
	}
	return syncer.NewWatcher(a.Syncer, a.Config.Sync.WatchDir, a.Log)
}

// NewReconciler re-syncs the configured snapshot file periodically
func (a *App) NewReconciler() (*syncer.Reconciler, error) {
	if a.Config.Sync.SnapshotPath == "" {
		return nil, errors.New("no snapshot path configured")
	}
	return syncer.NewReconciler(a.Syncer, syncer.FileSource{Path: a.Config.Sync.SnapshotPath},
		a.Config.Sync.Interval, syncer.Options{PruneMissing: a.Config.Sync.PruneMissing}, a.Log), nil
}

// RunBackground runs the watcher and the reconciler that are configured
// until ctx is done. The watch directory is scanned once before watching.
func (a *App) RunBackground(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.Config.Sync.WatchDir != "" {
		if _, err := a.ScanWorkspace(ctx); err != nil {
			return err
		}
		w, err := a.NewWatcher()
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}
	if a.Config.Sync.SnapshotPath != "" {
		r, err := a.NewReconciler()
		if err != nil {
			return err
		}
		g.Go(func() error {
			r.Run(gctx)
			return nil
		})
	}
	return g.Wait()
}

// Close terminates the engine and releases the file area
func (a *App) Close() error {
	return errors.Join(a.Engine.Terminate(), a.Files.Close())
}

// RestoreDatabase copies a backup over the database file and removes the
// write-ahead log files left by the replaced database. The database must
// not be open.
func RestoreDatabase(cfg *config.Config, log logrus.FieldLogger, backup string) error {
	files := filestore.New(cfg.DataDir, cfg.DataSubdir, log)
	defer func() { _ = files.Close() }()

	name := cfg.DatabaseName
	if name == "" {
		name = engine.DefaultDatabaseName
	}
	if err := files.RestoreBackup(backup, name); err != nil {
		return err
	}
	for _, sidecar := range []string{name + "-wal", name + "-shm"} {
		if err := files.DeleteFile(sidecar); err != nil && !errors.Is(err, filestore.ErrFileNotFound) {
			return err
		}
	}
	return nil
}
