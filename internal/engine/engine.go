package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/modelstore/internal/capability"
)

const (
	// DefaultDatabaseName is the database file created in the data directory
	DefaultDatabaseName = "model.db"
	// MinEngineVersion is the oldest SQLite with RETURNING and DROP COLUMN
	MinEngineVersion = "3.35.0"

	memoryDSN = ":memory:"
)

// OpenFunc opens a database handle; sql.Open by default
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Prober reports host capabilities for a data directory
type Prober interface {
	Probe(dataDir string) capability.Report
}

// Config controls how Initialize opens the database
type Config struct {
	// DataDir holds the database file in persistent mode. Empty forces
	// volatile storage.
	DataDir string
	// DatabaseName is the file name inside DataDir
	DatabaseName string
	// Mode requests a storage mode; auto follows the prober
	Mode capability.StorageMode
	// Open replaces sql.Open, mainly for tests
	Open OpenFunc
}

// InitResult reports the outcome of Initialize. Concurrent callers of
// Initialize receive the same *InitResult.
type InitResult struct {
	Success     bool
	StorageMode capability.StorageMode
	Version     string
	Warnings    []string
	Report      capability.Report
	Err         error
}

// Engine owns the one embedded database connection of the process
type Engine struct {
	prober Prober
	log    logrus.FieldLogger

	group singleflight.Group

	mu     sync.RWMutex
	result *InitResult // cached successful result
	db     *sql.DB
	conn   *sql.Conn
	worker *worker
}

// New creates an Engine. Nothing is opened until Initialize.
func New(prober Prober, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		prober: prober,
		log:    log.WithField("component", "engine"),
	}
}

// Initialize opens the engine. It is idempotent: a successful result is
// cached, and concurrent calls made while one is in flight share it. A failed
// result is not cached, so a later call retries.
func (e *Engine) Initialize(ctx context.Context, cfg Config) *InitResult {
	e.mu.RLock()
	cached := e.result
	e.mu.RUnlock()
	if cached != nil {
		return cached
	}

	v, _, _ := e.group.Do("initialize", func() (any, error) {
		e.mu.RLock()
		cached := e.result
		e.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
		return e.initialize(ctx, cfg), nil
	})
	return v.(*InitResult)
}

func (e *Engine) initialize(ctx context.Context, cfg Config) *InitResult {
	if cfg.DatabaseName == "" {
		cfg.DatabaseName = DefaultDatabaseName
	}
	if cfg.Open == nil {
		cfg.Open = sql.Open
	}

	report := e.prober.Probe(cfg.DataDir)
	res := &InitResult{
		Report:   report,
		Warnings: append(make([]string, 0, len(report.Warnings)), report.Warnings...),
	}

	if !report.Capabilities.EngineRuntime {
		res.Err = fmt.Errorf("%w: driver %q not registered", ErrNoEngineRuntime, DriverName)
		e.log.WithError(res.Err).Error("engine initialization failed")
		return res
	}

	mode := e.selectMode(cfg, report, res)

	var (
		db   *sql.DB
		conn *sql.Conn
		err  error
	)
	if mode == capability.StorageModePersistent {
		path := filepath.Join(cfg.DataDir, cfg.DatabaseName)
		db, conn, err = openPersistent(ctx, cfg.Open, path)
		if err != nil {
			msg := fmt.Sprintf("persistent storage failed to open (%v); falling back to volatile storage, data will not survive restart", err)
			e.log.WithError(err).WithField("path", path).Warn("falling back to volatile storage")
			res.Warnings = append(res.Warnings, msg)
			mode = capability.StorageModeVolatile
		}
	}
	if mode == capability.StorageModeVolatile {
		db, conn, err = openConn(ctx, cfg.Open, memoryDSN)
		if err != nil {
			res.Err = fmt.Errorf("open volatile database: %w", err)
			e.log.WithError(res.Err).Error("engine initialization failed")
			return res
		}
	}

	version, err := engineVersion(ctx, conn)
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		res.Err = fmt.Errorf("read engine version: %w", err)
		e.log.WithError(res.Err).Error("engine initialization failed")
		return res
	}
	if warning := checkVersion(version); warning != "" {
		res.Warnings = append(res.Warnings, warning)
		e.log.Warn(warning)
	}

	res.Success = true
	res.StorageMode = mode
	res.Version = version

	e.mu.Lock()
	e.db = db
	e.conn = conn
	e.worker = newWorker(conn, e.log)
	e.result = res
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"storage_mode": mode,
		"version":      version,
		"build_mode":   BuildMode,
	}).Info("engine initialized")
	return res
}

// selectMode resolves the requested mode against the probe report
func (e *Engine) selectMode(cfg Config, report capability.Report, res *InitResult) capability.StorageMode {
	switch cfg.Mode {
	case capability.StorageModeVolatile:
		return capability.StorageModeVolatile
	case capability.StorageModePersistent:
		if report.StorageMode != capability.StorageModePersistent {
			res.Warnings = append(res.Warnings, "persistent storage requested but unavailable; using volatile storage")
			return capability.StorageModeVolatile
		}
		return capability.StorageModePersistent
	}
	if cfg.DataDir == "" {
		return capability.StorageModeVolatile
	}
	return report.StorageMode
}

func openConn(ctx context.Context, open OpenFunc, dsn string) (*sql.DB, *sql.Conn, error) {
	db, err := open(DriverName, dsn)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, conn, nil
}

func openPersistent(ctx context.Context, open OpenFunc, path string) (*sql.DB, *sql.Conn, error) {
	db, conn, err := openConn(ctx, open, path)
	if err != nil {
		return nil, nil, err
	}
	// Touches the file, so an unusable path fails here rather than later
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, conn, nil
}

func engineVersion(ctx context.Context, conn *sql.Conn) (string, error) {
	var version string
	if err := conn.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return "", err
	}
	return version, nil
}

// checkVersion returns a warning when the engine is older than
// MinEngineVersion or reports an unparseable version
func checkVersion(version string) string {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Sprintf("unrecognised engine version %q", version)
	}
	if v.LessThan(semver.MustParse(MinEngineVersion)) {
		return fmt.Sprintf("engine version %s is older than %s; RETURNING and DROP COLUMN are unavailable", version, MinEngineVersion)
	}
	return ""
}

// Initialized reports whether Initialize has succeeded and Terminate has not
// been called since
func (e *Engine) Initialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.worker != nil
}

// Query runs a row-returning statement. It never panics and never returns a
// bare error: failures are reported through QueryResult.Err.
func (e *Engine) Query(ctx context.Context, query string, params ...any) *QueryResult {
	resp, err := e.submit(ctx, request{kind: kindQuery, sql: query, params: params})
	if err != nil {
		return &QueryResult{Rows: make([]Row, 0), Err: err}
	}
	return resp.query
}

// Execute runs a mutation
func (e *Engine) Execute(ctx context.Context, query string, params ...any) *ExecResult {
	resp, err := e.submit(ctx, request{kind: kindExec, sql: query, params: params})
	if err != nil {
		return execFailed(err)
	}
	return resp.exec
}

// Transaction runs fn inside BEGIN/COMMIT. If fn returns an error, panics, or
// COMMIT fails, the transaction is rolled back and the original error is
// returned wrapped in a *TransactionError. fn must only use the Tx it is given.
func (e *Engine) Transaction(ctx context.Context, fn func(tx *Tx) error) *ExecResult {
	resp, err := e.submit(ctx, request{kind: kindTx, fn: fn})
	if err != nil {
		return execFailed(err)
	}
	return resp.exec
}

func (e *Engine) submit(ctx context.Context, req request) (response, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.worker == nil {
		return response{}, ErrNotInitialized
	}
	return e.worker.submit(ctx, req)
}

// Terminate stops the worker, closes the connection and database, and clears
// the cached initialization result
func (e *Engine) Terminate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.worker == nil {
		return nil
	}
	close(e.worker.requests)
	<-e.worker.done

	var errs []error
	if err := e.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}
	if err := e.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	e.worker = nil
	e.conn = nil
	e.db = nil
	e.result = nil
	e.log.Info("engine terminated")
	return errors.Join(errs...)
}
