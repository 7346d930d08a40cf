package engine

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/modelstore/internal/capability"
)

type stubProber struct {
	mu      sync.Mutex
	reports []capability.Report
	calls   int
}

func (s *stubProber) Probe(string) capability.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reports[min(s.calls, len(s.reports)-1)]
	s.calls++
	return r
}

func persistentReport() capability.Report {
	return capability.Report{
		Capabilities: capability.Capabilities{EngineRuntime: true, PersistentStorage: true, Workers: true},
		Recommended:  true,
		StorageMode:  capability.StorageModePersistent,
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func setupTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(capability.New(DriverName), quietLogger())
	res := e.Initialize(context.Background(), Config{Mode: capability.StorageModeVolatile})
	require.NoError(t, res.Err)
	require.True(t, res.Success)
	t.Cleanup(func() { _ = e.Terminate() })
	return e
}

func TestInitialize_Volatile(t *testing.T) {
	e := setupTestEngine(t)

	assert.True(t, e.Initialized())
	res := e.Initialize(context.Background(), Config{})
	assert.True(t, res.Success)
	assert.Equal(t, capability.StorageModeVolatile, res.StorageMode)
	assert.NotEmpty(t, res.Version)
}

func TestInitialize_SingleFlight(t *testing.T) {
	e := New(capability.New(DriverName), quietLogger())
	defer func() { _ = e.Terminate() }()

	const callers = 16
	results := make([]*InitResult, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = e.Initialize(context.Background(), Config{Mode: capability.StorageModeVolatile})
		}(i)
	}
	close(start)
	wg.Wait()

	require.True(t, results[0].Success)
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i], "caller %d got a different result", i)
	}
}

func TestInitialize_Persistent(t *testing.T) {
	dir := t.TempDir()
	e := New(capability.New(DriverName), quietLogger())
	defer func() { _ = e.Terminate() }()

	res := e.Initialize(context.Background(), Config{DataDir: dir})
	require.True(t, res.Success, "init error: %v", res.Err)
	assert.Equal(t, capability.StorageModePersistent, res.StorageMode)

	_, err := os.Stat(filepath.Join(dir, DefaultDatabaseName))
	assert.NoError(t, err)
}

func TestInitialize_PersistentFailureFallsBack(t *testing.T) {
	prober := &stubProber{reports: []capability.Report{persistentReport()}}
	e := New(prober, quietLogger())
	defer func() { _ = e.Terminate() }()

	failPersistent := func(driver, dsn string) (*sql.DB, error) {
		if dsn != memoryDSN {
			return nil, errors.New("storage handle unavailable")
		}
		return sql.Open(driver, dsn)
	}

	res := e.Initialize(context.Background(), Config{DataDir: t.TempDir(), Open: failPersistent})
	require.True(t, res.Success)
	assert.NoError(t, res.Err)
	assert.Equal(t, capability.StorageModeVolatile, res.StorageMode)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[len(res.Warnings)-1], "falling back to volatile")
}

func TestInitialize_NoEngineRuntimeIsNotCached(t *testing.T) {
	missing := capability.Report{StorageMode: capability.StorageModeVolatile}
	available := capability.Report{
		Capabilities: capability.Capabilities{EngineRuntime: true},
		Recommended:  true,
		StorageMode:  capability.StorageModeVolatile,
	}
	prober := &stubProber{reports: []capability.Report{missing, available}}
	e := New(prober, quietLogger())
	defer func() { _ = e.Terminate() }()

	first := e.Initialize(context.Background(), Config{})
	assert.False(t, first.Success)
	assert.ErrorIs(t, first.Err, ErrNoEngineRuntime)
	assert.False(t, e.Initialized())

	second := e.Initialize(context.Background(), Config{})
	assert.True(t, second.Success)
	assert.NotSame(t, first, second)
}

func TestQuery_BeforeInitialize(t *testing.T) {
	e := New(capability.New(DriverName), quietLogger())

	res := e.Query(context.Background(), "SELECT 1")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNotInitialized)

	exec := e.Execute(context.Background(), "SELECT 1")
	assert.ErrorIs(t, exec.Err, ErrNotInitialized)
}

func TestQueryAndExecute(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()

	exec := e.Execute(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT, price REAL, data BLOB)")
	require.NoError(t, exec.Err)

	exec = e.Execute(ctx, "INSERT INTO items (name, price, data) VALUES (?, ?, ?)", "widget", 9.5, []byte{1, 2})
	require.NoError(t, exec.Err)
	assert.Equal(t, int64(1), exec.RowsAffected)

	res := e.Query(ctx, "SELECT id, name, price, data FROM items WHERE name = ?", "widget")
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, []string{"id", "name", "price", "data"}, res.ColumnNames)
	assert.Len(t, res.ColumnTypes, 4)

	row := res.Rows[0]
	assert.Equal(t, int64(1), row.Int64("id"))
	assert.Equal(t, "widget", row.String("name"))
	assert.Equal(t, []byte{1, 2}, row["data"])

	// Non-parameterised path
	res = e.Query(ctx, "SELECT COUNT(*) AS n FROM items")
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Rows[0].Int("n"))
}

func TestQuery_ErrorIsReported(t *testing.T) {
	e := setupTestEngine(t)

	res := e.Query(context.Background(), "SELECT * FROM missing_table")
	assert.False(t, res.Success)
	assert.Error(t, res.Err)
	assert.NotNil(t, res.Rows)

	exec := e.Execute(context.Background(), "INSERT INTO missing_table VALUES (1)")
	assert.False(t, exec.Success)
	assert.Error(t, exec.Err)
}

func TestTransaction_Commit(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Execute(ctx, "CREATE TABLE items (name TEXT)").Err)

	res := e.Transaction(ctx, func(tx *Tx) error {
		if r := tx.Execute(ctx, "INSERT INTO items (name) VALUES (?)", "a"); r.Err != nil {
			return r.Err
		}
		return tx.Execute(ctx, "INSERT INTO items (name) VALUES (?)", "b").Err
	})
	require.NoError(t, res.Err)
	assert.True(t, res.Success)

	count := e.Query(ctx, "SELECT COUNT(*) AS n FROM items")
	assert.Equal(t, 2, count.Rows[0].Int("n"))
}

func TestTransaction_FailureLeavesStateUnchanged(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Execute(ctx, "CREATE TABLE items (name TEXT)").Err)

	bodyErr := errors.New("validation failed")
	res := e.Transaction(ctx, func(tx *Tx) error {
		assert.NoError(t, tx.Execute(ctx, "INSERT INTO items (name) VALUES (?)", "a").Err)
		return bodyErr
	})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, bodyErr)

	var txErr *TransactionError
	assert.ErrorAs(t, res.Err, &txErr)

	count := e.Query(ctx, "SELECT COUNT(*) AS n FROM items")
	assert.Equal(t, 0, count.Rows[0].Int("n"))
}

func TestTransaction_PanicIsRecovered(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Execute(ctx, "CREATE TABLE items (name TEXT)").Err)

	res := e.Transaction(ctx, func(tx *Tx) error {
		tx.Execute(ctx, "INSERT INTO items (name) VALUES ('a')")
		panic("boom")
	})
	assert.False(t, res.Success)
	assert.ErrorContains(t, res.Err, "boom")

	count := e.Query(ctx, "SELECT COUNT(*) AS n FROM items")
	assert.Equal(t, 0, count.Rows[0].Int("n"))

	// The worker survives the panic
	assert.True(t, e.Query(ctx, "SELECT 1").Success)
}

func TestTransaction_TxUnusableAfterEnd(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()

	var leaked *Tx
	require.NoError(t, e.Transaction(ctx, func(tx *Tx) error {
		leaked = tx
		return nil
	}).Err)

	assert.ErrorIs(t, leaked.Execute(ctx, "SELECT 1").Err, ErrTxDone)
	assert.ErrorIs(t, leaked.Query(ctx, "SELECT 1").Err, ErrTxDone)
}

func setupMockEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT sqlite_version()")).
		WillReturnRows(sqlmock.NewRows([]string{"sqlite_version()"}).AddRow("3.45.1"))

	available := capability.Report{
		Capabilities: capability.Capabilities{EngineRuntime: true},
		Recommended:  true,
		StorageMode:  capability.StorageModeVolatile,
	}
	e := New(&stubProber{reports: []capability.Report{available}}, quietLogger())
	res := e.Initialize(context.Background(), Config{
		Open: func(string, string) (*sql.DB, error) { return mockDB, nil },
	})
	require.True(t, res.Success, "init error: %v", res.Err)
	assert.Equal(t, "3.45.1", res.Version)
	return e, mock
}

func TestTransaction_RollbackFailureIsDiscarded(t *testing.T) {
	e, mock := setupMockEngine(t)
	ctx := context.Background()

	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("ROLLBACK").WillReturnError(errors.New("disk I/O error"))

	bodyErr := errors.New("constraint check failed")
	res := e.Transaction(ctx, func(tx *Tx) error {
		if r := tx.Execute(ctx, "INSERT INTO items (name) VALUES ('a')"); r.Err != nil {
			return r.Err
		}
		return bodyErr
	})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, bodyErr)
	assert.NotContains(t, res.Err.Error(), "disk I/O")

	mock.ExpectClose()
	assert.NoError(t, e.Terminate())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_CommitFailureRollsBack(t *testing.T) {
	e, mock := setupMockEngine(t)
	ctx := context.Background()

	commitErr := errors.New("database is locked")
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnError(commitErr)
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	res := e.Transaction(ctx, func(tx *Tx) error { return nil })
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, commitErr)

	mock.ExpectClose()
	assert.NoError(t, e.Terminate())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTerminate_AllowsReinitialize(t *testing.T) {
	e := New(capability.New(DriverName), quietLogger())
	ctx := context.Background()

	first := e.Initialize(ctx, Config{})
	require.True(t, first.Success)
	require.NoError(t, e.Terminate())

	assert.False(t, e.Initialized())
	assert.ErrorIs(t, e.Query(ctx, "SELECT 1").Err, ErrNotInitialized)

	second := e.Initialize(ctx, Config{})
	require.True(t, second.Success)
	assert.NotSame(t, first, second)
	assert.NoError(t, e.Terminate())

	// Terminating twice is harmless
	assert.NoError(t, e.Terminate())
}

func TestCheckVersion(t *testing.T) {
	assert.Empty(t, checkVersion("3.45.1"))
	assert.Contains(t, checkVersion("3.31.0"), "older than")
	assert.Contains(t, checkVersion("not-a-version"), "unrecognised")
}
