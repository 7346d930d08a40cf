package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/modelstore/internal/capability"
	"github.com/dshills/modelstore/internal/engine"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func setupTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New(capability.New(engine.DriverName), quietLogger())
	res := e.Initialize(context.Background(), engine.Config{Mode: capability.StorageModeVolatile})
	require.NoError(t, res.Err)
	t.Cleanup(func() { _ = e.Terminate() })
	return e
}

func tableExists(t *testing.T, e *engine.Engine, name string) bool {
	t.Helper()
	res := e.Query(context.Background(), "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	require.NoError(t, res.Err)
	return res.RowCount == 1
}

func TestInitializeSchema(t *testing.T) {
	e := setupTestEngine(t)
	m := NewManager(e, quietLogger())
	ctx := context.Background()

	exists, err := m.SchemaExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	warnings, err := m.InitializeSchema(ctx)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	exists, err = m.SchemaExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
	for _, name := range TableNames() {
		assert.True(t, tableExists(t, e, name), "table %s", name)
	}

	status, err := m.GetMigrationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CurrentVersion)
	assert.Equal(t, LatestVersion(), status.LatestVersion)
	require.Len(t, status.Applied, 1)
	assert.Equal(t, "initial_schema", status.Applied[0].Name)
	assert.False(t, status.Applied[0].AppliedAt.IsZero())
	assert.Len(t, status.Pending, len(Migrations)-1)
}

func TestInitializeSchema_ThenRunMigrations(t *testing.T) {
	e := setupTestEngine(t)
	m := NewManager(e, quietLogger())
	ctx := context.Background()

	hasColumn := func(table, column string) bool {
		res := e.Query(ctx, "SELECT name FROM pragma_table_info(?) WHERE name = ?", table, column)
		require.NoError(t, res.Err)
		return res.RowCount == 1
	}

	_, err := m.InitializeSchema(ctx)
	require.NoError(t, err)
	assert.False(t, hasColumn("decisions", "superseded_by"))

	status, err := m.GetMigrationStatus(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, status.Pending)
	assert.Equal(t, "decision_superseded_by", status.Pending[len(status.Pending)-1].Name)

	_, err = m.RunMigrations(ctx)
	require.NoError(t, err)
	assert.True(t, hasColumn("decisions", "superseded_by"))

	status, err = m.GetMigrationStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Pending)
	assert.Equal(t, LatestVersion(), status.CurrentVersion)
}

func TestInitializeSchema_Twice(t *testing.T) {
	e := setupTestEngine(t)
	m := NewManager(e, quietLogger())
	ctx := context.Background()

	_, err := m.InitializeSchema(ctx)
	require.NoError(t, err)
	first, err := m.GetMigrationStatus(ctx)
	require.NoError(t, err)

	_, err = m.InitializeSchema(ctx)
	require.NoError(t, err)
	second, err := m.GetMigrationStatus(ctx)
	require.NoError(t, err)

	require.Len(t, second.Applied, 1)
	assert.Equal(t, first.Applied[0].AppliedAt, second.Applied[0].AppliedAt)
}

func TestInitializeSchema_IndexFailureIsWarning(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()
	// A table squatting on an index name makes that CREATE INDEX fail
	require.NoError(t, e.Execute(ctx, "CREATE TABLE idx_tags_value (x INTEGER)").Err)

	warnings, err := NewManager(e, quietLogger()).InitializeSchema(ctx)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "idx_tags_value")
}

func TestRunMigrations_SecondRunAppliesNothing(t *testing.T) {
	e := setupTestEngine(t)
	m := NewManager(e, quietLogger())
	ctx := context.Background()

	_, err := m.InitializeSchema(ctx)
	require.NoError(t, err)

	first, err := m.RunMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, first.Versions)
	assert.Equal(t, LatestVersion(), first.CurrentVersion)

	second, err := m.RunMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Versions)
	assert.Equal(t, LatestVersion(), second.CurrentVersion)
}

func TestRunMigrations_FreshDatabase(t *testing.T) {
	e := setupTestEngine(t)
	m := NewManager(e, quietLogger())
	ctx := context.Background()

	result, err := m.RunMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, result.Versions)

	res := e.Query(ctx, "SELECT superseded_by FROM decisions")
	assert.True(t, res.Success, "column added by migration 3: %v", res.Err)

	v := m.ValidateSchema(ctx)
	assert.True(t, v.Valid, "issues: %v", v.Issues)
}

func TestRunMigrations_StopsAtFirstFailure(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()
	migrations := []Migration{
		{Version: 1, Name: "one", Up: []string{"CREATE TABLE one (id INTEGER)"}, Down: []string{"DROP TABLE one"}},
		{Version: 2, Name: "two", Up: []string{
			"CREATE TABLE two (id INTEGER)",
			"CREATE TABLE broken (",
		}},
		{Version: 3, Name: "three", Up: []string{"CREATE TABLE three (id INTEGER)"}},
	}
	m := NewManagerWithMigrations(e, quietLogger(), migrations)

	result, err := m.RunMigrations(ctx)
	require.Error(t, err)

	var migErr *MigrationError
	require.True(t, errors.As(err, &migErr))
	assert.Equal(t, 2, migErr.Version)
	assert.Equal(t, []int{1}, result.Versions)
	assert.Equal(t, 1, result.CurrentVersion)

	assert.True(t, tableExists(t, e, "one"))
	assert.False(t, tableExists(t, e, "two"), "failed migration must roll back entirely")
	assert.False(t, tableExists(t, e, "three"))

	status, err := m.GetMigrationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CurrentVersion)
	assert.Len(t, status.Pending, 2)
}

func TestRollbackTo(t *testing.T) {
	e := setupTestEngine(t)
	m := NewManager(e, quietLogger())
	ctx := context.Background()

	_, err := m.RunMigrations(ctx)
	require.NoError(t, err)

	result, err := m.RollbackTo(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, result.Versions)
	assert.Equal(t, 1, result.CurrentVersion)

	res := e.Query(ctx, "SELECT superseded_by FROM decisions")
	assert.False(t, res.Success)
	assert.True(t, tableExists(t, e, "decisions"))

	status, err := m.GetMigrationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CurrentVersion)

	// Reapplying after a rollback restores the latest version
	again, err := m.RunMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, again.Versions)
}

func TestRollbackTo_Zero(t *testing.T) {
	e := setupTestEngine(t)
	m := NewManager(e, quietLogger())
	ctx := context.Background()

	_, err := m.RunMigrations(ctx)
	require.NoError(t, err)

	result, err := m.RollbackTo(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.CurrentVersion)

	exists, err := m.SchemaExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.True(t, tableExists(t, e, MigrationsTable))
}

func TestValidateSchema(t *testing.T) {
	e := setupTestEngine(t)
	m := NewManager(e, quietLogger())
	ctx := context.Background()

	v := m.ValidateSchema(ctx)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Issues, "missing table: workspaces")

	_, err := m.InitializeSchema(ctx)
	require.NoError(t, err)
	v = m.ValidateSchema(ctx)
	assert.False(t, v.Valid)
	require.Len(t, v.Issues, 1)
	assert.Contains(t, v.Issues[0], "behind latest")

	_, err = m.RunMigrations(ctx)
	require.NoError(t, err)
	v = m.ValidateSchema(ctx)
	assert.True(t, v.Valid)
	assert.Empty(t, v.Issues)
}

func TestIndexNaming(t *testing.T) {
	for _, idx := range Indexes {
		assert.Regexp(t, `^idx_[a-z_]+$`, idx.Name)
		assert.Contains(t, idx.SQL, idx.Name)
	}
}
