// Package schema creates the model tables and applies versioned migrations.
package schema

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/query"
	"github.com/dshills/modelstore/pkg/types"
)

// MigrationError reports the migration that halted RunMigrations or
// RollbackTo. The schema is left at the last version that succeeded.
type MigrationError struct {
	Version int
	Name    string
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d (%s): %v", e.Version, e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Status compares the applied migrations with the known list
type Status struct {
	CurrentVersion int
	LatestVersion  int
	Pending        []Migration
	Applied        []types.MigrationRecord
}

// RunResult lists the versions a RunMigrations or RollbackTo call changed
type RunResult struct {
	Versions       []int
	CurrentVersion int
}

// Validation is the outcome of ValidateSchema
type Validation struct {
	Valid  bool
	Issues []string
}

// Manager owns schema creation and migrations for one database
type Manager struct {
	db         engine.Database
	log        logrus.FieldLogger
	migrations []Migration
}

// NewManager creates a Manager using the built-in migrations
func NewManager(db engine.Database, log logrus.FieldLogger) *Manager {
	return NewManagerWithMigrations(db, log, Migrations)
}

// NewManagerWithMigrations creates a Manager with a custom migration list,
// which must be sorted by version
func NewManagerWithMigrations(db engine.Database, log logrus.FieldLogger, migrations []Migration) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		db:         db,
		log:        log.WithField("component", "schema"),
		migrations: migrations,
	}
}

// InitializeSchema creates every table, then every index, and records
// version 1 as applied. A failing index is logged and returned as a warning.
// Later migrations stay pending; RunMigrations must follow before the
// storage adapter uses the schema.
func (m *Manager) InitializeSchema(ctx context.Context) ([]string, error) {
	for _, t := range Tables {
		if res := m.db.Execute(ctx, t.SQL); !res.Success {
			return nil, fmt.Errorf("create table %s: %w", t.Name, res.Err)
		}
	}

	var warnings []string
	for _, idx := range Indexes {
		if res := m.db.Execute(ctx, idx.SQL); !res.Success {
			m.log.WithError(res.Err).WithField("index", idx.Name).Warn("failed to create index")
			warnings = append(warnings, fmt.Sprintf("index %s: %v", idx.Name, res.Err))
		}
	}

	if len(m.migrations) > 0 {
		first := m.migrations[0]
		// OR IGNORE keeps the original applied_at on an existing schema
		_, err := query.Insert(MigrationsTable).
			OrIgnore().
			Columns("version", "name", "applied_at").
			AddRow(first.Version, first.Name, engine.FormatTime(time.Now())).
			Exec(ctx, m.db)
		if err != nil {
			return warnings, fmt.Errorf("record migration %d: %w", first.Version, err)
		}
	}

	m.log.WithField("tables", len(Tables)).Info("schema initialized")
	return warnings, nil
}

// SchemaExists reports whether the root table is present
func (m *Manager) SchemaExists(ctx context.Context) (bool, error) {
	return query.Select("sqlite_master").
		Where("type", "=", "table").
		AndWhere("name", "=", RootTable).
		Exists(ctx, m.db)
}

// GetMigrationStatus reads the migration log and diffs it against the known
// migrations. A missing log table means nothing is applied.
func (m *Manager) GetMigrationStatus(ctx context.Context) (*Status, error) {
	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		LatestVersion: m.latestVersion(),
		Applied:       applied,
		Pending:       make([]Migration, 0),
	}
	done := make(map[int]bool, len(applied))
	for _, rec := range applied {
		done[rec.Version] = true
		status.CurrentVersion = max(status.CurrentVersion, rec.Version)
	}
	for _, mig := range m.migrations {
		if !done[mig.Version] {
			status.Pending = append(status.Pending, mig)
		}
	}
	return status, nil
}

func (m *Manager) appliedMigrations(ctx context.Context) ([]types.MigrationRecord, error) {
	exists, err := query.Select("sqlite_master").
		Where("type", "=", "table").
		AndWhere("name", "=", MigrationsTable).
		Exists(ctx, m.db)
	if err != nil {
		return nil, fmt.Errorf("check migration table: %w", err)
	}
	records := make([]types.MigrationRecord, 0)
	if !exists {
		return records, nil
	}

	rows, err := query.Select(MigrationsTable).OrderBy("version", "ASC").All(ctx, m.db)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	for _, row := range rows {
		records = append(records, types.MigrationRecord{
			Version:   row.Int("version"),
			Name:      row.String("name"),
			AppliedAt: row.Time("applied_at"),
		})
	}
	return records, nil
}

func (m *Manager) latestVersion() int {
	if len(m.migrations) == 0 {
		return 0
	}
	return m.migrations[len(m.migrations)-1].Version
}

// RunMigrations applies every pending migration in ascending order, each in
// its own transaction. It stops at the first failure and returns a
// *MigrationError together with the versions applied before it.
func (m *Manager) RunMigrations(ctx context.Context) (*RunResult, error) {
	if res := m.db.Execute(ctx, migrationsTableSQL); !res.Success {
		return nil, fmt.Errorf("create migration table: %w", res.Err)
	}
	status, err := m.GetMigrationStatus(ctx)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Versions: make([]int, 0), CurrentVersion: status.CurrentVersion}
	for _, mig := range status.Pending {
		if mig.Version < status.CurrentVersion {
			m.log.WithField("version", mig.Version).Warn("pending migration is older than the current version")
		}
		log := m.log.WithFields(logrus.Fields{"version": mig.Version, "name": mig.Name})

		res := m.db.Transaction(ctx, func(tx *engine.Tx) error {
			for _, stmt := range mig.Up {
				if r := tx.Execute(ctx, stmt); !r.Success {
					return r.Err
				}
			}
			_, err := query.Insert(MigrationsTable).
				Columns("version", "name", "applied_at").
				AddRow(mig.Version, mig.Name, engine.FormatTime(time.Now())).
				Exec(ctx, tx)
			return err
		})
		if !res.Success {
			log.WithError(res.Err).Error("migration failed")
			return result, &MigrationError{Version: mig.Version, Name: mig.Name, Err: res.Err}
		}

		log.Info("migration applied")
		result.Versions = append(result.Versions, mig.Version)
		result.CurrentVersion = max(result.CurrentVersion, mig.Version)
	}
	return result, nil
}

// RollbackTo runs the Down statements of every applied migration above
// target, newest first, each in its own transaction, and removes its record
func (m *Manager) RollbackTo(ctx context.Context, target int) (*RunResult, error) {
	status, err := m.GetMigrationStatus(ctx)
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int]Migration, len(m.migrations))
	for _, mig := range m.migrations {
		byVersion[mig.Version] = mig
	}

	result := &RunResult{Versions: make([]int, 0), CurrentVersion: status.CurrentVersion}
	for i, rec := range slices.Backward(status.Applied) {
		if rec.Version <= target {
			continue
		}
		mig, ok := byVersion[rec.Version]
		if !ok {
			return result, &MigrationError{Version: rec.Version, Name: rec.Name, Err: fmt.Errorf("unknown migration")}
		}

		res := m.db.Transaction(ctx, func(tx *engine.Tx) error {
			for _, stmt := range mig.Down {
				if r := tx.Execute(ctx, stmt); !r.Success {
					return r.Err
				}
			}
			_, err := query.Delete(MigrationsTable).Where("version", "=", mig.Version).Exec(ctx, tx)
			return err
		})
		if !res.Success {
			m.log.WithError(res.Err).WithField("version", mig.Version).Error("rollback failed")
			return result, &MigrationError{Version: mig.Version, Name: mig.Name, Err: res.Err}
		}

		m.log.WithField("version", mig.Version).Info("migration rolled back")
		result.Versions = append(result.Versions, mig.Version)
		result.CurrentVersion = 0
		if i > 0 {
			result.CurrentVersion = status.Applied[i-1].Version
		}
	}
	return result, nil
}

// ValidateSchema compares the live tables and version with the expected
// ones. Problems are reported as issues, never as an error.
func (m *Manager) ValidateSchema(ctx context.Context) *Validation {
	v := &Validation{Issues: make([]string, 0)}

	rows, err := query.Select("sqlite_master").
		Columns("name").
		Where("type", "=", "table").
		All(ctx, m.db)
	if err != nil {
		v.Issues = append(v.Issues, fmt.Sprintf("cannot list tables: %v", err))
		return v
	}
	actual := make(map[string]bool, len(rows))
	for _, row := range rows {
		actual[row.String("name")] = true
	}
	for _, name := range TableNames() {
		if !actual[name] {
			v.Issues = append(v.Issues, "missing table: "+name)
		}
	}

	status, err := m.GetMigrationStatus(ctx)
	if err != nil {
		v.Issues = append(v.Issues, fmt.Sprintf("cannot read migration status: %v", err))
	} else if status.CurrentVersion < status.LatestVersion {
		v.Issues = append(v.Issues, fmt.Sprintf("schema version %d is behind latest %d", status.CurrentVersion, status.LatestVersion))
	}

	v.Valid = len(v.Issues) == 0
	return v
}
