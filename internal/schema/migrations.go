package schema

import "slices"

// Migration is one versioned schema change. Up and Down are run statement
// by statement inside a single transaction.
type Migration struct {
	Version int
	Name    string
	Up      []string
	Down    []string
}

// Migrations lists every migration in ascending version order
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      initialSchemaUp(),
		Down:    initialSchemaDown(),
	},
	{
		Version: 2,
		Name:    "sync_metadata_status_index",
		Up: []string{
			"CREATE INDEX IF NOT EXISTS idx_sync_metadata_sync_status ON sync_metadata(sync_status)",
		},
		Down: []string{
			"DROP INDEX IF EXISTS idx_sync_metadata_sync_status",
		},
	},
	{
		Version: 3,
		Name:    "decision_superseded_by",
		Up: []string{
			"ALTER TABLE decisions ADD COLUMN superseded_by TEXT",
		},
		Down: []string{
			"ALTER TABLE decisions DROP COLUMN superseded_by",
		},
	},
}

// LatestVersion is the highest known migration version
func LatestVersion() int {
	if len(Migrations) == 0 {
		return 0
	}
	return Migrations[len(Migrations)-1].Version
}

func initialSchemaUp() []string {
	stmts := make([]string, 0, len(Tables)+len(Indexes))
	for _, t := range Tables {
		stmts = append(stmts, t.SQL)
	}
	for _, idx := range Indexes {
		stmts = append(stmts, idx.SQL)
	}
	return stmts
}

// initialSchemaDown drops every table except the migration log, newest first
func initialSchemaDown() []string {
	var stmts []string
	for _, name := range slices.Backward(TableNames()) {
		if name == MigrationsTable {
			continue
		}
		stmts = append(stmts, "DROP TABLE IF EXISTS "+name)
	}
	return stmts
}
