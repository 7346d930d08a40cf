package schema

// TableDef is one CREATE TABLE statement
type TableDef struct {
	Name string
	SQL  string
}

// IndexDef is one CREATE INDEX statement, named idx_<table>_<column>
type IndexDef struct {
	Name string
	SQL  string
}

// MigrationsTable records applied migration versions
const MigrationsTable = "schema_migrations"

const migrationsTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`

// RootTable is the table whose presence means the schema exists
const RootTable = "workspaces"

// Tables lists the table definitions in creation order. Foreign keys are not
// declared: the engine does not enforce them and the adapter cascades
// deletes itself.
var Tables = []TableDef{
	{Name: "workspaces", SQL: `CREATE TABLE IF NOT EXISTS workspaces (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    owner_id TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`},
	{Name: "domains", SQL: `CREATE TABLE IF NOT EXISTS domains (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`},
	{Name: "tables", SQL: `CREATE TABLE IF NOT EXISTS tables (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    domain_id TEXT,
    name TEXT NOT NULL,
    alias TEXT,
    description TEXT,
    owner TEXT,
    data_level TEXT,
    medallion_layers TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`},
	{Name: "columns", SQL: `CREATE TABLE IF NOT EXISTS columns (
    id TEXT PRIMARY KEY,
    table_id TEXT NOT NULL,
    name TEXT NOT NULL,
    logical_type TEXT,
    physical_type TEXT,
    description TEXT,
    nullable INTEGER NOT NULL DEFAULT 1,
    primary_key INTEGER NOT NULL DEFAULT 0,
    is_unique INTEGER NOT NULL DEFAULT 0,
    ordinal_position INTEGER NOT NULL DEFAULT 0,
    default_value TEXT,
    foreign_key TEXT,
    constraints TEXT,
    quality_rules TEXT
)`},
	{Name: "relationships", SQL: `CREATE TABLE IF NOT EXISTS relationships (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    domain_id TEXT,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    source_type TEXT NOT NULL DEFAULT 'table',
    target_type TEXT NOT NULL DEFAULT 'table',
    cardinality TEXT,
    relationship_type TEXT,
    label TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`},
	{Name: "systems", SQL: `CREATE TABLE IF NOT EXISTS systems (
    id TEXT PRIMARY KEY,
    domain_id TEXT NOT NULL,
    name TEXT NOT NULL,
    system_type TEXT,
    description TEXT,
    endpoint TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`},
	{Name: "tags", SQL: `CREATE TABLE IF NOT EXISTS tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    resource_type TEXT NOT NULL,
    resource_id TEXT NOT NULL,
    value TEXT NOT NULL
)`},
	{Name: "sync_metadata", SQL: `CREATE TABLE IF NOT EXISTS sync_metadata (
    file_path TEXT PRIMARY KEY,
    file_hash TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    resource_id TEXT,
    last_synced_at TEXT NOT NULL,
    sync_status TEXT NOT NULL DEFAULT 'synced'
)`},
	{Name: "decisions", SQL: `CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    domain_id TEXT NOT NULL,
    number INTEGER NOT NULL DEFAULT 0,
    title TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'proposed',
    context TEXT,
    decision TEXT,
    consequences TEXT,
    options TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`},
	{Name: "knowledge_articles", SQL: `CREATE TABLE IF NOT EXISTS knowledge_articles (
    id TEXT PRIMARY KEY,
    domain_id TEXT NOT NULL,
    number INTEGER NOT NULL DEFAULT 0,
    title TEXT NOT NULL,
    article_type TEXT,
    status TEXT NOT NULL DEFAULT 'draft',
    summary TEXT,
    content TEXT NOT NULL DEFAULT '',
    authors TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`},
	{Name: MigrationsTable, SQL: migrationsTableSQL},
}

// Indexes lists the index definitions created after the tables
var Indexes = []IndexDef{
	index("domains", "workspace_id"),
	index("tables", "workspace_id"),
	index("tables", "domain_id"),
	index("columns", "table_id"),
	index("relationships", "workspace_id"),
	index("relationships", "source_id"),
	index("relationships", "target_id"),
	index("systems", "domain_id"),
	{Name: "idx_tags_resource_id", SQL: "CREATE INDEX IF NOT EXISTS idx_tags_resource_id ON tags(resource_type, resource_id)"},
	index("tags", "value"),
	index("decisions", "domain_id"),
	index("knowledge_articles", "domain_id"),
}

func index(table, column string) IndexDef {
	name := "idx_" + table + "_" + column
	return IndexDef{
		Name: name,
		SQL:  "CREATE INDEX IF NOT EXISTS " + name + " ON " + table + "(" + column + ")",
	}
}

// TableNames returns the expected table names in creation order
func TableNames() []string {
	names := make([]string, len(Tables))
	for i, t := range Tables {
		names[i] = t.Name
	}
	return names
}
