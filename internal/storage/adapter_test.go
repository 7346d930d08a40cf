package storage

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/modelstore/internal/capability"
	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/schema"
	"github.com/dshills/modelstore/pkg/types"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func setupTestAdapter(t *testing.T) (*Adapter, *engine.Engine) {
	t.Helper()
	ctx := context.Background()
	e := engine.New(capability.New(engine.DriverName), quietLogger())
	res := e.Initialize(ctx, engine.Config{Mode: capability.StorageModeVolatile})
	require.NoError(t, res.Err)
	t.Cleanup(func() { _ = e.Terminate() })

	_, err := schema.NewManager(e, quietLogger()).RunMigrations(ctx)
	require.NoError(t, err)
	return New(e, quietLogger()), e
}

func ptr(s string) *string { return &s }

func countRows(t *testing.T, e *engine.Engine, sql string, params ...any) int64 {
	t.Helper()
	res := e.Query(context.Background(), sql, params...)
	require.NoError(t, res.Err)
	return res.Rows[0].Int64("n")
}

func seedWorkspace(t *testing.T, a *Adapter) (*types.Workspace, *types.Domain) {
	t.Helper()
	ctx := context.Background()
	ws := &types.Workspace{ID: "ws1", Name: "Sales"}
	require.NoError(t, a.SaveWorkspace(ctx, ws))
	d := &types.Domain{ID: "dom1", WorkspaceID: ws.ID, Name: "orders"}
	require.NoError(t, a.SaveDomain(ctx, d))
	return ws, d
}

func ordersTable(ws *types.Workspace, d *types.Domain) *types.Table {
	return &types.Table{
		ID:              "tbl_orders",
		WorkspaceID:     ws.ID,
		DomainID:        d.ID,
		Name:            "orders",
		Alias:           ptr("ord"),
		Description:     ptr("Customer orders"),
		DataLevel:       ptr("gold"),
		MedallionLayers: []string{"silver", "gold"},
		Tags:            []string{"pii", "core"},
		Columns: []types.Column{
			{ID: "col_id", Name: "id", LogicalType: "uuid", PrimaryKey: true, Unique: true},
			{
				ID: "col_customer", Name: "customer_id", LogicalType: "uuid",
				ForeignKey: &types.ForeignKeyRef{TableID: "tbl_customers", ColumnID: "col_cid"},
			},
			{
				ID: "col_total", Name: "total", LogicalType: "decimal", PhysicalType: ptr("NUMERIC(12,2)"),
				Nullable: true, DefaultValue: ptr("0"),
				Constraints:  map[string]any{"min": "0"},
				QualityRules: []map[string]any{{"rule": "not_negative", "enabled": true}},
			},
		},
	}
}

func TestSaveWorkspace_RoundTrip(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()

	ws := &types.Workspace{Name: "Finance", Description: ptr("ledger"), OwnerID: ptr("u1")}
	require.NoError(t, a.SaveWorkspace(ctx, ws))
	assert.NotEmpty(t, ws.ID)
	assert.False(t, ws.CreatedAt.IsZero())

	got, err := a.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, ws, got)

	list, err := a.ListWorkspaces(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ws.ID, list[0].ID)
}

func TestGetWorkspace_NotFound(t *testing.T) {
	a, _ := setupTestAdapter(t)
	_, err := a.GetWorkspace(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveTimestampsAreUTC(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()
	local := time.Date(2025, 3, 1, 9, 30, 0, 123456789, time.FixedZone("X", 3600))

	ws := &types.Workspace{ID: "w", Name: "n", CreatedAt: local, UpdatedAt: local}
	require.NoError(t, a.SaveWorkspace(ctx, ws))
	assert.Equal(t, time.UTC, ws.CreatedAt.Location())
	assert.True(t, ws.CreatedAt.Equal(local))

	got, err := a.GetWorkspace(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, ws.CreatedAt, got.CreatedAt)
}

func TestSaveTable_RoundTrip(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()
	ws, d := seedWorkspace(t, a)

	table := ordersTable(ws, d)
	require.NoError(t, a.SaveTable(ctx, table))
	for i, col := range table.Columns {
		assert.Equal(t, table.ID, col.TableID)
		assert.Equal(t, i, col.OrdinalPosition)
	}

	got, err := a.GetTable(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, table, got)

	exists, err := a.TableExists(ctx, table.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSaveTable_ReplacesColumnsAndTags(t *testing.T) {
	a, e := setupTestAdapter(t)
	ctx := context.Background()
	ws, d := seedWorkspace(t, a)

	table := ordersTable(ws, d)
	require.NoError(t, a.SaveTable(ctx, table))

	// Every save deletes and reinserts all columns, even unchanged ones
	table.Columns = []types.Column{{ID: "col_total", Name: "amount", LogicalType: "decimal"}}
	table.Tags = []string{"archived"}
	require.NoError(t, a.SaveTable(ctx, table))

	got, err := a.GetTable(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, got.Columns, 1)
	assert.Equal(t, "amount", got.Columns[0].Name)
	assert.Nil(t, got.Columns[0].ForeignKey)
	assert.Equal(t, []string{"archived"}, got.Tags)
	assert.Equal(t, int64(1), countRows(t, e, "SELECT COUNT(*) AS n FROM columns WHERE table_id = ?", table.ID))
}

func TestSaveTable_InvalidForeignKey(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()
	ws, d := seedWorkspace(t, a)

	table := ordersTable(ws, d)
	table.Columns[1].ForeignKey = &types.ForeignKeyRef{}
	err := a.SaveTable(ctx, table)
	assert.ErrorIs(t, err, types.ErrInvalidForeignKey)

	_, err = a.GetTable(ctx, table.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteTable_RemovesColumnsAndTags(t *testing.T) {
	a, e := setupTestAdapter(t)
	ctx := context.Background()
	ws, d := seedWorkspace(t, a)

	table := ordersTable(ws, d)
	require.Len(t, table.Columns, 3)
	require.NoError(t, a.SaveTable(ctx, table))
	require.Equal(t, int64(3), countRows(t, e, "SELECT COUNT(*) AS n FROM columns WHERE table_id = ?", table.ID))

	require.NoError(t, a.DeleteTable(ctx, table.ID))

	assert.Equal(t, int64(0), countRows(t, e, "SELECT COUNT(*) AS n FROM columns WHERE table_id = ?", table.ID))
	assert.Equal(t, int64(0), countRows(t, e, "SELECT COUNT(*) AS n FROM tags WHERE resource_id = ?", table.ID))
	_, err := a.GetTable(ctx, table.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTablesByWorkspaceAndDomain(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()
	ws, d := seedWorkspace(t, a)

	require.NoError(t, a.SaveTable(ctx, ordersTable(ws, d)))
	loose := &types.Table{ID: "tbl_loose", WorkspaceID: ws.ID, Name: "audit"}
	require.NoError(t, a.SaveTable(ctx, loose))

	all, err := a.GetTablesByWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "audit", all[0].Name)
	assert.Equal(t, "orders", all[1].Name)
	assert.Len(t, all[1].Columns, 3)
	assert.Equal(t, []string{"pii", "core"}, all[1].Tags)

	inDomain, err := a.GetTablesByDomain(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, inDomain, 1)
	assert.Equal(t, "orders", inDomain[0].Name)

	cols, err := a.GetColumnsByTable(ctx, "tbl_orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "customer_id", "total"}, []string{cols[0].Name, cols[1].Name, cols[2].Name})
}

func TestRelationship_RoundTrip(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()

	r := &types.Relationship{
		WorkspaceID: "ws1", DomainID: ptr("dom1"), SourceID: "a", TargetID: "b",
		Cardinality: ptr("one_to_many"), RelationshipType: ptr("foreign_key"), Label: ptr("places"),
	}
	require.NoError(t, a.SaveRelationship(ctx, r))
	assert.Equal(t, types.ResourceTable, r.SourceType)

	got, err := a.GetRelationship(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	byEndpoint, err := a.GetRelationshipsByEndpoint(ctx, "b")
	require.NoError(t, err)
	require.Len(t, byEndpoint, 1)

	byWorkspace, err := a.GetRelationshipsByWorkspace(ctx, "ws1")
	require.NoError(t, err)
	require.Len(t, byWorkspace, 1)

	assert.ErrorIs(t, a.SaveRelationship(ctx, &types.Relationship{WorkspaceID: "ws1", SourceID: "a"}), types.ErrMissingEndpoint)

	require.NoError(t, a.DeleteRelationship(ctx, r.ID))
	_, err = a.GetRelationship(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func link(t *testing.T, a *Adapter, id, source, target string, endpoints ...types.ResourceType) {
	t.Helper()
	r := &types.Relationship{ID: id, WorkspaceID: "ws1", SourceID: source, TargetID: target}
	if len(endpoints) == 2 {
		r.SourceType, r.TargetType = endpoints[0], endpoints[1]
	}
	require.NoError(t, a.SaveRelationship(context.Background(), r))
}

func TestGetRelatedTables(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()

	// a - b - c - d, with a cycle back from c to a, and e hanging off d
	link(t, a, "r1", "a", "b")
	link(t, a, "r2", "c", "b")
	link(t, a, "r3", "c", "d")
	link(t, a, "r4", "c", "a")
	link(t, a, "r5", "d", "e")

	depth1, err := a.GetRelatedTables(ctx, "a", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, depth1)

	depth2, err := a.GetRelatedTables(ctx, "a", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, depth2)
	assert.Subset(t, depth2, depth1)
	assert.NotContains(t, depth2, "a")

	deep, err := a.GetRelatedTables(ctx, "a", 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d", "e"}, deep)

	def, err := a.GetRelatedTables(ctx, "a", 0)
	require.NoError(t, err)
	assert.Equal(t, depth2, def)

	none, err := a.GetRelatedTables(ctx, "unlinked", 2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetRelatedTables_SkipsNonTableEndpoints(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()

	link(t, a, "r1", "orders", "customers")
	// orders feeds a system, which in turn feeds another table
	link(t, a, "r2", "orders", "kafka", types.ResourceTable, types.ResourceSystem)
	link(t, a, "r3", "kafka", "events", types.ResourceSystem, types.ResourceTable)

	related, err := a.GetRelatedTables(ctx, "orders", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"customers"}, related)
}

func TestSystem_RoundTrip(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()
	_, d := seedWorkspace(t, a)

	s := &types.System{
		DomainID: d.ID, Name: "warehouse", SystemType: ptr("postgresql"),
		Endpoint: ptr("postgres://db"), Metadata: map[string]any{"region": "eu"},
	}
	require.NoError(t, a.SaveSystem(ctx, s))

	got, err := a.GetSystem(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	list, err := a.GetSystemsByDomain(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, a.SaveSystem(ctx, &types.System{Name: "x"}), types.ErrMissingDomain)
	require.NoError(t, a.DeleteSystem(ctx, s.ID))
	_, err = a.GetSystem(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecision_RoundTrip(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()
	_, d := seedWorkspace(t, a)

	dec := &types.Decision{
		ID: "adr1", DomainID: d.ID, Number: 1, Title: "Use SQLite",
		Context: ptr("embedded"), Options: []map[string]any{{"name": "duckdb"}},
	}
	require.NoError(t, a.SaveDecision(ctx, dec))
	assert.Equal(t, types.DecisionProposed, dec.Status)
	assert.Equal(t, 1, dec.Version)

	got, err := a.GetDecision(ctx, dec.ID)
	require.NoError(t, err)
	assert.Equal(t, dec, got)

	next := &types.Decision{ID: "adr2", DomainID: d.ID, Number: 2, Title: "Use WAL", Status: types.DecisionAccepted}
	require.NoError(t, a.SaveDecision(ctx, next))
	dec.Status = types.DecisionSuperseded
	dec.SupersededBy = ptr("adr2")
	require.NoError(t, a.SaveDecision(ctx, dec))

	list, err := a.GetDecisionsByDomain(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "adr2", *list[0].SupersededBy)

	dec.SupersededBy = ptr(dec.ID)
	assert.ErrorIs(t, a.SaveDecision(ctx, dec), types.ErrInvalidDecisionRef)
}

func TestKnowledgeArticle_RoundTrip(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()
	_, d := seedWorkspace(t, a)

	k := &types.KnowledgeArticle{
		DomainID: d.ID, Number: 7, Title: "Order lifecycle", ArticleType: ptr("guide"),
		Status: types.ArticlePublished, Content: "# Orders\n\nStates...", Authors: []string{"ana", "li"},
	}
	require.NoError(t, a.SaveKnowledgeArticle(ctx, k))

	got, err := a.GetKnowledgeArticle(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, k, got)

	list, err := a.GetKnowledgeArticlesByDomain(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, a.DeleteKnowledgeArticle(ctx, k.ID))
	_, err = a.GetKnowledgeArticle(ctx, k.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTags(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.AddTag(ctx, types.ResourceSystem, "s1", "critical"))
	require.NoError(t, a.AddTag(ctx, types.ResourceSystem, "s1", "critical"))
	require.NoError(t, a.AddTag(ctx, types.ResourceTable, "t1", "critical"))

	tags, err := a.GetTags(ctx, types.ResourceSystem, "s1")
	require.NoError(t, err)
	assert.Len(t, tags, 2, "duplicates are stored")

	tagged, err := a.GetResourcesByTag(ctx, "critical")
	require.NoError(t, err)
	assert.Len(t, tagged, 3)

	n, err := a.RemoveTag(ctx, types.ResourceSystem, "s1", "critical")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDeleteDomain_Cascades(t *testing.T) {
	a, e := setupTestAdapter(t)
	ctx := context.Background()
	ws, d := seedWorkspace(t, a)

	require.NoError(t, a.SaveTable(ctx, ordersTable(ws, d)))
	require.NoError(t, a.SaveSystem(ctx, &types.System{ID: "sys", DomainID: d.ID, Name: "crm"}))
	require.NoError(t, a.AddTag(ctx, types.ResourceSystem, "sys", "x"))
	require.NoError(t, a.SaveDecision(ctx, &types.Decision{DomainID: d.ID, Title: "t"}))
	require.NoError(t, a.SaveKnowledgeArticle(ctx, &types.KnowledgeArticle{DomainID: d.ID, Title: "k"}))
	require.NoError(t, a.SaveRelationship(ctx, &types.Relationship{WorkspaceID: ws.ID, DomainID: ptr(d.ID), SourceID: "a", TargetID: "b"}))

	require.NoError(t, a.DeleteDomain(ctx, d.ID))

	for _, table := range []string{"domains", "tables", "columns", "systems", "decisions", "knowledge_articles", "relationships", "tags"} {
		assert.Equal(t, int64(0), countRows(t, e, "SELECT COUNT(*) AS n FROM "+table), table)
	}
	_, err := a.GetWorkspace(ctx, ws.ID)
	assert.NoError(t, err)
}

func TestDeleteWorkspace_Cascades(t *testing.T) {
	a, e := setupTestAdapter(t)
	ctx := context.Background()
	ws, d := seedWorkspace(t, a)

	require.NoError(t, a.SaveTable(ctx, ordersTable(ws, d)))
	require.NoError(t, a.SaveTable(ctx, &types.Table{ID: "loose", WorkspaceID: ws.ID, Name: "loose", Tags: []string{"t"}}))
	require.NoError(t, a.SaveRelationship(ctx, &types.Relationship{WorkspaceID: ws.ID, SourceID: "tbl_orders", TargetID: "loose"}))

	other := &types.Workspace{ID: "ws2", Name: "Other"}
	require.NoError(t, a.SaveWorkspace(ctx, other))
	require.NoError(t, a.SaveTable(ctx, &types.Table{ID: "keep", WorkspaceID: other.ID, Name: "keep"}))

	require.NoError(t, a.DeleteWorkspace(ctx, ws.ID))

	_, err := a.GetWorkspace(ctx, ws.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(1), countRows(t, e, "SELECT COUNT(*) AS n FROM tables"))
	assert.Equal(t, int64(0), countRows(t, e, "SELECT COUNT(*) AS n FROM columns"))
	assert.Equal(t, int64(0), countRows(t, e, "SELECT COUNT(*) AS n FROM tags"))
	assert.Equal(t, int64(0), countRows(t, e, "SELECT COUNT(*) AS n FROM relationships"))
}

func TestGetStats(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()
	ws, d := seedWorkspace(t, a)

	require.NoError(t, a.SaveTable(ctx, ordersTable(ws, d)))
	require.NoError(t, a.SaveSystem(ctx, &types.System{DomainID: d.ID, Name: "crm"}))
	require.NoError(t, a.SaveRelationship(ctx, &types.Relationship{WorkspaceID: ws.ID, SourceID: "a", TargetID: "b"}))

	stats, err := a.GetStats(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, &types.WorkspaceStats{
		WorkspaceID:   ws.ID,
		Domains:       1,
		Tables:        1,
		Columns:       3,
		Relationships: 1,
		Systems:       1,
		Tags:          2,
	}, stats)

	_, err = a.GetStats(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExists(t *testing.T) {
	a, _ := setupTestAdapter(t)
	ctx := context.Background()
	ws, d := seedWorkspace(t, a)

	for _, tc := range []struct {
		kind types.ResourceType
		id   string
		want bool
	}{
		{types.ResourceWorkspace, ws.ID, true},
		{types.ResourceDomain, d.ID, true},
		{types.ResourceTable, "tbl_orders", false},
		{types.ResourceSystem, "sys", false},
	} {
		got, err := a.Exists(ctx, tc.kind, tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s %s", tc.kind, tc.id)
	}

	_, err := a.Exists(ctx, types.ResourceType("widget"), "x")
	assert.Error(t, err)
}
