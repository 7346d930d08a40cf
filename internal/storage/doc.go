// Package storage provides entity persistence for the data model on top of
// the embedded engine.
//
// The adapter manages:
//   - Workspaces and domains
//   - Tables with their ordered columns and tags
//   - Relationships between tables and other resources
//   - Systems, decisions and knowledge articles scoped to a domain
//   - Free-form tags on any resource
//
// # Saving
//
// Every Save method is an upsert keyed by id (INSERT OR REPLACE). There is no
// separate create path, so an accidental overwrite is not detected. Missing
// ids are generated and timestamps are filled on the entity passed in.
//
//	adapter := storage.New(eng, log)
//	err := adapter.SaveTable(ctx, &types.Table{
//	    WorkspaceID: ws.ID,
//	    Name:        "orders",
//	    Columns:     []types.Column{{Name: "id", LogicalType: "uuid", PrimaryKey: true}},
//	})
//
// SaveTable replaces the stored columns and tags of the table wholesale,
// inside one transaction. After a successful save the stored columns are
// exactly the ones passed in.
//
// # Deleting
//
// The engine does not enforce foreign keys. DeleteTable, DeleteDomain and
// DeleteWorkspace remove dependent rows themselves, children first, inside
// one transaction.
//
// # Graph Traversal
//
// GetRelatedTables walks table-to-table relationships in both directions with
// a recursive query bounded by depth. Relationships with a non-table endpoint
// are not followed.
//
//	ids, err := adapter.GetRelatedTables(ctx, ordersID, 2)
//
// # Errors
//
// Lookups of a missing entity return ErrNotFound. Validation failures return
// the sentinel errors of pkg/types.
package storage
