// Package types provides the entity definitions shared by the modelstore
// components: the storage adapter, the sync engine, the exporters and the
// tool server.
//
// # Core Types
//
// A Workspace is the root container. Domains group resources inside a
// workspace; Tables, Systems, Decisions and KnowledgeArticles belong to a
// domain. Relationships connect any two resources by identifier:
//
//	table := &types.Table{
//	    ID:          "tbl-orders",
//	    WorkspaceID: "ws-1",
//	    DomainID:    "dom-sales",
//	    Name:        "orders",
//	    Columns: []types.Column{
//	        {ID: "col-1", Name: "id", LogicalType: "uuid", PrimaryKey: true},
//	    },
//	    Tags: []string{"pii"},
//	}
//
// No entity owns another. Columns are the exception in practice: they are
// written and deleted together with their table.
//
// # Sync Metadata
//
// SyncMetadata records the content hash of each external file the sync
// engine tracks, so later runs can detect external edits without re-parsing
// the file:
//
//	meta := &types.SyncMetadata{
//	    FilePath:     "tables/orders.yaml",
//	    FileHash:     "9f86d0...",
//	    ResourceType: types.ResourceTable,
//	    SyncStatus:   types.SyncStatusSynced,
//	}
//
// # Validation
//
// Table and Relationship implement Validate. The sync engine calls it before
// saving so one malformed record is reported instead of written.
package types
