package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/modelstore/internal/storage"
)

// queryModelTool returns the tool definition for query_model
func queryModelTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_model",
		Description: "Run a read-only SQL query (SELECT or WITH) against the model store",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"sql": map[string]interface{}{
					"type":        "string",
					"description": "A single SELECT or WITH statement using ? placeholders",
				},
				"params": map[string]interface{}{
					"type":        "array",
					"description": "Values bound to the ? placeholders in order",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of rows returned",
					"default":     DefaultRowLimit,
					"minimum":     1,
					"maximum":     MaxRowLimit,
				},
			},
			Required: []string{"sql"},
		},
	}
}

// relatedTablesTool returns the tool definition for related_tables
func relatedTablesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "related_tables",
		Description: "List the tables reachable from a table through relationships",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"table_id": map[string]interface{}{
					"type":        "string",
					"description": "Id of the starting table",
				},
				"depth": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of relationship hops",
					"default":     storage.DefaultRelatedDepth,
					"minimum":     1,
					"maximum":     storage.MaxRelatedDepth,
				},
			},
			Required: []string{"table_id"},
		},
	}
}

// workspaceStatsTool returns the tool definition for workspace_stats
func workspaceStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "workspace_stats",
		Description: "Count the entities stored for a workspace, or list workspaces when none is given",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"workspace_id": map[string]interface{}{
					"type":        "string",
					"description": "Workspace id; omit to list every workspace",
				},
			},
		},
	}
}

// migrationStatusTool returns the tool definition for migration_status
func migrationStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "migration_status",
		Description: "Report the schema version, pending migrations and storage mode",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// changedFilesTool returns the tool definition for changed_files
func changedFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "changed_files",
		Description: "List tracked files that are new, modified or deleted since their last sync",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"rescan": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, scan the configured watch directory first",
					"default":     false,
				},
			},
		},
	}
}

// syncSnapshotTool returns the tool definition for sync_snapshot
func syncSnapshotTool() mcp.Tool {
	return mcp.Tool{
		Name:        "sync_snapshot",
		Description: "Load a YAML model snapshot and write it to the store",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the snapshot file",
				},
				"prune_missing": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, delete stored tables and relationships absent from the snapshot",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}
