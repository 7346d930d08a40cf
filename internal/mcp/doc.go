// Package mcp implements the Model Context Protocol (MCP) server for the
// model store.
//
// The server exposes the store to AI assistants through six tools:
//   - query_model: run a read-only SQL query
//   - related_tables: walk relationships from a table
//   - workspace_stats: count what a workspace holds, or list workspaces
//   - migration_status: schema version and storage mode
//   - changed_files: tracked files that drifted since their last sync
//   - sync_snapshot: write a YAML model snapshot to the store
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started with:
//
//	modelstore serve
//
// It listens on stdin and writes responses to stdout. Logs go to stderr.
//
// # Tool: query_model
//
//	Request:
//	{
//	  "name": "query_model",
//	  "arguments": {
//	    "sql": "SELECT id, name FROM tables WHERE workspace_id = ?",
//	    "params": ["ws1"],
//	    "limit": 100
//	  }
//	}
//
//	Response:
//	{
//	  "columns": ["id", "name"],
//	  "rows": [{"id": "t_orders", "name": "orders"}],
//	  "row_count": 1,
//	  "truncated": false,
//	  "execution_time_ms": 0
//	}
//
// Only a single SELECT or WITH statement is accepted, and it runs inside a
// transaction that is always rolled back.
//
// # Tool: related_tables
//
//	Request:
//	{
//	  "name": "related_tables",
//	  "arguments": {"table_id": "t_orders", "depth": 2}
//	}
//
//	Response:
//	{
//	  "table_id": "t_orders",
//	  "depth": 2,
//	  "related": ["t_customers", "t_regions"]
//	}
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "modelstore": {
//	      "command": "/usr/local/bin/modelstore",
//	      "args": ["serve"],
//	      "env": {
//	        "MODELSTORE_DATA_DIR": "/var/lib/modelstore"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Handlers return *MCPError values carrying a JSON-RPC code:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Workspace not found
//   - -32002: Sync in progress
//   - -32003: Table not found
//   - -32004: Empty query
//   - -32005: Query is not read-only
package mcp
