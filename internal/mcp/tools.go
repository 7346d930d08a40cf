package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/storage"
	"github.com/dshills/modelstore/internal/syncer"
)

// MCP error codes
const (
	ErrorCodeInvalidParams     = -32602 // Invalid method parameters
	ErrorCodeInternalError     = -32603 // Internal JSON-RPC error
	ErrorCodeWorkspaceNotFound = -32001 // Workspace id is not stored
	ErrorCodeSyncInProgress    = -32002 // Another sync run holds the lock
	ErrorCodeTableNotFound     = -32003 // Table id is not stored
	ErrorCodeEmptyQuery        = -32004 // Query parameter is empty
	ErrorCodeNotReadOnly       = -32005 // Query is not a SELECT or WITH statement
)

const (
	// DefaultRowLimit caps query_model results when no limit is given
	DefaultRowLimit = 100
	// MaxRowLimit is the largest accepted limit
	MaxRowLimit = 1000
)

// errReadOnly aborts the transaction wrapping a query_model statement so
// nothing it does is committed
var errReadOnly = errors.New("read-only query")

// handleQueryModel handles the query_model tool invocation
func (s *Server) handleQueryModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sql := strings.TrimSpace(getStringDefault(args, "sql", ""))
	if sql == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "sql parameter is required and cannot be empty", map[string]interface{}{
			"param":  "sql",
			"reason": "missing or empty",
		})
	}
	if err := validateReadOnly(sql); err != nil {
		return nil, newMCPError(ErrorCodeNotReadOnly, "only read-only queries are allowed", map[string]interface{}{
			"param":  "sql",
			"reason": err.Error(),
		})
	}

	limit := getIntDefault(args, "limit", DefaultRowLimit)
	if limit < 1 || limit > MaxRowLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", MaxRowLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	var params []any
	if raw, ok := args["params"]; ok && raw != nil {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, newMCPError(ErrorCodeInvalidParams, "params must be an array", map[string]interface{}{
				"param": "params",
			})
		}
		params = list
	}

	res, err := s.readOnlyQuery(ctx, sql, params)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "query failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	rows := res.Rows
	truncated := len(rows) > limit
	if truncated {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []engine.Row{}
	}

	response := map[string]interface{}{
		"columns":           res.ColumnNames,
		"rows":              rows,
		"row_count":         res.RowCount,
		"truncated":         truncated,
		"execution_time_ms": res.ExecutionTime.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// readOnlyQuery runs sql inside a transaction that is always rolled back
func (s *Server) readOnlyQuery(ctx context.Context, sql string, params []any) (*engine.QueryResult, error) {
	var res *engine.QueryResult
	tx := s.app.Engine.Transaction(ctx, func(tx *engine.Tx) error {
		res = tx.Query(ctx, sql, params...)
		if res.Err != nil {
			return res.Err
		}
		return errReadOnly
	})
	if tx.Err != nil && !errors.Is(tx.Err, errReadOnly) {
		return nil, tx.Err
	}
	return res, nil
}

// validateReadOnly accepts a single statement starting with SELECT or WITH
func validateReadOnly(sql string) error {
	body := strings.TrimSuffix(strings.TrimSpace(sql), ";")
	if strings.Contains(body, ";") {
		return errors.New("multiple statements are not allowed")
	}
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return errors.New("empty statement")
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH":
		return nil
	}
	return fmt.Errorf("statement starts with %s", fields[0])
}

// handleRelatedTables handles the related_tables tool invocation
func (s *Server) handleRelatedTables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	tableID, ok := args["table_id"].(string)
	if !ok || tableID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "table_id parameter is required", map[string]interface{}{
			"param":  "table_id",
			"reason": "missing or empty",
		})
	}

	depth := getIntDefault(args, "depth", storage.DefaultRelatedDepth)
	if depth < 1 || depth > storage.MaxRelatedDepth {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("depth must be between 1 and %d", storage.MaxRelatedDepth), map[string]interface{}{
			"param": "depth",
			"value": depth,
		})
	}

	exists, err := s.app.Store.TableExists(ctx, tableID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to look up table", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if !exists {
		return nil, newMCPError(ErrorCodeTableNotFound, "table not found", map[string]interface{}{
			"table_id": tableID,
		})
	}

	related, err := s.app.Store.GetRelatedTables(ctx, tableID, depth)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to traverse relationships", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"table_id": tableID,
		"depth":    depth,
		"related":  related,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleWorkspaceStats handles the workspace_stats tool invocation
func (s *Server) handleWorkspaceStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	workspaceID := getStringDefault(args, "workspace_id", "")

	if workspaceID == "" {
		workspaces, err := s.app.Store.ListWorkspaces(ctx)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to list workspaces", map[string]interface{}{
				"error": err.Error(),
			})
		}
		list := make([]map[string]interface{}, 0, len(workspaces))
		for _, ws := range workspaces {
			list = append(list, map[string]interface{}{
				"id":   ws.ID,
				"name": ws.Name,
			})
		}
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{"workspaces": list})), nil
	}

	stats, err := s.app.Store.GetStats(ctx, workspaceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeWorkspaceNotFound, "workspace not found", map[string]interface{}{
			"workspace_id": workspaceID,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get workspace stats", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"workspace_id": stats.WorkspaceID,
		"statistics": map[string]interface{}{
			"domains":            stats.Domains,
			"tables":             stats.Tables,
			"columns":            stats.Columns,
			"relationships":      stats.Relationships,
			"systems":            stats.Systems,
			"decisions":          stats.Decisions,
			"knowledge_articles": stats.KnowledgeArticles,
			"tags":               stats.Tags,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMigrationStatus handles the migration_status tool invocation
func (s *Server) handleMigrationStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.app.Schema.GetMigrationStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get migration status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	pending := make([]map[string]interface{}, 0, len(status.Pending))
	for _, m := range status.Pending {
		pending = append(pending, map[string]interface{}{
			"version": m.Version,
			"name":    m.Name,
		})
	}

	response := map[string]interface{}{
		"current_version": status.CurrentVersion,
		"latest_version":  status.LatestVersion,
		"pending":         pending,
		"applied":         status.Applied,
		"storage": map[string]interface{}{
			"mode":           s.app.Init.StorageMode,
			"engine_version": s.app.Init.Version,
			"warnings":       s.app.Init.Warnings,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleChangedFiles handles the changed_files tool invocation
func (s *Server) handleChangedFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	response := map[string]interface{}{}

	if getBoolDefault(args, "rescan", false) {
		if s.app.Config.Sync.WatchDir == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, "no watch directory configured", map[string]interface{}{
				"param":  "rescan",
				"reason": "sync.watch_dir is not set",
			})
		}
		scan, err := s.app.ScanWorkspace(ctx)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "scan failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		response["scan"] = map[string]interface{}{
			"files_scanned": scan.FilesScanned,
			"files_skipped": scan.FilesSkipped,
			"files_failed":  scan.FilesFailed,
			"errors":        scan.ErrorMessages,
			"duration_ms":   scan.Duration.Milliseconds(),
		}
	}

	files, err := s.app.Syncer.GetChangedFiles(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list changed files", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response["count"] = len(files)
	response["files"] = files
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSyncSnapshot handles the sync_snapshot tool invocation
func (s *Server) handleSyncSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": "path must be absolute",
		})
	}

	snap, err := syncer.FileSource{Path: path}.Snapshot(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "failed to load snapshot", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	opts := syncer.Options{PruneMissing: getBoolDefault(args, "prune_missing", false)}
	res := s.app.Syncer.SyncFromMemoryWithOptions(ctx, snap, opts)
	if errors.Is(res.Err, syncer.ErrSyncInProgress) {
		return nil, newMCPError(ErrorCodeSyncInProgress, "sync already in progress", nil)
	}
	if res.Err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "sync failed", map[string]interface{}{
			"error": res.Err.Error(),
		})
	}

	response := map[string]interface{}{
		"success":     res.Success,
		"statistics":  res.Stats,
		"warnings":    res.Warnings,
		"duration_ms": res.CompletedAt.Sub(res.StartedAt).Milliseconds(),
	}
	if len(res.Errors) > 0 {
		messages := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			messages = append(messages, e.Error())
		}
		// Include first few errors
		if len(messages) > 5 {
			response["errors"] = messages[:5]
			response["error_count"] = len(messages)
		} else {
			response["errors"] = messages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
