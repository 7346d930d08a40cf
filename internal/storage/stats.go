package storage

import (
	"context"
	"fmt"

	"github.com/dshills/modelstore/internal/query"
	"github.com/dshills/modelstore/pkg/types"
)

// GetStats counts the entities stored for a workspace
func (a *Adapter) GetStats(ctx context.Context, workspaceID string) (*types.WorkspaceStats, error) {
	if _, err := a.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}

	byDomain := func(table string) *query.SelectBuilder {
		return query.Select(table, "x").
			Join("INNER", "domains", "d.id = x.domain_id", "d").
			Where("d.workspace_id", "=", workspaceID)
	}

	stats := &types.WorkspaceStats{WorkspaceID: workspaceID}
	counts := []struct {
		name string
		dst  *int
		b    *query.SelectBuilder
	}{
		{"domains", &stats.Domains, query.Select("domains").Where("workspace_id", "=", workspaceID)},
		{"tables", &stats.Tables, query.Select("tables").Where("workspace_id", "=", workspaceID)},
		{"columns", &stats.Columns, query.Select("columns", "c").
			Join("INNER", "tables", "t.id = c.table_id", "t").
			Where("t.workspace_id", "=", workspaceID)},
		{"relationships", &stats.Relationships, query.Select("relationships").Where("workspace_id", "=", workspaceID)},
		{"systems", &stats.Systems, byDomain("systems")},
		{"decisions", &stats.Decisions, byDomain("decisions")},
		{"knowledge_articles", &stats.KnowledgeArticles, byDomain("knowledge_articles")},
		{"tags", &stats.Tags, query.Select("tags", "g").
			Join("INNER", "tables", "t.id = g.resource_id", "t").
			Where("g.resource_type", "=", string(types.ResourceTable)).
			AndWhere("t.workspace_id", "=", workspaceID)},
	}
	for _, c := range counts {
		n, err := c.b.Count(ctx, a.db)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.name, err)
		}
		*c.dst = int(n)
	}
	return stats, nil
}
