package storage

import (
	"context"
	"fmt"

	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/query"
	"github.com/dshills/modelstore/pkg/types"
)

const (
	// DefaultRelatedDepth is used by GetRelatedTables when depth <= 0
	DefaultRelatedDepth = 2
	// MaxRelatedDepth caps the traversal depth of GetRelatedTables
	MaxRelatedDepth = 10
)

// Relationship operations

// GetRelationship returns the relationship with id, or ErrNotFound
func (a *Adapter) GetRelationship(ctx context.Context, id string) (*types.Relationship, error) {
	row, err := first(ctx, a.db, query.Select("relationships").Where("id", "=", id))
	if err != nil {
		return nil, err
	}
	return relationshipFromRow(row), nil
}

// GetRelationshipsByWorkspace returns every relationship of a workspace
func (a *Adapter) GetRelationshipsByWorkspace(ctx context.Context, workspaceID string) ([]*types.Relationship, error) {
	return a.listRelationships(ctx, query.Select("relationships").Where("workspace_id", "=", workspaceID))
}

// GetRelationshipsByEndpoint returns the relationships where resourceID is
// the source or the target
func (a *Adapter) GetRelationshipsByEndpoint(ctx context.Context, resourceID string) ([]*types.Relationship, error) {
	return a.listRelationships(ctx, query.Select("relationships").
		Where("source_id", "=", resourceID).
		OrWhere("target_id", "=", resourceID))
}

func (a *Adapter) listRelationships(ctx context.Context, b *query.SelectBuilder) ([]*types.Relationship, error) {
	rows, err := b.OrderBy("created_at", "ASC").OrderBy("id", "ASC").All(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	out := make([]*types.Relationship, 0, len(rows))
	for _, row := range rows {
		out = append(out, relationshipFromRow(row))
	}
	return out, nil
}

// SaveRelationship upserts r. Empty endpoint types default to table.
func (a *Adapter) SaveRelationship(ctx context.Context, r *types.Relationship) error {
	a.stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err := r.Validate(); err != nil {
		return err
	}
	if r.WorkspaceID == "" {
		return types.ErrMissingWorkspace
	}
	if r.SourceType == "" {
		r.SourceType = types.ResourceTable
	}
	if r.TargetType == "" {
		r.TargetType = types.ResourceTable
	}
	_, err := query.Insert("relationships").
		OrReplace().
		Columns("id", "workspace_id", "domain_id", "source_id", "target_id", "source_type", "target_type",
			"cardinality", "relationship_type", "label", "created_at", "updated_at").
		AddRow(r.ID, r.WorkspaceID, nullable(r.DomainID), r.SourceID, r.TargetID,
			string(r.SourceType), string(r.TargetType), nullable(r.Cardinality),
			nullable(r.RelationshipType), nullable(r.Label),
			engine.FormatTime(r.CreatedAt), engine.FormatTime(r.UpdatedAt)).
		Exec(ctx, a.db)
	if err != nil {
		return fmt.Errorf("failed to save relationship: %w", err)
	}
	return nil
}

// DeleteRelationship removes a relationship and its tags
func (a *Adapter) DeleteRelationship(ctx context.Context, id string) error {
	return a.deleteWithTags(ctx, "relationships", types.ResourceRelation, id)
}

// relatedTablesSQL walks relationships outward from the seed id, one hop per
// recursion step. Only table-to-table relationships are followed, so the
// frontier never contains systems or other resources.
const relatedTablesSQL = `
WITH RECURSIVE related(id, depth) AS (
    SELECT ?, 0
    UNION
    SELECT CASE WHEN r.source_id = related.id THEN r.target_id ELSE r.source_id END,
           related.depth + 1
    FROM relationships r
    JOIN related ON r.source_id = related.id OR r.target_id = related.id
    WHERE related.depth < ?
      AND r.source_type = ?
      AND r.target_type = ?
)
SELECT DISTINCT id FROM related WHERE id != ? ORDER BY id`

// GetRelatedTables returns the ids of tables reachable from tableID within
// depth hops, excluding tableID itself. depth <= 0 means
// DefaultRelatedDepth; larger values are capped at MaxRelatedDepth.
func (a *Adapter) GetRelatedTables(ctx context.Context, tableID string, depth int) ([]string, error) {
	if depth <= 0 {
		depth = DefaultRelatedDepth
	}
	depth = min(depth, MaxRelatedDepth)

	table := string(types.ResourceTable)
	rows, err := query.Raw(relatedTablesSQL, tableID, depth, table, table, tableID).Query(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("failed to traverse relationships: %w", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.String("id"))
	}
	return out, nil
}
