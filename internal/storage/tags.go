package storage

import (
	"context"
	"fmt"

	"github.com/dshills/modelstore/internal/query"
	"github.com/dshills/modelstore/pkg/types"
)

// Tag operations. Tags are not unique: adding the same value twice stores
// two rows.

// GetTags returns the tags of one resource in insertion order
func (a *Adapter) GetTags(ctx context.Context, resourceType types.ResourceType, resourceID string) ([]types.Tag, error) {
	return a.listTags(ctx, query.Select("tags").
		Where("resource_type", "=", string(resourceType)).
		AndWhere("resource_id", "=", resourceID))
}

// GetResourcesByTag returns every tag row carrying value
func (a *Adapter) GetResourcesByTag(ctx context.Context, value string) ([]types.Tag, error) {
	return a.listTags(ctx, query.Select("tags").Where("value", "=", value))
}

func (a *Adapter) listTags(ctx context.Context, b *query.SelectBuilder) ([]types.Tag, error) {
	rows, err := b.OrderBy("id", "ASC").All(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	out := make([]types.Tag, 0, len(rows))
	for _, row := range rows {
		out = append(out, tagFromRow(row))
	}
	return out, nil
}

// AddTag attaches value to a resource
func (a *Adapter) AddTag(ctx context.Context, resourceType types.ResourceType, resourceID, value string) error {
	if resourceID == "" {
		return types.ErrMissingID
	}
	return insertTags(ctx, a.db, resourceType, resourceID, []string{value})
}

// RemoveTag deletes every row of value on a resource and returns how many
// were removed
func (a *Adapter) RemoveTag(ctx context.Context, resourceType types.ResourceType, resourceID, value string) (int64, error) {
	n, err := query.Delete("tags").
		Where("resource_type", "=", string(resourceType)).
		AndWhere("resource_id", "=", resourceID).
		AndWhere("value", "=", value).
		Exec(ctx, a.db)
	if err != nil {
		return 0, fmt.Errorf("failed to remove tag: %w", err)
	}
	return n, nil
}
