package storage

import (
	"context"
	"fmt"

	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/query"
	"github.com/dshills/modelstore/pkg/types"
)

// Workspace operations

// GetWorkspace returns the workspace with id, or ErrNotFound
func (a *Adapter) GetWorkspace(ctx context.Context, id string) (*types.Workspace, error) {
	row, err := first(ctx, a.db, query.Select("workspaces").Where("id", "=", id))
	if err != nil {
		return nil, err
	}
	return workspaceFromRow(row), nil
}

// ListWorkspaces returns every workspace ordered by name
func (a *Adapter) ListWorkspaces(ctx context.Context) ([]*types.Workspace, error) {
	rows, err := query.Select("workspaces").OrderBy("name", "ASC").All(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	out := make([]*types.Workspace, 0, len(rows))
	for _, row := range rows {
		out = append(out, workspaceFromRow(row))
	}
	return out, nil
}

// SaveWorkspace upserts ws
func (a *Adapter) SaveWorkspace(ctx context.Context, ws *types.Workspace) error {
	if ws.Name == "" {
		return types.ErrMissingName
	}
	a.stamp(&ws.ID, &ws.CreatedAt, &ws.UpdatedAt)
	_, err := query.Insert("workspaces").
		OrReplace().
		Columns("id", "name", "description", "owner_id", "created_at", "updated_at").
		AddRow(ws.ID, ws.Name, nullable(ws.Description), nullable(ws.OwnerID),
			engine.FormatTime(ws.CreatedAt), engine.FormatTime(ws.UpdatedAt)).
		Exec(ctx, a.db)
	if err != nil {
		return fmt.Errorf("failed to save workspace: %w", err)
	}
	return nil
}

// DeleteWorkspace removes a workspace and everything it contains in one
// transaction
func (a *Adapter) DeleteWorkspace(ctx context.Context, id string) error {
	return a.transaction(ctx, func(tx *engine.Tx) error {
		domainIDs, err := ids(ctx, tx, query.Select("domains").Columns("id").Where("workspace_id", "=", id))
		if err != nil {
			return err
		}
		for _, domainID := range domainIDs {
			if err := deleteDomainContents(ctx, tx, domainID); err != nil {
				return err
			}
		}
		// Tables and relationships without a domain
		if err := deleteTables(ctx, tx, query.Select("tables").Columns("id").Where("workspace_id", "=", id)); err != nil {
			return err
		}
		steps := []*query.DeleteBuilder{
			query.Delete("relationships").Where("workspace_id", "=", id),
			query.Delete("domains").Where("workspace_id", "=", id),
			query.Delete("tags").Where("resource_type", "=", string(types.ResourceWorkspace)).AndWhere("resource_id", "=", id),
			query.Delete("workspaces").Where("id", "=", id),
		}
		for _, step := range steps {
			if _, err := step.Exec(ctx, tx); err != nil {
				return fmt.Errorf("failed to delete workspace: %w", err)
			}
		}
		return nil
	})
}

// Domain operations

// GetDomain returns the domain with id, or ErrNotFound
func (a *Adapter) GetDomain(ctx context.Context, id string) (*types.Domain, error) {
	row, err := first(ctx, a.db, query.Select("domains").Where("id", "=", id))
	if err != nil {
		return nil, err
	}
	return domainFromRow(row), nil
}

// GetDomainsByWorkspace returns the domains of a workspace ordered by name
func (a *Adapter) GetDomainsByWorkspace(ctx context.Context, workspaceID string) ([]*types.Domain, error) {
	rows, err := query.Select("domains").
		Where("workspace_id", "=", workspaceID).
		OrderBy("name", "ASC").
		All(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	out := make([]*types.Domain, 0, len(rows))
	for _, row := range rows {
		out = append(out, domainFromRow(row))
	}
	return out, nil
}

// SaveDomain upserts d
func (a *Adapter) SaveDomain(ctx context.Context, d *types.Domain) error {
	if d.Name == "" {
		return types.ErrMissingName
	}
	if d.WorkspaceID == "" {
		return types.ErrMissingWorkspace
	}
	a.stamp(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	_, err := query.Insert("domains").
		OrReplace().
		Columns("id", "workspace_id", "name", "description", "created_at", "updated_at").
		AddRow(d.ID, d.WorkspaceID, d.Name, nullable(d.Description),
			engine.FormatTime(d.CreatedAt), engine.FormatTime(d.UpdatedAt)).
		Exec(ctx, a.db)
	if err != nil {
		return fmt.Errorf("failed to save domain: %w", err)
	}
	return nil
}

// DeleteDomain removes a domain with its tables, systems, decisions,
// articles and relationships in one transaction
func (a *Adapter) DeleteDomain(ctx context.Context, id string) error {
	return a.transaction(ctx, func(tx *engine.Tx) error {
		if err := deleteDomainContents(ctx, tx, id); err != nil {
			return err
		}
		if err := deleteTags(ctx, tx, types.ResourceDomain, id); err != nil {
			return err
		}
		if _, err := query.Delete("domains").Where("id", "=", id).Exec(ctx, tx); err != nil {
			return fmt.Errorf("failed to delete domain: %w", err)
		}
		return nil
	})
}

// deleteDomainContents removes every child of a domain but not the domain
func deleteDomainContents(ctx context.Context, ex engine.Executor, domainID string) error {
	if err := deleteTables(ctx, ex, query.Select("tables").Columns("id").Where("domain_id", "=", domainID)); err != nil {
		return err
	}
	children := []struct {
		table        string
		resourceType types.ResourceType
	}{
		{"systems", types.ResourceSystem},
		{"decisions", types.ResourceDecision},
		{"knowledge_articles", types.ResourceArticle},
	}
	for _, child := range children {
		childIDs, err := ids(ctx, ex, query.Select(child.table).Columns("id").Where("domain_id", "=", domainID))
		if err != nil {
			return err
		}
		if len(childIDs) > 0 {
			_, err = query.Delete("tags").
				Where("resource_type", "=", string(child.resourceType)).
				WhereIn("resource_id", query.Values(childIDs)...).
				Exec(ctx, ex)
			if err != nil {
				return fmt.Errorf("failed to delete %s tags: %w", child.table, err)
			}
		}
		if _, err := query.Delete(child.table).Where("domain_id", "=", domainID).Exec(ctx, ex); err != nil {
			return fmt.Errorf("failed to delete %s: %w", child.table, err)
		}
	}
	if _, err := query.Delete("relationships").Where("domain_id", "=", domainID).Exec(ctx, ex); err != nil {
		return fmt.Errorf("failed to delete relationships: %w", err)
	}
	return nil
}

// ids runs a single-column select of ids
func ids(ctx context.Context, ex engine.Executor, b *query.SelectBuilder) ([]string, error) {
	rows, err := b.All(ctx, ex)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.String("id"))
	}
	return out, nil
}
