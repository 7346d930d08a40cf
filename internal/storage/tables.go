package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/query"
	"github.com/dshills/modelstore/pkg/types"
)

// Table operations

// GetTable returns a table with its columns and tags, or ErrNotFound
func (a *Adapter) GetTable(ctx context.Context, id string) (*types.Table, error) {
	row, err := first(ctx, a.db, query.Select("tables").Where("id", "=", id))
	if err != nil {
		return nil, err
	}
	t, err := tableFromRow(row)
	if err != nil {
		return nil, err
	}
	if err := a.attachChildren(ctx, []*types.Table{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// TableExists reports whether a table row with id is stored
func (a *Adapter) TableExists(ctx context.Context, id string) (bool, error) {
	return query.Select("tables").Where("id", "=", id).Exists(ctx, a.db)
}

// GetTablesByWorkspace returns every table of a workspace ordered by name
func (a *Adapter) GetTablesByWorkspace(ctx context.Context, workspaceID string) ([]*types.Table, error) {
	return a.listTables(ctx, query.Select("tables").Where("workspace_id", "=", workspaceID))
}

// GetTablesByDomain returns the tables of a domain ordered by name
func (a *Adapter) GetTablesByDomain(ctx context.Context, domainID string) ([]*types.Table, error) {
	return a.listTables(ctx, query.Select("tables").Where("domain_id", "=", domainID))
}

func (a *Adapter) listTables(ctx context.Context, b *query.SelectBuilder) ([]*types.Table, error) {
	rows, err := b.OrderBy("name", "ASC").All(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	tables := make([]*types.Table, 0, len(rows))
	for _, row := range rows {
		t, err := tableFromRow(row)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if err := a.attachChildren(ctx, tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// attachChildren loads the columns and tags of tables with one query each
func (a *Adapter) attachChildren(ctx context.Context, tables []*types.Table) error {
	if len(tables) == 0 {
		return nil
	}
	byID := make(map[string]*types.Table, len(tables))
	tableIDs := make([]string, 0, len(tables))
	for _, t := range tables {
		byID[t.ID] = t
		tableIDs = append(tableIDs, t.ID)
	}

	colRows, err := query.Select("columns").
		WhereIn("table_id", query.Values(tableIDs)...).
		OrderBy("table_id", "ASC").
		OrderBy("ordinal_position", "ASC").
		All(ctx, a.db)
	if err != nil {
		return fmt.Errorf("failed to load columns: %w", err)
	}
	for _, row := range colRows {
		col, err := columnFromRow(row)
		if err != nil {
			return err
		}
		t := byID[col.TableID]
		t.Columns = append(t.Columns, *col)
	}

	tagRows, err := query.Select("tags").
		Where("resource_type", "=", string(types.ResourceTable)).
		WhereIn("resource_id", query.Values(tableIDs)...).
		OrderBy("id", "ASC").
		All(ctx, a.db)
	if err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	for _, row := range tagRows {
		tag := tagFromRow(row)
		t := byID[tag.ResourceID]
		t.Tags = append(t.Tags, tag.Value)
	}
	return nil
}

// GetColumnsByTable returns the columns of a table in ordinal order.
// Columns are written only through SaveTable.
func (a *Adapter) GetColumnsByTable(ctx context.Context, tableID string) ([]types.Column, error) {
	rows, err := query.Select("columns").
		Where("table_id", "=", tableID).
		OrderBy("ordinal_position", "ASC").
		All(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	cols := make([]types.Column, 0, len(rows))
	for _, row := range rows {
		col, err := columnFromRow(row)
		if err != nil {
			return nil, err
		}
		cols = append(cols, *col)
	}
	return cols, nil
}

// SaveTable upserts t and replaces all of its columns and tags in one
// transaction. Columns are deleted and reinserted on every save, so the cost
// is proportional to the column count rather than to what changed. Missing
// column ids are generated, TableID is set, and OrdinalPosition follows the
// slice order.
func (a *Adapter) SaveTable(ctx context.Context, t *types.Table) error {
	a.stamp(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err := t.Validate(); err != nil {
		return err
	}

	tableRow, err := tableValues(t)
	if err != nil {
		return err
	}
	var cols *query.InsertBuilder
	if len(t.Columns) > 0 {
		cols = query.Insert("columns").Columns(columnFields...)
		for i := range t.Columns {
			col := &t.Columns[i]
			if col.ID == "" {
				col.ID = a.newID()
			}
			col.TableID = t.ID
			col.OrdinalPosition = i
			values, err := columnValues(col)
			if err != nil {
				return fmt.Errorf("column %s: %w", col.Name, err)
			}
			cols.AddRow(values...)
		}
	}

	err = a.transaction(ctx, func(tx *engine.Tx) error {
		_, err := query.Insert("tables").OrReplace().Columns(tableFields...).AddRow(tableRow...).Exec(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to save table: %w", err)
		}
		if _, err := query.Delete("columns").Where("table_id", "=", t.ID).Exec(ctx, tx); err != nil {
			return fmt.Errorf("failed to delete columns: %w", err)
		}
		if cols != nil {
			if _, err := cols.Exec(ctx, tx); err != nil {
				return fmt.Errorf("failed to insert columns: %w", err)
			}
		}
		if err := deleteTags(ctx, tx, types.ResourceTable, t.ID); err != nil {
			return err
		}
		return insertTags(ctx, tx, types.ResourceTable, t.ID, t.Tags)
	})
	if err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{"table_id": t.ID, "columns": len(t.Columns)}).Debug("table saved")
	return nil
}

var tableFields = []string{
	"id", "workspace_id", "domain_id", "name", "alias", "description", "owner",
	"data_level", "medallion_layers", "created_at", "updated_at",
}

func tableValues(t *types.Table) ([]any, error) {
	layers, err := encodeJSON(t.MedallionLayers)
	if err != nil {
		return nil, err
	}
	var domainID any
	if t.DomainID != "" {
		domainID = t.DomainID
	}
	return []any{
		t.ID, t.WorkspaceID, domainID, t.Name, nullable(t.Alias), nullable(t.Description),
		nullable(t.Owner), nullable(t.DataLevel), layers,
		engine.FormatTime(t.CreatedAt), engine.FormatTime(t.UpdatedAt),
	}, nil
}

var columnFields = []string{
	"id", "table_id", "name", "logical_type", "physical_type", "description",
	"nullable", "primary_key", "is_unique", "ordinal_position", "default_value",
	"foreign_key", "constraints", "quality_rules",
}

func columnValues(c *types.Column) ([]any, error) {
	fk, err := encodeJSON(c.ForeignKey)
	if err != nil {
		return nil, err
	}
	constraints, err := encodeJSON(c.Constraints)
	if err != nil {
		return nil, err
	}
	rules, err := encodeJSON(c.QualityRules)
	if err != nil {
		return nil, err
	}
	return []any{
		c.ID, c.TableID, c.Name, c.LogicalType, nullable(c.PhysicalType), nullable(c.Description),
		c.Nullable, c.PrimaryKey, c.Unique, c.OrdinalPosition, nullable(c.DefaultValue),
		fk, constraints, rules,
	}, nil
}

// DeleteTable removes the columns, the tags and then the row of a table in
// one transaction
func (a *Adapter) DeleteTable(ctx context.Context, id string) error {
	return a.transaction(ctx, func(tx *engine.Tx) error {
		return deleteTableRows(ctx, tx, []string{id})
	})
}

// deleteTables removes every table selected by b, with dependents
func deleteTables(ctx context.Context, ex engine.Executor, b *query.SelectBuilder) error {
	tableIDs, err := ids(ctx, ex, b)
	if err != nil {
		return err
	}
	return deleteTableRows(ctx, ex, tableIDs)
}

func deleteTableRows(ctx context.Context, ex engine.Executor, tableIDs []string) error {
	if len(tableIDs) == 0 {
		return nil
	}
	values := query.Values(tableIDs)
	steps := []struct {
		what string
		b    *query.DeleteBuilder
	}{
		{"columns", query.Delete("columns").WhereIn("table_id", values...)},
		{"tags", query.Delete("tags").Where("resource_type", "=", string(types.ResourceTable)).WhereIn("resource_id", values...)},
		{"table", query.Delete("tables").WhereIn("id", values...)},
	}
	for _, step := range steps {
		if _, err := step.b.Exec(ctx, ex); err != nil {
			return fmt.Errorf("failed to delete %s: %w", step.what, err)
		}
	}
	return nil
}
