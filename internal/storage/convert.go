package storage

import (
	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/pkg/types"
)

// One conversion per entity kind. NULL columns map to nil pointers and nil
// collections; defaults for enums and versions are filled here.

func workspaceFromRow(r engine.Row) *types.Workspace {
	return &types.Workspace{
		ID:          r.String("id"),
		Name:        r.String("name"),
		Description: r.NullString("description"),
		OwnerID:     r.NullString("owner_id"),
		CreatedAt:   r.Time("created_at"),
		UpdatedAt:   r.Time("updated_at"),
	}
}

func domainFromRow(r engine.Row) *types.Domain {
	return &types.Domain{
		ID:          r.String("id"),
		WorkspaceID: r.String("workspace_id"),
		Name:        r.String("name"),
		Description: r.NullString("description"),
		CreatedAt:   r.Time("created_at"),
		UpdatedAt:   r.Time("updated_at"),
	}
}

func tableFromRow(r engine.Row) (*types.Table, error) {
	t := &types.Table{
		ID:          r.String("id"),
		WorkspaceID: r.String("workspace_id"),
		DomainID:    r.String("domain_id"),
		Name:        r.String("name"),
		Alias:       r.NullString("alias"),
		Description: r.NullString("description"),
		Owner:       r.NullString("owner"),
		DataLevel:   r.NullString("data_level"),
		CreatedAt:   r.Time("created_at"),
		UpdatedAt:   r.Time("updated_at"),
	}
	if err := r.JSON("medallion_layers", &t.MedallionLayers); err != nil {
		return nil, err
	}
	return t, nil
}

func columnFromRow(r engine.Row) (*types.Column, error) {
	c := &types.Column{
		ID:              r.String("id"),
		TableID:         r.String("table_id"),
		Name:            r.String("name"),
		LogicalType:     r.String("logical_type"),
		PhysicalType:    r.NullString("physical_type"),
		Description:     r.NullString("description"),
		Nullable:        r.Bool("nullable"),
		PrimaryKey:      r.Bool("primary_key"),
		Unique:          r.Bool("is_unique"),
		OrdinalPosition: r.Int("ordinal_position"),
		DefaultValue:    r.NullString("default_value"),
	}
	if err := r.JSON("foreign_key", &c.ForeignKey); err != nil {
		return nil, err
	}
	if err := r.JSON("constraints", &c.Constraints); err != nil {
		return nil, err
	}
	if err := r.JSON("quality_rules", &c.QualityRules); err != nil {
		return nil, err
	}
	return c, nil
}

func relationshipFromRow(r engine.Row) *types.Relationship {
	rel := &types.Relationship{
		ID:               r.String("id"),
		WorkspaceID:      r.String("workspace_id"),
		DomainID:         r.NullString("domain_id"),
		SourceID:         r.String("source_id"),
		TargetID:         r.String("target_id"),
		SourceType:       types.ResourceType(r.String("source_type")),
		TargetType:       types.ResourceType(r.String("target_type")),
		Cardinality:      r.NullString("cardinality"),
		RelationshipType: r.NullString("relationship_type"),
		Label:            r.NullString("label"),
		CreatedAt:        r.Time("created_at"),
		UpdatedAt:        r.Time("updated_at"),
	}
	if rel.SourceType == "" {
		rel.SourceType = types.ResourceTable
	}
	if rel.TargetType == "" {
		rel.TargetType = types.ResourceTable
	}
	return rel
}

func systemFromRow(r engine.Row) (*types.System, error) {
	s := &types.System{
		ID:          r.String("id"),
		DomainID:    r.String("domain_id"),
		Name:        r.String("name"),
		SystemType:  r.NullString("system_type"),
		Description: r.NullString("description"),
		Endpoint:    r.NullString("endpoint"),
		CreatedAt:   r.Time("created_at"),
		UpdatedAt:   r.Time("updated_at"),
	}
	if err := r.JSON("metadata", &s.Metadata); err != nil {
		return nil, err
	}
	return s, nil
}

func decisionFromRow(r engine.Row) (*types.Decision, error) {
	d := &types.Decision{
		ID:           r.String("id"),
		DomainID:     r.String("domain_id"),
		Number:       r.Int("number"),
		Title:        r.String("title"),
		Status:       types.DecisionStatus(r.String("status")),
		Context:      r.NullString("context"),
		Decision:     r.NullString("decision"),
		Consequences: r.NullString("consequences"),
		SupersededBy: r.NullString("superseded_by"),
		Version:      r.Int("version"),
		CreatedAt:    r.Time("created_at"),
		UpdatedAt:    r.Time("updated_at"),
	}
	if d.Status == "" {
		d.Status = types.DecisionProposed
	}
	if d.Version == 0 {
		d.Version = 1
	}
	if err := r.JSON("options", &d.Options); err != nil {
		return nil, err
	}
	return d, nil
}

func articleFromRow(r engine.Row) (*types.KnowledgeArticle, error) {
	k := &types.KnowledgeArticle{
		ID:          r.String("id"),
		DomainID:    r.String("domain_id"),
		Number:      r.Int("number"),
		Title:       r.String("title"),
		ArticleType: r.NullString("article_type"),
		Status:      types.ArticleStatus(r.String("status")),
		Summary:     r.NullString("summary"),
		Content:     r.String("content"),
		Version:     r.Int("version"),
		CreatedAt:   r.Time("created_at"),
		UpdatedAt:   r.Time("updated_at"),
	}
	if k.Status == "" {
		k.Status = types.ArticleDraft
	}
	if k.Version == 0 {
		k.Version = 1
	}
	if err := r.JSON("authors", &k.Authors); err != nil {
		return nil, err
	}
	return k, nil
}

func tagFromRow(r engine.Row) types.Tag {
	return types.Tag{
		ID:           r.Int64("id"),
		ResourceType: types.ResourceType(r.String("resource_type")),
		ResourceID:   r.String("resource_id"),
		Value:        r.String("value"),
	}
}
