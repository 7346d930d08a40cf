package types

import (
	"fmt"
	"time"
)

// ResourceType tags the kind of entity a relationship endpoint, tag or sync
// record refers to
type ResourceType string

const (
	ResourceWorkspace ResourceType = "workspace"
	ResourceDomain    ResourceType = "domain"
	ResourceTable     ResourceType = "table"
	ResourceSystem    ResourceType = "system"
	ResourceDecision  ResourceType = "decision"
	ResourceArticle   ResourceType = "knowledge_article"
	ResourceRelation  ResourceType = "relationship"
)

// Workspace is the root container of a model
type Workspace struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description *string   `json:"description,omitempty" yaml:"description,omitempty"` // Nullable
	OwnerID     *string   `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`       // Nullable
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// Domain is a logical grouping within a workspace
type Domain struct {
	ID          string    `json:"id" yaml:"id"`
	WorkspaceID string    `json:"workspace_id" yaml:"workspace_id"`
	Name        string    `json:"name" yaml:"name"`
	Description *string   `json:"description,omitempty" yaml:"description,omitempty"` // Nullable
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// Table is a schema resource with an ordered list of columns
type Table struct {
	ID              string    `json:"id" yaml:"id"`
	WorkspaceID     string    `json:"workspace_id" yaml:"workspace_id"`
	DomainID        string    `json:"domain_id" yaml:"domain_id"`
	Name            string    `json:"name" yaml:"name"`
	Alias           *string   `json:"alias,omitempty" yaml:"alias,omitempty"`             // Nullable
	Description     *string   `json:"description,omitempty" yaml:"description,omitempty"` // Nullable
	Owner           *string   `json:"owner,omitempty" yaml:"owner,omitempty"`             // Nullable
	DataLevel       *string   `json:"data_level,omitempty" yaml:"data_level,omitempty"`   // Nullable - e.g. bronze, silver, gold
	MedallionLayers []string  `json:"medallion_layers,omitempty" yaml:"medallion_layers,omitempty"`
	Columns         []Column  `json:"columns,omitempty" yaml:"columns,omitempty"` // Ordered by OrdinalPosition
	Tags            []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// ForeignKeyRef points a column at a column of another table
type ForeignKeyRef struct {
	TableID  string `json:"table_id"`
	ColumnID string `json:"column_id,omitempty"`
}

// Column belongs to exactly one table
type Column struct {
	ID              string           `json:"id" yaml:"id"`
	TableID         string           `json:"table_id" yaml:"table_id"`
	Name            string           `json:"name" yaml:"name"`
	LogicalType     string           `json:"logical_type" yaml:"logical_type"`
	PhysicalType    *string          `json:"physical_type,omitempty" yaml:"physical_type,omitempty"` // Nullable
	Description     *string          `json:"description,omitempty" yaml:"description,omitempty"`     // Nullable
	Nullable        bool             `json:"nullable" yaml:"nullable"`
	PrimaryKey      bool             `json:"primary_key" yaml:"primary_key"`
	Unique          bool             `json:"unique" yaml:"unique"`
	OrdinalPosition int              `json:"ordinal_position" yaml:"ordinal_position"`
	DefaultValue    *string          `json:"default_value,omitempty" yaml:"default_value,omitempty"` // Nullable
	ForeignKey      *ForeignKeyRef   `json:"foreign_key,omitempty" yaml:"foreign_key,omitempty"`
	Constraints     map[string]any   `json:"constraints,omitempty" yaml:"constraints,omitempty"`     // Stored as JSON
	QualityRules    []map[string]any `json:"quality_rules,omitempty" yaml:"quality_rules,omitempty"` // Stored as JSON
}

// Validate checks the table and its columns before they are written
func (t *Table) Validate() error {
	if t.ID == "" {
		return ErrMissingID
	}
	if t.Name == "" {
		return ErrMissingName
	}
	if t.WorkspaceID == "" {
		return ErrMissingWorkspace
	}
	for i := range t.Columns {
		col := &t.Columns[i]
		if col.Name == "" {
			return fmt.Errorf("column %d: %w", i, ErrInvalidColumn)
		}
		if col.ForeignKey != nil && col.ForeignKey.TableID == "" {
			return fmt.Errorf("column %s: %w", col.Name, ErrInvalidForeignKey)
		}
	}
	return nil
}

// Relationship connects two resources. Endpoints are not foreign-keyed: they
// may point at tables or at other kinds of resource.
type Relationship struct {
	ID               string       `json:"id" yaml:"id"`
	WorkspaceID      string       `json:"workspace_id" yaml:"workspace_id"`
	DomainID         *string      `json:"domain_id,omitempty" yaml:"domain_id,omitempty"` // Nullable
	SourceID         string       `json:"source_id" yaml:"source_id"`
	TargetID         string       `json:"target_id" yaml:"target_id"`
	SourceType       ResourceType `json:"source_type" yaml:"source_type"`
	TargetType       ResourceType `json:"target_type" yaml:"target_type"`
	Cardinality      *string      `json:"cardinality,omitempty" yaml:"cardinality,omitempty"`             // Nullable - e.g. one_to_many
	RelationshipType *string      `json:"relationship_type,omitempty" yaml:"relationship_type,omitempty"` // Nullable - e.g. foreign_key, data_flow
	Label            *string      `json:"label,omitempty" yaml:"label,omitempty"`                         // Nullable
	CreatedAt        time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" yaml:"updated_at"`
}

// Validate checks the relationship endpoints
func (r *Relationship) Validate() error {
	if r.ID == "" {
		return ErrMissingID
	}
	if r.SourceID == "" || r.TargetID == "" {
		return ErrMissingEndpoint
	}
	return nil
}

// System is a connectable resource scoped to a domain
type System struct {
	ID          string         `json:"id" yaml:"id"`
	DomainID    string         `json:"domain_id" yaml:"domain_id"`
	Name        string         `json:"name" yaml:"name"`
	SystemType  *string        `json:"system_type,omitempty" yaml:"system_type,omitempty"` // Nullable - e.g. postgresql, kafka
	Description *string        `json:"description,omitempty" yaml:"description,omitempty"` // Nullable
	Endpoint    *string        `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`       // Nullable
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// DecisionStatus enumerates the lifecycle of an architecture decision
type DecisionStatus string

const (
	DecisionProposed   DecisionStatus = "proposed"
	DecisionAccepted   DecisionStatus = "accepted"
	DecisionDeprecated DecisionStatus = "deprecated"
	DecisionSuperseded DecisionStatus = "superseded"
)

// Decision is a versioned architecture decision record
type Decision struct {
	ID           string           `json:"id" yaml:"id"`
	DomainID     string           `json:"domain_id" yaml:"domain_id"`
	Number       int              `json:"number" yaml:"number"`
	Title        string           `json:"title" yaml:"title"`
	Status       DecisionStatus   `json:"status" yaml:"status"`
	Context      *string          `json:"context,omitempty" yaml:"context,omitempty"`           // Nullable
	Decision     *string          `json:"decision,omitempty" yaml:"decision,omitempty"`         // Nullable
	Consequences *string          `json:"consequences,omitempty" yaml:"consequences,omitempty"` // Nullable
	Options      []map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
	SupersededBy *string          `json:"superseded_by,omitempty" yaml:"superseded_by,omitempty"` // Nullable
	Version      int              `json:"version" yaml:"version"`
	CreatedAt    time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" yaml:"updated_at"`
}

// ArticleStatus enumerates the lifecycle of a knowledge article
type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "draft"
	ArticleReview    ArticleStatus = "review"
	ArticlePublished ArticleStatus = "published"
	ArticleArchived  ArticleStatus = "archived"
)

// KnowledgeArticle is a versioned documentation record
type KnowledgeArticle struct {
	ID          string        `json:"id" yaml:"id"`
	DomainID    string        `json:"domain_id" yaml:"domain_id"`
	Number      int           `json:"number" yaml:"number"`
	Title       string        `json:"title" yaml:"title"`
	ArticleType *string       `json:"article_type,omitempty" yaml:"article_type,omitempty"` // Nullable - e.g. guide, reference
	Status      ArticleStatus `json:"status" yaml:"status"`
	Summary     *string       `json:"summary,omitempty" yaml:"summary,omitempty"` // Nullable
	Content     string        `json:"content" yaml:"content"`
	Authors     []string      `json:"authors,omitempty" yaml:"authors,omitempty"`
	Version     int           `json:"version" yaml:"version"`
	CreatedAt   time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" yaml:"updated_at"`
}

// Tag is a (resource type, resource id, value) triple. Duplicates are allowed.
type Tag struct {
	ID           int64        `json:"id" yaml:"id"`
	ResourceType ResourceType `json:"resource_type" yaml:"resource_type"`
	ResourceID   string       `json:"resource_id" yaml:"resource_id"`
	Value        string       `json:"value" yaml:"value"`
}

// MigrationRecord is one applied schema migration
type MigrationRecord struct {
	Version   int       `json:"version" yaml:"version"`
	Name      string    `json:"name" yaml:"name"`
	AppliedAt time.Time `json:"applied_at" yaml:"applied_at"`
}

// WorkspaceStats counts the entities stored for a workspace
type WorkspaceStats struct {
	WorkspaceID       string `json:"workspace_id" yaml:"workspace_id"`
	Domains           int    `json:"domains" yaml:"domains"`
	Tables            int    `json:"tables" yaml:"tables"`
	Columns           int    `json:"columns" yaml:"columns"`
	Relationships     int    `json:"relationships" yaml:"relationships"`
	Systems           int    `json:"systems" yaml:"systems"`
	Decisions         int    `json:"decisions" yaml:"decisions"`
	KnowledgeArticles int    `json:"knowledge_articles" yaml:"knowledge_articles"`
	Tags              int    `json:"tags" yaml:"tags"`
}
