package storage

import (
	"context"
	"fmt"

	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/query"
	"github.com/dshills/modelstore/pkg/types"
)

// System operations

// GetSystem returns the system with id, or ErrNotFound
func (a *Adapter) GetSystem(ctx context.Context, id string) (*types.System, error) {
	row, err := first(ctx, a.db, query.Select("systems").Where("id", "=", id))
	if err != nil {
		return nil, err
	}
	return systemFromRow(row)
}

// GetSystemsByDomain returns the systems of a domain ordered by name
func (a *Adapter) GetSystemsByDomain(ctx context.Context, domainID string) ([]*types.System, error) {
	rows, err := query.Select("systems").
		Where("domain_id", "=", domainID).
		OrderBy("name", "ASC").
		All(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list systems: %w", err)
	}
	out := make([]*types.System, 0, len(rows))
	for _, row := range rows {
		s, err := systemFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// SaveSystem upserts s
func (a *Adapter) SaveSystem(ctx context.Context, s *types.System) error {
	if s.Name == "" {
		return types.ErrMissingName
	}
	if s.DomainID == "" {
		return types.ErrMissingDomain
	}
	a.stamp(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	metadata, err := encodeJSON(s.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode system metadata: %w", err)
	}
	_, err = query.Insert("systems").
		OrReplace().
		Columns("id", "domain_id", "name", "system_type", "description", "endpoint", "metadata",
			"created_at", "updated_at").
		AddRow(s.ID, s.DomainID, s.Name, nullable(s.SystemType), nullable(s.Description),
			nullable(s.Endpoint), metadata, engine.FormatTime(s.CreatedAt), engine.FormatTime(s.UpdatedAt)).
		Exec(ctx, a.db)
	if err != nil {
		return fmt.Errorf("failed to save system: %w", err)
	}
	return nil
}

// DeleteSystem removes a system and its tags
func (a *Adapter) DeleteSystem(ctx context.Context, id string) error {
	return a.deleteWithTags(ctx, "systems", types.ResourceSystem, id)
}

// Decision operations

// GetDecision returns the decision with id, or ErrNotFound
func (a *Adapter) GetDecision(ctx context.Context, id string) (*types.Decision, error) {
	row, err := first(ctx, a.db, query.Select("decisions").Where("id", "=", id))
	if err != nil {
		return nil, err
	}
	return decisionFromRow(row)
}

// GetDecisionsByDomain returns the decisions of a domain by number
func (a *Adapter) GetDecisionsByDomain(ctx context.Context, domainID string) ([]*types.Decision, error) {
	rows, err := query.Select("decisions").
		Where("domain_id", "=", domainID).
		OrderBy("number", "ASC").
		All(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	out := make([]*types.Decision, 0, len(rows))
	for _, row := range rows {
		d, err := decisionFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// SaveDecision upserts d. Status defaults to proposed and Version to 1.
func (a *Adapter) SaveDecision(ctx context.Context, d *types.Decision) error {
	if d.Title == "" {
		return types.ErrMissingName
	}
	if d.DomainID == "" {
		return types.ErrMissingDomain
	}
	a.stamp(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if d.SupersededBy != nil && *d.SupersededBy == d.ID {
		return types.ErrInvalidDecisionRef
	}
	if d.Status == "" {
		d.Status = types.DecisionProposed
	}
	if d.Version == 0 {
		d.Version = 1
	}
	options, err := encodeJSON(d.Options)
	if err != nil {
		return fmt.Errorf("failed to encode decision options: %w", err)
	}
	_, err = query.Insert("decisions").
		OrReplace().
		Columns("id", "domain_id", "number", "title", "status", "context", "decision", "consequences",
			"options", "superseded_by", "version", "created_at", "updated_at").
		AddRow(d.ID, d.DomainID, d.Number, d.Title, string(d.Status), nullable(d.Context),
			nullable(d.Decision), nullable(d.Consequences), options, nullable(d.SupersededBy),
			d.Version, engine.FormatTime(d.CreatedAt), engine.FormatTime(d.UpdatedAt)).
		Exec(ctx, a.db)
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

// DeleteDecision removes a decision and its tags
func (a *Adapter) DeleteDecision(ctx context.Context, id string) error {
	return a.deleteWithTags(ctx, "decisions", types.ResourceDecision, id)
}

// Knowledge article operations

// GetKnowledgeArticle returns the article with id, or ErrNotFound
func (a *Adapter) GetKnowledgeArticle(ctx context.Context, id string) (*types.KnowledgeArticle, error) {
	row, err := first(ctx, a.db, query.Select("knowledge_articles").Where("id", "=", id))
	if err != nil {
		return nil, err
	}
	return articleFromRow(row)
}

// GetKnowledgeArticlesByDomain returns the articles of a domain by number
func (a *Adapter) GetKnowledgeArticlesByDomain(ctx context.Context, domainID string) ([]*types.KnowledgeArticle, error) {
	rows, err := query.Select("knowledge_articles").
		Where("domain_id", "=", domainID).
		OrderBy("number", "ASC").
		All(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge articles: %w", err)
	}
	out := make([]*types.KnowledgeArticle, 0, len(rows))
	for _, row := range rows {
		k, err := articleFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// SaveKnowledgeArticle upserts k. Status defaults to draft and Version to 1.
func (a *Adapter) SaveKnowledgeArticle(ctx context.Context, k *types.KnowledgeArticle) error {
	if k.Title == "" {
		return types.ErrMissingName
	}
	if k.DomainID == "" {
		return types.ErrMissingDomain
	}
	a.stamp(&k.ID, &k.CreatedAt, &k.UpdatedAt)
	if k.Status == "" {
		k.Status = types.ArticleDraft
	}
	if k.Version == 0 {
		k.Version = 1
	}
	authors, err := encodeJSON(k.Authors)
	if err != nil {
		return fmt.Errorf("failed to encode article authors: %w", err)
	}
	_, err = query.Insert("knowledge_articles").
		OrReplace().
		Columns("id", "domain_id", "number", "title", "article_type", "status", "summary", "content",
			"authors", "version", "created_at", "updated_at").
		AddRow(k.ID, k.DomainID, k.Number, k.Title, nullable(k.ArticleType), string(k.Status),
			nullable(k.Summary), k.Content, authors, k.Version,
			engine.FormatTime(k.CreatedAt), engine.FormatTime(k.UpdatedAt)).
		Exec(ctx, a.db)
	if err != nil {
		return fmt.Errorf("failed to save knowledge article: %w", err)
	}
	return nil
}

// DeleteKnowledgeArticle removes an article and its tags
func (a *Adapter) DeleteKnowledgeArticle(ctx context.Context, id string) error {
	return a.deleteWithTags(ctx, "knowledge_articles", types.ResourceArticle, id)
}
