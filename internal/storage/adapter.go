package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/query"
	"github.com/dshills/modelstore/pkg/types"
)

// ErrNotFound is returned when a requested entity doesn't exist
var ErrNotFound = errors.New("not found")

// Adapter stores model entities through the engine. Every method that
// writes more than one row runs inside a single transaction.
type Adapter struct {
	db    engine.Database
	log   logrus.FieldLogger
	now   func() time.Time
	newID func() string
}

// New creates an Adapter over db
func New(db engine.Database, log logrus.FieldLogger) *Adapter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Adapter{
		db:    db,
		log:   log.WithField("component", "storage"),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// stamp fills missing ids and normalises timestamps to UTC without a
// monotonic reading, so a saved entity equals its stored form
func (a *Adapter) stamp(id *string, created, updated *time.Time) {
	if *id == "" {
		*id = a.newID()
	}
	now := a.now().UTC().Round(0)
	if created.IsZero() {
		*created = now
	} else {
		*created = created.UTC().Round(0)
	}
	if updated.IsZero() {
		*updated = now
	} else {
		*updated = updated.UTC().Round(0)
	}
}

// transaction runs fn in an engine transaction and unwraps the result
func (a *Adapter) transaction(ctx context.Context, fn func(tx *engine.Tx) error) error {
	res := a.db.Transaction(ctx, fn)
	if !res.Success {
		return res.Err
	}
	return nil
}

// nullable turns a nil pointer into SQL NULL
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// encodeJSON renders v as JSON text; nil maps and slices become NULL
func encodeJSON(v any) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, nil
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func first(ctx context.Context, ex engine.Executor, b *query.SelectBuilder) (engine.Row, error) {
	row, err := b.First(ctx, ex)
	if errors.Is(err, query.ErrNoRows) {
		return nil, ErrNotFound
	}
	return row, err
}

// deleteTags removes every tag of one resource
func deleteTags(ctx context.Context, ex engine.Executor, resourceType types.ResourceType, id string) error {
	_, err := query.Delete("tags").
		Where("resource_type", "=", string(resourceType)).
		AndWhere("resource_id", "=", id).
		Exec(ctx, ex)
	if err != nil {
		return fmt.Errorf("failed to delete tags: %w", err)
	}
	return nil
}

// insertTags writes values as tags of one resource, in order
func insertTags(ctx context.Context, ex engine.Executor, resourceType types.ResourceType, id string, values []string) error {
	if len(values) == 0 {
		return nil
	}
	b := query.Insert("tags").Columns("resource_type", "resource_id", "value")
	for _, v := range values {
		b.AddRow(string(resourceType), id, v)
	}
	if _, err := b.Exec(ctx, ex); err != nil {
		return fmt.Errorf("failed to insert tags: %w", err)
	}
	return nil
}

// deleteWithTags removes one row and the tags that reference it
func (a *Adapter) deleteWithTags(ctx context.Context, table string, resourceType types.ResourceType, id string) error {
	return a.transaction(ctx, func(tx *engine.Tx) error {
		if err := deleteTags(ctx, tx, resourceType, id); err != nil {
			return err
		}
		_, err := query.Delete(table).Where("id", "=", id).Exec(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
		return nil
	})
}

var resourceTables = map[types.ResourceType]string{
	types.ResourceWorkspace: "workspaces",
	types.ResourceDomain:    "domains",
	types.ResourceTable:     "tables",
	types.ResourceRelation:  "relationships",
	types.ResourceSystem:    "systems",
	types.ResourceDecision:  "decisions",
	types.ResourceArticle:   "knowledge_articles",
}

// Exists reports whether an entity of the given kind is stored under id
func (a *Adapter) Exists(ctx context.Context, resourceType types.ResourceType, id string) (bool, error) {
	table, ok := resourceTables[resourceType]
	if !ok {
		return false, fmt.Errorf("unknown resource type %q", resourceType)
	}
	return query.Select(table).Where("id", "=", id).Exists(ctx, a.db)
}
