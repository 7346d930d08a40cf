package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/storage"
	"github.com/dshills/modelstore/pkg/types"
)

var (
	// ErrSyncInProgress is returned when a sync run overlaps another one
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrNoWorkspace is returned when a snapshot carries no workspace
	ErrNoWorkspace = errors.New("snapshot has no workspace")
)

// Direction names which side of the sync was written
type Direction string

const (
	DirectionToDatabase   Direction = "memory_to_database"
	DirectionFromDatabase Direction = "database_to_memory"
)

// Store is the entity persistence the sync engine writes through
type Store interface {
	Exists(ctx context.Context, resourceType types.ResourceType, id string) (bool, error)

	GetWorkspace(ctx context.Context, id string) (*types.Workspace, error)
	SaveWorkspace(ctx context.Context, ws *types.Workspace) error
	GetDomainsByWorkspace(ctx context.Context, workspaceID string) ([]*types.Domain, error)
	SaveDomain(ctx context.Context, d *types.Domain) error

	GetTablesByWorkspace(ctx context.Context, workspaceID string) ([]*types.Table, error)
	SaveTable(ctx context.Context, t *types.Table) error
	DeleteTable(ctx context.Context, id string) error

	GetRelationshipsByWorkspace(ctx context.Context, workspaceID string) ([]*types.Relationship, error)
	SaveRelationship(ctx context.Context, r *types.Relationship) error
	DeleteRelationship(ctx context.Context, id string) error

	GetSystemsByDomain(ctx context.Context, domainID string) ([]*types.System, error)
	SaveSystem(ctx context.Context, s *types.System) error
	GetDecisionsByDomain(ctx context.Context, domainID string) ([]*types.Decision, error)
	SaveDecision(ctx context.Context, d *types.Decision) error
	GetKnowledgeArticlesByDomain(ctx context.Context, domainID string) ([]*types.KnowledgeArticle, error)
	SaveKnowledgeArticle(ctx context.Context, k *types.KnowledgeArticle) error
}

// Snapshot is the in-memory form of one workspace
type Snapshot struct {
	Workspace         *types.Workspace          `json:"workspace" yaml:"workspace"`
	Domains           []*types.Domain           `json:"domains,omitempty" yaml:"domains,omitempty"`
	Tables            []*types.Table            `json:"tables,omitempty" yaml:"tables,omitempty"`
	Relationships     []*types.Relationship     `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	Systems           []*types.System           `json:"systems,omitempty" yaml:"systems,omitempty"`
	Decisions         []*types.Decision         `json:"decisions,omitempty" yaml:"decisions,omitempty"`
	KnowledgeArticles []*types.KnowledgeArticle `json:"knowledge_articles,omitempty" yaml:"knowledge_articles,omitempty"`
}

// SyncError is the failure of a single entity. It does not stop the run.
type SyncError struct {
	EntityType types.ResourceType
	EntityID   string
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.EntityType, e.EntityID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// KindStats counts what happened to one kind of entity
type KindStats struct {
	Processed int `json:"processed"`
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
}

// Stats holds the per-kind counts of a run
type Stats struct {
	Workspaces        KindStats `json:"workspaces"`
	Domains           KindStats `json:"domains"`
	Tables            KindStats `json:"tables"`
	Relationships     KindStats `json:"relationships"`
	Systems           KindStats `json:"systems"`
	Decisions         KindStats `json:"decisions"`
	KnowledgeArticles KindStats `json:"knowledge_articles"`
}

// Result describes one sync run. Success is true iff Err is nil and no
// entity failed.
type Result struct {
	Success     bool
	Direction   Direction
	StartedAt   time.Time
	CompletedAt time.Time
	Stats       Stats
	Errors      []*SyncError
	Warnings    []string
	Err         error
}

// Options tune SyncFromMemory
type Options struct {
	// PruneMissing deletes stored tables and relationships of the
	// workspace that the snapshot no longer contains
	PruneMissing bool
}

// Syncer reconciles snapshots and tracked files with the store
type Syncer struct {
	store Store
	db    engine.Database
	log   logrus.FieldLogger
	now   func() time.Time
	lock  runLock
}

// New creates a Syncer writing entities through store and file metadata
// through db
func New(store Store, db engine.Database, log logrus.FieldLogger) *Syncer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Syncer{
		store: store,
		db:    db,
		log:   log.WithField("component", "syncer"),
		now:   time.Now,
	}
}

// SyncFromMemory writes snap to the store with default options
func (s *Syncer) SyncFromMemory(ctx context.Context, snap *Snapshot) *Result {
	return s.SyncFromMemoryWithOptions(ctx, snap, Options{})
}

// SyncFromMemoryWithOptions writes every entity of snap individually, in
// dependency order. Entities with an empty parent id inherit the snapshot
// workspace. Ids generated during the save are written back into snap.
func (s *Syncer) SyncFromMemoryWithOptions(ctx context.Context, snap *Snapshot, opts Options) *Result {
	res := &Result{Direction: DirectionToDatabase, StartedAt: s.now()}
	if !s.lock.TryAcquire() {
		return s.finish(res, ErrSyncInProgress)
	}
	defer s.lock.Release()

	if snap == nil || snap.Workspace == nil {
		return s.finish(res, ErrNoWorkspace)
	}

	ws := snap.Workspace
	s.apply(ctx, res, &res.Stats.Workspaces, types.ResourceWorkspace, ws.ID,
		func() error { return s.store.SaveWorkspace(ctx, ws) })

	for _, d := range snap.Domains {
		if d == nil {
			s.skipEmpty(res, &res.Stats.Domains, types.ResourceDomain)
			continue
		}
		if d.WorkspaceID == "" {
			d.WorkspaceID = ws.ID
		}
		s.apply(ctx, res, &res.Stats.Domains, types.ResourceDomain, d.ID,
			func() error { return s.store.SaveDomain(ctx, d) })
	}

	tableIDs := make(map[string]bool, len(snap.Tables))
	for _, t := range snap.Tables {
		if t == nil {
			s.skipEmpty(res, &res.Stats.Tables, types.ResourceTable)
			continue
		}
		if t.WorkspaceID == "" {
			t.WorkspaceID = ws.ID
		}
		s.apply(ctx, res, &res.Stats.Tables, types.ResourceTable, t.ID,
			func() error { return s.store.SaveTable(ctx, t) })
		if t.ID != "" {
			tableIDs[t.ID] = true
		}
	}

	relIDs := make(map[string]bool, len(snap.Relationships))
	for _, r := range snap.Relationships {
		if r == nil {
			s.skipEmpty(res, &res.Stats.Relationships, types.ResourceRelation)
			continue
		}
		if r.WorkspaceID == "" {
			r.WorkspaceID = ws.ID
		}
		res.Warnings = append(res.Warnings, danglingEndpoints(r, tableIDs)...)
		s.apply(ctx, res, &res.Stats.Relationships, types.ResourceRelation, r.ID,
			func() error { return s.store.SaveRelationship(ctx, r) })
		if r.ID != "" {
			relIDs[r.ID] = true
		}
	}

	for _, sys := range snap.Systems {
		if sys == nil {
			s.skipEmpty(res, &res.Stats.Systems, types.ResourceSystem)
			continue
		}
		s.apply(ctx, res, &res.Stats.Systems, types.ResourceSystem, sys.ID,
			func() error { return s.store.SaveSystem(ctx, sys) })
	}
	for _, d := range snap.Decisions {
		if d == nil {
			s.skipEmpty(res, &res.Stats.Decisions, types.ResourceDecision)
			continue
		}
		s.apply(ctx, res, &res.Stats.Decisions, types.ResourceDecision, d.ID,
			func() error { return s.store.SaveDecision(ctx, d) })
	}
	for _, k := range snap.KnowledgeArticles {
		if k == nil {
			s.skipEmpty(res, &res.Stats.KnowledgeArticles, types.ResourceArticle)
			continue
		}
		s.apply(ctx, res, &res.Stats.KnowledgeArticles, types.ResourceArticle, k.ID,
			func() error { return s.store.SaveKnowledgeArticle(ctx, k) })
	}

	if opts.PruneMissing && ws.ID != "" {
		s.pruneTables(ctx, res, ws.ID, tableIDs)
		s.pruneRelationships(ctx, res, ws.ID, relIDs)
	}

	return s.finish(res, nil)
}

// apply saves one entity and records the outcome. id is read before the
// save, so an entity without an id always counts as added.
func (s *Syncer) apply(ctx context.Context, res *Result, st *KindStats, kind types.ResourceType, id string, save func() error) {
	st.Processed++
	existed := false
	if id != "" {
		var err error
		existed, err = s.store.Exists(ctx, kind, id)
		if err != nil {
			s.fail(res, kind, id, err)
			return
		}
	}
	if err := save(); err != nil {
		s.fail(res, kind, id, err)
		return
	}
	if existed {
		st.Updated++
	} else {
		st.Added++
	}
}

// skipEmpty records a nil snapshot entry, as left by an empty YAML list item
func (s *Syncer) skipEmpty(res *Result, st *KindStats, kind types.ResourceType) {
	st.Processed++
	s.fail(res, kind, "", types.ErrNilEntity)
}

func (s *Syncer) fail(res *Result, kind types.ResourceType, id string, err error) {
	s.log.WithFields(logrus.Fields{
		"entity_type": kind,
		"entity_id":   id,
	}).WithError(err).Warn("Failed to sync entity")
	res.Errors = append(res.Errors, &SyncError{EntityType: kind, EntityID: id, Err: err})
}

func (s *Syncer) pruneTables(ctx context.Context, res *Result, workspaceID string, keep map[string]bool) {
	stored, err := s.store.GetTablesByWorkspace(ctx, workspaceID)
	if err != nil {
		s.fail(res, types.ResourceTable, "", fmt.Errorf("failed to list tables for pruning: %w", err))
		return
	}
	for _, t := range stored {
		if keep[t.ID] {
			continue
		}
		if err := s.store.DeleteTable(ctx, t.ID); err != nil {
			s.fail(res, types.ResourceTable, t.ID, err)
			continue
		}
		res.Stats.Tables.Deleted++
	}
}

func (s *Syncer) pruneRelationships(ctx context.Context, res *Result, workspaceID string, keep map[string]bool) {
	stored, err := s.store.GetRelationshipsByWorkspace(ctx, workspaceID)
	if err != nil {
		s.fail(res, types.ResourceRelation, "", fmt.Errorf("failed to list relationships for pruning: %w", err))
		return
	}
	for _, r := range stored {
		if keep[r.ID] {
			continue
		}
		if err := s.store.DeleteRelationship(ctx, r.ID); err != nil {
			s.fail(res, types.ResourceRelation, r.ID, err)
			continue
		}
		res.Stats.Relationships.Deleted++
	}
}

// danglingEndpoints warns about table endpoints the snapshot does not define
func danglingEndpoints(r *types.Relationship, tables map[string]bool) []string {
	var warnings []string
	check := func(side, id string, kind types.ResourceType) {
		if kind != "" && kind != types.ResourceTable {
			return
		}
		if id != "" && !tables[id] {
			warnings = append(warnings, fmt.Sprintf("relationship %s: %s table %s is not in the snapshot", r.ID, side, id))
		}
	}
	check("source", r.SourceID, r.SourceType)
	check("target", r.TargetID, r.TargetType)
	return warnings
}

func (s *Syncer) finish(res *Result, err error) *Result {
	res.Err = err
	res.CompletedAt = s.now()
	res.Success = err == nil && len(res.Errors) == 0
	entry := s.log.WithFields(logrus.Fields{
		"direction": res.Direction,
		"errors":    len(res.Errors),
		"warnings":  len(res.Warnings),
		"tables":    res.Stats.Tables.Processed,
		"duration":  res.CompletedAt.Sub(res.StartedAt),
	})
	if err != nil {
		entry.WithError(err).Warn("Sync refused")
	} else {
		entry.Info("Sync completed")
	}
	return res
}

// LoadFromDatabase reads a workspace back into a Snapshot. It returns nil
// and no error when the workspace does not exist. Systems, decisions and
// knowledge articles are gathered per domain, in domain order.
func (s *Syncer) LoadFromDatabase(ctx context.Context, workspaceID string) (*Snapshot, error) {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}

	snap := &Snapshot{Workspace: ws}
	if snap.Domains, err = s.store.GetDomainsByWorkspace(ctx, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to load domains: %w", err)
	}
	if snap.Tables, err = s.store.GetTablesByWorkspace(ctx, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}
	if snap.Relationships, err = s.store.GetRelationshipsByWorkspace(ctx, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to load relationships: %w", err)
	}

	systems := make([][]*types.System, len(snap.Domains))
	decisions := make([][]*types.Decision, len(snap.Domains))
	articles := make([][]*types.KnowledgeArticle, len(snap.Domains))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range snap.Domains {
		g.Go(func() error {
			var err error
			if systems[i], err = s.store.GetSystemsByDomain(gctx, d.ID); err != nil {
				return fmt.Errorf("failed to load systems of domain %s: %w", d.ID, err)
			}
			if decisions[i], err = s.store.GetDecisionsByDomain(gctx, d.ID); err != nil {
				return fmt.Errorf("failed to load decisions of domain %s: %w", d.ID, err)
			}
			if articles[i], err = s.store.GetKnowledgeArticlesByDomain(gctx, d.ID); err != nil {
				return fmt.Errorf("failed to load knowledge articles of domain %s: %w", d.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range snap.Domains {
		snap.Systems = append(snap.Systems, systems[i]...)
		snap.Decisions = append(snap.Decisions, decisions[i]...)
		snap.KnowledgeArticles = append(snap.KnowledgeArticles, articles[i]...)
	}

	s.log.WithFields(logrus.Fields{
		"direction":    DirectionFromDatabase,
		"workspace_id": workspaceID,
		"tables":       len(snap.Tables),
	}).Debug("Loaded workspace snapshot")
	return snap, nil
}
