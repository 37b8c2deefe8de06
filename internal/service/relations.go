package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/listkeeper/listkeeper/internal/dao"
	"github.com/listkeeper/listkeeper/internal/models"
	"github.com/listkeeper/listkeeper/internal/queue"
	"github.com/listkeeper/listkeeper/internal/session"
	"github.com/listkeeper/listkeeper/internal/store"
)

// RelationChannel is the remote surface the relation service needs.
type RelationChannel interface {
	Connected() bool
	ListRelations(ctx context.Context) ([]models.Relation, error)
	ShareRelation(ctx context.Context, req models.ShareRequest) ([]models.Relation, error)
}

// RelationService handles relation-level operations.
type RelationService struct {
	relations *dao.RelationDAO
	tasks     *dao.TaskDAO
	queue     *queue.Queue
	store     *store.Store
	session   *session.Session
	remote    RelationChannel
	log       zerolog.Logger
}

// NewRelationService creates a relation service.
func NewRelationService(relations *dao.RelationDAO, tasks *dao.TaskDAO, q *queue.Queue,
	st *store.Store, sess *session.Session, remote RelationChannel, log zerolog.Logger) *RelationService {
	return &RelationService{
		relations: relations,
		tasks:     tasks,
		queue:     q,
		store:     st,
		session:   sess,
		remote:    remote,
		log:       log.With().Str("service", "relations").Logger(),
	}
}

// Refresh rebuilds the relation projection. On a live channel the
// authoritative set replaces the cached Server relations first; offline,
// the cache is served as is.
func (s *RelationService) Refresh(ctx context.Context) {
	if s.remote.Connected() {
		remote, err := s.remote.ListRelations(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("relation fetch failed, serving cached set")
		} else if err := s.relations.ReplaceAllCached(remote); err != nil {
			s.log.Error().Err(err).Msg("failed to cache fetched relations")
		}
	}
	s.store.SetRelations(s.relations.GetAll())
}

// CreateLocal creates a device-only relation. Local relations never
// touch the queue.
func (s *RelationService) CreateLocal(ctx context.Context, name string) (*models.Relation, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	rel := &models.Relation{Name: name, Location: models.LocationLocal}
	if err := s.relations.Create(rel); err != nil {
		return nil, err
	}
	s.store.UpsertRelation(*rel)
	return rel, nil
}

// Rename changes a relation's name.
func (s *RelationService) Rename(ctx context.Context, id models.UUID, name string) (*models.Relation, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	rel, err := s.relations.Rename(id, name)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, fmt.Errorf("rename relation %s: %w", id, dao.ErrNotFound)
	}
	s.store.UpsertRelation(*rel)

	if !rel.IsLocal() {
		if _, err := s.queue.Enqueue(models.OpRelationEdit, rel); err != nil {
			return rel, err
		}
	}
	return rel, nil
}

// Delete removes relations, best effort, cascading to their tasks. The
// per-id outcomes mirror the cache deletes; deletions of Server
// relations are queued for the authority.
func (s *RelationService) Delete(ctx context.Context, ids []models.UUID) []models.DeleteResult {
	rels := make(map[models.UUID]*models.Relation, len(ids))
	for _, id := range ids {
		rel, err := s.relations.Get(id)
		if err == nil && rel != nil {
			rels[id] = rel
		}
	}

	results := s.relations.Delete(ids)
	for _, res := range results {
		if !res.OK {
			continue
		}
		s.store.RemoveRelation(res.ID)
		rel := rels[res.ID]
		if rel != nil && !rel.IsLocal() {
			if _, err := s.queue.Enqueue(models.OpRelationDelete, rel); err != nil {
				s.log.Error().Err(err).Str("relation_id", res.ID.String()).Msg("failed to queue relation delete")
			}
		}
	}
	return results
}

// Share shares relations with another user. On a live channel the
// authoritative rows come back immediately and Local relations are
// promoted to Server; offline, the request is queued and the promotion
// arrives with the next refresh after the batch is accepted.
func (s *RelationService) Share(ctx context.Context, ids []models.UUID, with models.Collaborator) error {
	req := models.ShareRequest{SharedWith: with}
	for _, id := range ids {
		rel, err := s.relations.Get(id)
		if err != nil {
			return err
		}
		if rel == nil {
			return fmt.Errorf("share relation %s: %w", id, dao.ErrNotFound)
		}
		req.Relations = append(req.Relations, models.RelationWithTasks{
			Relation: *rel,
			Tasks:    s.tasks.GetByRelation(id),
		})
	}

	if !s.remote.Connected() {
		_, err := s.queue.Enqueue(models.OpRelationShare, req)
		return err
	}

	shared, err := s.remote.ShareRelation(ctx, req)
	if err != nil {
		return err
	}
	for i := range shared {
		if err := s.relations.UpdateCached(&shared[i]); err != nil {
			s.log.Error().Err(err).Str("relation_id", shared[i].ID.String()).Msg("failed to cache shared relation")
			continue
		}
		s.store.UpsertRelation(shared[i])
	}
	return nil
}
