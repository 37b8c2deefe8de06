// Package service exposes the operation surface consumers call into:
// task and relation mutations, refresh, and the broadcast bindings.
//
// Every mutation writes optimistically to the cache and the store first,
// regardless of connectivity. When the owning relation is Server-located
// the mutation is additionally enqueued for the coordinator; Local
// relations have no remote counterpart and skip the queue entirely.
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

// TaskChannel is the remote surface the task service needs.
type TaskChannel interface {
	Connected() bool
	JoinTasks(ctx context.Context, relationID models.UUID) ([]models.Task, error)
}

// TaskService handles task mutations for the currently open relation.
type TaskService struct {
	tasks     *dao.TaskDAO
	relations *dao.RelationDAO
	queue     *queue.Queue
	store     *store.Store
	session   *session.Session
	remote    TaskChannel
	log       zerolog.Logger
}

// NewTaskService creates a task service.
func NewTaskService(tasks *dao.TaskDAO, relations *dao.RelationDAO, q *queue.Queue,
	st *store.Store, sess *session.Session, remote TaskChannel, log zerolog.Logger) *TaskService {
	return &TaskService{
		tasks:     tasks,
		relations: relations,
		queue:     q,
		store:     st,
		session:   sess,
		remote:    remote,
		log:       log.With().Str("service", "tasks").Logger(),
	}
}

// Open makes relationID the open relation and loads its tasks into the
// store. For a Server relation on a live channel the room is joined
// first and the authoritative task set replaces the cached one; offline,
// the cached copy is served as is.
func (s *TaskService) Open(ctx context.Context, relationID models.UUID) error {
	rel, err := s.relations.Get(relationID)
	if err != nil {
		return err
	}
	if rel == nil {
		return fmt.Errorf("open relation %s: %w", relationID, dao.ErrNotFound)
	}

	if !rel.IsLocal() && s.remote.Connected() {
		remoteTasks, err := s.remote.JoinTasks(ctx, relationID)
		if err != nil {
			s.log.Warn().Err(err).Str("relation_id", relationID.String()).Msg("join failed, serving cached tasks")
		} else if err := s.tasks.ReplaceAllCached(relationID, remoteTasks); err != nil {
			s.log.Error().Err(err).Str("relation_id", relationID.String()).Msg("failed to cache joined tasks")
		}
	}

	s.store.Open(relationID, s.tasks.GetByRelation(relationID))
	return nil
}

// Create appends a new task to a relation.
func (s *TaskService) Create(ctx context.Context, relationID models.UUID, text string) (*models.Task, error) {
	if text == "" {
		return nil, &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	rel, err := s.relations.Get(relationID)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, fmt.Errorf("create task in relation %s: %w", relationID, dao.ErrNotFound)
	}

	next, err := s.tasks.NextOrderIdx(relationID)
	if err != nil {
		return nil, err
	}
	task := &models.Task{Text: text, RelationID: relationID, OrderIdx: &next}
	if err := s.tasks.Create(task); err != nil {
		return nil, err
	}
	s.store.UpsertTask(*task)

	if !rel.IsLocal() {
		if _, err := s.queue.Enqueue(models.OpTaskCreate, task); err != nil {
			return task, err
		}
	}
	return task, nil
}

// Edit replaces a task's text.
func (s *TaskService) Edit(ctx context.Context, id models.UUID, text string) (*models.Task, error) {
	if text == "" {
		return nil, &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	task, err := s.tasks.UpdateText(id, text)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("edit task %s: %w", id, dao.ErrNotFound)
	}
	s.store.UpsertTask(*task)
	return task, s.enqueueForTask(task, models.OpTaskEdit)
}

// Toggle flips a task's completion state, attributed to the current actor.
func (s *TaskService) Toggle(ctx context.Context, id models.UUID) (*models.Task, error) {
	task, err := s.tasks.Toggle(id, s.session.UserID())
	if err != nil {
		return nil, err
	}
	s.store.UpsertTask(*task)
	return task, s.enqueueForTask(task, models.OpTaskToggle)
}

// Remove deletes a task. Removing an already-gone task is a no-op.
func (s *TaskService) Remove(ctx context.Context, id models.UUID) error {
	task, err := s.tasks.Get(id)
	if err != nil {
		return err
	}
	if task == nil {
		return nil
	}
	s.tasks.Delete([]models.UUID{id})
	s.store.RemoveTask(id)
	return s.enqueueForTask(task, models.OpTaskDelete)
}

// Reorder applies a full proposed ordering for a relation's tasks. Only
// rows whose index actually changed are persisted and enqueued; an
// identical ordering is a complete no-op.
func (s *TaskService) Reorder(ctx context.Context, relationID models.UUID, orderedIDs []models.UUID) error {
	current := s.tasks.GetByRelation(relationID)
	byID := make(map[models.UUID]*models.Task, len(current))
	for i := range current {
		byID[current[i].ID] = &current[i]
	}

	var changed []models.Task
	for pos, id := range orderedIDs {
		task, ok := byID[id]
		if !ok {
			return fmt.Errorf("reorder: task %s not in relation %s: %w", id, relationID, dao.ErrNotFound)
		}
		idx := int64(pos)
		if task.OrderIdx == nil || *task.OrderIdx != idx {
			moved := *task
			moved.OrderIdx = &idx
			moved.Touch()
			changed = append(changed, moved)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	if err := s.tasks.Reorder(changed); err != nil {
		return err
	}
	s.store.SetTasks(relationID, s.tasks.GetByRelation(relationID))

	rel, err := s.relations.Get(relationID)
	if err != nil {
		return err
	}
	if rel != nil && !rel.IsLocal() {
		if _, err := s.queue.Enqueue(models.OpTaskReorder, changed); err != nil {
			return err
		}
	}
	return nil
}

// enqueueForTask queues an operation when the task's relation is
// Server-located.
func (s *TaskService) enqueueForTask(task *models.Task, opType models.OpType) error {
	rel, err := s.relations.Get(task.RelationID)
	if err != nil {
		return err
	}
	if rel == nil || rel.IsLocal() {
		return nil
	}
	_, err = s.queue.Enqueue(opType, task)
	return err
}
