// Package store is the in-memory projection of the local cache.
//
// The cache stays the system of record; the store is rebuilt from it on
// load and patched by optimistic writes and inbound broadcasts. It is
// never mutated independently of a cache write.
package store

import (
	"sort"
	"sync"

	"github.com/listkeeper/listkeeper/internal/models"
)

// Store exposes relations plus the task list of the currently open
// relation. Consumers read snapshots and watch Changes for updates.
type Store struct {
	mu        sync.RWMutex
	relations []models.Relation
	openID    models.UUID
	tasks     []models.Task

	changes chan struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{changes: make(chan struct{}, 1)}
}

// Changes returns a coalesced signal fired after every mutation.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// SetRelations replaces the relation projection.
func (s *Store) SetRelations(rels []models.Relation) {
	s.mu.Lock()
	s.relations = append([]models.Relation(nil), rels...)
	s.mu.Unlock()
	s.notify()
}

// Relations returns a copy of the relation projection.
func (s *Store) Relations() []models.Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Relation(nil), s.relations...)
}

// UpsertRelation patches one relation in place, appending when absent.
func (s *Store) UpsertRelation(rel models.Relation) {
	s.mu.Lock()
	replaced := false
	for i := range s.relations {
		if s.relations[i].ID == rel.ID {
			s.relations[i] = rel
			replaced = true
			break
		}
	}
	if !replaced {
		s.relations = append(s.relations, rel)
	}
	s.mu.Unlock()
	s.notify()
}

// RemoveRelation drops a relation from the projection. Removing the
// open relation clears the task projection too.
func (s *Store) RemoveRelation(id models.UUID) {
	s.mu.Lock()
	for i := range s.relations {
		if s.relations[i].ID == id {
			s.relations = append(s.relations[:i], s.relations[i+1:]...)
			break
		}
	}
	if s.openID == id {
		s.openID = ""
		s.tasks = nil
	}
	s.mu.Unlock()
	s.notify()
}

// Open switches the task projection to one relation.
func (s *Store) Open(relationID models.UUID, tasks []models.Task) {
	s.mu.Lock()
	s.openID = relationID
	s.tasks = sortTasks(append([]models.Task(nil), tasks...))
	s.mu.Unlock()
	s.notify()
}

// OpenRelation returns the id of the relation whose tasks are projected.
func (s *Store) OpenRelation() models.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openID
}

// Tasks returns a copy of the open relation's task projection in
// display order.
func (s *Store) Tasks() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Task(nil), s.tasks...)
}

// SetTasks replaces the task projection when relationID is the open
// relation; other relations' task sets are not projected.
func (s *Store) SetTasks(relationID models.UUID, tasks []models.Task) {
	s.mu.Lock()
	if s.openID != relationID {
		s.mu.Unlock()
		return
	}
	s.tasks = sortTasks(append([]models.Task(nil), tasks...))
	s.mu.Unlock()
	s.notify()
}

// UpsertTask patches one task of the open relation, appending when absent.
func (s *Store) UpsertTask(task models.Task) {
	s.mu.Lock()
	if s.openID != task.RelationID {
		s.mu.Unlock()
		return
	}
	replaced := false
	for i := range s.tasks {
		if s.tasks[i].ID == task.ID {
			s.tasks[i] = task
			replaced = true
			break
		}
	}
	if !replaced {
		s.tasks = append(s.tasks, task)
	}
	s.tasks = sortTasks(s.tasks)
	s.mu.Unlock()
	s.notify()
}

// RemoveTask drops a task from the open relation's projection.
func (s *Store) RemoveTask(id models.UUID) {
	s.mu.Lock()
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// sortTasks orders by order_idx, unordered rows last, ties by creation
// time. The same order the cache queries produce.
func sortTasks(tasks []models.Task) []models.Task {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].OrderIdx, tasks[j].OrderIdx
		switch {
		case a == nil && b == nil:
			return tasks[i].CreatedAt < tasks[j].CreatedAt
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		default:
			return tasks[i].CreatedAt < tasks[j].CreatedAt
		}
	})
	return tasks
}
