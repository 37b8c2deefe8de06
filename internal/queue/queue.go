// Package queue mirrors the durable pending-operation log in memory.
//
// The durable log is the system of record; the mirror exists for fast
// reads ("N changes pending") and for change notifications that trigger
// sync cycles. An operation leaves the queue only through an explicit
// Dequeue after the coordinator reports a terminal outcome.
package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/listkeeper/listkeeper/internal/dao"
	"github.com/listkeeper/listkeeper/internal/models"
)

// Queue is the pending-operation queue.
type Queue struct {
	mu      sync.RWMutex
	pending *dao.PendingDAO
	ops     []models.PendingOperation

	changes chan struct{}
	log     zerolog.Logger
}

// New creates an empty queue over the durable log. Call Load before use
// to recover operations persisted by a previous run.
func New(pending *dao.PendingDAO, log zerolog.Logger) *Queue {
	return &Queue{
		pending: pending,
		changes: make(chan struct{}, 1),
		log:     log.With().Str("component", "queue").Logger(),
	}
}

// Load rebuilds the in-memory mirror from the durable log.
func (q *Queue) Load() {
	ops := q.pending.GetAll()
	q.mu.Lock()
	q.ops = ops
	q.mu.Unlock()
}

// Reload is Load under its coordinator-facing name: after a batch cycle
// dequeues its operations, the mirror is rebuilt from storage rather
// than patched incrementally.
func (q *Queue) Reload() {
	q.Load()
}

// Enqueue records a new unconfirmed mutation. The id, timestamp and
// retry counter are assigned here; the payload is marshalled as the
// operation's data. The durable insert happens before the mirror is
// touched, so a crash between the two never loses the operation.
func (q *Queue) Enqueue(opType models.OpType, payload any) (*models.PendingOperation, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode operation payload: %w", err)
	}
	op := models.PendingOperation{
		ID:        models.NewUUID(),
		Type:      opType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := q.pending.Insert(&op); err != nil {
		return nil, err
	}

	q.mu.Lock()
	q.ops = append(q.ops, op)
	q.mu.Unlock()

	q.log.Debug().Str("op_id", op.ID.String()).Str("type", string(op.Type)).Msg("operation enqueued")
	q.notify()
	return &op, nil
}

// Dequeue removes one operation from the durable log and the mirror.
func (q *Queue) Dequeue(id models.UUID) error {
	if err := q.pending.Remove(id); err != nil {
		return err
	}
	q.mu.Lock()
	for i := range q.ops {
		if q.ops[i].ID == id {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
	return nil
}

// MarkRetried bumps the retry counter of every given operation after a
// transport-level batch failure left the queue untouched.
func (q *Queue) MarkRetried(ids []models.UUID) {
	for _, id := range ids {
		if err := q.pending.IncrementRetry(id); err != nil {
			q.log.Error().Err(err).Str("op_id", id.String()).Msg("failed to record retry")
		}
	}
	q.Load()
}

// Snapshot returns a copy of the queue in submission order.
func (q *Queue) Snapshot() []models.PendingOperation {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]models.PendingOperation, len(q.ops))
	copy(out, q.ops)
	return out
}

// Len returns the number of unconfirmed operations.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.ops)
}

// Changes returns a coalesced signal that fires after every enqueue.
// Multiple enqueues between reads collapse into one signal.
func (q *Queue) Changes() <-chan struct{} {
	return q.changes
}

func (q *Queue) notify() {
	select {
	case q.changes <- struct{}{}:
	default:
	}
}
