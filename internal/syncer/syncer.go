// Package syncer reconciles the pending-operation queue with the
// remote authority.
//
// A cycle submits the entire queue as one batch, applies the per
// operation outcomes, dequeues everything that was submitted, and
// rebuilds the queue mirror. The authority's word is final: returned
// snapshots overwrite local state unconditionally, and a "relation
// deleted" rejection demotes the affected relation to Local.
package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/listkeeper/listkeeper/internal/dao"
	"github.com/listkeeper/listkeeper/internal/models"
	"github.com/listkeeper/listkeeper/internal/queue"
)

// DefaultRetryDelay is the fixed pause before retrying a batch whose
// submission failed at the transport level.
const DefaultRetryDelay = 10 * time.Second

// Authority is the remote side of a batch cycle.
type Authority interface {
	Connected() bool
	Connectivity() <-chan bool
	SyncBatch(ctx context.Context, ops []models.PendingOperation) (*models.SyncBatchResult, error)
}

// Coordinator runs batch sync cycles. At most one cycle is in flight;
// a Sync call while one runs is a silent no-op.
type Coordinator struct {
	queue     *queue.Queue
	relations *dao.RelationDAO
	tasks     *dao.TaskDAO
	authority Authority
	log       zerolog.Logger

	retryDelay time.Duration

	syncing atomic.Bool

	retryMu    sync.Mutex
	retryTimer *time.Timer

	lastMu       sync.Mutex
	lastSyncedAt time.Time
}

// New creates a coordinator. A zero retryDelay selects DefaultRetryDelay.
func New(q *queue.Queue, relations *dao.RelationDAO, tasks *dao.TaskDAO,
	authority Authority, retryDelay time.Duration, log zerolog.Logger) *Coordinator {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Coordinator{
		queue:      q,
		relations:  relations,
		tasks:      tasks,
		authority:  authority,
		retryDelay: retryDelay,
		log:        log.With().Str("component", "syncer").Logger(),
	}
}

// Run reacts to connectivity transitions and queue growth until ctx is
// cancelled. Sync is edge-triggered, never polled.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.CancelRetry()
			return
		case up := <-c.authority.Connectivity():
			if up {
				c.Sync(ctx)
			}
		case <-c.queue.Changes():
			c.Sync(ctx)
		}
	}
}

// Sync runs one batch cycle. It returns nil without doing anything
// when the channel is down, the queue is empty, or a cycle is already
// in flight.
func (c *Coordinator) Sync(ctx context.Context) error {
	if !c.authority.Connected() || c.queue.Len() == 0 {
		return nil
	}
	if !c.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer c.syncing.Store(false)

	// A fresh cycle supersedes any scheduled retry.
	c.CancelRetry()

	ops := c.pruneOrphaned(c.queue.Snapshot())
	if len(ops) == 0 {
		c.queue.Reload()
		return nil
	}

	result, err := c.authority.SyncBatch(ctx, ops)
	if err != nil {
		ids := make([]models.UUID, len(ops))
		for i := range ops {
			ids[i] = ops[i].ID
		}
		c.queue.MarkRetried(ids)
		c.scheduleRetry()
		c.log.Warn().Err(err).Int("ops", len(ops)).Msg("batch submission failed, retry scheduled")
		return &TransportError{Err: err}
	}

	c.applyOutcomes(ops, result)

	for i := range ops {
		if err := c.queue.Dequeue(ops[i].ID); err != nil {
			c.log.Error().Err(err).Str("op_id", ops[i].ID.String()).Msg("failed to dequeue operation")
		}
	}
	c.queue.Reload()

	c.lastMu.Lock()
	c.lastSyncedAt = time.Now()
	c.lastMu.Unlock()

	c.log.Info().Int("submitted", len(ops)).
		Int("accepted", len(result.Success)).
		Int("rejected", len(result.Failed)).
		Msg("batch cycle complete")
	return nil
}

// LastSyncedAt reports when the last successful batch cycle finished.
func (c *Coordinator) LastSyncedAt() time.Time {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.lastSyncedAt
}

// CancelRetry stops any scheduled retry. Callers tearing the
// coordinator's scope down use it to keep timers from firing later.
func (c *Coordinator) CancelRetry() {
	c.retryMu.Lock()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retryMu.Unlock()
}

// pruneOrphaned drops queued operations whose relation was demoted to
// Local by an earlier cycle. The relation has no remote counterpart
// anymore, so its operations resolve locally, without remote contact.
func (c *Coordinator) pruneOrphaned(ops []models.PendingOperation) []models.PendingOperation {
	kept := ops[:0]
	for i := range ops {
		relID, ok := ops[i].RelationScope()
		if ok {
			rel, err := c.relations.Get(relID)
			if err == nil && rel != nil && rel.IsLocal() {
				if err := c.queue.Dequeue(ops[i].ID); err != nil {
					c.log.Error().Err(err).Str("op_id", ops[i].ID.String()).Msg("failed to drop orphaned operation")
				}
				continue
			}
		}
		kept = append(kept, ops[i])
	}
	return kept
}

func (c *Coordinator) applyOutcomes(ops []models.PendingOperation, result *models.SyncBatchResult) {
	byID := make(map[models.UUID]*models.PendingOperation, len(ops))
	for i := range ops {
		byID[ops[i].ID] = &ops[i]
	}

	for _, failure := range result.Failed {
		op, ok := byID[failure.ID]
		if !ok {
			c.log.Warn().Str("op_id", failure.ID.String()).Msg("rejection for unsubmitted operation")
			continue
		}

		if isRelationDeleted(failure.Reason) {
			relID, ok := op.RelationScope()
			if !ok {
				continue
			}
			if err := c.relations.Demote(relID); err != nil {
				c.log.Error().Err(err).Str("relation_id", relID.String()).Msg("failed to demote relation")
			} else {
				c.log.Info().Str("relation_id", relID.String()).Str("reason", failure.Reason).Msg("relation demoted to Local")
			}
			continue
		}

		if failure.ServerTask != nil {
			if err := c.tasks.UpdateCached(failure.ServerTask); err != nil {
				c.log.Error().Err(err).Str("task_id", failure.ServerTask.ID.String()).Msg("failed to apply task snapshot")
			}
		}
		if failure.ServerRelation != nil {
			if err := c.relations.UpdateCached(failure.ServerRelation); err != nil {
				c.log.Error().Err(err).Str("relation_id", failure.ServerRelation.ID.String()).Msg("failed to apply relation snapshot")
			}
		}
	}
}

func (c *Coordinator) scheduleRetry() {
	c.retryMu.Lock()
	defer c.retryMu.Unlock()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryTimer = time.AfterFunc(c.retryDelay, func() {
		c.Sync(context.Background())
	})
}
