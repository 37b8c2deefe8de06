package service

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/listkeeper/listkeeper/internal/dao"
	"github.com/listkeeper/listkeeper/internal/models"
	"github.com/listkeeper/listkeeper/internal/store"
	"github.com/listkeeper/listkeeper/internal/transport"
)

// Subscriber registers broadcast handlers on the channel.
type Subscriber interface {
	On(event string, h transport.Handler)
}

// Broadcasts applies collaborator-originated events to the cache and
// the store. These mutations did not originate on this device, so they
// never touch the pending queue.
type Broadcasts struct {
	relations *dao.RelationDAO
	tasks     *dao.TaskDAO
	store     *store.Store
	log       zerolog.Logger
}

// NewBroadcasts creates the broadcast bindings.
func NewBroadcasts(relations *dao.RelationDAO, tasks *dao.TaskDAO, st *store.Store, log zerolog.Logger) *Broadcasts {
	return &Broadcasts{
		relations: relations,
		tasks:     tasks,
		store:     st,
		log:       log.With().Str("service", "broadcasts").Logger(),
	}
}

// Bind registers every inbound handler on the subscriber.
func (b *Broadcasts) Bind(sub Subscriber) {
	sub.On(transport.EventRelationChangeName, b.onRelationRenamed)
	sub.On(transport.EventRelationDelete, b.onRelationDeleted)
	sub.On(transport.EventRelationShare, b.onRelationShared)
	sub.On(transport.EventTaskCreated, b.onTaskUpserted)
	sub.On(transport.EventTaskEdited, b.onTaskUpserted)
	sub.On(transport.EventTaskRemoved, b.onTaskRemoved)
	sub.On(transport.EventTaskReordered, b.onTasksReordered)
}

func (b *Broadcasts) onRelationRenamed(data json.RawMessage) {
	var rel models.Relation
	if err := json.Unmarshal(data, &rel); err != nil {
		b.log.Error().Err(err).Msg("bad relation rename broadcast")
		return
	}
	if err := b.relations.UpdateCached(&rel); err != nil {
		b.log.Error().Err(err).Str("relation_id", rel.ID.String()).Msg("failed to cache renamed relation")
		return
	}
	b.store.UpsertRelation(rel)
}

func (b *Broadcasts) onRelationDeleted(data json.RawMessage) {
	var rel models.Relation
	if err := json.Unmarshal(data, &rel); err != nil || rel.ID == "" {
		b.log.Error().Err(err).Msg("bad relation delete broadcast")
		return
	}
	b.relations.Delete([]models.UUID{rel.ID})
	b.store.RemoveRelation(rel.ID)
}

func (b *Broadcasts) onRelationShared(data json.RawMessage) {
	var shared models.RelationWithTasks
	if err := json.Unmarshal(data, &shared); err != nil {
		b.log.Error().Err(err).Msg("bad relation share broadcast")
		return
	}
	if err := b.relations.InsertCached(&shared.Relation); err != nil {
		b.log.Error().Err(err).Str("relation_id", shared.ID.String()).Msg("failed to cache shared relation")
		return
	}
	if err := b.tasks.InsertCached(shared.Tasks...); err != nil {
		b.log.Error().Err(err).Str("relation_id", shared.ID.String()).Msg("failed to cache shared tasks")
		return
	}
	b.store.UpsertRelation(shared.Relation)
}

func (b *Broadcasts) onTaskUpserted(data json.RawMessage) {
	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		b.log.Error().Err(err).Msg("bad task broadcast")
		return
	}
	if err := b.tasks.UpdateCached(&task); err != nil {
		b.log.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to cache broadcast task")
		return
	}
	b.store.UpsertTask(task)
}

func (b *Broadcasts) onTaskRemoved(data json.RawMessage) {
	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil || task.ID == "" {
		b.log.Error().Err(err).Msg("bad task remove broadcast")
		return
	}
	b.tasks.Delete([]models.UUID{task.ID})
	b.store.RemoveTask(task.ID)
}

func (b *Broadcasts) onTasksReordered(data json.RawMessage) {
	var rows []models.Task
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		b.log.Error().Err(err).Msg("bad task reorder broadcast")
		return
	}
	if err := b.tasks.InsertCached(rows...); err != nil {
		b.log.Error().Err(err).Msg("failed to cache reordered tasks")
		return
	}
	relID := rows[0].RelationID
	if b.store.OpenRelation() == relID {
		b.store.SetTasks(relID, b.tasks.GetByRelation(relID))
	}
}
