package transport

import (
	"context"

	"github.com/listkeeper/listkeeper/internal/models"
)

// Acknowledged request events.
const (
	EventSyncBatch          = "sync:batch"
	EventRelationsList      = "relations:list"
	EventRelationChangeName = "relations:change_name"
	EventRelationDelete     = "relations:delete"
	EventRelationShare      = "relations:share"
	EventTasksJoin          = "tasks:join"
)

// Broadcast events delivered to other joined clients.
const (
	EventTaskCreated   = "tasks:created"
	EventTaskEdited    = "tasks:edited"
	EventTaskRemoved   = "tasks:removed"
	EventTaskReordered = "tasks:reordered"
)

// SyncBatch submits the entire pending queue in one request. The reply
// classifies every operation id as accepted or rejected.
func (c *Client) SyncBatch(ctx context.Context, ops []models.PendingOperation) (*models.SyncBatchResult, error) {
	var result models.SyncBatchResult
	if err := c.Request(ctx, EventSyncBatch, ops, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRelations fetches the authoritative set of relations shared with
// this user.
func (c *Client) ListRelations(ctx context.Context) ([]models.Relation, error) {
	var rels []models.Relation
	if err := c.Request(ctx, EventRelationsList, nil, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

// ChangeRelationName renames a relation on the authority and returns
// the authoritative row.
func (c *Client) ChangeRelationName(ctx context.Context, id models.UUID, name string) (*models.Relation, error) {
	var rel models.Relation
	req := models.ChangeNameRequest{ID: id, Name: name}
	if err := c.Request(ctx, EventRelationChangeName, req, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// DeleteRelations deletes relations on the authority, best effort, one
// outcome per id.
func (c *Client) DeleteRelations(ctx context.Context, ids []models.UUID) ([]models.DeleteResult, error) {
	var results []models.DeleteResult
	if err := c.Request(ctx, EventRelationDelete, ids, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// ShareRelation shares relations with another user. The reply carries
// the authoritative relation rows, including rows for relations that
// were Local before the share.
func (c *Client) ShareRelation(ctx context.Context, req models.ShareRequest) ([]models.Relation, error) {
	var rels []models.Relation
	if err := c.Request(ctx, EventRelationShare, req, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

// JoinTasks enters a relation's room and returns its authoritative
// task set. Broadcasts for the relation flow only after a join.
func (c *Client) JoinTasks(ctx context.Context, relationID models.UUID) ([]models.Task, error) {
	var resp models.JoinResponse
	if err := c.Request(ctx, EventTasksJoin, models.JoinRequest{RelationID: relationID}, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}
