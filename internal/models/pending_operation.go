package models

import "encoding/json"

// OpType tags a pending operation with the mutation it records.
type OpType string

const (
	OpTaskCreate     OpType = "task-create"
	OpTaskEdit       OpType = "task-edit"
	OpTaskDelete     OpType = "task-delete"
	OpTaskReorder    OpType = "task-reorder"
	OpTaskToggle     OpType = "task-toggle"
	OpRelationEdit   OpType = "relation-edit"
	OpRelationDelete OpType = "relation-delete"
	OpRelationShare  OpType = "relation-share"
)

// PendingOperation is a durable record of a local mutation that has not
// yet been confirmed by the remote authority. An operation exists in the
// queue iff its mutation is unconfirmed; the queue survives restarts
// exactly as persisted.
type PendingOperation struct {
	ID         UUID            `db:"id" json:"id"`
	Type       OpType          `db:"type" json:"type"`
	Data       json.RawMessage `db:"data" json:"data"`
	Timestamp  int64           `db:"timestamp" json:"timestamp"`
	RetryCount int             `db:"retry_count" json:"retryCount"`
}

// TableName returns the table name for PendingOperation.
func (PendingOperation) TableName() string {
	return "pending_operations"
}

// IsTaskOp reports whether the operation targets a task.
func (op *PendingOperation) IsTaskOp() bool {
	switch op.Type {
	case OpTaskCreate, OpTaskEdit, OpTaskDelete, OpTaskReorder, OpTaskToggle:
		return true
	}
	return false
}

// RelationScope resolves the relation the operation targets, used when
// the authority rejects an operation because its parent relation is gone.
//
// Task payloads carry relation_id, relation payloads carry the relation's
// own id, and task-reorder payloads are arrays whose rows share one
// relation. relation-delete has no scope to recover: the relation is
// already gone on both sides.
func (op *PendingOperation) RelationScope() (UUID, bool) {
	switch {
	case op.Type == OpRelationDelete:
		return "", false
	case op.Type == OpTaskReorder:
		var rows []Task
		if err := json.Unmarshal(op.Data, &rows); err != nil || len(rows) == 0 {
			return "", false
		}
		return rows[0].RelationID, rows[0].RelationID != ""
	case op.IsTaskOp():
		var payload struct {
			RelationID UUID `json:"relation_id"`
		}
		if err := json.Unmarshal(op.Data, &payload); err != nil {
			return "", false
		}
		return payload.RelationID, payload.RelationID != ""
	default:
		var payload struct {
			ID UUID `json:"id"`
		}
		if err := json.Unmarshal(op.Data, &payload); err != nil {
			return "", false
		}
		return payload.ID, payload.ID != ""
	}
}
