package models

import "time"

// Task belongs to exactly one relation and is cascade-deleted with it.
//
// CompletedAt and CompletedBy are set and cleared together; a task is
// never half-completed.
type Task struct {
	ID           UUID   `db:"id" json:"id"`
	Text         string `db:"text" json:"text"`
	CreatedAt    int64  `db:"created_at" json:"created_at"`
	LastModified int64  `db:"last_modified" json:"last_modified"`
	CompletedAt  *int64 `db:"completed_at" json:"completed_at"`
	CompletedBy  *UUID  `db:"completed_by" json:"completed_by"`
	RelationID   UUID   `db:"relation_id" json:"relation_id"`
	OrderIdx     *int64 `db:"order_idx" json:"order_idx,omitempty"`
}

// TableName returns the table name for Task.
func (Task) TableName() string {
	return "tasks"
}

// Completed reports whether the task is currently toggled done.
func (t *Task) Completed() bool {
	return t.CompletedAt != nil || t.CompletedBy != nil
}

// Touch updates the LastModified timestamp.
func (t *Task) Touch() {
	t.LastModified = time.Now().Unix()
}
