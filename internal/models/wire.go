package models

// Wire types exchanged with the remote authority.

// SyncOutcome acknowledges a single accepted operation.
type SyncOutcome struct {
	ID UUID `json:"id"`
}

// SyncFailure reports a single rejected operation. Where relevant it
// carries an authoritative snapshot of the affected entity; the snapshot
// unconditionally overwrites the local copy.
type SyncFailure struct {
	ID             UUID      `json:"id"`
	Reason         string    `json:"reason"`
	ServerTask     *Task     `json:"serverTask,omitempty"`
	ServerRelation *Relation `json:"serverRelation,omitempty"`
}

// SyncBatchResult classifies every operation of a submitted batch.
type SyncBatchResult struct {
	Success []SyncOutcome `json:"success"`
	Failed  []SyncFailure `json:"failed"`
}

// DeleteResult is the per-entity outcome of a best-effort batch delete.
type DeleteResult struct {
	OK bool `json:"ok"`
	ID UUID `json:"id"`
}

// ChangeNameRequest renames a relation on the authority.
type ChangeNameRequest struct {
	ID   UUID   `json:"id"`
	Name string `json:"name"`
}

// ShareRequest asks the authority to share relations with a user. Local
// relations in the request are promoted to Server on success.
type ShareRequest struct {
	Relations  []RelationWithTasks `json:"task_relations"`
	SharedWith Collaborator        `json:"user_shared_with"`
}

// JoinRequest enters the per-relation room and returns the authoritative
// task set for that relation.
type JoinRequest struct {
	RelationID UUID `json:"relation_id"`
}

// JoinResponse is the authoritative state returned on room join.
type JoinResponse struct {
	Tasks []Task `json:"tasks"`
}
