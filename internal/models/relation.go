package models

import "time"

// Location says where the authoritative copy of a relation lives.
type Location string

const (
	LocationLocal  Location = "Local"
	LocationServer Location = "Server"
)

// Permission is the access level the current user holds on a shared relation.
type Permission string

const (
	PermissionOwner Permission = "owner"
	PermissionEdit  Permission = "edit"
)

// Collaborator identifies the user a Server relation is shared with.
type Collaborator struct {
	ID    UUID   `db:"shared_with_id" json:"id"`
	Name  string `db:"shared_with_name" json:"name"`
	Email string `db:"shared_with_email" json:"email"`
}

// Relation is a named, ordered task list.
//
// A Local relation exists only on this device and never carries sharing
// metadata. A Server relation has an authoritative remote copy and always
// carries exactly one SharedWith collaborator plus a Permission.
type Relation struct {
	ID           UUID          `db:"id" json:"id"`
	Name         string        `db:"name" json:"name"`
	CreatedAt    int64         `db:"created_at" json:"created_at"`
	LastModified int64         `db:"last_modified" json:"last_modified"`
	Location     Location      `db:"location" json:"location"`
	SharedWith   *Collaborator `json:"shared_with,omitempty"`
	Permission   Permission    `db:"permission" json:"permission,omitempty"`
}

// TableName returns the table name for Relation.
func (Relation) TableName() string {
	return "relations"
}

// IsLocal reports whether the relation has no remote counterpart.
func (r *Relation) IsLocal() bool {
	return r.Location == LocationLocal
}

// Touch updates the LastModified timestamp.
func (r *Relation) Touch() {
	r.LastModified = time.Now().Unix()
}

// RelationWithTasks is a relation bundled with its full task set, as
// delivered by the remote authority on share and join.
type RelationWithTasks struct {
	Relation
	Tasks []Task `json:"tasks"`
}
