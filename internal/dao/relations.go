package dao

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/listkeeper/listkeeper/internal/db"
	"github.com/listkeeper/listkeeper/internal/models"
)

const relationColumns = `id, name, created_at, last_modified, location,
	shared_with_id, shared_with_name, shared_with_email, permission`

// RelationDAO provides CRUD operations for relations.
type RelationDAO struct {
	stmts
	log zerolog.Logger
}

// NewRelationDAO creates a new RelationDAO instance.
func NewRelationDAO(d *db.DB, log zerolog.Logger) *RelationDAO {
	return &RelationDAO{stmts: stmts{db: d.DB}, log: log.With().Str("dao", "relations").Logger()}
}

// Create persists a new relation. A missing id and missing timestamps
// are generated here so the caller gets back the stored entity.
func (r *RelationDAO) Create(rel *models.Relation) error {
	now := time.Now().Unix()
	if rel.ID == "" {
		rel.ID = models.NewUUID()
	}
	if rel.CreatedAt == 0 {
		rel.CreatedAt = now
	}
	if rel.LastModified == 0 {
		rel.LastModified = now
	}

	query := `
	INSERT INTO relations (` + relationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, relationArgs(rel)...)
	if err != nil {
		return fmt.Errorf("failed to create relation: %w", err)
	}
	return nil
}

// Get retrieves a relation by id. Returns (nil, nil) when no row matches.
func (r *RelationDAO) Get(id models.UUID) (*models.Relation, error) {
	stmt, err := r.prepare(`SELECT ` + relationColumns + ` FROM relations WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	rel, err := scanRelation(stmt.QueryRow(id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relation: %w", err)
	}
	return rel, nil
}

// GetAll returns every cached relation. Callers treat "nothing cached
// yet" and "read failure" identically, so failures yield an empty slice.
func (r *RelationDAO) GetAll() []models.Relation {
	rows, err := r.db.Query(`SELECT ` + relationColumns + ` FROM relations ORDER BY created_at`)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to query relations")
		return []models.Relation{}
	}
	defer rows.Close()

	out := []models.Relation{}
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			r.log.Error().Err(err).Msg("failed to scan relation row")
			return []models.Relation{}
		}
		out = append(out, *rel)
	}
	if err := rows.Err(); err != nil {
		r.log.Error().Err(err).Msg("failed to iterate relation rows")
		return []models.Relation{}
	}
	return out
}

// Update overwrites a relation's mutable fields. Returns (nil, nil)
// when no row matched.
func (r *RelationDAO) Update(rel *models.Relation) (*models.Relation, error) {
	rel.Touch()
	query := `
	UPDATE relations
	SET name = ?, last_modified = ?, location = ?,
		shared_with_id = ?, shared_with_name = ?, shared_with_email = ?, permission = ?
	WHERE id = ?
	`
	sharedID, sharedName, sharedEmail, permission := sharingArgs(rel)
	res, err := r.db.Exec(query, rel.Name, rel.LastModified, rel.Location,
		sharedID, sharedName, sharedEmail, permission, rel.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update relation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return rel, nil
}

// Rename changes a relation's name. Returns (nil, nil) when no row matched.
func (r *RelationDAO) Rename(id models.UUID, name string) (*models.Relation, error) {
	res, err := r.db.Exec(`UPDATE relations SET name = ?, last_modified = ? WHERE id = ?`,
		name, time.Now().Unix(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to rename relation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return r.Get(id)
}

// Delete removes relations by id, best effort. Dependent tasks go with
// them via the foreign key cascade. One failed delete never aborts the
// rest of the batch.
func (r *RelationDAO) Delete(ids []models.UUID) []models.DeleteResult {
	results := make([]models.DeleteResult, 0, len(ids))
	for _, id := range ids {
		res, err := r.db.Exec(`DELETE FROM relations WHERE id = ?`, id)
		ok := err == nil
		if ok {
			n, _ := res.RowsAffected()
			ok = n > 0
		} else {
			r.log.Error().Err(err).Str("relation_id", id.String()).Msg("failed to delete relation")
		}
		results = append(results, models.DeleteResult{OK: ok, ID: id})
	}
	return results
}

// InsertCached upserts an authoritative relation snapshot, keyed by
// primary id. Calling it twice with identical input is a no-op.
func (r *RelationDAO) InsertCached(rel *models.Relation) error {
	query := `
	INSERT OR REPLACE INTO relations (` + relationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.Exec(query, relationArgs(rel)...); err != nil {
		return fmt.Errorf("failed to upsert relation: %w", err)
	}
	return nil
}

// ReplaceAllCached replaces every Server relation with the given
// authoritative set inside one transaction. Local relations have no
// remote counterpart and are left untouched.
func (r *RelationDAO) ReplaceAllCached(rels []models.Relation) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM relations WHERE location = ?`, models.LocationServer); err != nil {
		return fmt.Errorf("failed to clear cached relations: %w", err)
	}
	query := `
	INSERT OR REPLACE INTO relations (` + relationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range rels {
		if _, err := tx.Exec(query, relationArgs(&rels[i])...); err != nil {
			return fmt.Errorf("failed to insert cached relation: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateCached overwrites a single cached relation with the remote
// version. The remote value always wins when this path is invoked.
func (r *RelationDAO) UpdateCached(rel *models.Relation) error {
	return r.InsertCached(rel)
}

// Demote converts a Server relation to Local in place: sharing fields
// cleared, permission reset to owner.
func (r *RelationDAO) Demote(id models.UUID) error {
	query := `
	UPDATE relations
	SET location = ?, permission = ?, last_modified = ?,
		shared_with_id = NULL, shared_with_name = NULL, shared_with_email = NULL
	WHERE id = ?
	`
	res, err := r.db.Exec(query, models.LocationLocal, models.PermissionOwner, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to demote relation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func relationArgs(rel *models.Relation) []any {
	sharedID, sharedName, sharedEmail, permission := sharingArgs(rel)
	return []any{rel.ID, rel.Name, rel.CreatedAt, rel.LastModified, rel.Location,
		sharedID, sharedName, sharedEmail, permission}
}

func sharingArgs(rel *models.Relation) (sharedID, sharedName, sharedEmail, permission any) {
	if rel.SharedWith != nil {
		sharedID = rel.SharedWith.ID
		sharedName = rel.SharedWith.Name
		sharedEmail = rel.SharedWith.Email
	}
	if rel.Permission != "" {
		permission = rel.Permission
	}
	return
}

func scanRelation(row scanner) (*models.Relation, error) {
	var rel models.Relation
	var sharedID, sharedName, sharedEmail, permission sql.NullString
	err := row.Scan(&rel.ID, &rel.Name, &rel.CreatedAt, &rel.LastModified, &rel.Location,
		&sharedID, &sharedName, &sharedEmail, &permission)
	if err != nil {
		return nil, err
	}
	if sharedID.Valid {
		rel.SharedWith = &models.Collaborator{
			ID:    models.UUID(sharedID.String),
			Name:  sharedName.String,
			Email: sharedEmail.String,
		}
	}
	if permission.Valid {
		rel.Permission = models.Permission(permission.String)
	}
	return &rel, nil
}
