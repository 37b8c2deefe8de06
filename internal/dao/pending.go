package dao

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/listkeeper/listkeeper/internal/db"
	"github.com/listkeeper/listkeeper/internal/models"
)

// PendingDAO persists the durable pending-operation log. The queue's
// in-memory mirror is rebuilt from this table after every restart.
type PendingDAO struct {
	stmts
	log zerolog.Logger
}

// NewPendingDAO creates a new PendingDAO instance.
func NewPendingDAO(d *db.DB, log zerolog.Logger) *PendingDAO {
	return &PendingDAO{stmts: stmts{db: d.DB}, log: log.With().Str("dao", "pending").Logger()}
}

// Insert appends an operation to the durable log.
func (p *PendingDAO) Insert(op *models.PendingOperation) error {
	query := `
	INSERT INTO pending_operations (id, type, data, timestamp, retry_count)
	VALUES (?, ?, ?, ?, ?)
	`
	_, err := p.db.Exec(query, op.ID, op.Type, string(op.Data), op.Timestamp, op.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to insert pending operation: %w", err)
	}
	return nil
}

// GetAll returns the durable log in submission order. Failures yield an
// empty slice.
func (p *PendingDAO) GetAll() []models.PendingOperation {
	rows, err := p.db.Query(`
	SELECT id, type, data, timestamp, retry_count
	FROM pending_operations
	ORDER BY timestamp, rowid`)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to query pending operations")
		return []models.PendingOperation{}
	}
	defer rows.Close()

	out := []models.PendingOperation{}
	for rows.Next() {
		var op models.PendingOperation
		var data string
		if err := rows.Scan(&op.ID, &op.Type, &data, &op.Timestamp, &op.RetryCount); err != nil {
			p.log.Error().Err(err).Msg("failed to scan pending operation row")
			return []models.PendingOperation{}
		}
		op.Data = []byte(data)
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		p.log.Error().Err(err).Msg("failed to iterate pending operation rows")
		return []models.PendingOperation{}
	}
	return out
}

// Remove deletes one operation from the durable log.
func (p *PendingDAO) Remove(id models.UUID) error {
	if _, err := p.db.Exec(`DELETE FROM pending_operations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove pending operation: %w", err)
	}
	return nil
}

// IncrementRetry bumps an operation's retry counter after a failed
// batch submission left it queued.
func (p *PendingDAO) IncrementRetry(id models.UUID) error {
	_, err := p.db.Exec(`UPDATE pending_operations SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}
