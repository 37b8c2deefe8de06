package dao

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/listkeeper/listkeeper/internal/db"
	"github.com/listkeeper/listkeeper/internal/models"
)

const taskColumns = `id, text, created_at, last_modified, completed_at, completed_by, relation_id, order_idx`

// TaskDAO provides CRUD operations for tasks.
type TaskDAO struct {
	stmts
	log zerolog.Logger
}

// NewTaskDAO creates a new TaskDAO instance.
func NewTaskDAO(d *db.DB, log zerolog.Logger) *TaskDAO {
	return &TaskDAO{stmts: stmts{db: d.DB}, log: log.With().Str("dao", "tasks").Logger()}
}

// Create persists a new task. A missing id and missing timestamps are
// generated here so the caller gets back the stored entity.
func (t *TaskDAO) Create(task *models.Task) error {
	now := time.Now().Unix()
	if task.ID == "" {
		task.ID = models.NewUUID()
	}
	if task.CreatedAt == 0 {
		task.CreatedAt = now
	}
	if task.LastModified == 0 {
		task.LastModified = now
	}

	query := `
	INSERT INTO tasks (` + taskColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := t.db.Exec(query, taskArgs(task)...)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get retrieves a task by id. Returns (nil, nil) when no row matches.
func (t *TaskDAO) Get(id models.UUID) (*models.Task, error) {
	stmt, err := t.prepare(`SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	task, err := scanTask(stmt.QueryRow(id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// GetByRelation returns the tasks of one relation in display order,
// unordered rows last. Failures yield an empty slice.
func (t *TaskDAO) GetByRelation(relationID models.UUID) []models.Task {
	stmt, err := t.prepare(`
	SELECT ` + taskColumns + ` FROM tasks
	WHERE relation_id = ?
	ORDER BY order_idx IS NULL, order_idx, created_at`)
	if err != nil {
		t.log.Error().Err(err).Msg("failed to prepare task query")
		return []models.Task{}
	}
	rows, err := stmt.Query(relationID)
	if err != nil {
		t.log.Error().Err(err).Msg("failed to query tasks")
		return []models.Task{}
	}
	defer rows.Close()

	out := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			t.log.Error().Err(err).Msg("failed to scan task row")
			return []models.Task{}
		}
		out = append(out, *task)
	}
	if err := rows.Err(); err != nil {
		t.log.Error().Err(err).Msg("failed to iterate task rows")
		return []models.Task{}
	}
	return out
}

// UpdateText changes a task's text. Returns (nil, nil) when no row matched.
func (t *TaskDAO) UpdateText(id models.UUID, text string) (*models.Task, error) {
	res, err := t.db.Exec(`UPDATE tasks SET text = ?, last_modified = ? WHERE id = ?`,
		text, time.Now().Unix(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update task text: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return t.Get(id)
}

// Toggle flips a task's completion state. Completing sets completed_at
// and completed_by together; un-completing clears both. Toggling twice
// restores the original state. Unlike the read paths, a toggle on a
// missing row is an error the caller must see.
func (t *TaskDAO) Toggle(id, actor models.UUID) (*models.Task, error) {
	task, err := t.Get(id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("toggle task %s: %w", id, ErrNotFound)
	}

	if task.Completed() {
		task.CompletedAt = nil
		task.CompletedBy = nil
	} else {
		now := time.Now().Unix()
		task.CompletedAt = &now
		task.CompletedBy = &actor
	}
	task.Touch()

	query := `UPDATE tasks SET completed_at = ?, completed_by = ?, last_modified = ? WHERE id = ?`
	completedAt, completedBy := completionArgs(task)
	if _, err := t.db.Exec(query, completedAt, completedBy, task.LastModified, id); err != nil {
		return nil, fmt.Errorf("failed to toggle task: %w", err)
	}
	return task, nil
}

// Delete removes tasks by id, best effort, one (success, id) pair per input.
func (t *TaskDAO) Delete(ids []models.UUID) []models.DeleteResult {
	results := make([]models.DeleteResult, 0, len(ids))
	for _, id := range ids {
		res, err := t.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
		ok := err == nil
		if ok {
			n, _ := res.RowsAffected()
			ok = n > 0
		} else {
			t.log.Error().Err(err).Str("task_id", id.String()).Msg("failed to delete task")
		}
		results = append(results, models.DeleteResult{OK: ok, ID: id})
	}
	return results
}

// Reorder persists new order indexes for the given rows in one
// transaction. Callers pass only the rows whose index actually changed.
func (t *TaskDAO) Reorder(tasks []models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for i := range tasks {
		var orderIdx any
		if tasks[i].OrderIdx != nil {
			orderIdx = *tasks[i].OrderIdx
		}
		_, err := tx.Exec(`UPDATE tasks SET order_idx = ?, last_modified = ? WHERE id = ?`,
			orderIdx, now, tasks[i].ID)
		if err != nil {
			return fmt.Errorf("failed to reorder task: %w", err)
		}
	}
	return tx.Commit()
}

// InsertCached upserts authoritative task snapshots, keyed by primary
// id, inside one transaction. Safe to apply the same batch twice.
func (t *TaskDAO) InsertCached(tasks ...models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT OR REPLACE INTO tasks (` + taskColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range tasks {
		if _, err := tx.Exec(query, taskArgs(&tasks[i])...); err != nil {
			return fmt.Errorf("failed to upsert task: %w", err)
		}
	}
	return tx.Commit()
}

// ReplaceAllCached replaces the full task set of one relation with the
// given authoritative rows. Clear and insert share a transaction so a
// partial state is never visible.
func (t *TaskDAO) ReplaceAllCached(relationID models.UUID, tasks []models.Task) error {
	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tasks WHERE relation_id = ?`, relationID); err != nil {
		return fmt.Errorf("failed to clear cached tasks: %w", err)
	}
	query := `
	INSERT OR REPLACE INTO tasks (` + taskColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range tasks {
		if _, err := tx.Exec(query, taskArgs(&tasks[i])...); err != nil {
			return fmt.Errorf("failed to insert cached task: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateCached overwrites a single cached task with the remote version.
func (t *TaskDAO) UpdateCached(task *models.Task) error {
	return t.InsertCached(*task)
}

// NextOrderIdx returns the order index for a task appended to the end
// of a relation's list.
func (t *TaskDAO) NextOrderIdx(relationID models.UUID) (int64, error) {
	stmt, err := t.prepare(`SELECT COALESCE(MAX(order_idx), -1) + 1 FROM tasks WHERE relation_id = ?`)
	if err != nil {
		return 0, err
	}
	var next int64
	if err := stmt.QueryRow(relationID).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to compute next order index: %w", err)
	}
	return next, nil
}

func taskArgs(task *models.Task) []any {
	completedAt, completedBy := completionArgs(task)
	var orderIdx any
	if task.OrderIdx != nil {
		orderIdx = *task.OrderIdx
	}
	return []any{task.ID, task.Text, task.CreatedAt, task.LastModified,
		completedAt, completedBy, task.RelationID, orderIdx}
}

func completionArgs(task *models.Task) (completedAt, completedBy any) {
	if task.CompletedAt != nil {
		completedAt = *task.CompletedAt
	}
	if task.CompletedBy != nil {
		completedBy = *task.CompletedBy
	}
	return
}

func scanTask(row scanner) (*models.Task, error) {
	var task models.Task
	var completedAt, orderIdx sql.NullInt64
	var completedBy sql.NullString
	err := row.Scan(&task.ID, &task.Text, &task.CreatedAt, &task.LastModified,
		&completedAt, &completedBy, &task.RelationID, &orderIdx)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Int64
	}
	if completedBy.Valid {
		by := models.UUID(completedBy.String)
		task.CompletedBy = &by
	}
	if orderIdx.Valid {
		task.OrderIdx = &orderIdx.Int64
	}
	return &task, nil
}
