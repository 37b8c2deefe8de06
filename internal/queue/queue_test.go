package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listkeeper/listkeeper/internal/dao"
	"github.com/listkeeper/listkeeper/internal/db"
	"github.com/listkeeper/listkeeper/internal/logging"
	"github.com/listkeeper/listkeeper/internal/models"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	dir := t.TempDir()
	d, err := db.Open(dir, "queue_test")
	require.NoError(t, err)
	require.NoError(t, d.Migrate())
	t.Cleanup(func() { d.Close() })
	q := New(dao.NewPendingDAO(d, logging.Default()), logging.Default())
	q.Load()
	return q
}

type createPayload struct {
	Text       string      `json:"text"`
	RelationID models.UUID `json:"relation_id"`
}

func TestEnqueueAssignsIdentity(t *testing.T) {
	q := newTestQueue(t)

	op, err := q.Enqueue(models.OpTaskCreate, createPayload{Text: "milk", RelationID: models.NewUUID()})
	require.NoError(t, err)
	assert.NotEmpty(t, op.ID)
	assert.NotZero(t, op.Timestamp)
	assert.Equal(t, 0, op.RetryCount)
	assert.Equal(t, 1, q.Len())
}

func TestEnqueueSignalsChanges(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(models.OpTaskCreate, createPayload{Text: "a"})
	require.NoError(t, err)
	_, err = q.Enqueue(models.OpTaskCreate, createPayload{Text: "b"})
	require.NoError(t, err)

	// Two enqueues coalesce into at most one buffered signal.
	select {
	case <-q.Changes():
	default:
		t.Fatal("expected a change signal after enqueue")
	}
	select {
	case <-q.Changes():
		t.Fatal("expected change signals to coalesce")
	default:
	}
}

func TestDequeueRemovesFromLogAndMirror(t *testing.T) {
	q := newTestQueue(t)

	op, err := q.Enqueue(models.OpTaskDelete, createPayload{Text: "x"})
	require.NoError(t, err)
	require.NoError(t, q.Dequeue(op.ID))
	assert.Equal(t, 0, q.Len())

	q.Load()
	assert.Equal(t, 0, q.Len())
}

func TestQueueSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	d, err := db.Open(dir, "restart_test")
	require.NoError(t, err)
	require.NoError(t, d.Migrate())

	q := New(dao.NewPendingDAO(d, logging.Default()), logging.Default())
	q.Load()
	first, err := q.Enqueue(models.OpTaskCreate, createPayload{Text: "offline one"})
	require.NoError(t, err)
	second, err := q.Enqueue(models.OpTaskToggle, createPayload{Text: "offline two"})
	require.NoError(t, err)
	before := q.Snapshot()
	require.NoError(t, d.Close())

	reopened, err := db.Open(dir, "restart_test")
	require.NoError(t, err)
	defer reopened.Close()
	recovered := New(dao.NewPendingDAO(reopened, logging.Default()), logging.Default())
	recovered.Load()

	after := recovered.Snapshot()
	require.Len(t, after, 2)
	assert.Equal(t, before, after)
	assert.Equal(t, first.ID, after[0].ID)
	assert.Equal(t, second.ID, after[1].ID)
}

func TestMarkRetriedBumpsCounters(t *testing.T) {
	q := newTestQueue(t)

	op, err := q.Enqueue(models.OpRelationDelete, createPayload{})
	require.NoError(t, err)

	q.MarkRetried([]models.UUID{op.ID})
	ops := q.Snapshot()
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].RetryCount)
}
