package dao

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listkeeper/listkeeper/internal/logging"
	"github.com/listkeeper/listkeeper/internal/models"
)

func TestPendingInsertAndGetAllOrdered(t *testing.T) {
	d := newTestDB(t)
	pending := NewPendingDAO(d, logging.Default())

	older := &models.PendingOperation{
		ID: models.NewUUID(), Type: models.OpTaskCreate,
		Data: json.RawMessage(`{"text":"first"}`), Timestamp: 100,
	}
	newer := &models.PendingOperation{
		ID: models.NewUUID(), Type: models.OpTaskEdit,
		Data: json.RawMessage(`{"text":"second"}`), Timestamp: 200,
	}
	require.NoError(t, pending.Insert(newer))
	require.NoError(t, pending.Insert(older))

	ops := pending.GetAll()
	require.Len(t, ops, 2)
	assert.Equal(t, older.ID, ops[0].ID)
	assert.Equal(t, newer.ID, ops[1].ID)
	assert.JSONEq(t, `{"text":"first"}`, string(ops[0].Data))
}

func TestPendingRemove(t *testing.T) {
	d := newTestDB(t)
	pending := NewPendingDAO(d, logging.Default())

	op := &models.PendingOperation{
		ID: models.NewUUID(), Type: models.OpTaskDelete,
		Data: json.RawMessage(`{}`), Timestamp: 1,
	}
	require.NoError(t, pending.Insert(op))
	require.NoError(t, pending.Remove(op.ID))
	assert.Empty(t, pending.GetAll())

	// Removing an already-removed id is not an error.
	require.NoError(t, pending.Remove(op.ID))
}

func TestPendingIncrementRetry(t *testing.T) {
	d := newTestDB(t)
	pending := NewPendingDAO(d, logging.Default())

	op := &models.PendingOperation{
		ID: models.NewUUID(), Type: models.OpRelationEdit,
		Data: json.RawMessage(`{}`), Timestamp: 1,
	}
	require.NoError(t, pending.Insert(op))
	require.NoError(t, pending.IncrementRetry(op.ID))
	require.NoError(t, pending.IncrementRetry(op.ID))

	ops := pending.GetAll()
	require.Len(t, ops, 1)
	assert.Equal(t, 2, ops[0].RetryCount)
}
