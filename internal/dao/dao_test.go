package dao

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/listkeeper/listkeeper/internal/db"
	"github.com/listkeeper/listkeeper/internal/models"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(t.TempDir(), "listkeeper_test")
	require.NoError(t, err)
	require.NoError(t, d.Migrate())
	t.Cleanup(func() { d.Close() })
	return d
}

func serverRelation(name string) *models.Relation {
	return &models.Relation{
		Name:     name,
		Location: models.LocationServer,
		SharedWith: &models.Collaborator{
			ID:    models.NewUUID(),
			Name:  "Ada",
			Email: "ada@example.com",
		},
		Permission: models.PermissionOwner,
	}
}

func localRelation(name string) *models.Relation {
	return &models.Relation{Name: name, Location: models.LocationLocal}
}
