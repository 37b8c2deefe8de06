package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/listkeeper/listkeeper/internal/dao"
	"github.com/listkeeper/listkeeper/internal/db"
	"github.com/listkeeper/listkeeper/internal/logging"
	"github.com/listkeeper/listkeeper/internal/models"
	"github.com/listkeeper/listkeeper/internal/queue"
	"github.com/listkeeper/listkeeper/internal/session"
	"github.com/listkeeper/listkeeper/internal/store"
	"github.com/listkeeper/listkeeper/internal/transport"
)

// fakeChannel satisfies TaskChannel and RelationChannel with scripted
// replies.
type fakeChannel struct {
	connected bool
	joined    []models.Task
	listed    []models.Relation
	shared    []models.Relation
	shareReqs []models.ShareRequest
}

func (f *fakeChannel) Connected() bool { return f.connected }

func (f *fakeChannel) JoinTasks(_ context.Context, _ models.UUID) ([]models.Task, error) {
	return f.joined, nil
}

func (f *fakeChannel) ListRelations(_ context.Context) ([]models.Relation, error) {
	return f.listed, nil
}

func (f *fakeChannel) ShareRelation(_ context.Context, req models.ShareRequest) ([]models.Relation, error) {
	f.shareReqs = append(f.shareReqs, req)
	return f.shared, nil
}

type env struct {
	relations *dao.RelationDAO
	tasks     *dao.TaskDAO
	queue     *queue.Queue
	store     *store.Store
	channel   *fakeChannel
	taskSvc   *TaskService
	relSvc    *RelationService
	casts     *Broadcasts
}

func newEnv(t *testing.T) *env {
	t.Helper()
	d, err := db.Open(t.TempDir(), "service_test")
	require.NoError(t, err)
	require.NoError(t, d.Migrate())
	t.Cleanup(func() { d.Close() })

	log := logging.Default()
	sess, err := session.FromToken(testToken(t))
	require.NoError(t, err)

	e := &env{
		relations: dao.NewRelationDAO(d, log),
		tasks:     dao.NewTaskDAO(d, log),
		queue:     queue.New(dao.NewPendingDAO(d, log), log),
		store:     store.New(),
		channel:   &fakeChannel{},
	}
	e.queue.Load()
	e.taskSvc = NewTaskService(e.tasks, e.relations, e.queue, e.store, sess, e.channel, log)
	e.relSvc = NewRelationService(e.relations, e.tasks, e.queue, e.store, sess, e.channel, log)
	e.casts = NewBroadcasts(e.relations, e.tasks, e.store, log)
	return e
}

func (e *env) seedServerRelation(t *testing.T, name string) *models.Relation {
	t.Helper()
	rel := &models.Relation{
		Name:     name,
		Location: models.LocationServer,
		SharedWith: &models.Collaborator{
			ID: models.NewUUID(), Name: "Ada", Email: "ada@example.com",
		},
		Permission: models.PermissionOwner,
	}
	require.NoError(t, e.relations.Create(rel))
	return rel
}

func (e *env) seedLocalRelation(t *testing.T, name string) *models.Relation {
	t.Helper()
	rel := &models.Relation{Name: name, Location: models.LocationLocal}
	require.NoError(t, e.relations.Create(rel))
	return rel
}

// subscriberMap collects handlers the way the live channel would.
type subscriberMap map[string][]transport.Handler

func (s subscriberMap) On(event string, h transport.Handler) {
	s[event] = append(s[event], h)
}

func (s subscriberMap) emit(t *testing.T, event string, payload any) {
	t.Helper()
	data := mustJSON(t, payload)
	handlers := s[event]
	require.NotEmpty(t, handlers, "no handler bound for %s", event)
	for _, h := range handlers {
		h(data)
	}
}

func mustJSON(t *testing.T, payload any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return data
}

func testToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "actor-1",
		"name": "Grace",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}
