package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listkeeper/listkeeper/internal/logging"
	"github.com/listkeeper/listkeeper/internal/models"
)

var upgrader = gorilla.Upgrader{}

// fakeAuthority upgrades one connection and serves scripted replies.
type fakeAuthority struct {
	srv    *httptest.Server
	header chan http.Header
	conns  chan *gorilla.Conn
}

func newFakeAuthority(t *testing.T, reply func(conn *gorilla.Conn, env Envelope)) *fakeAuthority {
	t.Helper()
	f := &fakeAuthority{
		header: make(chan http.Header, 4),
		conns:  make(chan *gorilla.Conn, 4),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.header <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conns <- conn
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if reply != nil {
				reply(conn, env)
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAuthority) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func connectedClient(t *testing.T, f *fakeAuthority, token string) *Client {
	t.Helper()
	c := NewClient(f.url(), token, logging.Default())
	c.SetTimeout(2 * time.Second)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRequestRoundtrip(t *testing.T) {
	f := newFakeAuthority(t, func(conn *gorilla.Conn, env Envelope) {
		switch env.Event {
		case EventRelationsList:
			data, _ := json.Marshal([]models.Relation{{ID: "r1", Name: "shared", Location: models.LocationServer}})
			conn.WriteJSON(Envelope{ID: env.ID, Event: env.Event, Data: data})
		case EventRelationChangeName:
			var req models.ChangeNameRequest
			json.Unmarshal(env.Data, &req)
			data, _ := json.Marshal(models.Relation{ID: req.ID, Name: req.Name, Location: models.LocationServer})
			conn.WriteJSON(Envelope{ID: env.ID, Event: env.Event, Data: data})
		}
	})
	c := connectedClient(t, f, "secret-token")

	rels, err := c.ListRelations(context.Background())
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "shared", rels[0].Name)

	renamed, err := c.ChangeRelationName(context.Background(), "r1", "renamed")
	require.NoError(t, err)
	assert.Equal(t, "renamed", renamed.Name)
	assert.EqualValues(t, "r1", renamed.ID)

	hdr := <-f.header
	assert.Equal(t, "Bearer secret-token", hdr.Get("Authorization"))
}

func TestRequestRejected(t *testing.T) {
	f := newFakeAuthority(t, func(conn *gorilla.Conn, env Envelope) {
		conn.WriteJSON(Envelope{ID: env.ID, Event: env.Event, Error: "permission denied"})
	})
	c := connectedClient(t, f, "tok")

	_, err := c.DeleteRelations(context.Background(), []models.UUID{"r1"})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "permission denied", reqErr.Reason)
}

func TestRequestWhileDisconnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:0", "tok", logging.Default())
	_, err := c.SyncBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestBroadcastDispatch(t *testing.T) {
	f := newFakeAuthority(t, nil)
	c := connectedClient(t, f, "tok")

	got := make(chan models.Task, 1)
	c.On(EventTaskCreated, func(data json.RawMessage) {
		var task models.Task
		if err := json.Unmarshal(data, &task); err == nil {
			got <- task
		}
	})

	serverConn := <-f.conns
	payload, _ := json.Marshal(models.Task{ID: "t1", Text: "from collaborator", RelationID: "r1"})
	require.NoError(t, serverConn.WriteJSON(Envelope{Event: EventTaskCreated, Data: payload}))

	select {
	case task := <-got:
		assert.Equal(t, "from collaborator", task.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestAuthErrorSignalsLogout(t *testing.T) {
	f := newFakeAuthority(t, nil)
	c := connectedClient(t, f, "expired")

	serverConn := <-f.conns
	require.NoError(t, serverConn.WriteJSON(Envelope{Event: "token:error", Error: "token expired"}))

	select {
	case <-c.LogoutSignals():
	case <-time.After(2 * time.Second):
		t.Fatal("logout signal not delivered")
	}
}

func TestConnectivityTransitions(t *testing.T) {
	f := newFakeAuthority(t, nil)
	c := connectedClient(t, f, "tok")

	select {
	case up := <-c.Connectivity():
		assert.True(t, up)
	case <-time.After(2 * time.Second):
		t.Fatal("no connect transition")
	}

	serverConn := <-f.conns
	serverConn.Close()

	select {
	case up := <-c.Connectivity():
		assert.False(t, up)
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect transition")
	}
}
