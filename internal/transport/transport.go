// Package transport implements the bidirectional channel to the remote
// authority: acknowledged request/response exchanges and fire-and-forget
// broadcast events share one WebSocket connection.
//
// Messages carrying an id are responses to a request issued by this
// client; messages without an id are broadcasts originated by other
// collaborators and are dispatched to registered handlers.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/listkeeper/listkeeper/internal/models"
)

const (
	// Reconnect starts at reconnectDelay and doubles up to
	// reconnectDelayMax, for at most reconnectAttempts tries.
	reconnectDelay    = time.Second
	reconnectDelayMax = 5 * time.Second
	reconnectAttempts = 5

	// DefaultRequestTimeout bounds the wait for an acknowledged reply.
	DefaultRequestTimeout = 20 * time.Second
)

var (
	// ErrNotConnected is returned when a request is issued while the
	// channel is down. Callers queue the mutation instead of failing it.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrConnectionLost is returned for requests that were in flight
	// when the connection dropped.
	ErrConnectionLost = errors.New("transport: connection lost")
)

// Envelope is the wire frame shared by requests, replies and broadcasts.
type Envelope struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Handler consumes a broadcast event's payload.
type Handler func(data json.RawMessage)

// Client is a reconnecting WebSocket client.
type Client struct {
	url     string
	token   string
	dialer  *gorilla.Dialer
	timeout time.Duration
	log     zerolog.Logger

	writeMu sync.Mutex
	conn    *gorilla.Conn

	connected atomic.Bool

	respMu    sync.Mutex
	responses map[string]chan Envelope

	handlerMu sync.RWMutex
	handlers  map[string][]Handler

	connectivity chan bool
	logout       chan struct{}
	closeChan    chan struct{}
	closeOnce    sync.Once
}

// NewClient builds a client for the given channel URL. The bearer token
// authorizes the handshake; the server rejects it with an auth event,
// which surfaces on LogoutSignals.
func NewClient(url, token string, log zerolog.Logger) *Client {
	return &Client{
		url:          url,
		token:        token,
		dialer:       gorilla.DefaultDialer,
		timeout:      DefaultRequestTimeout,
		log:          log.With().Str("component", "transport").Logger(),
		responses:    make(map[string]chan Envelope),
		handlers:     make(map[string][]Handler),
		connectivity: make(chan bool, 8),
		logout:       make(chan struct{}, 1),
		closeChan:    make(chan struct{}),
	}
}

// SetTimeout overrides the per-request acknowledgement timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Connect dials the channel and starts the read loop. On later
// connection loss the client reconnects by itself; Connect only fails
// when the first dial fails.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", c.url, err)
	}
	c.setConn(conn)
	go c.readLoop(conn)
	return nil
}

// Connected reports whether the channel is currently up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Connectivity returns the stream of connect/disconnect transitions.
func (c *Client) Connectivity() <-chan bool {
	return c.connectivity
}

// LogoutSignals fires when the server rejects this client's credential.
// Session teardown is the caller's responsibility.
func (c *Client) LogoutSignals() <-chan struct{} {
	return c.logout
}

// On registers a handler for a broadcast event. Handlers run on the
// read loop, in arrival order.
func (c *Client) On(event string, h Handler) {
	c.handlerMu.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.handlerMu.Unlock()
}

// Request sends an acknowledged event and decodes the reply into dest.
// dest may be nil when the reply payload is irrelevant.
func (c *Client) Request(ctx context.Context, event string, payload, dest any) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("transport: encode %s request: %w", event, err)
		}
		data = encoded
	}

	id := models.NewUUID().String()
	respChan := c.createResponseChannel(id)
	defer c.removeResponseChannel(id)

	if err := c.write(Envelope{ID: id, Event: event, Data: data}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closeChan:
		return ErrConnectionLost
	case env, open := <-respChan:
		if !open {
			return ErrConnectionLost
		}
		if env.Error != "" {
			return &RequestError{Event: event, Reason: env.Error}
		}
		if dest == nil || len(env.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Data, dest); err != nil {
			return fmt.Errorf("transport: decode %s response: %w", event, err)
		}
		return nil
	}
}

// Close tears the channel down and stops any reconnect attempts.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.writeMu.Lock()
		conn := c.conn
		c.conn = nil
		c.writeMu.Unlock()
		if conn != nil {
			conn.WriteMessage(gorilla.CloseMessage,
				gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""))
			err = conn.Close()
		}
		c.connected.Store(false)
		c.failInflight()
	})
	return err
}

// RequestError is a per-request rejection from the remote authority.
type RequestError struct {
	Event  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("transport: %s rejected: %s", e.Event, e.Reason)
}

func (c *Client) dial(ctx context.Context) (*gorilla.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return conn, nil
}

func (c *Client) setConn(conn *gorilla.Conn) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.connected.Store(true)
	c.pushConnectivity(true)
	c.log.Info().Str("url", c.url).Msg("channel connected")
}

func (c *Client) write(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("transport: write %s: %w", env.Event, err)
	}
	return nil
}

func (c *Client) readLoop(conn *gorilla.Conn) {
	for {
		select {
		case <-c.closeChan:
			return
		default:
		}
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.handleDisconnect(err)
			return
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	if env.Event == "auth:error" || env.Event == "token:error" {
		c.log.Warn().Str("event", env.Event).Msg("credential rejected by server")
		select {
		case c.logout <- struct{}{}:
		default:
		}
		return
	}

	if env.ID != "" {
		// The lock is held across the send so Close cannot close the
		// channel mid-send; the buffer makes the send non-blocking.
		c.respMu.Lock()
		if ch, ok := c.responses[env.ID]; ok {
			ch <- env
			delete(c.responses, env.ID)
		} else {
			c.log.Debug().Str("id", env.ID).Str("event", env.Event).Msg("reply for unknown request")
		}
		c.respMu.Unlock()
		return
	}

	c.handlerMu.RLock()
	handlers := c.handlers[env.Event]
	c.handlerMu.RUnlock()
	if len(handlers) == 0 {
		c.log.Debug().Str("event", env.Event).Msg("unhandled broadcast")
		return
	}
	for _, h := range handlers {
		h(env.Data)
	}
}

func (c *Client) handleDisconnect(cause error) {
	select {
	case <-c.closeChan:
		return
	default:
	}
	c.log.Warn().Err(cause).Msg("channel disconnected")
	c.connected.Store(false)
	c.pushConnectivity(false)
	c.failInflight()
	go c.reconnectLoop()
}

func (c *Client) reconnectLoop() {
	delay := reconnectDelay
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		select {
		case <-c.closeChan:
			return
		case <-time.After(delay):
		}
		conn, err := c.dial(context.Background())
		if err == nil {
			c.setConn(conn)
			go c.readLoop(conn)
			return
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
		delay *= 2
		if delay > reconnectDelayMax {
			delay = reconnectDelayMax
		}
	}
	c.log.Error().Int("attempts", reconnectAttempts).Msg("giving up on reconnect")
}

func (c *Client) createResponseChannel(id string) chan Envelope {
	ch := make(chan Envelope, 1)
	c.respMu.Lock()
	c.responses[id] = ch
	c.respMu.Unlock()
	return ch
}

func (c *Client) removeResponseChannel(id string) {
	c.respMu.Lock()
	delete(c.responses, id)
	c.respMu.Unlock()
}

// failInflight closes every waiting response channel so in-flight
// requests fail with ErrConnectionLost instead of timing out.
func (c *Client) failInflight() {
	c.respMu.Lock()
	for id, ch := range c.responses {
		close(ch)
		delete(c.responses, id)
	}
	c.respMu.Unlock()
}

func (c *Client) pushConnectivity(up bool) {
	select {
	case c.connectivity <- up:
	default:
	}
}
