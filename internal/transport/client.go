package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/eldtechnologies/agentrooms/internal/models"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrReconnectFailed  = errors.New("reconnect attempts exhausted")
	ErrClientClosed     = errors.New("client closed")
	errConnectionClosed = errors.New("connection closed")
)

// State is the connection state of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Backoff is the reconnect policy. Attempts of 0 retries forever. A
// connection that stays up for Max resets the policy.
type Backoff struct {
	Min      time.Duration
	Max      time.Duration
	Attempts int
}

// DefaultBackoff waits 1s doubling up to 5s, for at most 10 attempts.
var DefaultBackoff = Backoff{Min: time.Second, Max: 5 * time.Second, Attempts: 10}

// policy returns the retry schedule. NextBackOff yields backoff.Stop on the
// failure that exhausts Attempts.
func (b Backoff) policy() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.Min
	exp.MaxInterval = b.Max
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	if b.Attempts > 0 {
		return backoff.WithMaxRetries(exp, uint64(b.Attempts-1))
	}
	return exp
}

// Handler receives a pushed event.
type Handler func(ev models.Event)

// ClientOptions configures a Client.
type ClientOptions struct {
	URL     string
	Header  http.Header
	Backoff Backoff
	Logger  zerolog.Logger
}

// Client keeps one WebSocket connection to the server open, reconnecting per
// its backoff policy, and routes pushed events to per-room handlers. Rooms
// joined through the client are joined again after every reconnect.
type Client struct {
	opts   ClientOptions
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	ws        *websocket.Conn
	rooms     map[string]bool
	handlers  map[string]map[string][]Handler // room id -> event type -> handlers
	listeners map[int]func(State)
	nextID    int
	closed    bool
}

// NewClient creates a disconnected client. Call Run to connect.
func NewClient(opts ClientOptions) *Client {
	if opts.Backoff.Min <= 0 {
		opts.Backoff.Min = DefaultBackoff.Min
	}
	if opts.Backoff.Max < opts.Backoff.Min {
		opts.Backoff.Max = opts.Backoff.Min
	}
	return &Client{
		opts:      opts,
		logger:    opts.Logger.With().Str("component", "transport-client").Logger(),
		rooms:     make(map[string]bool),
		handlers:  make(map[string]map[string][]Handler),
		listeners: make(map[int]func(State)),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnState registers fn to be called on every state change and returns a
// function that removes it.
func (c *Client) OnState(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	listeners := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	c.logger.Debug().Stringer("state", s).Msg("connection state changed")
	for _, fn := range listeners {
		fn(s)
	}
}

// Run connects and keeps the connection alive until ctx ends, Close is
// called, or the reconnect attempts are exhausted.
//
// A dropped connection is redialed once right away. Further drops and failed
// dials follow the backoff policy until a connection stays up for Backoff.Max.
func (c *Client) Run(ctx context.Context) error {
	c.setState(Connecting)
	defer c.setState(Disconnected)

	policy := c.opts.Backoff.policy()
	policy.Reset()
	failures := 0
	redialNow := true
	for {
		if c.isClosed() {
			return ErrClientClosed
		}

		ws, _, err := websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{HTTPHeader: c.opts.Header})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if err := c.retryWait(ctx, policy, err, failures); err != nil {
				return err
			}
			continue
		}

		connectedAt := time.Now()
		err = c.serve(ctx, ws)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.isClosed() {
			return ErrClientClosed
		}
		if time.Since(connectedAt) >= c.opts.Backoff.Max {
			policy.Reset()
			failures = 0
			redialNow = true
		}
		if redialNow {
			redialNow = false
			c.logger.Info().Err(err).Msg("connection lost, reconnecting")
			c.setState(Reconnecting)
			continue
		}
		failures++
		if err := c.retryWait(ctx, policy, err, failures); err != nil {
			return err
		}
	}
}

// retryWait sleeps for the policy's next delay. It fails with
// ErrReconnectFailed once the policy stops, or with ctx's error.
func (c *Client) retryWait(ctx context.Context, policy backoff.BackOff, cause error, attempt int) error {
	delay := policy.NextBackOff()
	if delay == backoff.Stop {
		c.logger.Error().Err(cause).Int("attempts", attempt).Msg("giving up reconnecting")
		return fmt.Errorf("%w: %v", ErrReconnectFailed, cause)
	}
	c.logger.Warn().Err(cause).Int("attempt", attempt).Dur("retry_in", delay).Msg("connection failed")
	c.setState(Reconnecting)
	if !wait(ctx, delay) {
		return ctx.Err()
	}
	return nil
}

func (c *Client) serve(ctx context.Context, ws *websocket.Conn) error {
	ws.SetReadLimit(maxFrameSize)

	c.mu.Lock()
	c.ws = ws
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()

	for _, roomID := range rooms {
		if err := c.write(ctx, ws, models.EventJoinRoom, roomID); err != nil {
			return err
		}
	}
	c.setState(Connected)

	for {
		var ev models.Event
		if err := wsjson.Read(ctx, ws, &ev); err != nil {
			if websocket.CloseStatus(err) != -1 {
				return fmt.Errorf("%w: %v", errConnectionClosed, err)
			}
			return err
		}
		c.dispatch(ev)
	}
}

func (c *Client) write(ctx context.Context, ws *websocket.Conn, eventType string, data any) error {
	ev, err := models.NewEvent(eventType, data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, ev)
}

// Emit sends an event to the server. It fails with ErrNotConnected while the
// client is not connected; nothing is queued.
func (c *Client) Emit(ctx context.Context, eventType string, data any) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return c.write(ctx, ws, eventType, data)
}

// Join records the room and, when connected, tells the server.
func (c *Client) Join(ctx context.Context, roomID string) error {
	c.mu.Lock()
	c.rooms[roomID] = true
	c.mu.Unlock()

	err := c.Emit(ctx, models.EventJoinRoom, roomID)
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// Leave forgets the room and, when connected, tells the server.
func (c *Client) Leave(ctx context.Context, roomID string) error {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()

	err := c.Emit(ctx, models.EventLeaveRoom, roomID)
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// Subscribe registers h for events of eventType concerning roomID.
func (c *Client) Subscribe(roomID, eventType string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byType, ok := c.handlers[roomID]
	if !ok {
		byType = make(map[string][]Handler)
		c.handlers[roomID] = byType
	}
	byType[eventType] = append(byType[eventType], h)
}

// Unsubscribe removes every handler registered for roomID.
func (c *Client) Unsubscribe(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, roomID)
}

func (c *Client) dispatch(ev models.Event) {
	roomID, ok := eventRoom(ev)
	if !ok {
		c.logger.Debug().Str("type", ev.Type).Msg("event without room, ignoring")
		return
	}

	c.mu.Lock()
	handlers := append([]Handler(nil), c.handlers[roomID][ev.Type]...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// eventRoom extracts the room an event belongs to.
func eventRoom(ev models.Event) (string, bool) {
	switch ev.Type {
	case models.EventMessageReceived:
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil || msg.RoomID == "" {
			return "", false
		}
		return msg.RoomID, true
	case models.EventReadStatusUpdated:
		var updates []models.ReadStatusUpdate
		if err := json.Unmarshal(ev.Data, &updates); err != nil || len(updates) == 0 {
			return "", false
		}
		return updates[0].RoomID, true
	default:
		return "", false
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the current connection and stops Run from reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		return ws.Close(websocket.StatusNormalClosure, "client closed")
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
