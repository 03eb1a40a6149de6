// Package transport carries room events over WebSocket: the server side feeds
// the broker, the client side keeps a connection alive for room
// subscriptions.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/eldtechnologies/agentrooms/internal/broker"
	"github.com/eldtechnologies/agentrooms/internal/chat"
	"github.com/eldtechnologies/agentrooms/internal/ids"
	"github.com/eldtechnologies/agentrooms/internal/metrics"
	"github.com/eldtechnologies/agentrooms/internal/models"
)

const (
	sendQueueSize     = 64
	writeTimeout      = 10 * time.Second
	keepAliveInterval = 25 * time.Second
	pingTimeout       = 5 * time.Second
	maxFrameSize      = 64 << 10
)

// Chat is the part of the chat service the server dispatches client events
// to.
type Chat interface {
	SendMessage(ctx context.Context, in chat.SendMessageInput) (*models.Message, error)
	MarkReadBatch(ctx context.Context, batch models.MessagesRead) ([]models.ReadStatusUpdate, error)
}

// ServerOptions configures the WebSocket endpoint.
type ServerOptions struct {
	// InsecureSkipVerify disables the origin check. Development only.
	InsecureSkipVerify bool
	OriginPatterns     []string
}

// Server accepts WebSocket connections and serves the room event protocol.
type Server struct {
	broker *broker.Broker
	chat   Chat
	opts   ServerOptions
	logger zerolog.Logger
}

// NewServer creates a WebSocket server.
func NewServer(b *broker.Broker, c Chat, opts ServerOptions, logger zerolog.Logger) *Server {
	return &Server{
		broker: b,
		chat:   c,
		opts:   opts,
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// conn is one accepted connection. Events are queued on send and written by
// a single goroutine, so they reach the client in the order they were queued.
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan models.Event

	ctx    context.Context
	cancel context.CancelFunc
}

func (c *conn) ID() string { return c.id }

// Send queues ev without blocking. It reports false when the queue is full
// or the connection is closing.
func (c *conn) Send(ev models.Event) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := wsjson.Write(ctx, c.ws, ev)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *conn) keepAliveLoop() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, pingTimeout)
			err := c.ws.Ping(ctx)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: s.opts.InsecureSkipVerify,
		OriginPatterns:     s.opts.OriginPatterns,
	})
	if err != nil {
		// Accept has written the response.
		s.logger.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	ws.SetReadLimit(maxFrameSize)

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		id:     ids.NewConnID(),
		ws:     ws,
		send:   make(chan models.Event, sendQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	log := s.logger.With().Str("conn", c.id).Logger()
	log.Debug().Str("remote", r.RemoteAddr).Msg("connection opened")
	metrics.WSConnections.Inc()

	go c.writeLoop()
	go c.keepAliveLoop()

	defer func() {
		left := s.broker.Disconnect(c)
		cancel()
		_ = ws.Close(websocket.StatusNormalClosure, "bye")
		metrics.WSConnections.Dec()
		log.Debug().Strs("rooms", left).Msg("connection closed")
	}()

	s.readLoop(c, log)
}

func (s *Server) readLoop(c *conn, log zerolog.Logger) {
	for {
		var ev models.Event
		if err := wsjson.Read(c.ctx, c.ws, &ev); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		s.dispatch(c, ev, log)
	}
}

func (s *Server) dispatch(c *conn, ev models.Event, log zerolog.Logger) {
	switch ev.Type {
	case models.EventJoinRoom:
		var roomID string
		if err := json.Unmarshal(ev.Data, &roomID); err != nil || roomID == "" {
			log.Debug().Msg("join-room without room id")
			return
		}
		s.broker.Join(roomID, c)

	case models.EventLeaveRoom:
		var roomID string
		if err := json.Unmarshal(ev.Data, &roomID); err != nil || roomID == "" {
			return
		}
		s.broker.Leave(roomID, c)

	case models.EventNewMessage:
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			log.Debug().Err(err).Msg("malformed new-message")
			return
		}
		if _, err := s.chat.SendMessage(c.ctx, chat.SendMessageInput{
			RoomID:   msg.RoomID,
			Text:     msg.Text,
			Sender:   msg.Sender,
			SenderID: msg.SenderID,
		}); err != nil {
			log.Warn().Err(err).Str("room", msg.RoomID).Msg("new-message rejected")
		}

	case models.EventMessagesRead:
		var batch models.MessagesRead
		if err := json.Unmarshal(ev.Data, &batch); err != nil {
			log.Debug().Err(err).Msg("malformed messages-read")
			return
		}
		if _, err := s.chat.MarkReadBatch(c.ctx, batch); err != nil && !errors.Is(err, chat.ErrRateLimited) {
			log.Warn().Err(err).Str("room", batch.RoomID).Msg("messages-read failed")
		}

	default:
		log.Debug().Str("type", ev.Type).Msg("unknown event type")
	}
}
