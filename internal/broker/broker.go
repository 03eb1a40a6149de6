// Package broker tracks which live connections are joined to which room and
// fans events out to them.
package broker

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/agentrooms/internal/metrics"
	"github.com/eldtechnologies/agentrooms/internal/models"
)

// Conn is a live connection that can receive events. Send must not block: it
// reports false when the event could not be queued.
type Conn interface {
	ID() string
	Send(ev models.Event) bool
}

// Broker maps rooms to the connections joined to them.
type Broker struct {
	logger zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]Conn     // room id -> conn id -> conn
	conns map[string]map[string]struct{} // conn id -> room ids
}

// New creates an empty broker.
func New(logger zerolog.Logger) *Broker {
	return &Broker{
		logger: logger.With().Str("component", "broker").Logger(),
		rooms:  make(map[string]map[string]Conn),
		conns:  make(map[string]map[string]struct{}),
	}
}

// Join adds c to the room. It returns false when c was already joined.
func (b *Broker) Join(roomID string, c Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.rooms[roomID]
	if !ok {
		members = make(map[string]Conn)
		b.rooms[roomID] = members
	}
	if _, joined := members[c.ID()]; joined {
		return false
	}
	members[c.ID()] = c

	joined, ok := b.conns[c.ID()]
	if !ok {
		joined = make(map[string]struct{})
		b.conns[c.ID()] = joined
	}
	joined[roomID] = struct{}{}

	b.logger.Debug().Str("room", roomID).Str("conn", c.ID()).Msg("joined room")
	return true
}

// Leave removes c from the room. Leaving a room c is not in does nothing.
func (b *Broker) Leave(roomID string, c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(roomID, c.ID())
}

func (b *Broker) leaveLocked(roomID, connID string) {
	if members, ok := b.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(b.rooms, roomID)
		}
	}
	if joined, ok := b.conns[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(b.conns, connID)
		}
	}
}

// Disconnect removes c from every room and returns the rooms it had joined.
func (b *Broker) Disconnect(c Conn) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var left []string
	for roomID := range b.conns[c.ID()] {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		b.leaveLocked(roomID, c.ID())
	}
	sort.Strings(left)
	return left
}

// Broadcast queues ev on every connection joined to the room and returns how
// many accepted it. Connections with a full queue miss the event.
func (b *Broker) Broadcast(roomID string, ev models.Event) int {
	b.mu.RLock()
	targets := make([]Conn, 0, len(b.rooms[roomID]))
	for _, c := range b.rooms[roomID] {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Send(ev) {
			delivered++
			continue
		}
		metrics.BroadcastDropped.WithLabelValues(ev.Type).Inc()
		b.logger.Warn().
			Str("room", roomID).
			Str("conn", c.ID()).
			Str("event", ev.Type).
			Msg("connection queue full, event dropped")
	}
	metrics.BroadcastEvents.WithLabelValues(ev.Type).Add(float64(delivered))
	return delivered
}

// Members returns the ids of the connections joined to the room.
func (b *Broker) Members(roomID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.rooms[roomID]))
	for id := range b.rooms[roomID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rooms returns the rooms c has joined.
func (b *Broker) Rooms(c Conn) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rooms := make([]string, 0, len(b.conns[c.ID()]))
	for id := range b.conns[c.ID()] {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}
