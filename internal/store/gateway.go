package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eldtechnologies/agentrooms/internal/metrics"
	"github.com/eldtechnologies/agentrooms/internal/models"
)

// Gateway is the typed view over a Backend. It owns the key layout and
// serializes read-modify-write sequences on the same entity within the
// process. Lookups return nil, nil when the entity does not exist.
type Gateway struct {
	backend Backend
	locks   *keyedMutex
}

// NewGateway creates a gateway over the given backend.
func NewGateway(backend Backend) *Gateway {
	return &Gateway{
		backend: backend,
		locks:   newKeyedMutex(),
	}
}

// Backend returns the underlying backend.
func (g *Gateway) Backend() Backend {
	return g.backend
}

// Ping checks the backend connection.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.backend.Ping(ctx)
}

// Close closes the backend.
func (g *Gateway) Close() error {
	return g.backend.Close()
}

func observe(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (g *Gateway) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := g.backend.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (g *Gateway) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return g.backend.Set(ctx, key, string(data))
}

// Rooms

// SaveRoom writes the room record, then its invite code index entry, then
// adds it to the room listing. The writes are independent: a failure after
// the first leaves a room that is reachable by id only.
func (g *Gateway) SaveRoom(ctx context.Context, room *models.Room) error {
	defer observe("save_room", time.Now())

	if err := g.setJSON(ctx, roomKey(room.ID), room); err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	if room.InviteCode != "" {
		if err := g.backend.Set(ctx, inviteCodeKey(room.InviteCode), room.ID); err != nil {
			return fmt.Errorf("index invite code: %w", err)
		}
	}
	if err := g.backend.SAdd(ctx, allRoomsKey, room.ID); err != nil {
		return fmt.Errorf("index room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room by id.
func (g *Gateway) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	defer observe("get_room", time.Now())

	var room models.Room
	ok, err := g.getJSON(ctx, roomKey(roomID), &room)
	if err != nil || !ok {
		return nil, err
	}
	return &room, nil
}

// GetRoomByInviteCode resolves an invite code to its room.
func (g *Gateway) GetRoomByInviteCode(ctx context.Context, code string) (*models.Room, error) {
	roomID, ok, err := g.backend.Get(ctx, inviteCodeKey(code))
	if err != nil || !ok {
		return nil, err
	}
	return g.GetRoom(ctx, roomID)
}

// ReserveInviteCode claims code for roomID. It returns false when the code is
// already taken by another room.
func (g *Gateway) ReserveInviteCode(ctx context.Context, code, roomID string) (bool, error) {
	ok, err := g.backend.SetNX(ctx, inviteCodeKey(code), roomID)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	owner, _, err := g.backend.Get(ctx, inviteCodeKey(code))
	if err != nil {
		return false, err
	}
	return owner == roomID, nil
}

// ListRooms returns every known room.
func (g *Gateway) ListRooms(ctx context.Context) ([]models.Room, error) {
	defer observe("list_rooms", time.Now())

	roomIDs, err := g.backend.SMembers(ctx, allRoomsKey)
	if err != nil {
		return nil, err
	}

	rooms := make([]models.Room, 0, len(roomIDs))
	for _, id := range roomIDs {
		room, err := g.GetRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		if room != nil {
			rooms = append(rooms, *room)
		}
	}
	return rooms, nil
}

// UpdateRoom applies fn to the stored room under the room lock and saves the
// result. It returns nil, nil when the room does not exist.
func (g *Gateway) UpdateRoom(ctx context.Context, roomID string, fn func(*models.Room) error) (*models.Room, error) {
	unlock := g.locks.Lock(roomKey(roomID))
	defer unlock()

	room, err := g.GetRoom(ctx, roomID)
	if err != nil || room == nil {
		return nil, err
	}
	if err := fn(room); err != nil {
		return nil, err
	}
	if err := g.setJSON(ctx, roomKey(room.ID), room); err != nil {
		return nil, fmt.Errorf("save room: %w", err)
	}
	return room, nil
}

// AddRoomMember appends user to the room's members unless a member with the
// same id exists.
func (g *Gateway) AddRoomMember(ctx context.Context, roomID string, user models.User) (*models.Room, error) {
	return g.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		if !r.HasMember(user.ID) {
			r.Members = append(r.Members, user)
		}
		return nil
	})
}

// AddRoomAgent appends the agent and its synthetic member to the room.
func (g *Gateway) AddRoomAgent(ctx context.Context, roomID string, agent models.Agent) (*models.Room, error) {
	return g.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		if r.Agent(agent.ID) == nil {
			r.Agents = append(r.Agents, agent)
		}
		if !r.HasMember(agent.ID) {
			r.Members = append(r.Members, agent.User())
		}
		return nil
	})
}

// Messages

// NextMessageID returns the next id of the room's message sequence.
func (g *Gateway) NextMessageID(ctx context.Context, roomID string) (int64, error) {
	return g.backend.Incr(ctx, messageSeqKey(roomID))
}

// SaveMessage appends the message key to the room list and then writes the
// message body.
func (g *Gateway) SaveMessage(ctx context.Context, msg *models.Message) error {
	defer observe("save_message", time.Now())

	msg.Normalize()
	key := messageDataKey(msg.RoomID, msg.ID)
	if err := g.backend.RPush(ctx, messageListKey(msg.RoomID), key); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if err := g.setJSON(ctx, key, msg); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// GetMessages returns the room's messages in append order.
func (g *Gateway) GetMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	defer observe("get_messages", time.Now())
	return g.messagesInRange(ctx, roomID, 0, -1)
}

// GetRecentMessages returns at most n of the room's latest messages in append
// order.
func (g *Gateway) GetRecentMessages(ctx context.Context, roomID string, n int) ([]models.Message, error) {
	if n <= 0 {
		return []models.Message{}, nil
	}
	return g.messagesInRange(ctx, roomID, -int64(n), -1)
}

func (g *Gateway) messagesInRange(ctx context.Context, roomID string, start, stop int64) ([]models.Message, error) {
	keys, err := g.backend.LRange(ctx, messageListKey(roomID), start, stop)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(keys))
	for _, key := range keys {
		var msg models.Message
		ok, err := g.getJSON(ctx, key, &msg)
		if err != nil {
			return nil, err
		}
		// Listed but not yet written.
		if !ok {
			continue
		}
		msg.Normalize()
		messages = append(messages, msg)
	}
	return messages, nil
}

// GetMessage retrieves a single message.
func (g *Gateway) GetMessage(ctx context.Context, roomID string, messageID int64) (*models.Message, error) {
	var msg models.Message
	ok, err := g.getJSON(ctx, messageDataKey(roomID, messageID), &msg)
	if err != nil || !ok {
		return nil, err
	}
	msg.Normalize()
	return &msg, nil
}

// UpdateMessageReadStatus adds userID to the message's readBy set. It returns
// false without writing when the message is missing or already read by the
// user.
func (g *Gateway) UpdateMessageReadStatus(ctx context.Context, roomID string, messageID int64, userID string) (bool, error) {
	defer observe("update_read_status", time.Now())

	key := messageDataKey(roomID, messageID)
	unlock := g.locks.Lock(key)
	defer unlock()

	msg, err := g.GetMessage(ctx, roomID, messageID)
	if err != nil || msg == nil {
		return false, err
	}
	if !msg.MarkRead(userID) {
		return false, nil
	}
	if err := g.setJSON(ctx, key, msg); err != nil {
		return false, fmt.Errorf("save read status: %w", err)
	}
	return true, nil
}

// Sessions

// SaveSession stores a session under its token.
func (g *Gateway) SaveSession(ctx context.Context, session *models.Session) error {
	return g.setJSON(ctx, sessionKey(session.Token), session)
}

// GetSession retrieves a session by token.
func (g *Gateway) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	ok, err := g.getJSON(ctx, sessionKey(token), &session)
	if err != nil || !ok {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (g *Gateway) DeleteSession(ctx context.Context, token string) error {
	return g.backend.Del(ctx, sessionKey(token))
}

// Agents

func (g *Gateway) SaveAgent(ctx context.Context, agent *models.Agent) error {
	return g.setJSON(ctx, agentKey(agent.ID), agent)
}

func (g *Gateway) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	var agent models.Agent
	ok, err := g.getJSON(ctx, agentKey(agentID), &agent)
	if err != nil || !ok {
		return nil, err
	}
	return &agent, nil
}

func (g *Gateway) DeleteAgent(ctx context.Context, agentID string) error {
	return g.backend.Del(ctx, agentKey(agentID))
}

// SaveTemplate stores an agent as a reusable template. Templates are keyed by
// agent id, so saving the same id again replaces the previous template.
func (g *Gateway) SaveTemplate(ctx context.Context, agent *models.Agent) error {
	if err := g.setJSON(ctx, templateKey(agent.ID), agent); err != nil {
		return err
	}
	return g.backend.SAdd(ctx, allTemplatesKey, agent.ID)
}

// ListTemplates returns every saved agent template.
func (g *Gateway) ListTemplates(ctx context.Context) ([]models.Agent, error) {
	ids, err := g.backend.SMembers(ctx, allTemplatesKey)
	if err != nil {
		return nil, err
	}

	templates := make([]models.Agent, 0, len(ids))
	for _, id := range ids {
		var agent models.Agent
		ok, err := g.getJSON(ctx, templateKey(id), &agent)
		if err != nil {
			return nil, err
		}
		if ok {
			templates = append(templates, agent)
		}
	}
	return templates, nil
}

func (g *Gateway) DeleteTemplate(ctx context.Context, agentID string) error {
	if err := g.backend.Del(ctx, templateKey(agentID)); err != nil {
		return err
	}
	return g.backend.SRem(ctx, allTemplatesKey, agentID)
}
