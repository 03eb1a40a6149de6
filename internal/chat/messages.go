package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/eldtechnologies/agentrooms/internal/mention"
	"github.com/eldtechnologies/agentrooms/internal/metrics"
	"github.com/eldtechnologies/agentrooms/internal/models"
)

// MaxMessageLength bounds the text of a single message.
const MaxMessageLength = 4000

// SendMessageInput is a message as submitted by a client. The server assigns
// the id, the timestamp and the mentions.
type SendMessageInput struct {
	RoomID   string
	Text     string
	Sender   string
	SenderID string
}

// SendMessage persists a message, delivers it to the room and starts the
// reply chain for any agents it mentions.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", ErrInvalidInput)
	}
	if len(text) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d bytes", ErrInvalidInput, MaxMessageLength)
	}
	sender := strings.TrimSpace(in.Sender)
	if sender == "" {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidInput)
	}
	// Agent replies go through PublishAgentMessage.
	if strings.HasPrefix(sender, models.AgentMarker) {
		return nil, fmt.Errorf("%w: names starting with %q are reserved for agents", ErrInvalidInput, models.AgentMarker)
	}

	room, err := s.store.GetRoom(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}

	mentioned, err := s.resolver.Resolve(ctx, in.RoomID, text)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		Text:     text,
		Sender:   sender,
		SenderID: in.SenderID,
		RoomID:   in.RoomID,
		ReadBy:   []string{},
		Mentions: mention.IDs(mentioned),
	}
	if in.SenderID != "" {
		msg.ReadBy = []string{in.SenderID}
	}

	if err := s.persist(ctx, msg, "user"); err != nil {
		return nil, err
	}

	if agents := s.mentionedAgents(ctx, room, mentioned); len(agents) > 0 {
		s.startResponder(*msg, agents)
	}
	return msg, nil
}

// PublishAgentMessage persists and delivers an agent reply.
func (s *Service) PublishAgentMessage(ctx context.Context, msg *models.Message) error {
	return s.persist(ctx, msg, "agent")
}

func (s *Service) persist(ctx context.Context, msg *models.Message, author string) error {
	id, err := s.store.NextMessageID(ctx, msg.RoomID)
	if err != nil {
		return fmt.Errorf("next message id: %w", err)
	}
	msg.ID = id
	msg.Timestamp = s.now().UTC()

	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return err
	}
	metrics.MessagesPosted.WithLabelValues(author).Inc()

	s.broadcast(msg.RoomID, models.EventMessageReceived, msg)
	return nil
}

// mentionedAgents returns the agents among the mentioned participants, in
// mention order and each once. Agents from other rooms are looked up in the
// store when cross-room mentions are enabled.
func (s *Service) mentionedAgents(ctx context.Context, room *models.Room, mentioned []models.User) []models.Agent {
	seen := make(map[string]bool)
	var agents []models.Agent
	for _, u := range mentioned {
		if !u.IsAgent() || seen[u.ID] {
			continue
		}
		seen[u.ID] = true

		if a := room.Agent(u.ID); a != nil {
			agents = append(agents, *a)
			continue
		}
		a, err := s.store.GetAgent(ctx, u.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("agent", u.ID).Msg("failed to load mentioned agent")
			continue
		}
		if a != nil {
			agents = append(agents, *a)
		}
	}
	return agents
}

func (s *Service) startResponder(trigger models.Message, agents []models.Agent) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.responder.Respond(s.ctx, trigger, agents)
	}()
}

// FetchMessages returns the room's messages ordered by timestamp.
func (s *Service) FetchMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	msgs, err := s.store.GetMessages(ctx, roomID)
	if err != nil {
		return nil, err
	}
	models.SortMessages(msgs)
	return msgs, nil
}

// MarkReadBatch records that the user has read the given messages and tells
// the room. Batches over the user's rate limit are rejected with
// ErrRateLimited and have no effect. Messages that are missing or already
// read by the user are skipped.
func (s *Service) MarkReadBatch(ctx context.Context, batch models.MessagesRead) ([]models.ReadStatusUpdate, error) {
	if batch.RoomID == "" || batch.UserID == "" {
		return nil, fmt.Errorf("%w: roomId and userId are required", ErrInvalidInput)
	}
	if len(batch.MessageIDs) == 0 {
		return []models.ReadStatusUpdate{}, nil
	}

	allowed, err := s.limiter.Allow(ctx, batch.UserID)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		metrics.RateLimitHits.WithLabelValues("read_receipts").Inc()
		s.logger.Debug().Str("user", batch.UserID).Str("room", batch.RoomID).Msg("read receipt batch rate limited")
		return nil, ErrRateLimited
	}

	updates := make([]models.ReadStatusUpdate, 0, len(batch.MessageIDs))
	for _, id := range batch.MessageIDs {
		updated, err := s.store.UpdateMessageReadStatus(ctx, batch.RoomID, id, batch.UserID)
		if err != nil {
			// Receipts already persisted are still announced.
			s.announceReads(batch.RoomID, updates)
			return updates, err
		}
		if updated {
			updates = append(updates, models.ReadStatusUpdate{
				MessageID: id,
				RoomID:    batch.RoomID,
				UserID:    batch.UserID,
			})
		}
	}

	s.announceReads(batch.RoomID, updates)
	return updates, nil
}

func (s *Service) announceReads(roomID string, updates []models.ReadStatusUpdate) {
	if len(updates) == 0 {
		return
	}
	metrics.ReadReceipts.Add(float64(len(updates)))
	s.broadcast(roomID, models.EventReadStatusUpdated, updates)
}
