package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/eldtechnologies/agentrooms/internal/ids"
	"github.com/eldtechnologies/agentrooms/internal/models"
)

// CreateAgentInput describes a new agent. SaveAsTemplate also stores the
// agent as a reusable template.
type CreateAgentInput struct {
	RoomID         string
	Name           string
	Context        string
	Instructions   string
	CreatedBy      string
	SaveAsTemplate bool
}

// CreateAgent creates an agent, adds it and its member entry to the room and
// optionally saves it as a template.
func (s *Service) CreateAgent(ctx context.Context, in CreateAgentInput) (*models.Agent, error) {
	name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(in.Name), models.AgentMarker))
	if name == "" {
		return nil, fmt.Errorf("%w: agent name is required", ErrInvalidInput)
	}

	ag := &models.Agent{
		ID:           ids.NewID(),
		Name:         models.AgentName(name),
		Context:      in.Context,
		Instructions: in.Instructions,
		RoomID:       in.RoomID,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    s.now().UTC(),
	}

	room, err := s.store.AddRoomAgent(ctx, in.RoomID, *ag)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}

	if err := s.store.SaveAgent(ctx, ag); err != nil {
		return nil, err
	}
	if in.SaveAsTemplate {
		if err := s.store.SaveTemplate(ctx, ag); err != nil {
			return nil, err
		}
	}

	s.logger.Info().Str("room", in.RoomID).Str("agent", ag.ID).Str("name", ag.Name).Msg("agent created")
	return ag, nil
}

// AgentsByRoom returns the room's agents.
func (s *Service) AgentsByRoom(ctx context.Context, roomID string) ([]models.Agent, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.Agents == nil {
		return []models.Agent{}, nil
	}
	return room.Agents, nil
}

// ListTemplates returns the saved agent templates.
func (s *Service) ListTemplates(ctx context.Context) ([]models.Agent, error) {
	return s.store.ListTemplates(ctx)
}
