package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/eldtechnologies/agentrooms/internal/ids"
	"github.com/eldtechnologies/agentrooms/internal/metrics"
	"github.com/eldtechnologies/agentrooms/internal/models"
	"github.com/eldtechnologies/agentrooms/internal/store"
)

// inviteCodeAttempts bounds retries when a generated invite code collides.
const inviteCodeAttempts = 5

// CreateRoomInput describes a new room. InviteCode is optional; a random one
// is generated when empty. Creator, when set, becomes the first member.
type CreateRoomInput struct {
	Name        string
	Description string
	InviteCode  string
	Creator     *models.User
}

// CreateRoom creates a room with a unique invite code.
func (s *Service) CreateRoom(ctx context.Context, in CreateRoomInput) (*models.Room, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: room name is required", ErrInvalidInput)
	}

	room := &models.Room{
		ID:          ids.NewID(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Members:     []models.User{},
		Agents:      []models.Agent{},
		CreatedAt:   s.now().UTC(),
	}
	if in.Creator != nil {
		creator := *in.Creator
		if creator.ID == "" {
			creator.ID = ids.NewID()
		}
		room.Members = append(room.Members, creator)
	}

	code, err := s.reserveInviteCode(ctx, room.ID, strings.TrimSpace(in.InviteCode))
	if err != nil {
		return nil, err
	}
	room.InviteCode = code

	if err := s.store.SaveRoom(ctx, room); err != nil {
		return nil, err
	}

	metrics.RoomsCreated.Inc()
	s.logger.Info().Str("room", room.ID).Str("name", room.Name).Msg("room created")
	return room, nil
}

func (s *Service) reserveInviteCode(ctx context.Context, roomID, requested string) (string, error) {
	if requested != "" {
		ok, err := s.store.ReserveInviteCode(ctx, requested, roomID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrInviteCodeTaken
		}
		return requested, nil
	}

	for i := 0; i < inviteCodeAttempts; i++ {
		code, err := ids.NewInviteCode()
		if err != nil {
			return "", err
		}
		ok, err := s.store.ReserveInviteCode(ctx, code, roomID)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free invite code after %d attempts", inviteCodeAttempts)
}

// GetRoom returns the room or nil when it does not exist.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return s.store.GetRoom(ctx, roomID)
}

// FindRoomByInviteCode returns the room for an invite code or nil.
func (s *Service) FindRoomByInviteCode(ctx context.Context, code string) (*models.Room, error) {
	return s.store.GetRoomByInviteCode(ctx, code)
}

func (s *Service) ListRooms(ctx context.Context) ([]models.Room, error) {
	return s.store.ListRooms(ctx)
}

// UpdateRoomInput carries the editable room fields; nil fields are unchanged.
type UpdateRoomInput struct {
	Name        *string
	Description *string
}

// UpdateRoom changes a room's name or description.
func (s *Service) UpdateRoom(ctx context.Context, roomID string, in UpdateRoomInput) (*models.Room, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, fmt.Errorf("%w: room name cannot be empty", ErrInvalidInput)
	}

	room, err := s.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		if in.Name != nil {
			r.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			r.Description = strings.TrimSpace(*in.Description)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// DeleteRoom is accepted but does nothing: rooms are never removed.
func (s *Service) DeleteRoom(ctx context.Context, roomID string) error {
	s.logger.Debug().Str("room", roomID).Msg("room delete requested, ignoring")
	return nil
}

// JoinRoom adds user to the room's members and opens a session for them.
// A user without an id gets a new one.
func (s *Service) JoinRoom(ctx context.Context, roomID string, user models.User) (*models.Session, error) {
	user.Name = strings.TrimSpace(user.Name)
	if user.Name == "" {
		return nil, fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	if strings.HasPrefix(user.Name, models.AgentMarker) {
		return nil, fmt.Errorf("%w: names starting with %q are reserved for agents", ErrInvalidInput, models.AgentMarker)
	}
	if user.ID == "" {
		user.ID = ids.NewID()
	}

	room, err := s.store.AddRoomMember(ctx, roomID, user)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}

	session := &models.Session{
		Token:  store.SessionToken(roomID, user.ID),
		RoomID: roomID,
		User:   user,
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info().Str("room", roomID).Str("user", user.ID).Msg("user joined room")
	return session, nil
}

// GetSession returns the session for token or nil.
func (s *Service) GetSession(ctx context.Context, token string) (*models.Session, error) {
	return s.store.GetSession(ctx, token)
}

// RemoveSession deletes a session. The user stays a room member.
func (s *Service) RemoveSession(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}
