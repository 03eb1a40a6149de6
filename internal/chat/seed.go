package chat

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eldtechnologies/agentrooms/internal/models"
)

// SeedData is the content of a seed file.
type SeedData struct {
	Rooms []SeedRoom `yaml:"rooms"`
}

type SeedRoom struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	InviteCode  string      `yaml:"inviteCode"`
	Agents      []SeedAgent `yaml:"agents"`
}

type SeedAgent struct {
	Name         string `yaml:"name"`
	Context      string `yaml:"context"`
	Instructions string `yaml:"instructions"`
	Template     bool   `yaml:"template"`
}

// DefaultSeed is used when no seed file is configured: one test room with a
// general purpose assistant.
func DefaultSeed() SeedData {
	return SeedData{Rooms: []SeedRoom{{
		Name:        "Test Room",
		Description: "A room for trying out agents",
		InviteCode:  "test123",
		Agents: []SeedAgent{{
			Name:         "Assistant",
			Context:      "You are a friendly and knowledgeable AI assistant.",
			Instructions: "Answer the user's questions briefly and clearly.",
		}},
	}}}
}

// LoadSeedFile reads seed data from a YAML file.
func LoadSeedFile(path string) (SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SeedData{}, err
	}
	var data SeedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return SeedData{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return data, nil
}

// Seed creates the rooms and agents in data. A room whose invite code is
// already taken is left as it is, so seeding twice does not duplicate rooms.
// It returns the rooms in data, created or existing.
func (s *Service) Seed(ctx context.Context, data SeedData) ([]models.Room, error) {
	rooms := make([]models.Room, 0, len(data.Rooms))
	for _, sr := range data.Rooms {
		room, err := s.CreateRoom(ctx, CreateRoomInput{
			Name:        sr.Name,
			Description: sr.Description,
			InviteCode:  sr.InviteCode,
		})
		if errors.Is(err, ErrInviteCodeTaken) {
			existing, err := s.store.GetRoomByInviteCode(ctx, sr.InviteCode)
			if err != nil {
				return rooms, err
			}
			if existing != nil {
				s.logger.Info().Str("invite_code", sr.InviteCode).Msg("seed room exists, skipping")
				rooms = append(rooms, *existing)
			}
			continue
		}
		if err != nil {
			return rooms, fmt.Errorf("seed room %q: %w", sr.Name, err)
		}

		for _, sa := range sr.Agents {
			if _, err := s.CreateAgent(ctx, CreateAgentInput{
				RoomID:         room.ID,
				Name:           sa.Name,
				Context:        sa.Context,
				Instructions:   sa.Instructions,
				CreatedBy:      "system",
				SaveAsTemplate: sa.Template,
			}); err != nil {
				return rooms, fmt.Errorf("seed agent %q: %w", sa.Name, err)
			}
		}

		created, err := s.store.GetRoom(ctx, room.ID)
		if err != nil {
			return rooms, err
		}
		if created != nil {
			rooms = append(rooms, *created)
		}
		s.logger.Info().Str("room", room.ID).Str("invite_code", room.InviteCode).Msg("seeded room")
	}
	return rooms, nil
}
