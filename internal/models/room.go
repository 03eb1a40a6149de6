package models

import (
	"time"
)

// Room represents a chat channel that humans and agents can join via an invite code.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	InviteCode  string    `json:"inviteCode"`
	Members     []User    `json:"members"`
	Agents      []Agent   `json:"agents"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasMember reports whether a user with the given id belongs to the room.
func (r *Room) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// Agent returns the room's agent with the given id, or nil.
func (r *Room) Agent(id string) *Agent {
	for i := range r.Agents {
		if r.Agents[i].ID == id {
			return &r.Agents[i]
		}
	}
	return nil
}

// Session binds a session token to a room and the user who joined it.
type Session struct {
	Token  string `json:"token"`
	RoomID string `json:"roomId"`
	User   User   `json:"user"`
}
