package models

import (
	"strings"
	"time"
)

// AgentMarker prefixes the display name of every agent-backed participant.
const AgentMarker = "Agent:"

// User is a room participant. Identity is the ID; the name is display only.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsAgent reports whether the user is the synthetic member of an agent.
func (u User) IsAgent() bool {
	return strings.HasPrefix(u.Name, AgentMarker)
}

// Agent represents an LLM-backed participant of a room.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Context      string    `json:"context"`
	Instructions string    `json:"instructions"`
	RoomID       string    `json:"roomId"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AgentName returns name carrying the agent marker exactly once.
func AgentName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, AgentMarker) {
		return name
	}
	return AgentMarker + name
}

// ShortName returns the agent name without the marker.
func (a Agent) ShortName() string {
	return strings.TrimPrefix(a.Name, AgentMarker)
}

// User returns the synthetic member that represents the agent in its room.
func (a Agent) User() User {
	return User{ID: a.ID, Name: a.Name}
}
