package models

import (
	"sort"
	"time"
)

// Message represents a chat message persisted per room.
type Message struct {
	ID        int64     `json:"id"` // per-room sequence
	Text      string    `json:"text"`
	Sender    string    `json:"sender"` // display name
	SenderID  string    `json:"senderId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RoomID    string    `json:"roomId"`
	ReadBy    []string  `json:"readBy"`
	Mentions  []string  `json:"mentions"` // user ids
}

// IsReadBy reports whether userID is in the message's read set.
func (m *Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkRead adds userID to the read set. It returns false when the user was
// already present.
func (m *Message) MarkRead(userID string) bool {
	if m.IsReadBy(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}

// Normalize replaces nil slices so the message always encodes as arrays.
func (m *Message) Normalize() {
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	if m.Mentions == nil {
		m.Mentions = []string{}
	}
}

// SortMessages orders messages by timestamp, oldest first. Messages with the
// same timestamp are ordered by id.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
