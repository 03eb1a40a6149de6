package models

import "encoding/json"

// Push transport event names. These are the wire contract shared by the
// server and every client.
const (
	EventJoinRoom          = "join-room"
	EventLeaveRoom         = "leave-room"
	EventNewMessage        = "new-message"
	EventMessageReceived   = "message-received"
	EventMessagesRead      = "messages-read"
	EventReadStatusUpdated = "read-status-updated"
)

// Event is the envelope of every frame on the push transport.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent encodes data into an event envelope.
func NewEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: raw}, nil
}

// MessagesRead is the client's batched read notification.
type MessagesRead struct {
	MessageIDs []int64 `json:"messageIds"`
	RoomID     string  `json:"roomId"`
	UserID     string  `json:"userId"`
}

// ReadStatusUpdate tells room members that a user has read a message.
type ReadStatusUpdate struct {
	MessageID int64  `json:"messageId"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
}
