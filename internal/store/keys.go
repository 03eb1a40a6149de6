package store

import "fmt"

const (
	allRoomsKey     = "rooms:all"
	allTemplatesKey = "template:agents"
)

// roomKey returns the key for a room record.
func roomKey(roomID string) string {
	return fmt.Sprintf("room:%s", roomID)
}

// inviteCodeKey returns the key of the invite code index entry.
func inviteCodeKey(code string) string {
	return fmt.Sprintf("room:invitecode:%s", code)
}

// messageListKey returns the key for a room's list of message keys.
func messageListKey(roomID string) string {
	return fmt.Sprintf("messages:list:%s", roomID)
}

func messageDataKey(roomID string, messageID int64) string {
	return fmt.Sprintf("messages:data:%s:%d", roomID, messageID)
}

func messageSeqKey(roomID string) string {
	return fmt.Sprintf("messages:seq:%s", roomID)
}

// SessionToken returns the token of the session a user holds in a room.
func SessionToken(roomID, userID string) string {
	return fmt.Sprintf("%s:%s", roomID, userID)
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func agentKey(agentID string) string {
	return fmt.Sprintf("agent:%s", agentID)
}

func templateKey(agentID string) string {
	return fmt.Sprintf("template:agent:%s", agentID)
}
