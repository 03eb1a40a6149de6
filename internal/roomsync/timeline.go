// Package roomsync keeps a client's view of one room consistent with the
// server by combining an initial fetch, periodic polling and pushed events.
package roomsync

import (
	"github.com/eldtechnologies/agentrooms/internal/models"
)

// Timeline is the local, deduplicated and ordered message list of a room.
// It is not safe for concurrent use.
type Timeline struct {
	messages []models.Message
	index    map[int64]int
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{index: make(map[int64]int)}
}

// Merge adds messages whose id is new and unions the readBy sets of those
// already present. It reports whether anything changed. Merging the same
// input twice leaves the timeline unchanged.
func (t *Timeline) Merge(msgs ...models.Message) bool {
	changed := false
	added := false
	for _, m := range msgs {
		if i, ok := t.index[m.ID]; ok {
			for _, userID := range m.ReadBy {
				if t.messages[i].MarkRead(userID) {
					changed = true
				}
			}
			continue
		}
		m.Normalize()
		m.ReadBy = append([]string(nil), m.ReadBy...)
		t.messages = append(t.messages, m)
		t.index[m.ID] = len(t.messages) - 1
		added = true
	}
	if added {
		models.SortMessages(t.messages)
		t.reindex()
		changed = true
	}
	return changed
}

func (t *Timeline) reindex() {
	for i, m := range t.messages {
		t.index[m.ID] = i
	}
}

// ApplyReadStatus adds each update's user to its message's readBy. Updates
// for unknown messages are ignored.
func (t *Timeline) ApplyReadStatus(updates ...models.ReadStatusUpdate) bool {
	changed := false
	for _, u := range updates {
		i, ok := t.index[u.MessageID]
		if !ok {
			continue
		}
		if t.messages[i].MarkRead(u.UserID) {
			changed = true
		}
	}
	return changed
}

// Unread returns the ids of messages userID has not read, oldest first.
func (t *Timeline) Unread(userID string) []int64 {
	var ids []int64
	for _, m := range t.messages {
		if !m.IsReadBy(userID) {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Messages returns a copy of the timeline.
func (t *Timeline) Messages() []models.Message {
	out := make([]models.Message, len(t.messages))
	for i, m := range t.messages {
		m.ReadBy = append([]string(nil), m.ReadBy...)
		m.Mentions = append([]string(nil), m.Mentions...)
		out[i] = m
	}
	return out
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	return len(t.messages)
}
