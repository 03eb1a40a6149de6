package roomsync

import (
	"fmt"
	"testing"
	"time"

	"github.com/eldtechnologies/agentrooms/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func msg(id int64, offset time.Duration, readBy ...string) models.Message {
	return models.Message{
		ID:        id,
		Text:      fmt.Sprintf("m%d", id),
		Sender:    "Alice",
		Timestamp: t0.Add(offset),
		RoomID:    "r1",
		ReadBy:    readBy,
	}
}

func ids(msgs []models.Message) string {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return fmt.Sprint(out)
}

func TestMergeDeduplicatesAndSorts(t *testing.T) {
	tl := NewTimeline()

	// Push delivers 3 before the poll returns 1 and 2.
	tl.Merge(msg(3, 3*time.Second))
	tl.Merge(msg(1, time.Second), msg(2, 2*time.Second), msg(3, 3*time.Second))

	if got := ids(tl.Messages()); got != "[1 2 3]" {
		t.Fatalf("expected [1 2 3], got %s", got)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	tl := NewTimeline()
	batch := []models.Message{msg(1, time.Second, "a"), msg(2, 2*time.Second)}

	if !tl.Merge(batch...) {
		t.Fatal("expected first merge to change the timeline")
	}
	before := fmt.Sprint(tl.Messages())
	if tl.Merge(batch...) {
		t.Fatal("expected second merge to be a no-op")
	}
	if after := fmt.Sprint(tl.Messages()); after != before {
		t.Fatalf("timeline changed on repeat merge:\n%s\n%s", before, after)
	}
}

func TestMergeUnionsReadBy(t *testing.T) {
	tl := NewTimeline()
	tl.Merge(msg(1, time.Second, "alice"))
	tl.Merge(msg(1, time.Second, "bob"))
	tl.Merge(msg(1, time.Second, "alice", "bob"))

	got := tl.Messages()[0].ReadBy
	if fmt.Sprint(got) != "[alice bob]" {
		t.Fatalf("expected [alice bob], got %v", got)
	}
}

func TestMergeOrdersEqualTimestampsByID(t *testing.T) {
	tl := NewTimeline()
	tl.Merge(msg(2, 0), msg(1, 0), msg(3, -time.Second))
	if got := ids(tl.Messages()); got != "[3 1 2]" {
		t.Fatalf("expected [3 1 2], got %s", got)
	}
}

func TestApplyReadStatusAndUnread(t *testing.T) {
	tl := NewTimeline()
	tl.Merge(msg(1, time.Second, "alice"), msg(2, 2*time.Second, "alice"), msg(3, 3*time.Second, "bob"))

	if got := fmt.Sprint(tl.Unread("bob")); got != "[1 2]" {
		t.Fatalf("expected bob unread [1 2], got %s", got)
	}

	changed := tl.ApplyReadStatus(
		models.ReadStatusUpdate{MessageID: 1, RoomID: "r1", UserID: "bob"},
		models.ReadStatusUpdate{MessageID: 99, RoomID: "r1", UserID: "bob"},
	)
	if !changed {
		t.Fatal("expected change")
	}
	if tl.ApplyReadStatus(models.ReadStatusUpdate{MessageID: 1, UserID: "bob"}) {
		t.Fatal("expected repeated update to be a no-op")
	}
	if got := fmt.Sprint(tl.Unread("bob")); got != "[2]" {
		t.Fatalf("expected bob unread [2], got %s", got)
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	tl := NewTimeline()
	tl.Merge(msg(1, 0, "alice"))

	snapshot := tl.Messages()
	snapshot[0].ReadBy[0] = "mallory"
	if tl.Messages()[0].ReadBy[0] != "alice" {
		t.Fatal("snapshot mutation leaked into the timeline")
	}
}
