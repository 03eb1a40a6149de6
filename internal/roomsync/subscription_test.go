package roomsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/agentrooms/internal/models"
	"github.com/eldtechnologies/agentrooms/internal/transport"
)

type emitted struct {
	eventType string
	data      any
}

type fakeTransport struct {
	mu        sync.Mutex
	state     transport.State
	listeners map[int]func(transport.State)
	nextID    int
	handlers  map[string]map[string][]transport.Handler
	joined    map[string]bool
	emitted   []emitted
}

func newFakeTransport(state transport.State) *fakeTransport {
	return &fakeTransport{
		state:     state,
		listeners: map[int]func(transport.State){},
		handlers:  map[string]map[string][]transport.Handler{},
		joined:    map[string]bool{},
	}
}

func (f *fakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) OnState(fn func(transport.State)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeTransport) setState(st transport.State) {
	f.mu.Lock()
	f.state = st
	var fns []func(transport.State)
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (f *fakeTransport) Subscribe(roomID, eventType string, h transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[roomID] == nil {
		f.handlers[roomID] = map[string][]transport.Handler{}
	}
	f.handlers[roomID][eventType] = append(f.handlers[roomID][eventType], h)
}

func (f *fakeTransport) Unsubscribe(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, roomID)
}

func (f *fakeTransport) Join(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined[roomID] = true
	return nil
}

func (f *fakeTransport) Leave(ctx context.Context, roomID string) error {
	f.mu.Lock()
	delete(f.joined, roomID)
	connected := f.state == transport.Connected
	f.mu.Unlock()
	if !connected {
		return transport.ErrNotConnected
	}
	return f.Emit(ctx, models.EventLeaveRoom, roomID)
}

func (f *fakeTransport) Emit(ctx context.Context, eventType string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != transport.Connected {
		return transport.ErrNotConnected
	}
	f.emitted = append(f.emitted, emitted{eventType: eventType, data: data})
	return nil
}

func (f *fakeTransport) push(t *testing.T, roomID, eventType string, data any) {
	t.Helper()
	ev, err := models.NewEvent(eventType, data)
	if err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	hs := append([]transport.Handler(nil), f.handlers[roomID][eventType]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (f *fakeTransport) emittedOf(eventType string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.emitted {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) handlerCount(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, hs := range f.handlers[roomID] {
		n += len(hs)
	}
	return n
}

type fakeFetcher struct {
	mu       sync.Mutex
	messages []models.Message
	calls    int
}

func (f *fakeFetcher) FetchMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]models.Message(nil), f.messages...), nil
}

func (f *fakeFetcher) set(msgs ...models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = msgs
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testOptions() Options {
	return Options{
		RoomID:       "r1",
		UserID:       "bob",
		UserName:     "Bob",
		PollInterval: time.Hour,
		ReadDelay:    20 * time.Millisecond,
		Logger:       zerolog.Nop(),
	}
}

func TestSubscriptionFetchesOnConnect(t *testing.T) {
	tr := newFakeTransport(transport.Disconnected)
	fetch := &fakeFetcher{}
	fetch.set(msg(1, time.Second, "bob"), msg(2, 2*time.Second, "bob"))

	s := Subscribe(tr, fetch, testOptions())
	defer s.Close()

	if fetch.callCount() != 0 {
		t.Fatal("expected no fetch while disconnected")
	}
	tr.setState(transport.Connected)
	waitFor(t, "initial fetch", func() bool { return len(s.Messages()) == 2 })
}

func TestSubscriptionMergesPushAndPoll(t *testing.T) {
	tr := newFakeTransport(transport.Connected)
	fetch := &fakeFetcher{}
	fetch.set(msg(1, time.Second, "bob"))

	opts := testOptions()
	opts.PollInterval = 10 * time.Millisecond
	s := Subscribe(tr, fetch, opts)
	defer s.Close()

	waitFor(t, "initial fetch", func() bool { return len(s.Messages()) == 1 })

	// The same message arrives by push and by poll.
	tr.push(t, "r1", models.EventMessageReceived, msg(2, 2*time.Second, "bob"))
	fetch.set(msg(1, time.Second, "bob"), msg(2, 2*time.Second, "bob"))

	waitFor(t, "poll", func() bool { return fetch.callCount() >= 3 })
	if got := ids(s.Messages()); got != "[1 2]" {
		t.Fatalf("expected [1 2], got %s", got)
	}
}

func TestSubscriptionBatchesReadReceipts(t *testing.T) {
	tr := newFakeTransport(transport.Connected)
	fetch := &fakeFetcher{}
	fetch.set(msg(1, time.Second, "alice"), msg(2, 2*time.Second, "alice"))

	opts := testOptions()
	opts.ReadDelay = 100 * time.Millisecond
	s := Subscribe(tr, fetch, opts)
	defer s.Close()

	tr.push(t, "r1", models.EventMessageReceived, msg(3, 3*time.Second, "alice"))

	waitFor(t, "read receipts", func() bool { return len(tr.emittedOf(models.EventMessagesRead)) >= 1 })
	time.Sleep(150 * time.Millisecond)

	sent := tr.emittedOf(models.EventMessagesRead)
	if len(sent) != 1 {
		t.Fatalf("expected one batch, got %d", len(sent))
	}
	batch := sent[0].data.(models.MessagesRead)
	if len(batch.MessageIDs) != 3 || batch.UserID != "bob" || batch.RoomID != "r1" {
		t.Fatalf("unexpected batch %+v", batch)
	}
	for _, m := range s.Messages() {
		if !m.IsReadBy("bob") {
			t.Fatalf("expected message %d marked read locally", m.ID)
		}
	}
}

func TestSubscriptionAppliesReadStatus(t *testing.T) {
	tr := newFakeTransport(transport.Connected)
	fetch := &fakeFetcher{}
	fetch.set(msg(1, time.Second, "bob"))

	s := Subscribe(tr, fetch, testOptions())
	defer s.Close()
	waitFor(t, "initial fetch", func() bool { return len(s.Messages()) == 1 })

	tr.push(t, "r1", models.EventReadStatusUpdated, []models.ReadStatusUpdate{{MessageID: 1, RoomID: "r1", UserID: "carol"}})
	waitFor(t, "read status", func() bool { return s.Messages()[0].IsReadBy("carol") })
}

func TestSubscriptionClose(t *testing.T) {
	tr := newFakeTransport(transport.Connected)
	fetch := &fakeFetcher{}
	fetch.set(msg(1, time.Second, "alice"))

	opts := testOptions()
	opts.ReadDelay = time.Hour
	s := Subscribe(tr, fetch, opts)
	waitFor(t, "initial fetch", func() bool { return len(s.Messages()) == 1 })

	if tr.handlerCount("r1") != 2 {
		t.Fatalf("expected 2 handlers, got %d", tr.handlerCount("r1"))
	}

	s.Close()
	s.Close()

	if tr.handlerCount("r1") != 0 {
		t.Fatal("expected handlers removed")
	}
	if got := len(tr.emittedOf(models.EventLeaveRoom)); got != 1 {
		t.Fatalf("expected one leave-room, got %d", got)
	}
	if got := len(tr.emittedOf(models.EventMessagesRead)); got != 0 {
		t.Fatalf("expected pending read receipts cancelled, got %d", got)
	}
}

func TestSubscriptionCloseWhileDisconnected(t *testing.T) {
	tr := newFakeTransport(transport.Disconnected)
	s := Subscribe(tr, &fakeFetcher{}, testOptions())
	s.Close()

	if tr.handlerCount("r1") != 0 {
		t.Fatal("expected handlers removed")
	}
}
