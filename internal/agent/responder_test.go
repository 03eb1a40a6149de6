package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/agentrooms/internal/models"
)

type fakeHistory struct {
	messages []models.Message
}

func (h *fakeHistory) GetRecentMessages(ctx context.Context, roomID string, n int) ([]models.Message, error) {
	if n >= len(h.messages) {
		return h.messages, nil
	}
	return h.messages[len(h.messages)-n:], nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []models.Message
	nextID   int64
}

func (p *fakePublisher) PublishAgentMessage(ctx context.Context, msg *models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	msg.ID = 100 + p.nextID
	msg.Timestamp = time.Now()
	p.messages = append(p.messages, *msg)
	return nil
}

type recordingGenerator struct {
	mu      sync.Mutex
	prompts map[string]string
	fail    map[string]bool
}

func (g *recordingGenerator) Generate(ctx context.Context, req Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.prompts == nil {
		g.prompts = map[string]string{}
	}
	g.prompts[req.Agent.ID] = req.Prompt
	if g.fail[req.Agent.ID] {
		return "", errors.New("model unavailable")
	}
	return "reply from " + req.Agent.ShortName(), nil
}

func testAgents() []models.Agent {
	return []models.Agent{
		{ID: "a1", Name: "Agent:Alpha", Context: "You know Go.", Instructions: "Be brief.", RoomID: "r1"},
		{ID: "a2", Name: "Agent:Beta", RoomID: "r1"},
		{ID: "a3", Name: "Agent:Gamma", RoomID: "r1"},
	}
}

func testHistory(n int) *fakeHistory {
	h := &fakeHistory{}
	for i := 1; i <= n; i++ {
		h.messages = append(h.messages, models.Message{ID: int64(i), Text: fmt.Sprintf("msg %d", i), Sender: "Alice", RoomID: "r1"})
	}
	return h
}

func TestRespondChainsAgentsInOrder(t *testing.T) {
	gen := &recordingGenerator{}
	pub := &fakePublisher{}
	history := testHistory(8)
	trigger := history.messages[7]
	trigger.SenderID = "u-alice"

	r := NewResponder(gen, history, pub, Config{ResponseDelay: -1}, zerolog.Nop())

	replies := r.Respond(context.Background(), trigger, testAgents())
	if len(replies) != 3 {
		t.Fatalf("expected 3 replies, got %d", len(replies))
	}

	for i, want := range []struct {
		sender   string
		mentions string
	}{
		{"Agent:Alpha", "[a2]"},
		{"Agent:Beta", "[a3]"},
		{"Agent:Gamma", "[u-alice]"},
	} {
		got := pub.messages[i]
		if got.Sender != want.sender {
			t.Fatalf("reply %d: expected sender %s, got %s", i, want.sender, got.Sender)
		}
		if fmt.Sprint(got.Mentions) != want.mentions {
			t.Fatalf("reply %d: expected mentions %s, got %v", i, want.mentions, got.Mentions)
		}
		if len(got.ReadBy) != 1 || got.ReadBy[0] != got.SenderID {
			t.Fatalf("reply %d: expected readBy [%s], got %v", i, got.SenderID, got.ReadBy)
		}
	}

	// Later agents see earlier replies, and the first agent is told who is next.
	if !strings.Contains(gen.prompts["a3"], "reply from Alpha") || !strings.Contains(gen.prompts["a3"], "reply from Beta") {
		t.Fatalf("expected Gamma to see previous replies, got:\n%s", gen.prompts["a3"])
	}
	if !strings.Contains(gen.prompts["a1"], "@Beta") {
		t.Fatalf("expected Alpha to address Beta, got:\n%s", gen.prompts["a1"])
	}
	if !strings.Contains(gen.prompts["a1"], "You know Go.") || !strings.Contains(gen.prompts["a1"], "Be brief.") {
		t.Fatal("expected context and instructions in prompt")
	}
}

func TestRespondUsesLastFiveMessages(t *testing.T) {
	gen := &recordingGenerator{}
	history := testHistory(10)
	trigger := history.messages[9]

	r := NewResponder(gen, history, &fakePublisher{}, Config{}, zerolog.Nop())
	r.Respond(context.Background(), trigger, testAgents()[:1])

	prompt := gen.prompts["a1"]
	for i := 5; i <= 9; i++ {
		if !strings.Contains(prompt, fmt.Sprintf("Alice: msg %d\n", i)) {
			t.Fatalf("expected msg %d in history, got:\n%s", i, prompt)
		}
	}
	if strings.Contains(prompt, "Alice: msg 4\n") {
		t.Fatal("expected history limited to five messages")
	}
	if strings.Count(prompt, "msg 10") != 1 {
		t.Fatal("expected trigger to appear once, outside the history")
	}
}

func TestRespondSkipsFailedAgent(t *testing.T) {
	gen := &recordingGenerator{fail: map[string]bool{"a2": true}}
	pub := &fakePublisher{}
	history := testHistory(1)

	r := NewResponder(gen, history, pub, Config{ResponseDelay: -1}, zerolog.Nop())

	replies := r.Respond(context.Background(), history.messages[0], testAgents())
	if len(replies) != 2 {
		t.Fatalf("expected 2 replies after one failure, got %d", len(replies))
	}
	if replies[0].SenderID != "a1" || replies[1].SenderID != "a3" {
		t.Fatalf("unexpected repliers %s, %s", replies[0].SenderID, replies[1].SenderID)
	}
	if strings.Contains(gen.prompts["a3"], "reply from Beta") {
		t.Fatal("failed reply must not be shown to later agents")
	}
}

func TestGenerateTimeout(t *testing.T) {
	blocking := GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		time.Sleep(time.Second)
		return "too late", nil
	})

	start := time.Now()
	_, err := GenerateWithTimeout(context.Background(), blocking, Request{}, 20*time.Millisecond)
	if !errors.Is(err, ErrGenerationTimeout) {
		t.Fatalf("expected ErrGenerationTimeout, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("expected timeout to return at the deadline")
	}
}

func TestGenerateFailure(t *testing.T) {
	failing := GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		return "", errors.New("boom")
	})
	_, err := GenerateWithTimeout(context.Background(), failing, Request{}, time.Second)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}

	empty := GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		return "", nil
	})
	_, err = GenerateWithTimeout(context.Background(), empty, Request{}, time.Second)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed for empty text, got %v", err)
	}
}

func TestRespondCancelledDuringDelay(t *testing.T) {
	gen := &recordingGenerator{}
	pub := &fakePublisher{}
	history := testHistory(1)

	r := NewResponder(gen, history, pub, Config{ResponseDelay: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []models.Message)
	go func() {
		done <- r.Respond(ctx, history.messages[0], testAgents())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case replies := <-done:
		if len(replies) != 1 {
			t.Fatalf("expected only the first reply before cancel, got %d", len(replies))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("responder did not stop on cancel")
	}
}
