package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/eldtechnologies/agentrooms/internal/agent"
	"github.com/eldtechnologies/agentrooms/internal/api/middleware"
	"github.com/eldtechnologies/agentrooms/internal/broker"
	"github.com/eldtechnologies/agentrooms/internal/chat"
	"github.com/eldtechnologies/agentrooms/internal/handlers"
	"github.com/eldtechnologies/agentrooms/internal/llm"
	"github.com/eldtechnologies/agentrooms/internal/models"
	"github.com/eldtechnologies/agentrooms/internal/store"
	"github.com/eldtechnologies/agentrooms/internal/transport"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gw := store.NewGateway(store.NewMemoryBackend())
	br := broker.New(zerolog.Nop())
	svc := chat.NewService(chat.Options{
		Store:     gw,
		Broker:    br,
		Generator: llm.NewMock(),
		Agent:     agent.Config{ResponseDelay: -1},
		Logger:    zerolog.Nop(),
	})
	t.Cleanup(svc.Close)

	auth, err := middleware.NewAuthMiddleware("team", "s3cret", "", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	router := NewRouter(zerolog.Nop(), Options{
		Handler:   handlers.NewHandler(svc, gw, chat.DefaultSeed(), zerolog.Nop()),
		WebSocket: transport.NewServer(br, svc, transport.ServerOptions{InsecureSkipVerify: true}, zerolog.Nop()),
		Auth:      auth,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func request(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("team", "s3cret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestRouterAuthGate(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/rooms")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("rooms without credentials: expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers on rejected request")
	}

	if code := request(t, "GET", srv.URL+"/rooms", nil, nil); code != http.StatusOK {
		t.Fatalf("rooms with credentials: expected 200, got %d", code)
	}
}

func TestRouterWebSocketDelivery(t *testing.T) {
	srv := newTestServer(t)

	var room models.Room
	if code := request(t, "POST", srv.URL+"/rooms", handlers.CreateRoomRequest{Name: "Lobby"}, &room); code != http.StatusCreated {
		t.Fatalf("create room: expected 201, got %d", code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	req, _ := http.NewRequest("GET", srv.URL, nil)
	req.SetBasicAuth("team", "s3cret")
	header.Set("Authorization", req.Header.Get("Authorization"))

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	join, _ := models.NewEvent(models.EventJoinRoom, room.ID)
	if err := wsjson.Write(ctx, ws, join); err != nil {
		t.Fatal(err)
	}

	// The join is processed asynchronously; post until the event arrives.
	received := make(chan models.Message, 1)
	go func() {
		for {
			var ev models.Event
			if err := wsjson.Read(ctx, ws, &ev); err != nil {
				return
			}
			if ev.Type != models.EventMessageReceived {
				continue
			}
			var msg models.Message
			if json.Unmarshal(ev.Data, &msg) == nil {
				received <- msg
				return
			}
		}
	}()

	for {
		request(t, "POST", srv.URL+"/rooms/"+room.ID+"/messages", handlers.PostMessageRequest{Text: "hello", Sender: "alice"}, nil)
		select {
		case msg := <-received:
			if msg.Text != "hello" || msg.RoomID != room.ID {
				t.Fatalf("unexpected message %+v", msg)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			t.Fatal("timed out waiting for message-received")
		}
	}
}

func TestRouterUnauthenticatedWebSocket(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err == nil {
		t.Fatal("expected dial to fail without credentials")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}
}

func TestSeededRoomAgentReplyOverWebSocket(t *testing.T) {
	srv := newTestServer(t)

	if code := request(t, "POST", srv.URL+"/seed", nil, nil); code != http.StatusOK {
		t.Fatalf("seed: expected 200, got %d", code)
	}
	var room models.Room
	if code := request(t, "GET", srv.URL+"/invite/test123", nil, &room); code != http.StatusOK {
		t.Fatalf("invite: expected 200, got %d", code)
	}
	if len(room.Agents) == 0 {
		t.Fatal("expected the seeded room to have an agent")
	}
	bot := room.Agents[0]

	var session models.Session
	request(t, "POST", srv.URL+"/rooms/"+room.ID+"/join", handlers.JoinRoomRequest{Name: "alice"}, &session)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	req, _ := http.NewRequest("GET", srv.URL, nil)
	req.SetBasicAuth("team", "s3cret")
	header.Set("Authorization", req.Header.Get("Authorization"))
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	join, _ := models.NewEvent(models.EventJoinRoom, room.ID)
	send, _ := models.NewEvent(models.EventNewMessage, models.Message{
		Text:     "hello @" + bot.Name,
		Sender:   session.User.Name,
		SenderID: session.User.ID,
		RoomID:   room.ID,
	})
	// Events on one connection are handled in order, so the join lands first.
	if err := wsjson.Write(ctx, ws, join); err != nil {
		t.Fatal(err)
	}
	if err := wsjson.Write(ctx, ws, send); err != nil {
		t.Fatal(err)
	}

	var human models.Message
	for {
		var ev models.Event
		if err := wsjson.Read(ctx, ws, &ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Type != models.EventMessageReceived {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.SenderID == session.User.ID {
			if len(msg.Mentions) != 1 || msg.Mentions[0] != bot.ID {
				t.Fatalf("expected mention of %s, got %v", bot.ID, msg.Mentions)
			}
			human = msg
			continue
		}
		if msg.SenderID != bot.ID || msg.Sender != bot.Name {
			t.Fatalf("unexpected sender %q/%q", msg.Sender, msg.SenderID)
		}
		if human.ID == 0 || msg.ID <= human.ID {
			t.Fatalf("agent reply %d should follow the human message %d", msg.ID, human.ID)
		}
		if len(msg.Mentions) != 1 || msg.Mentions[0] != session.User.ID {
			t.Fatalf("agent reply should address the sender, got %v", msg.Mentions)
		}
		return
	}
}
