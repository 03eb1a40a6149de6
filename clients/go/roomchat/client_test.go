package roomchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eldtechnologies/agentrooms/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Setenv("AGENTROOMS_CONFIG", t.TempDir())
	return NewClient(srv.URL, "team", "s3cret")
}

func TestJoinSavesSessionAndReusesID(t *testing.T) {
	var joins []map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "team" || pass != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		joins = append(joins, body)
		id := body["id"]
		if id == "" {
			id = "u1"
		}
		json.NewEncoder(w).Encode(models.Session{Token: "r1:" + id, RoomID: "r1", User: models.User{ID: id, Name: body["name"]}})
	})

	ctx := context.Background()
	if _, err := c.Join(ctx, "r1", "alice"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := c.SaveSession(); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	reloaded := NewClient(c.BaseURL, "team", "s3cret")
	if reloaded.Session == nil || reloaded.Session.User.ID != "u1" {
		t.Fatalf("expected saved session, got %+v", reloaded.Session)
	}
	if _, err := reloaded.Join(ctx, "r1", "alice"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if len(joins) != 2 || joins[1]["id"] != "u1" {
		t.Fatalf("expected rejoin to carry the user id, got %v", joins)
	}
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"invite code not found"}`))
	})

	_, err := c.FindInvite(context.Background(), "nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "invite code not found" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestPostMessageRequiresSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := c.PostMessage(context.Background(), "hi"); err == nil {
		t.Fatal("expected error without a session")
	}
}

func TestWebSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":  "ws://localhost:8080/ws",
		"https://rooms.example/": "wss://rooms.example/ws",
	}
	t.Setenv("AGENTROOMS_CONFIG", t.TempDir())
	for in, want := range cases {
		c := NewClient(in, "", "")
		if got := c.WebSocketURL(); got != want {
			t.Fatalf("WebSocketURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAuthHeader(t *testing.T) {
	c := &Client{User: "team", Password: "s3cret"}
	if c.AuthHeader().Get("Authorization") == "" {
		t.Fatal("expected Authorization header")
	}
	if (&Client{}).AuthHeader().Get("Authorization") != "" {
		t.Fatal("expected no Authorization header without a user")
	}
}
