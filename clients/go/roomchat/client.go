// Package roomchat provides a client for the agentrooms HTTP API.
package roomchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/eldtechnologies/agentrooms/internal/models"
)

// DefaultURL is used when no base URL is given.
const DefaultURL = "http://localhost:8080"

// Client is an agentrooms API client.
type Client struct {
	BaseURL    string
	User       string
	Password   string
	ConfigDir  string
	Session    *models.Session
	HTTPClient *http.Client
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agentrooms error %d: %s", e.Status, e.Message)
}

// NewClient creates a new client and loads the saved session, if any.
func NewClient(baseURL, user, password string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}

	configDir := os.Getenv("AGENTROOMS_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".agentrooms")
	}

	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		User:       user,
		Password:   password,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}

	_ = c.LoadSession()
	return c
}

// LoadSession loads the last joined session from disk.
func (c *Client) LoadSession() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "session.json"))
	if err != nil {
		return err
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}
	c.Session = &session
	return nil
}

// SaveSession saves the current session to disk.
func (c *Client) SaveSession() error {
	if c.Session == nil {
		return nil
	}
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(c.Session, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "session.json"), data, 0600)
}

// AuthHeader returns the headers every request carries, for reuse by the
// WebSocket dialer.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	if c.User != "" {
		req := &http.Request{Header: h}
		req.SetBasicAuth(c.User, c.Password)
	}
	return h
}

// WebSocketURL returns the push transport endpoint.
func (c *Client) WebSocketURL() string {
	u := c.BaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// doRequest performs an HTTP request and decodes the JSON answer into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header = c.AuthHeader()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Region    string                 `json:"region,omitempty"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, "GET", "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RoomList is a page of rooms.
type RoomList struct {
	Rooms []models.Room `json:"rooms"`
	Total int           `json:"total"`
}

// ListRooms lists rooms, oldest first.
func (c *Client) ListRooms(ctx context.Context, limit, offset int) (*RoomList, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	path := "/rooms"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp RoomList
	if err := c.doRequest(ctx, "GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateRoomRequest is the request body for room creation.
type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InviteCode  string `json:"inviteCode,omitempty"`
}

// CreateRoom creates a room. An empty invite code lets the server pick one.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	var room models.Room
	if err := c.doRequest(ctx, "POST", "/rooms", req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// FindInvite resolves an invite code to its room.
func (c *Client) FindInvite(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	if err := c.doRequest(ctx, "GET", "/invite/"+url.PathEscape(code), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Join joins the room as name and keeps the returned session. A previous
// session for the same room keeps the user's id.
func (c *Client) Join(ctx context.Context, roomID, name string) (*models.Session, error) {
	body := map[string]string{"name": name}
	if c.Session != nil && c.Session.RoomID == roomID {
		body["id"] = c.Session.User.ID
	}

	var session models.Session
	if err := c.doRequest(ctx, "POST", "/rooms/"+url.PathEscape(roomID)+"/join", body, &session); err != nil {
		return nil, err
	}
	c.Session = &session
	return &session, nil
}

// FetchMessages returns the room's messages in timestamp order.
func (c *Client) FetchMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.doRequest(ctx, "GET", "/rooms/"+url.PathEscape(roomID)+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// PostMessage sends text as the session user.
func (c *Client) PostMessage(ctx context.Context, text string) (*models.Message, error) {
	if c.Session == nil {
		return nil, fmt.Errorf("not joined to a room")
	}
	body := map[string]string{
		"text":     text,
		"sender":   c.Session.User.Name,
		"senderId": c.Session.User.ID,
	}

	var msg models.Message
	if err := c.doRequest(ctx, "POST", "/rooms/"+url.PathEscape(c.Session.RoomID)+"/messages", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Complete asks the server's model for a one-off answer.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	if err := c.doRequest(ctx, "POST", "/chat", map[string]string{"prompt": prompt}, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}
