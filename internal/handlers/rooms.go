package handlers

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/agentrooms/internal/chat"
	"github.com/eldtechnologies/agentrooms/internal/models"
)

// CreateRoomRequest represents the room creation request. Creator is
// optional and becomes the first member.
type CreateRoomRequest struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	InviteCode  string       `json:"inviteCode,omitempty"`
	Creator     *models.User `json:"creator,omitempty"`
}

// UpdateRoomRequest carries the editable room fields; absent fields are kept.
type UpdateRoomRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// RoomListResponse represents the room list response.
type RoomListResponse struct {
	Rooms []models.Room `json:"rooms"`
	Total int           `json:"total"`
}

// JoinRoomRequest represents the join request. ID is set when a returning
// user rejoins under the same identity.
type JoinRoomRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// CreateRoom handles room creation.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Creator != nil {
		req.Creator.Name = sanitizeName(req.Creator.Name)
	}

	room, err := h.chat.CreateRoom(r.Context(), chat.CreateRoomInput{
		Name:        sanitizeName(req.Name),
		Description: req.Description,
		InviteCode:  req.InviteCode,
		Creator:     req.Creator,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusCreated, room)
}

// ListRooms handles listing rooms, oldest first, with limit/offset paging.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l < limit {
		limit = l
	}
	offset := 0
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	rooms, err := h.chat.ListRooms(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})

	total := len(rooms)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	h.JSON(w, http.StatusOK, RoomListResponse{Rooms: rooms[offset:end], Total: total})
}

// GetRoom handles fetching a single room.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.chat.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}
	h.JSON(w, http.StatusOK, room)
}

// UpdateRoom handles renaming a room or changing its description.
func (h *Handler) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoomRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Name != nil {
		name := sanitizeName(*req.Name)
		req.Name = &name
	}

	room, err := h.chat.UpdateRoom(r.Context(), chi.URLParam(r, "id"), chat.UpdateRoomInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, room)
}

// DeleteRoom accepts the request and keeps the room.
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.DeleteRoom(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetInvite resolves an invite code to its room.
func (h *Handler) GetInvite(w http.ResponseWriter, r *http.Request) {
	room, err := h.chat.FindRoomByInviteCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "invite code not found")
		return
	}
	h.JSON(w, http.StatusOK, room)
}

// JoinRoom adds the caller to the room and returns the new session.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.chat.JoinRoom(r.Context(), chi.URLParam(r, "id"), models.User{
		ID:   req.ID,
		Name: sanitizeName(req.Name),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, session)
}

// GetSession resumes a session by token.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chat.GetSession(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if session == nil {
		h.Error(w, http.StatusNotFound, "session not found")
		return
	}
	h.JSON(w, http.StatusOK, session)
}

// DeleteSession removes a session. Removing an unknown session succeeds.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.RemoveSession(r.Context(), chi.URLParam(r, "token")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
