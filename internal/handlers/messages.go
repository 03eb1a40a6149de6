package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/agentrooms/internal/chat"
	"github.com/eldtechnologies/agentrooms/internal/models"
)

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	Text     string `json:"text"`
	Sender   string `json:"sender"`
	SenderID string `json:"senderId,omitempty"`
}

// MarkReadRequest represents a batch of read receipts for one room.
type MarkReadRequest struct {
	MessageIDs []int64 `json:"messageIds"`
	UserID     string  `json:"userId"`
}

// GetMessages returns the room's messages in timestamp order. With ?after=N
// only messages with a larger id are returned.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	room, err := h.chat.GetRoom(r.Context(), roomID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}

	msgs, err := h.chat.FetchMessages(r.Context(), roomID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64); err == nil {
		filtered := msgs[:0]
		for _, m := range msgs {
			if m.ID > after {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}

	h.JSON(w, http.StatusOK, msgs)
}

// PostMessage sends a message to the room.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.chat.SendMessage(r.Context(), chat.SendMessageInput{
		RoomID:   chi.URLParam(r, "id"),
		Text:     req.Text,
		Sender:   sanitizeName(req.Sender),
		SenderID: req.SenderID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, msg)
}

// MarkRead records a batch of read receipts. A rate limited batch is dropped
// and still answered with 202, so clients never retry it.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if !h.decode(w, r, &req) {
		return
	}

	updates, err := h.chat.MarkReadBatch(r.Context(), models.MessagesRead{
		MessageIDs: req.MessageIDs,
		RoomID:     chi.URLParam(r, "id"),
		UserID:     req.UserID,
	})
	if errors.Is(err, chat.ErrRateLimited) {
		h.JSON(w, http.StatusAccepted, []models.ReadStatusUpdate{})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusAccepted, updates)
}
