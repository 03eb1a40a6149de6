package handlers

import (
	"net/http"

	"github.com/eldtechnologies/agentrooms/internal/models"
)

// SeedResponse lists the seeded rooms.
type SeedResponse struct {
	Message string        `json:"message"`
	Rooms   []models.Room `json:"rooms"`
}

// Seed loads the configured sample data. Seeding twice is harmless.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.chat.Seed(r.Context(), h.seed)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, SeedResponse{Message: "sample data created", Rooms: rooms})
}
