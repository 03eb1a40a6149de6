package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/agentrooms/internal/chat"
)

// CreateAgentRequest represents the agent creation request.
type CreateAgentRequest struct {
	Name           string `json:"name"`
	Context        string `json:"context"`
	Instructions   string `json:"instructions"`
	CreatedBy      string `json:"createdBy,omitempty"`
	SaveAsTemplate bool   `json:"saveAsTemplate,omitempty"`
}

// CreateAgent adds an LLM agent to the room.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if !h.decode(w, r, &req) {
		return
	}

	ag, err := h.chat.CreateAgent(r.Context(), chat.CreateAgentInput{
		RoomID:         chi.URLParam(r, "id"),
		Name:           sanitizeName(req.Name),
		Context:        req.Context,
		Instructions:   req.Instructions,
		CreatedBy:      req.CreatedBy,
		SaveAsTemplate: req.SaveAsTemplate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, ag)
}

// ListAgents returns the room's agents.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.chat.AgentsByRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, agents)
}

// ListTemplates returns the saved agent templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.chat.ListTemplates(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, templates)
}
