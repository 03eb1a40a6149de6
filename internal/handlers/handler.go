package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/agentrooms/internal/agent"
	"github.com/eldtechnologies/agentrooms/internal/chat"
	"github.com/eldtechnologies/agentrooms/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	chat   *chat.Service
	store  *store.Gateway
	seed   chat.SeedData
	logger zerolog.Logger
}

// NewHandler creates a new Handler. seed is the data POST /seed loads.
func NewHandler(svc *chat.Service, gw *store.Gateway, seed chat.SeedData, logger zerolog.Logger) *Handler {
	return &Handler{
		chat:   svc,
		store:  gw,
		seed:   seed,
		logger: logger.With().Str("component", "handlers").Logger(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// fail maps service errors to HTTP status codes. Unknown errors are logged
// and reported as 500 without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrRoomNotFound):
		h.Error(w, http.StatusNotFound, "room not found")
	case errors.Is(err, chat.ErrInviteCodeTaken):
		h.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrInvalidInput):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrRateLimited):
		h.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, agent.ErrGenerationTimeout):
		h.Error(w, http.StatusGatewayTimeout, "the agent took too long to answer, please try again later")
	case errors.Is(err, agent.ErrGenerationFailed):
		h.Error(w, http.StatusBadGateway, "the agent could not generate an answer")
	default:
		h.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	return name
}
