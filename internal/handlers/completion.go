package handlers

import (
	"net/http"
	"strings"
)

// CompletionRequest represents the synchronous chat completion request.
type CompletionRequest struct {
	Prompt string `json:"prompt"`
}

// CompletionResponse carries the generated text.
type CompletionResponse struct {
	Text string `json:"text"`
}

// Complete runs one generation and waits for it. A timeout answers 504 and
// any other generation failure 502.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		h.Error(w, http.StatusBadRequest, "prompt is required")
		return
	}

	text, err := h.chat.Complete(r.Context(), req.Prompt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, CompletionResponse{Text: text})
}
