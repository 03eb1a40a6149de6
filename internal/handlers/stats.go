package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/eldtechnologies/agentrooms/internal/models"
)

// RoomStats represents stats for a single room.
type RoomStats struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MessageCount int    `json:"messageCount"`
	AgentCount   int    `json:"agentCount"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalRooms    int         `json:"totalRooms"`
	TotalAgents   int         `json:"totalAgents"`
	TotalMessages int         `json:"totalMessages"`
	LastActivity  string      `json:"lastActivity"`
	TopRooms      []RoomStats `json:"topRooms"`
}

// Stats returns room, agent and message totals and the busiest rooms.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rooms, err := h.chat.ListRooms(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}

	resp := StatsResponse{TotalRooms: len(rooms), TopRooms: []RoomStats{}}
	var last time.Time
	for _, room := range rooms {
		msgs, err := h.chat.FetchMessages(ctx, room.ID)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to count messages")
			return
		}
		resp.TotalAgents += len(room.Agents)
		resp.TotalMessages += len(msgs)
		if n := len(msgs); n > 0 && msgs[n-1].Timestamp.After(last) {
			last = msgs[n-1].Timestamp
		}
		resp.TopRooms = append(resp.TopRooms, roomStats(room, len(msgs)))
	}

	sort.SliceStable(resp.TopRooms, func(i, j int) bool {
		return resp.TopRooms[i].MessageCount > resp.TopRooms[j].MessageCount
	})
	if len(resp.TopRooms) > 5 {
		resp.TopRooms = resp.TopRooms[:5]
	}

	resp.LastActivity = "no activity yet"
	if !last.IsZero() {
		resp.LastActivity = formatTimeAgo(time.Since(last))
	}

	h.JSON(w, http.StatusOK, resp)
}

func roomStats(room models.Room, messages int) RoomStats {
	return RoomStats{
		ID:           room.ID,
		Name:         room.Name,
		MessageCount: messages,
		AgentCount:   len(room.Agents),
	}
}

// formatTimeAgo formats an age as a human-readable "X ago" string.
func formatTimeAgo(diff time.Duration) string {
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	default:
		return plural(int(diff.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
