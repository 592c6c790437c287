package handler

import (
	"net/http"
	"time"
)

// StreamStatus is the live indicator of the event stream.
type StreamStatus interface {
	Live() bool
}

// StatusHandler serves the client status used for the offline indicator.
type StatusHandler struct {
	mode      string
	network   string
	stream    StreamStatus
	events    EventSource
	startedAt time.Time
}

func NewStatusHandler(mode, network string, stream StreamStatus, events EventSource) *StatusHandler {
	return &StatusHandler{mode: mode, network: network, stream: stream, events: events, startedAt: time.Now()}
}

// GetStatus responds with the stream state and store size.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"network":        h.network,
		"live":           h.stream != nil && h.stream.Live(),
		"events":         h.events.Len(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
