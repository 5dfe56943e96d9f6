package server

import (
	"encoding/json"
	"net/http"
	"sync"
)

// SegmentInfo is the read-only status view a running or completed
// segment exposes to the monitor; internal/segment.Runner updates one
// of these per segment it owns.
type SegmentInfo struct {
	SegNum     int    `json:"segNum"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	TotalSpike int64  `json:"totalSpike"`
}

// Handlers holds the HTTP API handlers for the live monitor.
type Handlers struct {
	wsHub    *WSHub
	mu       sync.Mutex
	segments map[int]*SegmentInfo
}

// NewHandlers creates new API handlers.
func NewHandlers() *Handlers {
	return &Handlers{
		wsHub:    NewWSHub(),
		segments: make(map[int]*SegmentInfo),
	}
}

// Hub returns the WebSocket hub, for a segment.Runner to broadcast on.
func (h *Handlers) Hub() *WSHub { return h.wsHub }

// UpdateSegment records a segment's latest status, for HandleSegments
// to report and HandleStatus to summarize. It never blocks the
// caller on broadcasting; Hub().BroadcastSegmentStatus does that.
func (h *Handlers) UpdateSegment(info SegmentInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := info
	h.segments[info.SegNum] = &cp
}

// HandleWebSocket handles WebSocket upgrade requests.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.wsHub.AddClient(conn)

	go func() {
		defer h.wsHub.RemoveClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// HandleStatus returns a one-line summary across all known segments.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	n := len(h.segments)
	h.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]interface{}{
		"segments": n,
	})
}

// HandleSegments lists every segment's latest known status.
func (h *Handlers) HandleSegments(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*SegmentInfo, 0, len(h.segments))
	for _, info := range h.segments {
		out = append(out, info)
	}
	json.NewEncoder(w).Encode(out)
}
