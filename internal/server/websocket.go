package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage represents a WebSocket message.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SpikeBatchPayload is broadcast after each chunk's spikes are
// finalized (spec.md §4.5's per-chunk batch) and persisted — never on
// the peel loop's hot path itself.
type SpikeBatchPayload struct {
	SegNum     int     `json:"segNum"`
	ChunkPos   int64   `json:"chunkPos"`
	Spikes     []Spike `json:"spikes"`
	TotalSpike int64   `json:"totalSpike"`
}

// Spike is the wire shape of a labels.Spike.
type Spike struct {
	Index  int64   `json:"index"`
	Label  int64   `json:"label"`
	Jitter float64 `json:"jitter"`
}

// SegmentStatusPayload reports a segment's lifecycle state.
type SegmentStatusPayload struct {
	SegNum  int    `json:"segNum"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// WSHub manages WebSocket connections.
type WSHub struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[*websocket.Conn]bool),
	}
}

// AddClient registers a new WebSocket connection.
func (h *WSHub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	log.Printf("WebSocket client connected (%d total)", len(h.clients))
}

// RemoveClient removes a WebSocket connection.
func (h *WSHub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	conn.Close()
	log.Printf("WebSocket client disconnected (%d remaining)", len(h.clients))
}

// Broadcast sends a message to all connected clients. A client whose
// write fails is removed so later broadcasts skip it. Writes are
// synchronous and have no deadline, so a client that is slow but not
// failing delays the broadcast, and with it the caller.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("WebSocket marshal error: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.clients {
		err := conn.WriteMessage(websocket.TextMessage, data)
		if err != nil {
			log.Printf("WebSocket write error: %v", err)
			go h.RemoveClient(conn)
		}
	}
}

// BroadcastSpikeBatch sends one chunk's finalized spike batch.
func (h *WSHub) BroadcastSpikeBatch(p SpikeBatchPayload) {
	h.Broadcast(WSMessage{Type: "spike_batch", Payload: p})
}

// BroadcastSegmentStatus sends a segment lifecycle update.
func (h *WSHub) BroadcastSegmentStatus(p SegmentStatusPayload) {
	h.Broadcast(WSMessage{Type: "segment_status", Payload: p})
}

// BroadcastLog sends a log message to all clients.
func (h *WSHub) BroadcastLog(level, message string) {
	h.Broadcast(WSMessage{
		Type: "log",
		Payload: map[string]string{
			"level":   level,
			"message": message,
		},
	})
}
