package server

import (
	"log"
	"net/http"
)

// Server is the HTTP+WebSocket monitor server (spec.md §4.11): it
// exposes segment status and streams spike batches live, but never
// feeds back into the peel loop (spec.md §5).
type Server struct {
	mux     *http.ServeMux
	handler *Handlers
	addr    string
}

// NewServer creates a new monitor server.
func NewServer(addr string, handler *Handlers) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		handler: handler,
		addr:    addr,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.handler.HandleStatus)
	s.mux.HandleFunc("/api/segments", s.handler.HandleSegments)
	s.mux.HandleFunc("/ws", s.handler.HandleWebSocket)
}

// Start starts the HTTP server; it blocks until the server stops or
// errors.
func (s *Server) Start() error {
	log.Printf("Starting peeler monitor on %s", s.addr)
	return http.ListenAndServe(s.addr, s.mux)
}
