// Package diag implements the optional HTTP/WebSocket diagnostics server
// of SPEC_FULL.md §4.12. It is purely observational: nothing it does
// feeds back into the protocol engine.
package diag

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Engine is the subset of *sharprudp.Conn the diagnostics server needs.
// Defined locally so this package doesn't import the root package,
// avoiding an import cycle with any future root-level diag wiring.
type Engine interface {
	ConnID() string
	KnownPeers() []string
	EngineStats() interface{}
	Subscribe(fn func(name string, payload interface{})) (unsubscribe func())
}

// Server is the diagnostics HTTP server. It is started and stopped
// independently of the engine's own lifecycle.
type Server struct {
	engine   Engine
	router   *mux.Router
	upgrader websocket.Upgrader
	http     *http.Server

	mu    sync.Mutex
	wsMu  sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New builds a diagnostics server bound to addr, observing engine.
func New(addr string, engine Engine) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		conns:  make(map[*websocket.Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	s.router.HandleFunc("/peers", s.handlePeers).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	s.http = &http.Server{Addr: addr, Handler: s.router}
	return s
}

// Start listens and serves until Stop is called. Errors other than
// http.ErrServerClosed are logged.
func (s *Server) Start() {
	s.engine.Subscribe(s.broadcast)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("diag: server stopped")
		}
	}()
}

// Stop shuts the HTTP server down.
func (s *Server) Stop() error {
	return s.http.Close()
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.engine.KnownPeers())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.engine.EngineStats())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("diag: websocket upgrade failed")
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	// Block on reads only to detect the client going away; this feed is
	// write-only from the server's perspective.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
	}
}

func (s *Server) broadcast(name string, payload interface{}) {
	msg, err := json.Marshal(struct {
		Event   string      `json:"event"`
		ConnID  string      `json:"conn_id"`
		Payload interface{} `json:"payload"`
	}{Event: name, ConnID: s.engine.ConnID(), Payload: payload})
	if err != nil {
		log.WithError(err).Warn("diag: failed to marshal event")
		return
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.WithError(err).Debug("diag: dropping websocket subscriber")
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("diag: failed to write response")
	}
}
