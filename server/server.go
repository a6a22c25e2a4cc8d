// Package server exposes the pipeline's observability surface: a websocket
// stream of order status events plus JSON endpoints for book snapshots and
// pipeline counters. The pipeline never depends on this server; it is one
// more emitter on the event plane.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	appconfig "orderflow/config"
	"orderflow/events"
	"orderflow/logger"
	"orderflow/pipeline"
)

// Server serves /ws, /book and /stats. It implements events.Emitter so main
// can register it alongside the log and Kafka emitters.
type Server struct {
	coord    *pipeline.Coordinator
	hub      *hub[events.Event]
	httpSrv  *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	running bool
	log     *logger.Log
}

// New builds the server around a constructed coordinator.
func New(cfg *appconfig.Config, coord *pipeline.Coordinator) *Server {
	s := &Server{
		coord: coord,
		hub:   newHub[events.Event](),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logger.GetLogger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/book", s.handleBook)
	mux.HandleFunc("/stats", s.handleStats)
	s.httpSrv = &http.Server{Addr: cfg.Server.Listen, Handler: mux}
	return s
}

// Emit broadcasts a status event to every websocket subscriber.
func (s *Server) Emit(ev events.Event) {
	s.hub.Broadcast(ev)
}

// Start begins listening. Listen errors after startup are logged, not
// propagated; the pipeline does not care whether observers can connect.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.WithComponent("server").WithFields(logger.Fields{
		"listen": s.httpSrv.Addr,
	}).Info("starting observability server")

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithComponent("server").WithError(err).Error("server stopped unexpectedly")
		}
	}()
	return nil
}

// Stop shuts the listener down and waits briefly for in-flight handlers.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.log.WithComponent("server").WithError(err).Warn("server shutdown timed out")
	}
	s.log.WithComponent("server").Info("observability server stopped")
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithComponent("server").WithError(err).Warn("websocket upgrade failed")
		return
	}
	sub := s.hub.Subscribe(64)
	defer s.hub.Unsubscribe(sub)
	defer conn.Close()

	// Drain client frames so pings and close messages are handled.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range sub.ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "missing symbol parameter", http.StatusBadRequest)
		return
	}
	snap, ok := s.coord.Snapshot(symbol)
	if !ok {
		http.Error(w, "unknown symbol", http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	type positions map[string]float64
	pos := positions{}
	for _, sym := range s.coord.Symbols() {
		if p, ok := s.coord.Position(sym); ok {
			pos[sym] = p
		}
	}
	writeJSON(w, struct {
		pipeline.Stats
		Positions   positions `json:"positions"`
		Subscribers int       `json:"subscribers"`
	}{
		Stats:       s.coord.Stats(),
		Positions:   pos,
		Subscribers: s.hub.Len(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.GetLogger().WithComponent("server").WithError(err).Warn("failed to encode response")
	}
}
