// Package monitor serves the operator's view of a running tournament: a
// JSON health endpoint, Prometheus metrics, and a websocket stream of
// progress events.
package monitor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"solclash/internal/progress"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Server is the monitor endpoint. It subscribes to the progress bus both to
// track the current round for /health and to feed each /ws connection.
type Server struct {
	tournamentID string
	bus          *progress.Bus
	gatherer     prometheus.Gatherer
	router       *mux.Router
	srv          *http.Server
	ln           net.Listener
	upgrader     websocket.Upgrader
	startedAt    time.Time
	stopTracker  func()

	mu      sync.Mutex
	round   int
	clients int
}

// New builds a monitor for the given listen address. gatherer may be nil
// when no metrics registry is wired; /metrics then serves an empty set.
func New(addr, tournamentID string, bus *progress.Bus, gatherer prometheus.Gatherer) *Server {
	if bus == nil {
		bus = progress.NewBus()
	}
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	s := &Server{
		tournamentID: tournamentID,
		bus:          bus,
		gatherer:     gatherer,
		router:       mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		startedAt: time.Now(),
	}
	s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.trackRounds()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWS)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	log.Info().Str("addr", ln.Addr().String()).Msg("monitor listening")
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("monitor server stopped")
		}
	}()
	return nil
}

// Addr reports the bound address, useful with a ":0" listen address.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Shutdown drains plain HTTP requests, then drops websocket connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopTracker()
	err := s.srv.Shutdown(ctx)
	s.srv.Close()
	return err
}

// trackRounds keeps the highest round seen on the bus for /health.
func (s *Server) trackRounds() {
	events, cancel := s.bus.Subscribe()
	s.stopTracker = cancel
	go func() {
		for ev := range events {
			if ev.Round == 0 {
				continue
			}
			s.mu.Lock()
			if ev.Round > s.round {
				s.round = ev.Round
			}
			s.mu.Unlock()
		}
	}()
}

type healthPayload struct {
	Status       string `json:"status"`
	TournamentID string `json:"tournament_id,omitempty"`
	CurrentRound int    `json:"current_round"`
	Clients      int    `json:"clients"`
	UptimeMS     int64  `json:"uptime_ms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	round, clients := s.round, s.clients
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthPayload{
		Status:       "ok",
		TournamentID: s.tournamentID,
		CurrentRound: round,
		Clients:      clients,
		UptimeMS:     time.Since(s.startedAt).Milliseconds(),
	})
}

// handleWS streams progress events to one client until either side hangs
// up. A slow client loses events rather than stalling the bus.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := s.bus.Subscribe()
	defer cancel()

	s.mu.Lock()
	s.clients++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.clients--
		s.mu.Unlock()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
