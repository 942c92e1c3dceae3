// Package web serves the gateway's status API: the latest record as JSON, a
// websocket feed of records as they decode, and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gorilla/websocket"

	"github.com/p1mqtt/p1mqtt/internal/event"
	"github.com/p1mqtt/p1mqtt/internal/p1"
)

const (
	readHeaderTimeout = 2 * time.Second
	shutdownTimeout   = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Local status endpoint, same trust domain as the process.
		return true
	},
}

type Server struct {
	log  *slog.Logger
	http *http.Server

	latestMu sync.RWMutex
	latest   *p1.Record

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool
}

func NewServer(addr string, log *slog.Logger) *Server {
	s := &Server{
		log:     log,
		clients: make(map[*websocket.Conn]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleStatus)
	mux.HandleFunc("/latest", s.handleLatest)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Run serves until ctx is cancelled, feeding every emitted record to the
// latest-record snapshot and the websocket clients.
func (s *Server) Run(ctx context.Context, emitter *event.Emitter) error {
	ch := emitter.Subscribe()
	defer emitter.Unsubscribe(ch)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-ch:
				if !ok {
					return
				}
				s.latestMu.Lock()
				s.latest = rec
				s.latestMu.Unlock()
				s.broadcast(rec)
			}
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}()

	s.log.Info("status server listening", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "P1 MQTT gateway",
		"status":  "running",
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	s.latestMu.RLock()
	rec := s.latest
	s.latestMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if rec == nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "no records decoded yet",
		})
		return
	}
	json.NewEncoder(w).Encode(recordView(rec))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("websocket upgrade failed", slog.Any("error", err))
		return
	}

	s.addClient(conn)

	// Send the current record immediately if there is one.
	s.latestMu.RLock()
	rec := s.latest
	s.latestMu.RUnlock()
	if rec != nil {
		if data, err := json.Marshal(recordView(rec)); err == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
	}

	// Drain the connection until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.removeClient(conn)
			return
		}
	}
}

func (s *Server) broadcast(rec *p1.Record) {
	data, err := json.Marshal(recordView(rec))
	if err != nil {
		s.log.Info("could not serialize record for broadcast", slog.Any("error", err))
		return
	}

	s.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.clientsMu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.removeClient(conn)
		}
	}
}

func (s *Server) addClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	delete(s.clients, conn)
	s.clientsMu.Unlock()
	conn.Close()
}

// recordView shapes a record for the status API.
func recordView(rec *p1.Record) map[string]any {
	view := map[string]any{
		"channel":             rec.Channel,
		"device_id":           rec.DeviceID,
		"collector_timestamp": rec.CollectorTime.Unix(),
		"fields":              rec.Fields,
	}
	if !rec.TelegramTime.IsZero() {
		view["telegram_timestamp"] = rec.TelegramTime.Unix()
	}
	return view
}
