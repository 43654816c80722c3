// Package ws handles WebSocket connection management for the FeastFriends
// gateway: upgrading HTTP connections, maintaining the per-user connection
// registry, relaying realtime events from NATS, and dispatching incoming
// client messages to the appropriate handlers.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/feastfriends/feastfriends/internal/messaging"
	"github.com/feastfriends/feastfriends/internal/metrics"
	"github.com/feastfriends/feastfriends/internal/protocol"
	"github.com/feastfriends/feastfriends/internal/user"
)

// ServerConfig holds tunable parameters for the WebSocket gateway.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // idle timeout for WebSocket reads
	WriteTimeout   time.Duration // timeout for WebSocket write operations
}

// DefaultServerConfig returns a ServerConfig with sensible production
// defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		MaxConnections: 50000,
		ReadTimeout:    90 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Server is the WebSocket gateway built on gobwas/ws. Each connection gets
// its own read goroutine; outbound frames are serialized by the
// per-connection write mutex, so the NATS relay and the dispatcher can both
// write safely.
type Server struct {
	config     ServerConfig
	conns      *ConnectionManager
	users      *user.Store
	nats       *messaging.Client
	onMessage  func(conn *Connection, data []byte) // message handler callback
	httpServer *http.Server
	done       chan struct{}
	startedAt  time.Time
}

// NewServer creates a Server with the given configuration, user store, and
// NATS client. The onMessage function is called from the connection's read
// goroutine whenever a complete WebSocket text frame is received.
func NewServer(config ServerConfig, users *user.Store, nats *messaging.Client,
	onMessage func(conn *Connection, data []byte)) *Server {

	return &Server{
		config:    config,
		conns:     NewConnectionManager(),
		users:     users,
		nats:      nats,
		onMessage: onMessage,
		done:      make(chan struct{}),
	}
}

// Start configures the HTTP server and begins accepting WebSocket
// connections. It blocks on http.Server.ListenAndServe.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	StartHeartbeat(s, DefaultHeartbeatConfig())

	log.Printf("ws: gateway listening on %s (max_conns=%d)",
		s.config.ListenAddr, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// handleUpgrade upgrades an HTTP request to a WebSocket connection. The
// user identifies itself with the user_id query parameter; unknown IDs get
// a fresh user document with default preferences so clients can connect
// before setting anything up.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if u == nil {
		u = &user.User{ID: userID}
		if err := s.users.Create(ctx, u); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	c := &Connection{
		UserID:    userID,
		Conn:      conn,
		CreatedAt: time.Now(),
	}
	c.Touch()

	if prev := s.conns.Add(c); prev != nil {
		prev.Close()
	}
	metrics.ConnectionsTotal.Set(float64(s.conns.Count()))

	s.markOnline(userID)

	// Relay this user's realtime events from NATS to the socket.
	err = s.nats.SubscribeUserEvents(userID, func(data []byte) {
		if err := s.SendMessage(userID, data); err != nil {
			log.Printf("ws: relay event to %s: %v", userID, err)
		}
	})
	if err != nil {
		log.Printf("ws: subscribe events for %s: %v", userID, err)
	}

	if msg, err := protocol.NewServerMessage(protocol.TypeConnected, protocol.ConnectedMsg{
		UserID: userID,
	}); err == nil {
		_ = c.WriteMessage(msg)
	}

	log.Printf("ws: new connection user=%s (total=%d)", userID, s.conns.Count())

	go s.readLoop(c)
}

// readLoop reads frames from a single connection until it fails or closes.
// wsutil.NextReader handles control frames inline, so pings and pongs reset
// the liveness clock without reaching the dispatcher.
func (s *Server) readLoop(c *Connection) {
	defer s.RemoveConnection(c)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		if s.config.ReadTimeout > 0 {
			_ = c.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		header, reader, err := wsutil.NextReader(c.Conn, ws.StateServerSide)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// Idle past the read timeout; the heartbeat decides whether
				// the connection is actually dead.
				continue
			}
			return
		}

		c.Touch()

		if header.OpCode.IsControl() {
			if header.OpCode == ws.OpClose {
				return
			}
			continue
		}

		data := make([]byte, header.Length)
		if header.Length > 0 {
			if _, err := io.ReadFull(reader, data); err != nil {
				return
			}
		}
		if len(data) == 0 {
			continue
		}

		if s.onMessage != nil {
			s.onMessage(c, data)
		}
	}
}

// handleHealth responds with the gateway's health status as JSON, including
// the current connection count and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// RemoveConnection drops a connection from the registry, stops its NATS
// event relay, and marks the user offline. It is exported so the heartbeat
// monitor can evict dead connections. Safe to call more than once.
func (s *Server) RemoveConnection(c *Connection) {
	if !s.conns.Remove(c) {
		return
	}
	metrics.ConnectionsTotal.Set(float64(s.conns.Count()))

	if err := s.nats.UnsubscribeUserEvents(c.UserID); err != nil {
		log.Printf("ws: unsubscribe events for %s: %v", c.UserID, err)
	}

	s.markOffline(c.UserID)

	log.Printf("ws: connection closed user=%s (total=%d)", c.UserID, s.conns.Count())
}

// SendMessage writes a WebSocket text frame to the connection for the given
// user. Goroutine-safe thanks to the per-connection write mutex.
func (s *Server) SendMessage(userID string, data []byte) error {
	c := s.conns.Get(userID)
	if c == nil {
		return fmt.Errorf("ws: no connection for user %s", userID)
	}

	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}

	err := c.WriteMessage(data)

	// Clear the write deadline so it doesn't affect heartbeat pings.
	_ = c.Conn.SetWriteDeadline(time.Time{})

	return err
}

// Connections returns the ConnectionManager for external access to
// connection state (e.g., by the heartbeat monitor).
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

func (s *Server) markOnline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.users.SetStatus(ctx, userID, user.StatusOnline); err != nil {
		log.Printf("ws: mark %s online: %v", userID, err)
	}
}

func (s *Server) markOffline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.users.SetStatus(ctx, userID, user.StatusOffline); err != nil {
		log.Printf("ws: mark %s offline: %v", userID, err)
	}
}

// Shutdown performs a graceful shutdown of the gateway: it stops the HTTP
// listener, signals the read loops to exit, and closes all active
// connections.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down gateway...")

	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("ws: http shutdown error: %v", err)
	}

	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}

	log.Printf("ws: gateway stopped, all connections closed")
	return nil
}
