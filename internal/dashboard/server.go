// Package dashboard provides a real-time WebSocket server for sync monitoring.
//
// The dashboard pushes sync lifecycle events, pending counts and RFID tag
// reads to the handhelds and browsers watching a device, and serves health,
// status and Prometheus endpoints next to them.
//
// Every client has its own bounded outbound queue drained by one writer
// goroutine. A client whose queue is full is disconnected rather than allowed
// to delay the others; it reconnects and starts over from the stats snapshot
// that every connection receives first.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSyncStarted indicates the controller began a sync
	MessageTypeSyncStarted MessageType = "sync_started"

	// MessageTypeSyncComplete indicates a sync finished without failures
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeSyncFailed indicates a sync exhausted its retries
	MessageTypeSyncFailed MessageType = "sync_failed"

	// MessageTypePending carries the unsynced record counts
	MessageTypePending MessageType = "pending"

	// MessageTypeTagRead indicates an RFID tag was read
	MessageTypeTagRead MessageType = "tag_read"

	// MessageTypeStats carries the aggregated dashboard statistics
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	defaultPort         = 8080
	defaultClientBuffer = 64
	writeTimeout        = 5 * time.Second
)

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Host to bind (default: all interfaces)
	Host string

	// ClientBuffer is the number of messages queued per client before the
	// client is dropped as too slow (default: 64)
	ClientBuffer int

	// Metrics is served on /metrics when set
	Metrics http.Handler

	// Status is encoded on /status when set
	Status func() any

	// Logger for server activity (default: stderr logger)
	Logger *zerolog.Logger
}

// client is one connected watcher.
type client struct {
	conn *websocket.Conn
	out  chan []byte
	gone chan struct{}
}

func (c *client) close(code websocket.StatusCode, reason string) {
	if c.conn != nil {
		_ = c.conn.Close(code, reason)
	}
}

// Server fans dashboard messages out to WebSocket clients
type Server struct {
	addr     string
	buffer   int
	metrics  http.Handler
	status   func() any
	listener net.Listener
	http     *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}
	welcome func() Message
	dropped atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewServer creates a dashboard server. A nil config listens on port 8080.
func NewServer(config *Config) *Server {
	if config == nil {
		config = &Config{Port: defaultPort}
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}
	buffer := config.ClientBuffer
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		buffer:  buffer,
		metrics: config.Metrics,
		status:  config.Status,
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With().Str("component", "dashboard").Logger(),
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	mux.HandleFunc("/", s.handleIndex)

	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("dashboard listening")
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server error")
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the listener down.
func (s *Server) Stop() error {
	s.logger.Info().Msg("stopping dashboard")
	s.cancel()

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		delete(s.clients, c)
		close(c.gone)
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.close(websocket.StatusGoingAway, "device shutting down")
	}

	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	return nil
}

// Run starts the server and stops it when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Broadcast queues a message for every connected client. It never blocks:
// clients whose queue is full are disconnected.
func (s *Server) Broadcast(msg Message) {
	if s.ctx.Err() != nil {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to marshal message")
		return
	}

	var slow []*client
	s.mu.Lock()
	for c := range s.clients {
		select {
		case c.out <- data:
		default:
			slow = append(slow, c)
		}
	}
	s.mu.Unlock()

	for _, c := range slow {
		s.dropped.Add(1)
		s.logger.Warn().Str("type", string(msg.Type)).Msg("client too slow, disconnecting")
		s.removeClient(c, websocket.StatusTryAgainLater, "too slow")
	}
}

// setWelcome installs the builder of the first message sent to new clients.
func (s *Server) setWelcome(fn func() Message) {
	s.mu.Lock()
	s.welcome = fn
	s.mu.Unlock()
}

// addClient registers conn with the welcome snapshot already queued, so no
// broadcast can reach the client ahead of it.
func (s *Server) addClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		out:  make(chan []byte, s.buffer),
		gone: make(chan struct{}),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	welcome := Message{Type: MessageTypeStats}
	if s.welcome != nil {
		welcome = s.welcome()
	}
	welcome.Timestamp = time.Now()
	if data, err := json.Marshal(welcome); err == nil {
		c.out <- data
	}
	s.clients[c] = struct{}{}
	return c
}

// removeClient unregisters c once and closes its connection.
func (s *Server) removeClient(c *client, code websocket.StatusCode, reason string) {
	s.mu.Lock()
	_, ok := s.clients[c]
	if ok {
		delete(s.clients, c)
		close(c.gone)
	}
	remaining := len(s.clients)
	s.mu.Unlock()

	if ok {
		c.close(code, reason)
		s.logger.Debug().Int("clients", remaining).Msg("client disconnected")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Watchers are handhelds and browsers on the site network.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if !s.track(2) {
		_ = conn.Close(websocket.StatusGoingAway, "device shutting down")
		return
	}
	c := s.addClient(conn)
	s.logger.Debug().Int("clients", s.ClientCount()).Str("remote", r.RemoteAddr).Msg("client connected")

	go s.writeLoop(c)
	go s.readLoop(c)
}

// track reserves n goroutines in the wait group unless Stop has begun.
func (s *Server) track(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(n)
	return true
}

// writeLoop drains one client's queue in order.
func (s *Server) writeLoop(c *client) {
	defer s.wg.Done()
	for {
		select {
		case <-c.gone:
			return
		case <-s.ctx.Done():
			return
		case data := <-c.out:
			ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.logger.Debug().Err(err).Msg("failed to send to client")
				s.removeClient(c, websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// readLoop discards client input and notices disconnects.
func (s *Server) readLoop(c *client) {
	defer s.wg.Done()
	for {
		if _, _, err := c.conn.Read(s.ctx); err != nil {
			s.removeClient(c, websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
		"dropped": s.Dropped(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, s.status())
}

// handleIndex lists the endpoints of this device.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	endpoints := map[string]string{
		"events": "ws://" + r.Host + "/ws",
		"health": "/health",
	}
	if s.status != nil {
		endpoints["status"] = "/status"
	}
	if s.metrics != nil {
		endpoints["metrics"] = "/metrics"
	}
	s.writeJSON(w, map[string]any{"service": "countsync", "endpoints": endpoints})
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped returns how many clients were disconnected for falling behind.
func (s *Server) Dropped() int64 {
	return s.dropped.Load()
}
