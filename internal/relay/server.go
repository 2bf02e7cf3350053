// Package relay streams sync status to WebSocket clients.
//
// Every status published on an attached broadcaster is forwarded as a JSON
// message to all connected clients. A client that connects late receives a
// snapshot of the latest status per entity first.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crewsync/crewsync/internal/status"
)

// MessageType names the kind of a relay message.
type MessageType string

const (
	// MessageTypeStatus carries one status change.
	MessageTypeStatus MessageType = "status"

	// MessageTypeSnapshot carries the latest status of every entity.
	MessageTypeSnapshot MessageType = "snapshot"
)

// Message is the envelope written to clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Status    *status.Status  `json:"status,omitempty"`
	Snapshot  []status.Status `json:"snapshot,omitempty"`
}

const (
	defaultAddr  = "127.0.0.1:8765"
	clientQueue  = 64
	writeTimeout = 5 * time.Second
)

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: 127.0.0.1:8765)
	Addr string

	Logger *zap.Logger
}

// client is one WebSocket connection and its outgoing queue.
type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close(code, reason)
	})
}

// Server fans status messages out to WebSocket clients.
type Server struct {
	addr     string
	engine   *gin.Engine
	listener net.Listener
	server   *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}
	latest  map[string]status.Status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
}

// NewServer creates a relay server. It does not listen until Start.
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:    cfg.Addr,
		engine:  gin.New(),
		clients: make(map[*client]struct{}),
		latest:  make(map[string]status.Status),
		ctx:     ctx,
		cancel:  cancel,
		logger:  cfg.Logger.Named("relay"),
	}
	s.engine.Use(gin.Recovery())
	s.engine.GET("/ws", s.handleWebSocket)
	s.engine.GET("/health", s.handleHealth)
	return s
}

// Attach forwards every status published on b until the server stops.
func (s *Server) Attach(b *status.Broadcaster) {
	ch, unsubscribe := b.Subscribe(s.ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		for st := range ch {
			s.Publish(st)
		}
	}()
}

// Publish records st as the latest status of its entity and queues it for
// every client. A client whose queue is full is disconnected.
func (s *Server) Publish(st status.Status) {
	data, err := encode(Message{Type: MessageTypeStatus, Status: &st})
	if err != nil {
		s.logger.Error("failed to encode status", zap.String("entity", st.Entity), zap.Error(err))
		return
	}

	var slow []*client
	s.mu.Lock()
	s.latest[st.Entity] = st
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			delete(s.clients, c)
			slow = append(slow, c)
		}
	}
	s.mu.Unlock()

	for _, c := range slow {
		s.logger.Warn("dropping slow client", zap.String("entity", st.Entity))
		c.close(websocket.StatusPolicyViolation, "too slow")
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("relay listening", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("relay server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop closes every client and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	clear(s.clients)
	s.mu.Unlock()
	for _, c := range clients {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}

	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("server shutdown error: %w", shutdownErr)
		}
	}

	s.wg.Wait()
	s.logger.Info("relay stopped")
	return err
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, clientQueue)}

	// Queue the snapshot and register under one lock so no live update can
	// overtake it.
	s.mu.Lock()
	snapshot, err := encode(Message{Type: MessageTypeSnapshot, Snapshot: s.snapshotLocked()})
	if err == nil {
		cl.send <- snapshot
		s.clients[cl] = struct{}{}
	}
	count := len(s.clients)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("failed to encode snapshot", zap.Error(err))
		cl.close(websocket.StatusInternalError, "snapshot failed")
		return
	}
	s.logger.Debug("client connected", zap.Int("clients", count))

	go s.readLoop(cl)
	s.writeLoop(cl)
}

// writeLoop drains the client's queue until it is closed or a write fails.
func (s *Server) writeLoop(cl *client) {
	defer s.removeClient(cl)
	for data := range cl.send {
		ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
		err := cl.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			s.logger.Debug("failed to send to client", zap.Error(err))
			return
		}
	}
}

// readLoop detects client disconnects. Client messages are ignored.
func (s *Server) readLoop(cl *client) {
	defer s.removeClient(cl)
	for {
		if _, _, err := cl.conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(cl *client) {
	s.mu.Lock()
	_, ok := s.clients[cl]
	delete(s.clients, cl)
	count := len(s.clients)
	s.mu.Unlock()

	cl.close(websocket.StatusNormalClosure, "")
	if ok {
		s.logger.Debug("client disconnected", zap.Int("clients", count))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": s.ClientCount()})
}

// Snapshot returns the latest relayed status per entity, sorted by entity.
func (s *Server) Snapshot() []status.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Server) snapshotLocked() []status.Status {
	out := make([]status.Status, 0, len(s.latest))
	for _, st := range s.latest {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}

// Addr returns the listening address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func encode(msg Message) ([]byte, error) {
	msg.Timestamp = time.Now().UTC()
	return json.Marshal(msg)
}
