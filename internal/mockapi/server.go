// Package mockapi provides an in-memory fake of the crew management REST API.
//
// It serves the same routes the remote client talks to, keeps every resource
// in memory, and lets tests and demos inject failures and latency. Request
// counts per route make duplicate submissions observable.
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Resource paths served under /api.
const (
	Workers       = "workers"
	WorkEntries   = "work-entries"
	LeaveRequests = "leave-requests"
)

var resourceNames = []string{Workers, WorkEntries, LeaveRequests}

type resource struct {
	nextID int64
	items  map[int64]map[string]any
}

// Server is the fake backend.
type Server struct {
	engine *gin.Engine
	logger *zap.Logger

	mu         sync.Mutex
	resources  map[string]*resource
	failNext   int
	failStatus int
	latency    time.Duration
	requests   map[string]int
	token      string
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every /api request.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// New creates a fake backend with empty resources.
func New(logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:    gin.New(),
		logger:    logger.Named("mockapi"),
		resources: make(map[string]*resource),
		requests:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, name := range resourceNames {
		s.resources[name] = &resource{items: make(map[int64]map[string]any)}
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api", s.countRequests(), s.authenticate(), s.injectFaults())
	for _, name := range resourceNames {
		name := name
		api.GET("/"+name, func(c *gin.Context) { s.list(c, name) })
		api.POST("/"+name, func(c *gin.Context) { s.create(c, name) })
		api.PUT("/"+name+"/:id", func(c *gin.Context) { s.update(c, name) })
		api.DELETE("/"+name+"/:id", func(c *gin.Context) { s.delete(c, name) })
	}
}

// Handler returns the HTTP handler, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock API listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// FailNext makes the next n /api requests fail with the given HTTP status.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
	s.failStatus = status
}

// SetLatency delays every /api request by d.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Requests returns how many requests hit method on route, e.g.
// Requests("POST", "/api/workers").
func (s *Server) Requests(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+route]
}

// Seed stores item under resource and returns its assigned ID.
func (s *Server) Seed(name string, item map[string]any) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(name, item)
}

// Items returns a copy of every item of resource, ordered by ID.
func (s *Server) Items(name string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(name)
}

func (s *Server) insert(name string, item map[string]any) int64 {
	r := s.resources[name]
	r.nextID++
	id := r.nextID
	stored := cloneItem(item)
	stored["id"] = id
	r.items[id] = stored
	return id
}

func (s *Server) sorted(name string) []map[string]any {
	r := s.resources[name]
	ids := make([]int64, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneItem(r.items[id]))
	}
	return out
}

func (s *Server) list(c *gin.Context, name string) {
	s.mu.Lock()
	items := s.sorted(name)
	s.mu.Unlock()
	c.JSON(http.StatusOK, items)
}

func (s *Server) create(c *gin.Context, name string) {
	var item map[string]any
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	id := s.insert(name, item)
	created := cloneItem(s.resources[name].items[id])
	s.mu.Unlock()

	c.JSON(http.StatusCreated, created)
}

func (s *Server) update(c *gin.Context, name string) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var item map[string]any
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	r := s.resources[name]
	if _, exists := r.items[id]; !exists {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s %d not found", name, id)})
		return
	}
	stored := cloneItem(item)
	stored["id"] = id
	r.items[id] = stored
	s.mu.Unlock()

	c.JSON(http.StatusOK, cloneItem(stored))
}

func (s *Server) delete(c *gin.Context, name string) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	s.mu.Lock()
	r := s.resources[name]
	_, exists := r.items[id]
	delete(r.items, id)
	s.mu.Unlock()

	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s %d not found", name, id)})
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func cloneItem(item map[string]any) map[string]any {
	out := make(map[string]any, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
