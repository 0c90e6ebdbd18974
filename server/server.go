package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Cod-e-Codes/clack/config"
	"github.com/Cod-e-Codes/clack/shared"
	"github.com/Cod-e-Codes/clack/transport"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var ErrServerClosed = errors.New("server closed")

// Server accepts client connections and runs one Session per connection on
// its own goroutine.
type Server struct {
	cfg       *config.Config
	kind      transport.Kind
	directory *Directory
	store     FileStore
	health    *HealthChecker
	maxRecord int64

	mu       sync.Mutex
	conns    map[transport.Conn]struct{}
	closing  bool
	sessions sync.WaitGroup
	listener net.Listener
	http     *http.Server
}

// New creates a server for cfg. store may be nil, in which case FILE
// uploads are refused.
func New(cfg *config.Config, store FileStore) (*Server, error) {
	kind, err := transport.ParseKind(cfg.Transport)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		kind:      kind,
		directory: NewDirectory(),
		store:     store,
		maxRecord: transport.RecordLimit(cfg.MaxFileBytes),
		conns:     make(map[transport.Conn]struct{}),
	}
	s.health = NewHealthChecker(s.directory, store, s.ActiveSessions, shared.ServerVersion)
	return s, nil
}

// Directory returns the logged-in user directory.
func (s *Server) Directory() *Directory { return s.directory }

// ActiveSessions returns the number of live connections.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// RegisterRoutes mounts the WebSocket endpoint and the health, log and
// staged file endpoints.
func (s *Server) RegisterRoutes(ctx context.Context, r chi.Router) {
	r.Use(middleware.Recoverer)

	r.Get(transport.WebSocketPath, func(w http.ResponseWriter, req *http.Request) {
		conn, err := transport.Upgrade(w, req, s.maxRecord)
		if err != nil {
			TransportLogger.Warn("WebSocket upgrade failed", map[string]interface{}{
				"remote": req.RemoteAddr,
				"error":  err.Error(),
			})
			return
		}
		// The handler goroutine is the session goroutine.
		s.serveConn(ctx, conn)
	})
	r.Get("/health", s.health.HealthCheckHandler)
	r.Get("/health/simple", s.health.SimpleHealthHandler)
	r.Get("/logs", s.logsHandler)
	r.Get("/files/{name}", s.fileInfoHandler)
}

// Router returns a chi router with every route mounted.
func (s *Server) Router(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	s.RegisterRoutes(ctx, r)
	return r
}

func (s *Server) logsHandler(w http.ResponseWriter, r *http.Request) {
	count := 50
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "count must be a positive integer", http.StatusBadRequest)
			return
		}
		count = n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(GetLogBuffer().GetRecentEntries(count)); err != nil {
		ServerLogger.Error("Failed to encode log entries", err)
	}
}

// fileInfoHandler reports the size and digest of a staged file, so an upload
// can be checked against the sender's copy.
func (s *Server) fileInfoHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, ErrStagingNotAvailable.Error(), http.StatusServiceUnavailable)
		return
	}

	name := chi.URLParam(r, "name")
	stored, _, err := s.store.Get(r.Context(), name)
	if errors.Is(err, ErrFileNotFound) {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	if err != nil {
		StoreLogger.Error("Failed to read staged file", err, map[string]interface{}{"file": name})
		http.Error(w, "failed to read staged file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stored); err != nil {
		ServerLogger.Error("Failed to encode staged file", err)
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("%w: failed to listen on %s: %w", shared.ErrConfiguration, s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	})
	defer stop()

	ServerLogger.Info("Server listening", map[string]interface{}{
		"addr":      ln.Addr().String(),
		"transport": string(s.kind),
		"name":      s.cfg.ServerName,
	})

	switch s.kind {
	case transport.WebSocket:
		return s.serveHTTP(ctx, ln)
	default:
		return s.serveTCP(ctx, ln)
	}
}

func (s *Server) serveHTTP(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	err := srv.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) || s.isClosing() {
		return nil
	}
	return fmt.Errorf("http server failed: %w", err)
}

func (s *Server) serveTCP(ctx context.Context, ln net.Listener) error {
	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else {
					backoff *= 2
				}
				if backoff > time.Second {
					backoff = time.Second
				}
				TransportLogger.Warn("Accept failed, retrying", map[string]interface{}{
					"error": err.Error(),
					"delay": backoff.String(),
				})
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		backoff = 0

		conn := transport.NewStreamConn(c, s.maxRecord)
		go s.serveConn(ctx, conn)
	}
}

// serveConn runs one session to completion. A failing session never stops
// the server.
func (s *Server) serveConn(ctx context.Context, conn transport.Conn) {
	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.untrack(conn)

	session := NewSession(conn, SessionOptions{
		ServerName:   s.cfg.ServerName,
		Directory:    s.directory,
		Store:        s.store,
		MaxFileBytes: s.cfg.MaxFileBytes,
	})
	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		TransportLogger.WithSession(session.ID()).Warn("Session ended with error", map[string]interface{}{
			"remote": conn.RemoteAddr(),
			"error":  err.Error(),
		})
	}
}

func (s *Server) track(conn transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.sessions.Add(1)
	return true
}

func (s *Server) untrack(conn transport.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.sessions.Done()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown stops accepting, closes every live connection and waits for the
// sessions to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return s.wait(ctx)
	}
	s.closing = true
	ln, srv := s.listener, s.http
	conns := make([]transport.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	ServerLogger.Info("Server shutting down", map[string]interface{}{"sessions": len(conns)})

	if srv != nil {
		// Hijacked WebSocket connections are closed below.
		_ = srv.Close()
	} else if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}

	return s.wait(ctx)
}

func (s *Server) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
