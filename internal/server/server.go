// Package server exposes an in-process host over HTTP: WebSocket JSON-RPC
// for commands and events, plus an SSE tap of the event bus.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/telnet2/go-practice/go-ipcbind/internal/logging"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/catalog"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/host"
)

// Config holds server configuration.
type Config struct {
	Hostname       string
	Port           int
	EnableCORS     bool
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// OutboundBuffer bounds the per-connection queue of event notifications.
	// Notifications beyond it are dropped.
	OutboundBuffer int
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Hostname:       "127.0.0.1",
		Port:           7420,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   0, // No write timeout for SSE and WebSocket
		OutboundBuffer: 64,
	}
}

// Server is the HTTP server.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	host     *host.Host
	catalog  *catalog.Catalog
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// New creates a new Server for h. cat may be nil, in which case /catalog
// lists only the registered commands.
func New(cfg *Config, h *host.Host, cat *catalog.Catalog) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = DefaultConfig().OutboundBuffer
	}

	s := &Server{
		config:  cfg,
		router:  chi.NewRouter(),
		host:    h,
		catalog: cat,
		log:     logging.Component("server"),
		conns:   make(map[*conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.AllowedOrigins,
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// requestLogger logs each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("requestID", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("listening")
	return s.httpSrv.ListenAndServe()
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Hostname, s.config.Port)
}

// Shutdown gracefully shuts down the server and closes live WebSocket
// connections, which the HTTP server does not track once upgraded.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}

	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Connections returns the number of open WebSocket connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
