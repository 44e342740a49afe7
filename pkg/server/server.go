// Package server exposes the agent-to-agent call surface over HTTP:
// discovery (/ping, /status), the call lifecycle (/invoke, /end), and
// the owner-only conversation and log queries. All responses are JSON;
// caller-facing errors come from a small closed set of codes so that a
// remote peer can never learn why a credential was rejected.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/openclaw/a2a/pkg/collab"
	"github.com/openclaw/a2a/pkg/config"
	"github.com/openclaw/a2a/pkg/conversations"
	"github.com/openclaw/a2a/pkg/credentials"
	"github.com/openclaw/a2a/pkg/logger"
	"github.com/openclaw/a2a/pkg/logstore"
	"github.com/openclaw/a2a/pkg/notify"
	"github.com/openclaw/a2a/pkg/ratelimit"
	"github.com/openclaw/a2a/pkg/types/a2a"
	"github.com/openclaw/a2a/pkg/watchdog"
)

// Config holds the server's listen and policy settings.
type Config struct {
	Host string

	// Port is the explicit listen port. When zero the server walks
	// Ports (or the global fallback list) until one binds.
	Port  int
	Ports []int

	// AdminToken grants non-loopback requests access to the owner
	// endpoints via the x-admin-token header. Empty means loopback only.
	AdminToken string

	// OwnerContext is passed to the summarizer when a conversation
	// concludes through /end.
	OwnerContext string
}

// Deps are the collaborators the server drives. Credentials,
// Conversations and Limiter are required; the rest degrade to no-ops.
type Deps struct {
	Credentials   *credentials.Store
	Conversations *conversations.Store
	Logs          *logstore.Store
	Limiter       *ratelimit.Limiter
	Collab        *collab.Engine
	Watchdog      *watchdog.Watchdog
	Producer      a2a.ReplyProducer
	Summarizer    a2a.Summarizer
	Dispatcher    *notify.Dispatcher
}

// Server is the HTTP front of the runtime.
type Server struct {
	config Config
	router *mux.Router
	server *http.Server

	credentials   *credentials.Store
	conversations *conversations.Store
	logs          *logstore.Store
	limiter       *ratelimit.Limiter
	engine        *collab.Engine
	watchdog      *watchdog.Watchdog
	producer      a2a.ReplyProducer
	summarizer    a2a.Summarizer
	dispatcher    *notify.Dispatcher

	now func() time.Time
}

// New creates a Server. It validates that the required dependencies are
// present but does not listen yet.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if deps.Conversations == nil {
		return nil, errors.New("conversation store is required")
	}
	if deps.Limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = notify.NewDispatcher(nil)
	}

	s := &Server{
		config:        cfg,
		router:        mux.NewRouter(),
		credentials:   deps.Credentials,
		conversations: deps.Conversations,
		logs:          deps.Logs,
		limiter:       deps.Limiter,
		engine:        deps.Collab,
		watchdog:      deps.Watchdog,
		producer:      deps.Producer,
		summarizer:    deps.Summarizer,
		dispatcher:    deps.Dispatcher,
		now:           time.Now,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/a2a").Subrouter()
	api.HandleFunc("/ping", s.handlePing).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/invoke", s.handleInvoke).Methods("POST")
	api.HandleFunc("/end", s.handleEnd).Methods("POST")

	// Owner-only views, never offered to remote peers.
	api.HandleFunc("/conversations", s.adminOnly(s.handleListConversations)).Methods("GET")
	api.HandleFunc("/conversations/{id}", s.adminOnly(s.handleGetConversation)).Methods("GET")
	api.HandleFunc("/logs", s.adminOnly(s.handleListLogs)).Methods("GET")
	api.HandleFunc("/logs/stats", s.adminOnly(s.handleLogStats)).Methods("GET")
	api.HandleFunc("/logs/trace/{id}", s.adminOnly(s.handleGetTrace)).Methods("GET")

	s.router.Use(s.traceMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.bodyLimitMiddleware)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// listen binds the explicit port, or walks the fallback list until one
// is free.
func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	if s.config.Port > 0 {
		return net.Listen("tcp", fmt.Sprintf("%s:%d", s.config.Host, s.config.Port))
	}
	ports := s.config.Ports
	if len(ports) == 0 {
		ports = config.PortFallbacks
	}
	var lastErr error
	for _, port := range ports {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.config.Host, port))
		if err == nil {
			return ln, nil
		}
		lastErr = err
		logger.WithComponent(ctx, "server").
			WithField("port", port).
			WithError(err).
			Debug("listen port unavailable, trying next")
	}
	return nil, errors.Wrap(lastErr, "no listen port available")
}

// Start binds a port and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen(ctx)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithComponent(ctx, "server").
		WithField("address", ln.Addr().String()).
		Info("a2a server listening")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.WithComponent(ctx, "server").WithError(err).Error("server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Stop closes the server immediately.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}
