// Package server exposes the chat, session, and redaction APIs over
// HTTP, plus the dashboard and its WebSocket event feed.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/agent"
	"github.com/chatvault/chatvault/internal/audit"
	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/logger"
	"github.com/chatvault/chatvault/internal/privacy"
	"github.com/chatvault/chatvault/internal/session"
	"github.com/chatvault/chatvault/internal/web"
	"github.com/chatvault/chatvault/internal/websocket"
)

// Server wires the HTTP surface over the agent, session manager, and
// redaction engine.
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	engine   privacy.Engine
	sessions *session.Manager
	agent    *agent.Agent
	router   *mux.Router
	server   *http.Server
	wsHub    *websocket.Hub
	limiter  *clientLimiter
	trail    *audit.Trail
	started  time.Time
	done     chan struct{}

	turnCount      int64
	redactionCount int64
}

// SetAuditTrail exposes the audit query endpoints. A nil trail keeps
// them returning empty results.
func (s *Server) SetAuditTrail(trail *audit.Trail) {
	s.trail = trail
}

// New creates a server instance. The agent may be nil when the service
// runs redaction-only, in which case /api/chat reports 503.
func New(cfg *config.Config, log *logger.Logger, engine privacy.Engine, sessions *session.Manager, ag *agent.Agent) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if sessions == nil {
		return nil, fmt.Errorf("server: session manager must not be nil")
	}

	wsHub := websocket.NewHub(&websocket.HubConfig{
		BroadcastRedactions:  true,
		BroadcastTurns:       true,
		BroadcastSystem:      true,
		BroadcastConnections: true,
		AllowedOrigins:       cfg.WebSocket.AllowedOrigins,
	}, log.WithComponent("websocket"))

	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		engine:   engine,
		sessions: sessions,
		agent:    ag,
		router:   mux.NewRouter(),
		wsHub:    wsHub,
		started:  time.Now(),
		done:     make(chan struct{}),
	}
	if cfg.Server.RateLimit.Enabled {
		s.limiter = newClientLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Info endpoint
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Dashboard endpoint - embedded HTML
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	// WebSocket endpoint for dashboard
	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/chat", s.handleChat).Methods("POST")
	api.HandleFunc("/reset", s.handleReset).Methods("POST")
	api.HandleFunc("/search", s.handleSearch).Methods("GET")
	api.HandleFunc("/cache/clear-all", s.handleClearAllCache).Methods("POST")

	api.HandleFunc("/session/new", s.handleSessionNew).Methods("POST")
	api.HandleFunc("/session/list", s.handleSessionList).Methods("GET")
	api.HandleFunc("/session/{id}", s.handleSessionGet).Methods("GET")
	api.HandleFunc("/session/{id}", s.handleSessionDelete).Methods("DELETE")
	api.HandleFunc("/session/{id}/export", s.handleSessionExport).Methods("GET")
	api.HandleFunc("/session/{id}/redaction-stats", s.handleRedactionStats).Methods("GET")
	api.HandleFunc("/session/{id}/redaction-map", s.handleRedactionMap).Methods("GET")
	api.HandleFunc("/session/{id}/clear-cache", s.handleClearCache).Methods("POST")
	api.HandleFunc("/session/{id}/audit-events", s.handleAuditEvents).Methods("GET")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting chatvault server",
		zap.Int("port", s.config.Server.Port),
		zap.String("engine", s.config.Privacy.Engine),
		zap.Bool("storage", s.config.Storage.Enabled),
	)

	// Start WebSocket hub in a separate goroutine
	go s.wsHub.Run()
	go s.broadcastSystemStatus()

	return s.server.ListenAndServe()
}

// broadcastSystemStatus periodically pushes service counters to
// dashboard clients.
func (s *Server) broadcastSystemStatus() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.wsHub.BroadcastEvent(websocket.Event{
				Type:      websocket.EventTypeSystemStatus,
				Timestamp: time.Now(),
				Data: websocket.SystemStatusEvent{
					Status:           "healthy",
					Uptime:           time.Since(s.started).Round(time.Second).String(),
					TotalTurns:       atomic.LoadInt64(&s.turnCount),
					TotalRedactions:  atomic.LoadInt64(&s.redactionCount),
					ConnectedClients: int(s.wsHub.GetStats().ActiveConnections),
				},
			})
		}
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping chatvault server")
	close(s.done)
	return s.server.Shutdown(ctx)
}

// handleWebSocket handles WebSocket connections for the dashboard
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}
