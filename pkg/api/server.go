// Package api exposes the HTTP surface: model lifecycle endpoints,
// the chat completion proxy, system introspection, Prometheus metrics,
// and the WebSocket status stream. Handlers translate between the JSON
// contract and the lifecycle/orchestrator packages and hold no state
// of their own.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inferlab/modelmgr/pkg/config"
	"github.com/inferlab/modelmgr/pkg/events"
	"github.com/inferlab/modelmgr/pkg/memory"
	"github.com/inferlab/modelmgr/pkg/models"
	"github.com/inferlab/modelmgr/pkg/orchestrator"
	"github.com/inferlab/modelmgr/pkg/services"
)

// Lifecycle is the engine surface the HTTP layer depends on.
type Lifecycle interface {
	List() ([]models.RuntimeView, error)
	Get(id string) (models.RuntimeView, error)
	Start(ctx context.Context, id string, force bool) error
	Stop(ctx context.Context, id string) error
}

// ChatService runs the tool-orchestration loop for one request.
type ChatService interface {
	Chat(ctx context.Context, req *orchestrator.ChatRequest) (*orchestrator.ChatResponse, error)
}

// MemoryReader reports host memory for the system endpoint.
type MemoryReader interface {
	ReadSnapshot(ctx context.Context) (memory.Snapshot, error)
}

// Server is the HTTP server. Construct with NewServer, run with Start,
// stop with Shutdown.
type Server struct {
	engine      Lifecycle
	chat        ChatService
	mem         MemoryReader
	warnings    *services.SystemWarningsService
	connManager *events.ConnectionManager

	wsOrigins  []string
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer wires the handlers and middleware onto a gin router. Any
// collaborator may be nil; the corresponding endpoints then answer 503.
func NewServer(
	cfg config.ServerConfig,
	engine Lifecycle,
	chat ChatService,
	mem MemoryReader,
	warnings *services.SystemWarningsService,
	connManager *events.ConnectionManager,
) *Server {
	s := &Server{
		engine:      engine,
		chat:        chat,
		mem:         mem,
		warnings:    warnings,
		connManager: connManager,
		wsOrigins:   originPatterns(cfg.CORSOrigins),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())
	router.Use(securityHeaders())
	// No configured origins means no browser dashboard; CORS headers
	// would only invite one.
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", s.wsHandler)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/models", s.listModelsHandler)
		apiGroup.GET("/models/:id", s.getModelHandler)
		apiGroup.POST("/models/:id/start", s.startModelHandler)
		apiGroup.POST("/models/:id/stop", s.stopModelHandler)
		apiGroup.GET("/system/memory", s.systemMemoryHandler)
		apiGroup.GET("/system/warnings", s.systemWarningsHandler)
	}

	router.POST("/v1/chat/completions", s.chatCompletionsHandler)

	s.router = router
	// Built here, not in Start, so Shutdown from another goroutine
	// always sees a non-nil server.
	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until Shutdown or a listener error.
// Blocks; returns http.ErrServerClosed after a clean Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer.Addr = addr
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on an already-bound listener. Used by tests
// that need a random port.
func (s *Server) StartWithListener(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
