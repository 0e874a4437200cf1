// Package http exposes the notes service over a JSON API with a websocket
// status stream.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fission/internal/events"
	"fission/internal/logging"
	"fission/internal/notes"
	"fission/internal/observability"
)

// Config controls the listener and router.
type Config struct {
	Host         string
	Port         int
	EnableCORS   bool
	Debug        bool
	Version      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server hosts the API.
type Server struct {
	svc      *notes.Service
	hub      *events.Hub
	metrics  *observability.MetricsCollector
	logger   logging.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader
	version  string
	started  time.Time

	httpServer *http.Server

	// baseCtx ends at shutdown; it bounds background provisioning and
	// websocket streams.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	prepareMu sync.Mutex
	preparing bool
	prepareWG sync.WaitGroup
}

// NewServer builds the router. hub and metrics may be nil.
func NewServer(svc *notes.Service, hub *events.Hub, metrics *observability.MetricsCollector, cfg Config, logger logging.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("http: notes service is required")
	}
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("http")
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
		corsConfig.ExposeHeaders = []string{"X-Request-ID"}
		corsConfig.AllowWebSockets = true
		engine.Use(cors.New(corsConfig))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		svc:     svc,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
		engine:  engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		version:    cfg.Version,
		started:    time.Now(),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting fission API on %s", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops the listener and waits for background provisioning.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()
	err := s.httpServer.Shutdown(ctx)
	s.prepareWG.Wait()
	if err != nil {
		s.logger.Error("Error shutting down HTTP server: %v", err)
		return err
	}
	s.logger.Info("fission API stopped")
	return nil
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)

	meetings := api.Group("/meetings")
	{
		meetings.GET("", s.handleListMeetings)
		meetings.POST("", s.handleRecordMeeting)
		meetings.GET("/:id", s.handleGetMeeting)
		meetings.PUT("/:id", s.handleRenameMeeting)
		meetings.DELETE("/:id", s.handleDeleteMeeting)
		meetings.GET("/:id/tasks", s.handleListTasks)
		meetings.POST("/:id/tasks", s.handleAddTask)
		meetings.GET("/:id/summary", s.handleSummary)
	}

	tasks := api.Group("/tasks")
	{
		tasks.PUT("/:id", s.handleEditTask)
		tasks.PATCH("/:id", s.handleSetTaskDone)
		tasks.DELETE("/:id", s.handleDeleteTask)
	}

	api.POST("/extract", s.handleExtract)

	api.GET("/settings/:key", s.handleGetSetting)
	api.PUT("/settings/:key", s.handlePutSetting)

	api.GET("/model", s.handleModelStatus)
	api.POST("/model", s.handlePrepareModel)

	api.GET("/events", s.handleEvents)

	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}
