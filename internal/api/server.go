// Package api exposes the order portal over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/cg-order-portal/internal/archive"
	"github.com/cg-order-portal/internal/domain"
	"github.com/cg-order-portal/internal/middleware"
	"github.com/cg-order-portal/internal/orderform"
	"github.com/cg-order-portal/internal/service"
)

// Deps are the collaborators the HTTP handlers call into.
type Deps struct {
	Pipeline *service.Pipeline
	Store    domain.ProjectStore
	Archive  archive.Store
	Parser   *orderform.Parser
	Logger   *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Deps
	log           *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Deps) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if deps.Archive == nil {
		deps.Archive = archive.Discard{}
	}
	if deps.Parser == nil {
		deps.Parser = orderform.NewParser(cfg.OrderForm.SheetName, logger)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	router.Use(middleware.BodyLimit(cfg.Server.MaxUploadSize))

	server := &Server{
		configManager: configManager,
		deps:          deps,
		log:           logger,
		router:        router,
	}
	server.setupRoutes()
	return server
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Pipeline.Metrics().Registry, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/orderforms", s.handleOrderForm)
		v1.POST("/projects/validate", s.handleValidate)
		v1.POST("/projects/submit", s.handleSubmit)
		v1.GET("/projects", s.handleListProjects)
		v1.GET("/projects/:id", s.handleGetProject)
		v1.POST("/projects/:id/lock", s.handleLockProject)
		v1.POST("/projects/:id/process", s.handleProcessProject)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, "+middleware.RequestIDHeader)
		c.Header("Access-Control-Expose-Headers", "Content-Length, "+middleware.RequestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
