// Package http provides the HTTP adapter for the workflow runner.
// It is a thin layer that translates HTTP requests into queued triggers and
// read-only views of the workflow.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// TriggerRate limits POSTed triggers per second; zero disables the limit
	TriggerRate  float64
	TriggerBurst int
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	router     *gin.Engine
	handlers   *Handlers
	logger     Logger
	mu         sync.Mutex
	httpServer *http.Server
	listenAddr string
	serveErr   chan error
}

// NewServer creates a new HTTP server over the given handlers
func NewServer(config ServerConfig, handlers *Handlers, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		handlers: handlers,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)

	api := s.router.Group("/api/workflow")
	{
		api.GET("", s.handlers.GetWorkflow)
		api.GET("/history", s.handlers.ListHistory)
		fire := []gin.HandlerFunc{s.handlers.FireTrigger}
		if s.config.TriggerRate > 0 {
			burst := s.config.TriggerBurst
			if burst < 1 {
				burst = 1
			}
			limiter := rate.NewLimiter(rate.Limit(s.config.TriggerRate), burst)
			fire = append([]gin.HandlerFunc{triggerRateLimit(limiter, s.logger)}, fire...)
		}
		api.POST("/triggers/:trigger", fire...)
	}
}

// Name returns the worker name
func (s *Server) Name() string {
	return "http-server"
}

// Start binds the listener and serves in the background. Bind errors are
// returned immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return fmt.Errorf("http server already running")
	}

	listener, err := net.Listen("tcp", s.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address(), err)
	}

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.listenAddr = listener.Addr().String()
	s.serveErr = make(chan error, 1)

	s.logger.Info("Starting HTTP server", "address", s.listenAddr)

	srv, errCh := s.httpServer, s.serveErr
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
			errCh <- err
		}
		close(errCh)
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	s.mu.Lock()
	srv, errCh := s.httpServer, s.serveErr
	s.httpServer = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	if err := <-errCh; err != nil {
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the configured server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// ListenAddr returns the bound address once started
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}
