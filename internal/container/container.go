package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/issueflow/internal/application/dispatcher"
	"github.com/garyjia/issueflow/internal/application/port"
	"github.com/garyjia/issueflow/internal/application/workflow"
	"github.com/garyjia/issueflow/internal/infrastructure/worker"
	httpapi "github.com/garyjia/issueflow/internal/interfaces/http"
	"github.com/garyjia/issueflow/pkg/database"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	db      *database.DB
	history port.TransitionRepository

	// Application
	dispatcher dispatcher.Dispatcher
	runner     *workflow.Runner

	// Workers
	workers *worker.WorkerManager
	timers  *worker.TimerProducer
	server  *httpapi.Server

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Journal database and repository
// 2. Event dispatcher
// 3. Workflow runner
// 4. Workers (runner, timers, autoplay, HTTP)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repository
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// Step 2: Initialize dispatcher
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.dispatcher = disp

	// Step 3: Initialize workflow runner
	runner, err := ProvideWorkflowRunner(&WorkflowDeps{
		Config:     &c.config.Workflow,
		Dispatcher: c.dispatcher,
		History:    c.history,
		Logger:     c.logger,
	})
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize workflow: %w", err)
	}
	c.runner = runner
	c.logger.Info("Workflow runner initialized", zap.String("workflow", runner.Workflow()))

	// Step 4: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized, in reverse order
func (c *Container) teardown() []error {
	var errs []error

	// Step 1: Stop workers (reverse of step 4). Stopping the runner releases
	// entry-scoped work such as the reminder ticker.
	if c.workers != nil && c.workers.IsRunning() {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	if c.cancel != nil {
		c.cancel()
	}

	// Step 2: Close dispatcher (reverse of step 2)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	// Step 3: Close database (reverse of step 1)
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.db = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Runner returns the workflow runner
func (c *Container) Runner() *workflow.Runner {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runner
}

// Timers returns the timer producer feeding the runner
func (c *Container) Timers() *worker.TimerProducer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timers
}

// History returns the transition journal, or nil when disabled
func (c *Container) History() port.TransitionRepository {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history
}

// Server returns the HTTP server, or nil when disabled
func (c *Container) Server() *httpapi.Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, healthy bool, message string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: message}
		if !healthy {
			status.Overall = false
		}
	}

	// Check database
	switch {
	case !c.config.Database.Enabled:
		status.Components["database"] = ComponentHealth{Healthy: true, Message: "disabled"}
	case c.db == nil:
		set("database", false, "not initialized")
	default:
		if err := c.db.Ping(); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	// Check workers
	if c.workers != nil {
		set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()))
	} else {
		set("workers", false, "not initialized")
	}

	// Check workflow
	if c.runner != nil {
		snap := c.runner.Snapshot()
		set("workflow", true, fmt.Sprintf("state: %s", snap.State))
	} else {
		set("workflow", false, "not initialized")
	}

	return status
}

// initDatabase opens the journal when enabled.
func (c *Container) initDatabase() error {
	if !c.config.Database.Enabled {
		c.logger.Info("Transition journal disabled")
		return nil
	}

	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = bundle.DB
	c.history = bundle.History

	c.logger.Info("Database initialized", zap.String("path", c.config.Database.Path))
	return nil
}

// initWorkers initializes and starts all workers using providers.
func (c *Container) initWorkers() error {
	bundle, err := ProvideWorkers(&WorkerDeps{
		Config:  c.config,
		Runner:  c.runner,
		History: c.history,
		Health: func() (bool, interface{}) {
			h := c.Health()
			return h.Overall, h.Components
		},
		Logger: c.logger,
	})
	if err != nil {
		return err
	}

	// Assigned before starting so Health, served by the HTTP worker, never
	// observes a write
	c.workers = bundle.Manager
	c.timers = bundle.Timers
	c.server = bundle.Server

	return bundle.Manager.StartAll(c.ctx)
}

// zapLoggerAdapter adapts zap.Logger to the key/value Logger interfaces of
// the dispatcher and HTTP packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
