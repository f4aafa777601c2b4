package container

import (
	"context"
	"fmt"

	"github.com/garyjia/issueflow/internal/application/dispatcher"
	"github.com/garyjia/issueflow/internal/application/port"
	"github.com/garyjia/issueflow/internal/application/workflow"
	"github.com/garyjia/issueflow/internal/domain/event"
	domainwf "github.com/garyjia/issueflow/internal/domain/workflow"
	"github.com/garyjia/issueflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/issueflow/internal/infrastructure/worker"
	httpapi "github.com/garyjia/issueflow/internal/interfaces/http"
	"github.com/garyjia/issueflow/migrations"
	"github.com/garyjia/issueflow/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds the journal database and its repository.
type DatabaseBundle struct {
	DB      *database.DB
	History port.TransitionRepository
}

// ProvideDatabase opens the journal database and runs pending migrations,
// from MigrationsDir when set and from the embedded set otherwise.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.RunMigrations(cfg.MigrationsDir)
	} else {
		err = migrator.RunMigrationsFS(migrations.FS)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:      db,
		History: repository.NewTransitionRepository(db.DB, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the event logger.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	disp := dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}),
	)
	disp.SubscribeNamed(event.TypeReminderDue, "reminder_logger", reminderLogger(logger))
	disp.SubscribeNamed(dispatcher.AllEvents, "event_logger", eventLogger(logger))

	return disp, nil
}

// reminderLogger surfaces reminder ticks at info level
func reminderLogger(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		logger.Info(evt.GetPayloadString(event.KeyMessage),
			zap.String("workflow", evt.Workflow),
			zap.String("state", evt.GetPayloadString(event.KeyState)),
			zap.Int64("tick", evt.GetPayloadInt(event.KeyTick)))
		return nil
	}
}

// eventLogger records every workflow event at debug level
func eventLogger(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		fields := []zap.Field{
			zap.String("event_type", evt.Type.String()),
			zap.String("event_id", evt.ID),
			zap.String("workflow", evt.Workflow),
			zap.String("correlation_id", evt.CorrelationID),
		}
		for k, v := range evt.Payload {
			fields = append(fields, zap.Any(k, v))
		}
		logger.Debug("Workflow event", fields...)
		return nil
	}
}

// WorkflowDeps holds dependencies required for creating the workflow runner.
type WorkflowDeps struct {
	Config     *WorkflowConfig
	Dispatcher dispatcher.Dispatcher
	History    port.TransitionRepository // nil when the journal is disabled
	Logger     *zap.Logger
}

// ProvideWorkflowRunner builds the machine, from the YAML definition when
// configured, and wraps it in a runner.
func ProvideWorkflowRunner(deps *WorkflowDeps) (*workflow.Runner, error) {
	if deps == nil || deps.Config == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	cfg := deps.Config
	hooks := workflow.NewIssueHooks(workflow.HookDeps{
		Workflow:         cfg.Name,
		Dispatcher:       deps.Dispatcher,
		Logger:           deps.Logger,
		ReminderInterval: cfg.ReminderInterval,
	})

	var (
		machine domainwf.StateMachine
		err     error
	)
	if cfg.DefinitionPath != "" {
		def, loadErr := workflow.LoadDefinition(cfg.DefinitionPath)
		if loadErr != nil {
			return nil, loadErr
		}
		machine, err = def.Build(hooks)
		deps.Logger.Info("Workflow definition loaded",
			zap.String("path", cfg.DefinitionPath),
			zap.String("definition", def.Name),
			zap.Int("states", len(def.States)),
			zap.Int("transitions", len(def.Transitions)))
	} else {
		machine, err = workflow.BuildIssueWorkflow(hooks)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow: %w", err)
	}

	opts := []workflow.RunnerOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithQueueSize(cfg.QueueSize),
	}
	if deps.History != nil {
		opts = append(opts, workflow.WithHistory(deps.History))
	}

	return workflow.NewRunner(cfg.Name, machine, deps.Logger, opts...), nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Config  *Config
	Runner  *workflow.Runner
	History port.TransitionRepository
	Health  httpapi.HealthFunc
	Logger  *zap.Logger
}

// WorkerBundle is the registered workers and the timer producer they share.
type WorkerBundle struct {
	Manager *worker.WorkerManager
	Timers  *worker.TimerProducer
	Server  *httpapi.Server
}

// ProvideWorkers creates and registers all workers in start order:
// runner, timers, autoplay scenario, HTTP server.
// Returns the manager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*WorkerBundle, error) {
	if deps == nil || deps.Config == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("workflow runner is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)
	bundle := &WorkerBundle{Manager: manager}

	manager.Register(deps.Runner)

	bundle.Timers = worker.NewTimerProducer(deps.Runner, deps.Logger)
	manager.Register(bundle.Timers)

	wf := deps.Config.Workflow
	if wf.Autoplay {
		manager.Register(workflow.NewScenario(deps.Runner, bundle.Timers, workflow.ScenarioConfig{
			DevelopmentDuration: wf.DevelopmentDuration,
			SimulateTestPassing: wf.SimulateTestPassing,
		}, deps.Logger))
	}

	if srv := deps.Config.Server; srv.Enabled {
		logAdapter := &zapLoggerAdapter{logger: deps.Logger}
		handlers := httpapi.NewHandlers(deps.Runner, deps.History, deps.Health, logAdapter,
			httpapi.WithWaitTimeout(srv.TriggerWaitTimeout))
		bundle.Server = httpapi.NewServer(httpapi.ServerConfig{
			Host:         srv.Host,
			Port:         srv.Port,
			ReadTimeout:  srv.ReadTimeout,
			WriteTimeout: srv.WriteTimeout,
			TriggerRate:  srv.TriggerRate,
			TriggerBurst: srv.TriggerBurst,
		}, handlers, logAdapter)
		manager.Register(bundle.Server)
	}

	return bundle, nil
}
