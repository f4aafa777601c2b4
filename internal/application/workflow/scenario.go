package workflow

import (
	"context"
	"fmt"
	"time"

	domainwf "github.com/garyjia/issueflow/internal/domain/workflow"
	"github.com/garyjia/issueflow/internal/infrastructure/worker"
	"go.uber.org/zap"
)

// DevelopmentTimer is the timer that ends the development phase in autoplay
const DevelopmentTimer = "development-finished"

// Scheduler schedules named one-shot trigger timers
type Scheduler interface {
	Schedule(name string, delay time.Duration, triggers ...domainwf.Trigger) error
	Cancel(name string) bool
}

// ScenarioConfig controls the autoplay scenario
type ScenarioConfig struct {
	DevelopmentDuration time.Duration
	SimulateTestPassing bool
}

// Scenario drives an issue through its lifecycle on its own: development
// starts immediately and finishes after DevelopmentDuration, followed by a
// test run that passes or fails.
type Scenario struct {
	sink      worker.TriggerSink
	scheduler Scheduler
	cfg       ScenarioConfig
	logger    *zap.Logger
}

// NewScenario creates the autoplay scenario
func NewScenario(sink worker.TriggerSink, scheduler Scheduler, cfg ScenarioConfig, logger *zap.Logger) *Scenario {
	return &Scenario{
		sink:      sink,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger,
	}
}

// Name returns the worker name
func (s *Scenario) Name() string {
	return "autoplay-scenario"
}

// Triggers returns what the development timer fires, in order
func (s *Scenario) Triggers() []domainwf.Trigger {
	verdict := TriggerTestFailed
	if s.cfg.SimulateTestPassing {
		verdict = TriggerTestPassed
	}
	return []domainwf.Trigger{TriggerDevelopmentFinished, TriggerStartTest, verdict}
}

// Start submits StartDevelopment and arms the development timer
func (s *Scenario) Start(ctx context.Context) error {
	if err := s.sink.Submit(ctx, TriggerStartDevelopment, SourceAutoplay); err != nil {
		return fmt.Errorf("submit %s: %w", TriggerStartDevelopment, err)
	}

	if err := s.scheduler.Schedule(DevelopmentTimer, s.cfg.DevelopmentDuration, s.Triggers()...); err != nil {
		return fmt.Errorf("schedule %s: %w", DevelopmentTimer, err)
	}

	s.logger.Info("Autoplay scenario started",
		zap.Duration("development_duration", s.cfg.DevelopmentDuration),
		zap.Bool("simulate_test_passing", s.cfg.SimulateTestPassing))
	return nil
}

// Stop disarms the development timer if it has not fired yet
func (s *Scenario) Stop() error {
	if s.scheduler.Cancel(DevelopmentTimer) {
		s.logger.Info("Autoplay scenario cancelled before development finished")
	}
	return nil
}
