package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domainwf "github.com/garyjia/issueflow/internal/domain/workflow"
	"go.uber.org/zap"
)

// SourceTimer tags triggers submitted by the timer producer
const SourceTimer = "timer"

// TriggerSink accepts triggers for the single-writer queue
type TriggerSink interface {
	Submit(ctx context.Context, trigger domainwf.Trigger, source string) error
}

// timerEntry tracks a pending one-shot timer
type timerEntry struct {
	timer    *time.Timer
	triggers []domainwf.Trigger
	due      time.Time
}

// TimerProducer enqueues triggers into a TriggerSink after a delay.
// Timer triggers share the queue with manual triggers and carry no priority.
type TimerProducer struct {
	sink   TriggerSink
	logger *zap.Logger

	mu        sync.Mutex
	timers    map[string]*timerEntry
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	inFlight  sync.WaitGroup
}

// NewTimerProducer creates a timer producer feeding the given sink
func NewTimerProducer(sink TriggerSink, logger *zap.Logger) *TimerProducer {
	return &TimerProducer{
		sink:   sink,
		logger: logger,
		timers: make(map[string]*timerEntry),
	}
}

// Name returns the worker name
func (p *TimerProducer) Name() string {
	return "timer-producer"
}

// Start enables scheduling
func (p *TimerProducer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("timer producer already running")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.isRunning = true
	return nil
}

// Stop cancels all pending timers and waits for in-flight submissions
func (p *TimerProducer) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	for name, entry := range p.timers {
		entry.timer.Stop()
		delete(p.timers, name)
	}
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.inFlight.Wait()

	p.logger.Info("Timer producer stopped")
	return nil
}

// Schedule submits the triggers, in order, once delay has elapsed.
// Scheduling an existing name replaces the pending timer.
func (p *TimerProducer) Schedule(name string, delay time.Duration, triggers ...domainwf.Trigger) error {
	if len(triggers) == 0 {
		return fmt.Errorf("timer %s: no triggers", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return fmt.Errorf("timer producer not running")
	}

	if existing, ok := p.timers[name]; ok {
		existing.timer.Stop()
		delete(p.timers, name)
	}

	entry := &timerEntry{
		triggers: append([]domainwf.Trigger(nil), triggers...),
		due:      time.Now().Add(delay),
	}
	entry.timer = time.AfterFunc(delay, func() { p.fire(name, entry) })
	p.timers[name] = entry

	p.logger.Info("Timer scheduled",
		zap.String("timer", name),
		zap.Duration("delay", delay),
		zap.Int("trigger_count", len(triggers)))

	return nil
}

// Cancel stops a pending timer. It returns false if no such timer is pending.
func (p *TimerProducer) Cancel(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.timers[name]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(p.timers, name)

	p.logger.Info("Timer cancelled", zap.String("timer", name))
	return true
}

// Pending returns the names of pending timers, sorted
func (p *TimerProducer) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.timers))
	for name := range p.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fire submits the timer's triggers unless it was cancelled or replaced
func (p *TimerProducer) fire(name string, entry *timerEntry) {
	p.mu.Lock()
	if current, ok := p.timers[name]; !ok || current != entry || !p.isRunning {
		p.mu.Unlock()
		return
	}
	delete(p.timers, name)
	ctx := p.ctx
	p.inFlight.Add(1)
	p.mu.Unlock()

	defer p.inFlight.Done()

	p.logger.Info("Timer fired", zap.String("timer", name))

	for _, trigger := range entry.triggers {
		if err := p.sink.Submit(ctx, trigger, SourceTimer); err != nil {
			p.logger.Error("Failed to submit timer trigger",
				zap.String("timer", name),
				zap.String("trigger", trigger.String()),
				zap.Error(err))
			return
		}
	}
}
