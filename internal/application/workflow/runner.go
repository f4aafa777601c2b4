package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/issueflow/internal/application/dispatcher"
	"github.com/garyjia/issueflow/internal/application/port"
	"github.com/garyjia/issueflow/internal/domain/entity"
	"github.com/garyjia/issueflow/internal/domain/event"
	domainwf "github.com/garyjia/issueflow/internal/domain/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrRunnerStopped is returned when submitting to a runner that is not running
	ErrRunnerStopped = errors.New("workflow runner is stopped")

	// ErrHookPanic is returned when an entry or exit action panicked during a fire
	ErrHookPanic = errors.New("workflow hook panicked")
)

// Trigger sources recorded in the journal
const (
	SourceManual   = "manual"
	SourceHTTP     = "http"
	SourceAutoplay = "autoplay"
)

const defaultQueueSize = 64

// Snapshot is the last committed view of the machine
type Snapshot struct {
	Workflow          string             `json:"workflow"`
	State             domainwf.StateID   `json:"state"`
	PermittedTriggers []domainwf.Trigger `json:"permitted_triggers"`
	Terminal          bool               `json:"terminal"`
	Transitions       int64              `json:"transitions"`
	LastTrigger       domainwf.Trigger   `json:"last_trigger,omitempty"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// FireResult is the outcome of one queued trigger
type FireResult struct {
	State         domainwf.StateID
	CorrelationID string
	Err           error
}

type fireRequest struct {
	trigger       domainwf.Trigger
	source        string
	correlationID string
	result        chan FireResult
}

// Runner owns a state machine and is the only goroutine that fires it.
// Producers (timers, HTTP handlers, the autoplay scenario) enqueue triggers,
// which are applied strictly one at a time in arrival order.
type Runner struct {
	workflow   string
	machine    domainwf.StateMachine
	dispatcher dispatcher.Dispatcher
	history    port.TransitionRepository
	logger     *zap.Logger
	queue      chan fireRequest

	snapMu   sync.RWMutex
	snapshot Snapshot

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	stopped   chan struct{}
	done      chan struct{}
}

// RunnerOption configures the runner
type RunnerOption func(*Runner)

// WithDispatcher publishes state.changed and transition.rejected events
func WithDispatcher(d dispatcher.Dispatcher) RunnerOption {
	return func(r *Runner) {
		r.dispatcher = d
	}
}

// WithHistory appends every successful transition to the journal
func WithHistory(repo port.TransitionRepository) RunnerOption {
	return func(r *Runner) {
		r.history = repo
	}
}

// WithQueueSize sets the trigger queue capacity
func WithQueueSize(size int) RunnerOption {
	return func(r *Runner) {
		if size > 0 {
			r.queue = make(chan fireRequest, size)
		}
	}
}

// NewRunner wraps a freshly built machine. The machine must not be used
// directly once handed to the runner.
func NewRunner(workflow string, machine domainwf.StateMachine, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		workflow: workflow,
		machine:  machine,
		logger:   logger.With(zap.String("workflow", workflow)),
		queue:    make(chan fireRequest, defaultQueueSize),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.snapshot = Snapshot{
		Workflow:          workflow,
		State:             machine.State(),
		PermittedTriggers: machine.PermittedTriggers(),
		Terminal:          machine.IsTerminal(),
		UpdatedAt:         time.Now(),
	}

	return r
}

// Name returns the worker name
func (r *Runner) Name() string {
	return "workflow-runner"
}

// Workflow returns the workflow name
func (r *Runner) Workflow() string {
	return r.workflow
}

// Start launches the fire loop. The initial state's entry action runs on the
// loop goroutine before any queued trigger.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("workflow runner already running")
	}
	select {
	case <-r.stopped:
		return ErrRunnerStopped
	default:
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.isRunning = true

	go r.loop(runCtx)

	r.logger.Info("Workflow runner started",
		zap.String("initial_state", r.machine.State().String()),
		zap.Int("queue_size", cap(r.queue)))
	return nil
}

// Stop lets the in-flight fire finish, drops pending triggers and releases
// the current state's entry-scoped work. A stopped runner cannot be restarted.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	close(r.stopped)
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	<-r.done

	r.logger.Info("Workflow runner stopped", zap.String("final_state", r.Snapshot().State.String()))
	return nil
}

// Submit enqueues a trigger without waiting for it to be applied.
// It blocks while the queue is full.
func (r *Runner) Submit(ctx context.Context, trigger domainwf.Trigger, source string) error {
	_, err := r.enqueue(ctx, trigger, source, nil)
	return err
}

// FireSync enqueues a trigger and waits for the outcome
func (r *Runner) FireSync(ctx context.Context, trigger domainwf.Trigger, source string) FireResult {
	result := make(chan FireResult, 1)
	correlationID, err := r.enqueue(ctx, trigger, source, result)
	if err != nil {
		return FireResult{State: r.Snapshot().State, Err: err}
	}

	select {
	case res := <-result:
		return res
	case <-ctx.Done():
		return FireResult{State: r.Snapshot().State, CorrelationID: correlationID, Err: ctx.Err()}
	case <-r.done:
		// The loop may have answered just before exiting
		select {
		case res := <-result:
			return res
		default:
		}
		return FireResult{State: r.Snapshot().State, CorrelationID: correlationID, Err: ErrRunnerStopped}
	}
}

// Snapshot returns the last committed state. Safe for concurrent use.
func (r *Runner) Snapshot() Snapshot {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()

	snap := r.snapshot
	snap.PermittedTriggers = append([]domainwf.Trigger(nil), r.snapshot.PermittedTriggers...)
	return snap
}

func (r *Runner) enqueue(ctx context.Context, trigger domainwf.Trigger, source string, result chan FireResult) (string, error) {
	if trigger == "" {
		return "", fmt.Errorf("empty trigger")
	}

	select {
	case <-r.stopped:
		return "", ErrRunnerStopped
	default:
	}

	req := fireRequest{
		trigger:       trigger,
		source:        source,
		correlationID: uuid.NewString(),
		result:        result,
	}

	select {
	case r.queue <- req:
		return req.correlationID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-r.stopped:
		return "", ErrRunnerStopped
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)
	defer r.machine.Release()

	r.start(ctx)

	for {
		// Stop wins over pending triggers
		select {
		case <-ctx.Done():
			r.dropPending()
			return
		default:
		}

		select {
		case <-ctx.Done():
			r.dropPending()
			return
		case req := <-r.queue:
			r.process(ctx, req)
		}
	}
}

func (r *Runner) start(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Initial entry action panicked", zap.Any("panic", rec))
		}
	}()

	r.machine.Start(WithCorrelationID(ctx, uuid.NewString()))
}

func (r *Runner) process(ctx context.Context, req fireRequest) {
	ctx = WithSource(WithCorrelationID(ctx, req.correlationID), req.source)
	previous := r.machine.State()

	newState, err := r.fire(ctx, req.trigger)
	if err != nil {
		r.reject(ctx, req, previous, err)
		r.publishSnapshot("")
		reply(req, FireResult{State: r.machine.State(), CorrelationID: req.correlationID, Err: err})
		return
	}

	r.publishSnapshot(req.trigger)

	r.logger.Info("Workflow transitioned",
		zap.String("trigger", req.trigger.String()),
		zap.String("previous_state", previous.String()),
		zap.String("new_state", newState.String()),
		zap.String("source", req.source),
		zap.String("correlation_id", req.correlationID))

	r.record(ctx, req, previous, newState)
	r.publish(ctx, event.NewEventWithCorrelation(event.TypeStateChanged, r.workflow, map[string]interface{}{
		event.KeyTrigger:       req.trigger.String(),
		event.KeyPreviousState: previous.String(),
		event.KeyNewState:      newState.String(),
		event.KeySource:        req.source,
	}, req.correlationID))

	reply(req, FireResult{State: newState, CorrelationID: req.correlationID})
}

// fire shields the loop from panicking hooks
func (r *Runner) fire(ctx context.Context, trigger domainwf.Trigger) (state domainwf.StateID, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			state = r.machine.State()
			err = fmt.Errorf("%w: %v", ErrHookPanic, rec)
		}
	}()

	return r.machine.Fire(ctx, trigger)
}

func (r *Runner) reject(ctx context.Context, req fireRequest, state domainwf.StateID, err error) {
	fields := []zap.Field{
		zap.String("trigger", req.trigger.String()),
		zap.String("state", state.String()),
		zap.String("source", req.source),
		zap.String("correlation_id", req.correlationID),
		zap.Error(err),
	}
	if errors.Is(err, ErrHookPanic) {
		r.logger.Error("Workflow hook failed", fields...)
	} else {
		r.logger.Warn("Transition rejected", fields...)
	}

	r.publish(ctx, event.NewEventWithCorrelation(event.TypeTransitionRejected, r.workflow, map[string]interface{}{
		event.KeyTrigger: req.trigger.String(),
		event.KeyState:   state.String(),
		event.KeySource:  req.source,
		event.KeyError:   err.Error(),
	}, req.correlationID))
}

func (r *Runner) record(ctx context.Context, req fireRequest, previous, newState domainwf.StateID) {
	if r.history == nil {
		return
	}

	rec := &entity.TransitionRecord{
		Workflow:      r.workflow,
		Trigger:       req.trigger.String(),
		PreviousState: previous.String(),
		NewState:      newState.String(),
		Source:        req.source,
		CorrelationID: req.correlationID,
		FiredAt:       time.Now(),
	}

	// The journal is an audit trail; a write failure does not undo the transition
	if err := r.history.Create(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Error("Failed to record transition",
			zap.String("trigger", req.trigger.String()),
			zap.String("correlation_id", req.correlationID),
			zap.Error(err))
	}
}

func (r *Runner) publish(ctx context.Context, evt *event.Event) {
	if r.dispatcher == nil {
		return
	}
	if err := r.dispatcher.Dispatch(ctx, evt); err != nil {
		r.logger.Error("Failed to publish workflow event",
			zap.String("event_type", evt.Type.String()),
			zap.Error(err))
	}
}

func (r *Runner) publishSnapshot(trigger domainwf.Trigger) {
	r.snapMu.Lock()
	defer r.snapMu.Unlock()

	r.snapshot.State = r.machine.State()
	r.snapshot.PermittedTriggers = r.machine.PermittedTriggers()
	r.snapshot.Terminal = r.machine.IsTerminal()
	if trigger != "" {
		r.snapshot.Transitions++
		r.snapshot.LastTrigger = trigger
	}
	r.snapshot.UpdatedAt = time.Now()
}

func (r *Runner) dropPending() {
	dropped := 0
	for {
		select {
		case req := <-r.queue:
			dropped++
			reply(req, FireResult{State: r.machine.State(), CorrelationID: req.correlationID, Err: ErrRunnerStopped})
		default:
			if dropped > 0 {
				r.logger.Warn("Dropped pending triggers on stop", zap.Int("count", dropped))
			}
			return
		}
	}
}

func reply(req fireRequest, res FireResult) {
	if req.result != nil {
		req.result <- res
	}
}
