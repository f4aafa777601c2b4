package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/issueflow/internal/application/dispatcher"
	"github.com/garyjia/issueflow/internal/domain/event"
	domainwf "github.com/garyjia/issueflow/internal/domain/workflow"
	"github.com/garyjia/issueflow/internal/infrastructure/worker"
	"go.uber.org/zap"
)

// Hook names understood by the catalogue
const (
	HookAnnounce         = "announce"
	HookStyleCopReminder = "stylecop_reminder"
)

// GuardManualOnly passes only for triggers submitted by a person, through
// the API or in-process, and blocks timer and autoplay triggers
const GuardManualOnly = "manual_only"

// StyleCopReminderMessage is logged on every reminder tick
const StyleCopReminderMessage = "Don't forget to use StyleCop settings for any JIRA checkin"

const defaultReminderInterval = time.Second

// HookDeps carries what the built-in hooks need
type HookDeps struct {
	Workflow         string
	Dispatcher       dispatcher.Dispatcher
	Logger           *zap.Logger
	ReminderInterval time.Duration
}

// Hooks binds hook and guard names used by workflow definitions to actions
type Hooks struct {
	mu     sync.RWMutex
	entry  map[string]domainwf.EntryAction
	exit   map[string]domainwf.ExitAction
	guards map[string]domainwf.GuardFunc
}

// NewHooks returns an empty catalogue
func NewHooks() *Hooks {
	return &Hooks{
		entry:  make(map[string]domainwf.EntryAction),
		exit:   make(map[string]domainwf.ExitAction),
		guards: make(map[string]domainwf.GuardFunc),
	}
}

// NewIssueHooks returns the catalogue with the built-in hooks registered
func NewIssueHooks(deps HookDeps) *Hooks {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.ReminderInterval <= 0 {
		deps.ReminderInterval = defaultReminderInterval
	}

	h := NewHooks()
	h.RegisterEntry(HookAnnounce, announceEntry(deps))
	h.RegisterExit(HookAnnounce, announceExit(deps))
	h.RegisterEntry(HookStyleCopReminder, styleCopReminder(deps))
	h.RegisterGuard(GuardManualOnly, manualOnly)
	return h
}

// RegisterEntry binds an entry action to name, replacing any previous binding
func (h *Hooks) RegisterEntry(name string, action domainwf.EntryAction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entry[name] = action
}

// RegisterExit binds an exit action to name, replacing any previous binding
func (h *Hooks) RegisterExit(name string, action domainwf.ExitAction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exit[name] = action
}

// RegisterGuard binds a guard to name, replacing any previous binding
func (h *Hooks) RegisterGuard(name string, guard domainwf.GuardFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.guards[name] = guard
}

// Entry composes the named entry actions into one. The combined release
// handle releases in reverse order.
func (h *Hooks) Entry(names ...string) (domainwf.EntryAction, error) {
	if len(names) == 0 {
		return nil, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	actions := make([]domainwf.EntryAction, 0, len(names))
	for _, name := range names {
		action, ok := h.entry[name]
		if !ok {
			return nil, fmt.Errorf("unknown entry hook %q (known: %v)", name, sortedKeys(h.entry))
		}
		actions = append(actions, action)
	}

	return func(ctx context.Context, m domainwf.StateQuery, t domainwf.Transition) domainwf.Release {
		releases := make([]domainwf.Release, 0, len(actions))

		// A panicking action never hands its releases to the machine, so the
		// work started by the actions before it is released here
		defer func() {
			if rec := recover(); rec != nil {
				releaseAll(releases)
				panic(rec)
			}
		}()

		for _, action := range actions {
			if release := action(ctx, m, t); release != nil {
				releases = append(releases, release)
			}
		}
		if len(releases) == 0 {
			return nil
		}
		return func() { releaseAll(releases) }
	}, nil
}

// releaseAll runs release handles in reverse acquisition order
func releaseAll(releases []domainwf.Release) {
	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}

// Exit composes the named exit actions into one
func (h *Hooks) Exit(names ...string) (domainwf.ExitAction, error) {
	if len(names) == 0 {
		return nil, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	actions := make([]domainwf.ExitAction, 0, len(names))
	for _, name := range names {
		action, ok := h.exit[name]
		if !ok {
			return nil, fmt.Errorf("unknown exit hook %q (known: %v)", name, sortedKeys(h.exit))
		}
		actions = append(actions, action)
	}

	return func(ctx context.Context, m domainwf.StateQuery, t domainwf.Transition) {
		for _, action := range actions {
			action(ctx, m, t)
		}
	}, nil
}

// Guard returns the named guard. An empty name means no guard.
func (h *Hooks) Guard(name string) (domainwf.GuardFunc, error) {
	if name == "" {
		return nil, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	guard, ok := h.guards[name]
	if !ok {
		return nil, fmt.Errorf("unknown guard %q (known: %v)", name, sortedKeys(h.guards))
	}
	return guard, nil
}

func announceEntry(deps HookDeps) domainwf.EntryAction {
	return func(ctx context.Context, m domainwf.StateQuery, t domainwf.Transition) domainwf.Release {
		deps.Logger.Info("Entered state",
			zap.String("workflow", deps.Workflow),
			zap.String("state", t.Destination.String()),
			zap.String("trigger", t.Trigger.String()))
		publishHookEvent(ctx, deps, event.TypeStateEntered, t.Destination, t)
		return nil
	}
}

func announceExit(deps HookDeps) domainwf.ExitAction {
	return func(ctx context.Context, m domainwf.StateQuery, t domainwf.Transition) {
		deps.Logger.Info("Exited state",
			zap.String("workflow", deps.Workflow),
			zap.String("state", t.Source.String()),
			zap.String("trigger", t.Trigger.String()))
		publishHookEvent(ctx, deps, event.TypeStateExited, t.Source, t)
	}
}

// styleCopReminder nags on every interval while the state is current.
// Ticks are published asynchronously so a slow subscriber cannot hold up the
// ticker; without a dispatcher the hook logs the reminder itself.
func styleCopReminder(deps HookDeps) domainwf.EntryAction {
	return func(ctx context.Context, m domainwf.StateQuery, t domainwf.Transition) domainwf.Release {
		state := t.Destination
		correlationID := CorrelationID(ctx)
		var tick int64

		stop := worker.Every(ctx, deps.ReminderInterval, func(ctx context.Context) {
			tick++

			if deps.Dispatcher == nil {
				deps.Logger.Info(StyleCopReminderMessage,
					zap.String("workflow", deps.Workflow),
					zap.String("state", state.String()),
					zap.Int64("tick", tick))
				return
			}

			evt := event.NewEventWithCorrelation(event.TypeReminderDue, deps.Workflow, map[string]interface{}{
				event.KeyState:   state.String(),
				event.KeyMessage: StyleCopReminderMessage,
			}, correlationID).WithPayload(event.KeyTick, tick)
			deps.Dispatcher.DispatchAsync(ctx, evt)
		}, deps.Logger)

		return domainwf.Release(stop)
	}
}

func manualOnly(ctx context.Context) bool {
	switch Source(ctx) {
	case SourceManual, SourceHTTP:
		return true
	default:
		return false
	}
}

func publishHookEvent(ctx context.Context, deps HookDeps, eventType event.Type, state domainwf.StateID, t domainwf.Transition) {
	if deps.Dispatcher == nil {
		return
	}

	evt := event.NewEventWithCorrelation(eventType, deps.Workflow, map[string]interface{}{
		event.KeyState:   state.String(),
		event.KeyTrigger: t.Trigger.String(),
	}, CorrelationID(ctx))

	if err := deps.Dispatcher.Dispatch(ctx, evt); err != nil {
		deps.Logger.Error("Failed to publish state event",
			zap.String("event_type", eventType.String()),
			zap.Error(err))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
