package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/issueflow/internal/application/dispatcher"
	"github.com/garyjia/issueflow/internal/domain/entity"
	"github.com/garyjia/issueflow/internal/domain/event"
	domainwf "github.com/garyjia/issueflow/internal/domain/workflow"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memHistory struct {
	mu        sync.Mutex
	records   []*entity.TransitionRecord
	createErr error
}

func (m *memHistory) Create(ctx context.Context, record *entity.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	record.ID = int64(len(m.records) + 1)
	m.records = append(m.records, record)
	return nil
}

func (m *memHistory) ListByWorkflow(ctx context.Context, workflow string, limit int) ([]*entity.TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.TransitionRecord
	for _, r := range m.records {
		if r.Workflow == workflow {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memHistory) CountByWorkflow(ctx context.Context, workflow string) (int64, error) {
	records, _ := m.ListByWorkflow(ctx, workflow, 0)
	return int64(len(records)), nil
}

func (m *memHistory) all() []*entity.TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entity.TransitionRecord(nil), m.records...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *eventRecorder) handle(ctx context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *eventRecorder) ofType(t event.Type) []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*event.Event
	for _, evt := range r.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

// settledReminders waits out reminder deliveries already in flight on the
// async dispatcher and returns what was recorded
func settledReminders(r *eventRecorder) []*event.Event {
	time.Sleep(20 * time.Millisecond)
	return r.ofType(event.TypeReminderDue)
}

func newRecordingDispatcher() (dispatcher.Dispatcher, *eventRecorder) {
	d := dispatcher.NewDispatcher()
	rec := &eventRecorder{}
	d.SubscribeNamed(dispatcher.AllEvents, "recorder", rec.handle)
	return d, rec
}

// issueHarness is a running issue workflow with recording collaborators
type issueHarness struct {
	runner  *Runner
	history *memHistory
	events  *eventRecorder
}

func startIssueRunner(t *testing.T, deps HookDeps) *issueHarness {
	t.Helper()

	d, rec := newRecordingDispatcher()
	deps.Workflow = IssueWorkflowName
	deps.Dispatcher = d
	deps.Logger = zap.NewNop()

	machine, err := BuildIssueWorkflow(NewIssueHooks(deps))
	require.NoError(t, err)

	history := &memHistory{}
	runner := NewRunner(IssueWorkflowName, machine, zap.NewNop(),
		WithDispatcher(d),
		WithHistory(history))
	require.NoError(t, runner.Start(context.Background()))
	t.Cleanup(func() { runner.Stop() })

	return &issueHarness{runner: runner, history: history, events: rec}
}

func fireAll(t *testing.T, r *Runner, triggers ...domainwf.Trigger) FireResult {
	t.Helper()
	var res FireResult
	for _, trigger := range triggers {
		res = r.FireSync(context.Background(), trigger, SourceManual)
		require.NoError(t, res.Err, "trigger %s", trigger)
	}
	return res
}

var errBoom = errors.New("boom")
