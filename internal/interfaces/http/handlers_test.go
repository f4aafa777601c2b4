package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/issueflow/internal/application/workflow"
	"github.com/garyjia/issueflow/internal/domain/entity"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type memHistory struct {
	mu      sync.Mutex
	records []*entity.TransitionRecord
	listErr error
}

func (m *memHistory) Create(ctx context.Context, record *entity.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = int64(len(m.records) + 1)
	m.records = append(m.records, record)
	return nil
}

func (m *memHistory) ListByWorkflow(ctx context.Context, name string, limit int) ([]*entity.TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := m.records
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]*entity.TransitionRecord(nil), out...), nil
}

func (m *memHistory) CountByWorkflow(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

type testEnv struct {
	server  *Server
	runner  *workflow.Runner
	history *memHistory
}

func newTestEnv(t *testing.T, health HealthFunc) *testEnv {
	t.Helper()

	machine, err := workflow.BuildIssueWorkflow(workflow.NewIssueHooks(workflow.HookDeps{
		Workflow:         workflow.IssueWorkflowName,
		ReminderInterval: time.Hour,
	}))
	require.NoError(t, err)

	history := &memHistory{}
	runner := workflow.NewRunner(workflow.IssueWorkflowName, machine, zap.NewNop(), workflow.WithHistory(history))
	require.NoError(t, runner.Start(context.Background()))
	t.Cleanup(func() { runner.Stop() })

	handlers := NewHandlers(runner, history, health, nopLogger{})
	return &testEnv{
		server:  NewServer(DefaultServerConfig(), handlers, nopLogger{}),
		runner:  runner,
		history: history,
	}
}

func (e *testEnv) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, resp := env.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	env := newTestEnv(t, func() (bool, interface{}) {
		return false, map[string]string{"database": "down"}
	})
	rec, resp := env.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, rec.Body.String(), "database")
}

func TestGetWorkflow(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, resp := env.do(t, http.MethodGet, "/api/workflow")
	require.Equal(t, http.StatusOK, rec.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "issue", data["workflow"])
	assert.Equal(t, "ReadyForDevelopment", data["state"])
	assert.Equal(t, []interface{}{"StartDevelopment"}, data["permitted_triggers"])
	assert.Equal(t, false, data["terminal"])
}

func TestFireTrigger_WaitReturnsNewState(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, resp := env.do(t, http.MethodPost, "/api/workflow/triggers/StartDevelopment?wait=true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "InDevelopment", data["state"])
	assert.NotEmpty(t, data["correlation_id"])
	assert.Equal(t, workflow.StateInDevelopment, env.runner.Snapshot().State)
}

func TestFireTrigger_WaitConflict(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, resp := env.do(t, http.MethodPost, "/api/workflow/triggers/TestPassed?wait=true")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "TestPassed")
	assert.Equal(t, workflow.StateReadyForDevelopment, env.runner.Snapshot().State)
}

func TestFireTrigger_Queued(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, resp := env.do(t, http.MethodPost, "/api/workflow/triggers/StartDevelopment")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["queued"])

	require.Eventually(t, func() bool {
		return env.runner.Snapshot().State == workflow.StateInDevelopment
	}, time.Second, time.Millisecond)
}

func TestFireTrigger_RunnerStopped(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.runner.Stop())

	rec, _ := env.do(t, http.MethodPost, "/api/workflow/triggers/StartDevelopment")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, trigger := range []string{"StartDevelopment", "DevelopmentFinished", "StartTest"} {
		rec, _ := env.do(t, http.MethodPost, "/api/workflow/triggers/"+trigger+"?wait=true")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, resp := env.do(t, http.MethodGet, "/api/workflow/history?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["total"])

	transitions := data["transitions"].([]interface{})
	require.Len(t, transitions, 2)
	last := transitions[1].(map[string]interface{})
	assert.Equal(t, "StartTest", last["trigger"])
	assert.Equal(t, "InTest", last["new_state"])
	assert.Equal(t, workflow.SourceHTTP, last["source"])
}

func TestListHistory_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.do(t, http.MethodGet, "/api/workflow/history?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.history.listErr = errors.New("disk gone")
	rec, _ = env.do(t, http.MethodGet, "/api/workflow/history")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListHistory_Disabled(t *testing.T) {
	env := newTestEnv(t, nil)
	handlers := NewHandlers(env.runner, nil, nil, nopLogger{})
	server := NewServer(DefaultServerConfig(), handlers, nopLogger{})

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workflow/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_StartStop(t *testing.T) {
	env := newTestEnv(t, nil)
	handlers := NewHandlers(env.runner, env.history, nil, nopLogger{})
	server := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, handlers, nopLogger{})

	require.NoError(t, server.Start(context.Background()))
	assert.Equal(t, "http-server", server.Name())

	resp, err := http.Get("http://" + server.ListenAddr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, server.Stop())
	assert.NoError(t, server.Stop())
}

func TestFireTrigger_RateLimited(t *testing.T) {
	env := newTestEnv(t, nil)
	handlers := NewHandlers(env.runner, env.history, nil, nopLogger{})
	server := NewServer(ServerConfig{TriggerRate: 0.001, TriggerBurst: 1}, handlers, nopLogger{})

	fire := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workflow/triggers/StartDevelopment", nil))
		return rec
	}

	assert.Equal(t, http.StatusAccepted, fire().Code)

	rec := fire()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Reads are never limited
	get := httptest.NewRecorder()
	server.Router().ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/workflow", nil))
	assert.Equal(t, http.StatusOK, get.Code)
}

func TestFireTrigger_WaitTimeout(t *testing.T) {
	machine, err := workflow.BuildIssueWorkflow(workflow.NewIssueHooks(workflow.HookDeps{ReminderInterval: time.Hour}))
	require.NoError(t, err)

	// Never started, so nothing applies the queued trigger
	runner := workflow.NewRunner(workflow.IssueWorkflowName, machine, zap.NewNop())
	handlers := NewHandlers(runner, nil, nil, nopLogger{}, WithWaitTimeout(20*time.Millisecond))
	server := NewServer(DefaultServerConfig(), handlers, nopLogger{})

	start := time.Now()
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workflow/triggers/StartDevelopment?wait=true", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Less(t, time.Since(start), time.Second)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, context.DeadlineExceeded.Error())
}

func TestWithWaitTimeout_IgnoresNonPositive(t *testing.T) {
	h := NewHandlers(nil, nil, nil, nopLogger{}, WithWaitTimeout(0))
	assert.Equal(t, defaultWaitTimeout, h.waitTimeout)

	h = NewHandlers(nil, nil, nil, nopLogger{}, WithWaitTimeout(time.Second))
	assert.Equal(t, time.Second, h.waitTimeout)
}
