package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	domainwf "github.com/garyjia/issueflow/internal/domain/workflow"
	"github.com/garyjia/issueflow/internal/infrastructure/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// walk fires triggers directly on a machine, stopping at the first rejection
func walk(t *testing.T, m domainwf.StateMachine, triggers ...domainwf.Trigger) (domainwf.StateID, error) {
	t.Helper()
	m.Start(context.Background())
	defer m.Release()
	for _, trigger := range triggers {
		if _, err := m.Fire(context.Background(), trigger); err != nil {
			return m.State(), err
		}
	}
	return m.State(), nil
}

func quietHooks() *Hooks {
	return NewIssueHooks(HookDeps{ReminderInterval: time.Hour})
}

func TestDefinition_MatchesBuiltInIssueWorkflow(t *testing.T) {
	data, err := DefaultIssueDefinition().Marshal()
	require.NoError(t, err)

	def, err := ParseDefinition(data)
	require.NoError(t, err)
	assert.Equal(t, DefaultIssueDefinition(), def)

	paths := [][]domainwf.Trigger{
		{TriggerStartDevelopment, TriggerDevelopmentFinished, TriggerStartTest, TriggerTestFailed},
		{TriggerStartDevelopment, TriggerDevelopmentFinished, TriggerStartTest, TriggerTestPassed},
		{TriggerStartDevelopment, TriggerDevelopmentFinished, TriggerStartTest, TriggerTestPassed, TriggerStartDevelopment},
		{TriggerStartTest},
	}

	for _, path := range paths {
		fromYAML, err := def.Build(quietHooks())
		require.NoError(t, err)
		builtIn, err := BuildIssueWorkflow(quietHooks())
		require.NoError(t, err)

		gotState, gotErr := walk(t, fromYAML, path...)
		wantState, wantErr := walk(t, builtIn, path...)

		assert.Equal(t, wantState, gotState, "path %v", path)
		assert.Equal(t, wantErr != nil, gotErr != nil, "path %v", path)
		assert.Equal(t, builtIn.PermittedTriggers(), fromYAML.PermittedTriggers())
	}
}

func TestDefinition_LoadShippedConfig(t *testing.T) {
	def, err := LoadDefinition(filepath.Join("..", "..", "..", "configs", "issue_workflow.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultIssueDefinition(), def)
}

func TestDefinition_LoadMissingFile(t *testing.T) {
	_, err := LoadDefinition(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefinition_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", "initial: A\nstates: [{name: A}]\n"},
		{"missing initial", "name: x\nstates: [{name: A}]\n"},
		{"no states", "name: x\ninitial: A\n"},
		{"incomplete transition", "name: x\ninitial: A\nstates: [{name: A}]\ntransitions: [{from: A, to: A}]\n"},
		{"malformed", "name: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDefinition_BuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name: "unknown entry hook",
			yaml: "name: x\ninitial: A\nstates: [{name: A, on_entry: [nope]}]\n",
		},
		{
			name: "unknown exit hook",
			yaml: "name: x\ninitial: A\nstates: [{name: A, on_exit: [nope]}]\n",
		},
		{
			name: "unknown guard",
			yaml: "name: x\ninitial: A\nstates: [{name: A}]\ntransitions: [{from: A, trigger: t, to: A, guard: nope}]\n",
		},
		{
			name:    "duplicate state",
			yaml:    "name: x\ninitial: A\nstates: [{name: A}, {name: A}]\n",
			wantErr: domainwf.ErrDuplicateState,
		},
		{
			name:    "unknown destination",
			yaml:    "name: x\ninitial: A\nstates: [{name: A}]\ntransitions: [{from: A, trigger: t, to: B}]\n",
			wantErr: domainwf.ErrUnknownState,
		},
		{
			name:    "duplicate transition",
			yaml:    "name: x\ninitial: A\nstates: [{name: A}, {name: B}]\ntransitions: [{from: A, trigger: t, to: A}, {from: A, trigger: t, to: B}]\n",
			wantErr: domainwf.ErrDuplicateTransition,
		},
		{
			name:    "unknown initial",
			yaml:    "name: x\ninitial: Z\nstates: [{name: A}]\n",
			wantErr: domainwf.ErrUnknownState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := ParseDefinition([]byte(tt.yaml))
			require.NoError(t, err)

			_, err = def.Build(quietHooks())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDefinition_GuardsAreBoundByName(t *testing.T) {
	open := false
	hooks := quietHooks()
	hooks.RegisterGuard("gate_open", func(ctx context.Context) bool { return open })

	def, err := ParseDefinition([]byte(`
name: gated
initial: Waiting
states:
  - name: Waiting
  - name: Done
transitions:
  - from: Waiting
    trigger: Proceed
    to: Done
    guard: gate_open
`))
	require.NoError(t, err)

	m, err := def.Build(hooks)
	require.NoError(t, err)

	_, err = m.Fire(context.Background(), "Proceed")
	assert.ErrorIs(t, err, domainwf.ErrGuardFailed)
	assert.Equal(t, domainwf.StateID("Waiting"), m.State())

	open = true
	state, err := m.Fire(context.Background(), "Proceed")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateID("Done"), state)
}

func TestDefinition_WriteAndLoad(t *testing.T) {
	data, err := DefaultIssueDefinition().Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	def, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, IssueWorkflowName, def.Name)
}

func TestDefinition_SignoffRequiresManualTestPassed(t *testing.T) {
	def, err := LoadDefinition(filepath.Join("..", "..", "..", "configs", "issue_workflow_signoff.yaml"))
	require.NoError(t, err)

	machine, err := def.Build(quietHooks())
	require.NoError(t, err)

	runner := NewRunner(def.Name, machine, zap.NewNop())
	require.NoError(t, runner.Start(context.Background()))
	defer runner.Stop()

	fireAll(t, runner, TriggerStartDevelopment, TriggerDevelopmentFinished, TriggerStartTest)

	res := runner.FireSync(context.Background(), TriggerTestPassed, worker.SourceTimer)
	assert.ErrorIs(t, res.Err, domainwf.ErrGuardFailed)
	assert.Equal(t, StateInTest, res.State)

	res = runner.FireSync(context.Background(), TriggerTestPassed, SourceAutoplay)
	assert.ErrorIs(t, res.Err, domainwf.ErrGuardFailed)

	res = runner.FireSync(context.Background(), TriggerTestPassed, SourceHTTP)
	require.NoError(t, res.Err)
	assert.Equal(t, StateClosed, res.State)
}
