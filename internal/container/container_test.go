package container

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/issueflow/internal/application/workflow"
	"github.com/garyjia/issueflow/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "journal.db")
	cfg.Server.Enabled = false
	cfg.Workflow.Autoplay = false
	cfg.Workflow.ReminderInterval = time.Hour
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Workflow.Name = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_StartFireAndClose(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())

	res := c.Runner().FireSync(context.Background(), workflow.TriggerStartDevelopment, workflow.SourceManual)
	require.NoError(t, res.Err)
	assert.Equal(t, workflow.StateInDevelopment, res.State)

	records, err := c.History().ListByWorkflow(context.Background(), "issue", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "StartDevelopment", records[0].Trigger)

	health := c.Health()
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.Contains(t, health.Components["workflow"].Message, "InDevelopment")

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestContainer_AutoplayReachesClosed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.Autoplay = true
	cfg.Workflow.DevelopmentDuration = 10 * time.Millisecond
	cfg.Workflow.SimulateTestPassing = true

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	require.Eventually(t, func() bool {
		return c.Runner().Snapshot().State == workflow.StateClosed
	}, 2*time.Second, 5*time.Millisecond)

	total, err := c.History().CountByWorkflow(context.Background(), "issue")
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}

func TestContainer_JournalDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Enabled = false

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Nil(t, c.History())
	assert.True(t, c.Health().Overall)
	assert.Equal(t, "disabled", c.Health().Components["database"].Message)
}

func TestContainer_DefinitionFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.DefinitionPath = filepath.Join("..", "..", "configs", "issue_workflow.yaml")

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Equal(t, workflow.StateReadyForDevelopment, c.Runner().Snapshot().State)
}

func TestContainer_BadDefinitionFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.DefinitionPath = filepath.Join(t.TempDir(), "missing.yaml")

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Error(t, c.Start(context.Background()))
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("a", 1, 2, "skipped", "b", "x", "dangling")
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].Key)
	assert.Equal(t, "b", fields[1].Key)
}

func TestProvideDispatcher_LogsReminderTicks(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	disp, err := ProvideDispatcher(zap.New(core))
	require.NoError(t, err)
	defer disp.Close()

	evt := event.NewEvent(event.TypeReminderDue, "issue", map[string]interface{}{
		event.KeyState:   "InDevelopment",
		event.KeyMessage: workflow.StyleCopReminderMessage,
	}).WithPayload(event.KeyTick, int64(3))
	require.NoError(t, disp.Dispatch(context.Background(), evt))

	reminders := logs.FilterMessage(workflow.StyleCopReminderMessage).All()
	require.Len(t, reminders, 1)
	fields := reminders[0].ContextMap()
	assert.Equal(t, "InDevelopment", fields["state"])
	assert.Equal(t, int64(3), fields["tick"])
}
