package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWorker struct {
	name     string
	startErr error
	stopErr  error
	log      *[]string
	mu       *sync.Mutex
}

func (w *recordingWorker) record(entry string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	*w.log = append(*w.log, entry)
}

func (w *recordingWorker) Start(ctx context.Context) error {
	w.record("start " + w.name)
	return w.startErr
}

func (w *recordingWorker) Stop() error {
	w.record("stop " + w.name)
	return w.stopErr
}

func (w *recordingWorker) Name() string { return w.name }

func newRecordingWorkers(names ...string) ([]*recordingWorker, *[]string) {
	log := &[]string{}
	mu := &sync.Mutex{}
	workers := make([]*recordingWorker, 0, len(names))
	for _, name := range names {
		workers = append(workers, &recordingWorker{name: name, log: log, mu: mu})
	}
	return workers, log
}

func TestWorkerManager_StartStopOrder(t *testing.T) {
	workers, log := newRecordingWorkers("runner", "timers")
	manager := NewWorkerManager(zap.NewNop())
	for _, w := range workers {
		manager.Register(w)
	}

	require.NoError(t, manager.StartAll(context.Background()))
	assert.True(t, manager.IsRunning())
	assert.Equal(t, 2, manager.GetWorkerCount())

	require.NoError(t, manager.StopAll())
	assert.False(t, manager.IsRunning())

	assert.Equal(t, []string{"start runner", "start timers", "stop timers", "stop runner"}, *log)
}

func TestWorkerManager_StartTwice(t *testing.T) {
	manager := NewWorkerManager(zap.NewNop())
	require.NoError(t, manager.StartAll(context.Background()))
	assert.Error(t, manager.StartAll(context.Background()))
	require.NoError(t, manager.StopAll())
}

func TestWorkerManager_StartFailureStopsStartedWorkers(t *testing.T) {
	workers, log := newRecordingWorkers("runner", "timers", "http")
	workers[1].startErr = errors.New("boom")

	manager := NewWorkerManager(zap.NewNop())
	for _, w := range workers {
		manager.Register(w)
	}

	err := manager.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timers")
	assert.False(t, manager.IsRunning())
	assert.Equal(t, []string{"start runner", "start timers", "stop runner"}, *log)
}

func TestWorkerManager_StopErrorsAreCounted(t *testing.T) {
	workers, _ := newRecordingWorkers("runner", "timers")
	workers[0].stopErr = errors.New("stuck")

	manager := NewWorkerManager(zap.NewNop())
	for _, w := range workers {
		manager.Register(w)
	}

	require.NoError(t, manager.StartAll(context.Background()))
	err := manager.StopAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 workers")
}

func TestWorkerManager_StopWhenNotRunning(t *testing.T) {
	manager := NewWorkerManager(zap.NewNop())
	assert.NoError(t, manager.StopAll())
}
