package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Every runs fn on a ticker until the returned stop function is called or ctx
// is cancelled. Stop blocks until the ticking goroutine has exited, so fn is
// never invoked after stop returns. Stop is safe to call more than once.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context), logger *zap.Logger) func() {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				// Re-check so a tick racing with stop is dropped
				if runCtx.Err() != nil {
					return
				}
				runSafely(runCtx, fn, logger)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
		<-done
	}
}

// runSafely keeps a panicking callback from killing the ticker goroutine
func runSafely(ctx context.Context, fn func(ctx context.Context), logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("Periodic action panic recovered", zap.Any("panic", r))
		}
	}()
	fn(ctx)
}
