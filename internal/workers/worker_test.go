package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWorkerConfig(t *testing.T) {
	config := DefaultWorkerConfig("ingest")

	assert.Equal(t, "ingest", config.WorkerName)
	assert.Equal(t, 4, config.Concurrency)
	assert.Equal(t, 30*time.Second, config.ShutdownTimeout)
	assert.True(t, config.EnableRecovery)
}

func TestNewBaseWorker_ClampsConcurrency(t *testing.T) {
	worker := NewBaseWorker(WorkerConfig{WorkerName: "w", Concurrency: 0})

	assert.Equal(t, 1, worker.Config().Concurrency)
	assert.Equal(t, "w", worker.Name())
	assert.False(t, worker.IsRunning())
}

func TestBaseWorker_Stats(t *testing.T) {
	worker := NewBaseWorker(DefaultWorkerConfig("test-worker"))

	stats := worker.Stats()
	assert.Equal(t, "test-worker", stats.WorkerName)
	assert.Equal(t, int64(0), stats.JobsProcessed)
	assert.False(t, stats.IsRunning)
	assert.Zero(t, stats.Uptime)

	worker.setRunning(true)

	start := time.Now()
	time.Sleep(5 * time.Millisecond)
	worker.recordJob(start, nil)
	worker.recordJob(start, errors.New("boom"))

	stats = worker.Stats()
	assert.Equal(t, int64(2), stats.JobsProcessed)
	assert.Equal(t, int64(1), stats.JobsSucceeded)
	assert.Equal(t, int64(1), stats.JobsFailed)
	assert.Greater(t, stats.AverageProcessTime, time.Duration(0))
	assert.False(t, stats.LastJobTime.IsZero())
	assert.True(t, stats.IsRunning)
}

func TestBaseWorker_ConcurrentAccess(t *testing.T) {
	worker := NewBaseWorker(DefaultWorkerConfig("test-worker"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = errors.New("odd one out")
			}
			worker.recordJob(time.Now(), err)
		}(i)
		go func() {
			defer wg.Done()
			_ = worker.Stats()
		}()
	}
	wg.Wait()

	stats := worker.Stats()
	assert.Equal(t, int64(50), stats.JobsProcessed)
	assert.Equal(t, int64(25), stats.JobsSucceeded)
	assert.Equal(t, int64(25), stats.JobsFailed)
}

// ============================================================================
// Worker pool
// ============================================================================

type stubWorker struct {
	*BaseWorker
	startErr error
	stopErr  error
}

func newStubWorker(name string) *stubWorker {
	return &stubWorker{BaseWorker: NewBaseWorker(WorkerConfig{WorkerName: name})}
}

func (w *stubWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.setRunning(true)
	return nil
}

func (w *stubWorker) Stop(ctx context.Context) error {
	w.setRunning(false)
	return w.stopErr
}

func TestWorkerPool_StartStop(t *testing.T) {
	pool := NewWorkerPool()
	a, b := newStubWorker("a"), newStubWorker("b")
	pool.AddWorker(a)
	pool.AddWorker(b)

	require.NoError(t, pool.StartAll(context.Background()))
	assert.True(t, a.IsRunning())
	assert.True(t, b.IsRunning())
	assert.Equal(t, 2, pool.Count())

	require.NoError(t, pool.StopAll(context.Background()))
	assert.False(t, a.IsRunning())
	assert.False(t, b.IsRunning())

	stats := pool.GetAllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "a", stats[0].WorkerName)
}

func TestWorkerPool_Errors(t *testing.T) {
	t.Run("start", func(t *testing.T) {
		pool := NewWorkerPool()
		bad := newStubWorker("bad")
		bad.startErr = errors.New("cannot start")
		pool.AddWorker(bad)

		assert.EqualError(t, pool.StartAll(context.Background()), "cannot start")
	})

	t.Run("stop", func(t *testing.T) {
		pool := NewWorkerPool()
		bad := newStubWorker("bad")
		bad.stopErr = errors.New("cannot stop")
		pool.AddWorker(newStubWorker("ok"))
		pool.AddWorker(bad)

		assert.EqualError(t, pool.StopAll(context.Background()), "cannot stop")
	})
}

// ============================================================================
// Errors and recovery
// ============================================================================

func TestRecoverableJobProcessor(t *testing.T) {
	tests := []struct {
		name      string
		processor JobProcessor
		wantErr   string
		wantPanic bool
	}{
		{
			name:      "success",
			processor: func(ctx context.Context, job interface{}) error { return nil },
		},
		{
			name:      "error passes through",
			processor: func(ctx context.Context, job interface{}) error { return errors.New("failed") },
			wantErr:   "failed",
		},
		{
			name:      "string panic",
			processor: func(ctx context.Context, job interface{}) error { panic("boom") },
			wantErr:   "worker panic: boom",
			wantPanic: true,
		},
		{
			name:      "error panic",
			processor: func(ctx context.Context, job interface{}) error { panic(errors.New("bad state")) },
			wantErr:   "worker panic: bad state",
			wantPanic: true,
		},
		{
			name:      "other panic",
			processor: func(ctx context.Context, job interface{}) error { panic(42) },
			wantErr:   "worker panic: 42",
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RecoverableJobProcessor(tt.processor)(context.Background(), nil)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
			var panicErr *WorkerPanicError
			assert.Equal(t, tt.wantPanic, errors.As(err, &panicErr))
		})
	}
}

func TestWorkerError(t *testing.T) {
	cause := errors.New("connection refused")

	assert.Equal(t, "ingest:stop: connection refused", NewWorkerError("ingest", "stop", cause, "").Error())
	assert.Equal(t, "custom", NewWorkerError("ingest", "stop", cause, "custom").Error())
	assert.Equal(t, "ingest:start: unknown error", NewWorkerError("ingest", "start", nil, "").Error())
	assert.ErrorIs(t, NewWorkerError("ingest", "stop", cause, ""), cause)
}
