package workers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// LoopWorker runs one long-lived function, such as a file watcher, until
// stopped
type LoopWorker struct {
	*BaseWorker
	run    func(ctx context.Context) error
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewLoopWorker(config WorkerConfig, run func(ctx context.Context) error, logger *zap.Logger) *LoopWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoopWorker{
		BaseWorker: NewBaseWorker(config),
		run:        run,
		logger:     logger.With(zap.String("worker", config.WorkerName)),
	}
}

func (w *LoopWorker) Start(ctx context.Context) error {
	if w.IsRunning() {
		return NewWorkerError(w.Name(), "start", nil, "worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.setRunning(true)

	run := func(ctx context.Context, _ interface{}) error { return w.run(ctx) }
	if w.config.EnableRecovery {
		run = RecoverableJobProcessor(run)
	}

	go func() {
		defer close(w.done)
		start := time.Now()
		err := run(runCtx, nil)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		w.recordJob(start, err)
		if err != nil {
			w.logger.Error("Worker loop exited", zap.Error(err))
		}
		w.setRunning(false)
	}()
	return nil
}

func (w *LoopWorker) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return NewWorkerError(w.Name(), "stop", ctx.Err(), "")
	}
}
