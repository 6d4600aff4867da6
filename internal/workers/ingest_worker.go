package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"shop-assistant/internal/models"
)

// ProductProcessor turns one product into stored propositions and returns how
// many were written
type ProductProcessor func(ctx context.Context, product models.Product) (int, error)

// IngestResult is the outcome for one product
type IngestResult struct {
	ProductID    string
	Propositions int
	Duration     time.Duration
	Err          error
}

// IngestWorker processes catalog products on a bounded number of goroutines
type IngestWorker struct {
	*BaseWorker
	process ProductProcessor
	logger  *zap.Logger

	jobs      chan models.Product
	results   chan IngestResult
	wg        sync.WaitGroup
	closeJobs sync.Once
}

func NewIngestWorker(config WorkerConfig, process ProductProcessor, logger *zap.Logger) *IngestWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestWorker{
		BaseWorker: NewBaseWorker(config),
		process:    process,
		logger:     logger.With(zap.String("worker", config.WorkerName)),
	}
}

// Start launches the processing goroutines. Results must be drained by the
// caller.
func (w *IngestWorker) Start(ctx context.Context) error {
	if w.IsRunning() {
		return NewWorkerError(w.Name(), "start", nil, "worker already running")
	}

	w.jobs = make(chan models.Product)
	w.results = make(chan IngestResult, w.config.Concurrency)
	w.closeJobs = sync.Once{}
	w.setRunning(true)
	w.logger.Info("Starting ingest worker", zap.Int("concurrency", w.config.Concurrency))

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx)
	}
	return nil
}

// Submit queues a product. It must not be called concurrently with Stop.
func (w *IngestWorker) Submit(ctx context.Context, product models.Product) error {
	if !w.IsRunning() {
		return NewWorkerError(w.Name(), "submit", nil, "worker not running")
	}
	select {
	case w.jobs <- product:
		return nil
	case <-ctx.Done():
		return NewWorkerError(w.Name(), "submit", ctx.Err(), "")
	}
}

// Results delivers one IngestResult per submitted product and is closed once
// the worker has stopped
func (w *IngestWorker) Results() <-chan IngestResult {
	return w.results
}

// Stop accepts no more products and waits for in-flight ones
func (w *IngestWorker) Stop(ctx context.Context) error {
	if !w.IsRunning() {
		return nil
	}
	w.closeJobs.Do(func() { close(w.jobs) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(w.results)
		close(done)
	}()

	var timeout <-chan time.Time
	if w.config.ShutdownTimeout > 0 {
		timer := time.NewTimer(w.config.ShutdownTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
	case <-ctx.Done():
		return NewWorkerError(w.Name(), "stop", ctx.Err(), "")
	case <-timeout:
		return NewWorkerError(w.Name(), "stop", nil, "timed out waiting for in-flight products")
	}

	w.setRunning(false)
	stats := w.Stats()
	w.logger.Info("Ingest worker stopped",
		zap.Int64("succeeded", stats.JobsSucceeded),
		zap.Int64("failed", stats.JobsFailed))
	return nil
}

// Run ingests products and returns one result per product in completion order
func (w *IngestWorker) Run(ctx context.Context, products []models.Product) ([]IngestResult, error) {
	if err := w.Start(ctx); err != nil {
		return nil, err
	}

	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for _, p := range products {
			if err := w.Submit(ctx, p); err != nil {
				w.logger.Warn("Stopped submitting products", zap.Error(err))
				break
			}
		}
		if err := w.Stop(context.Background()); err != nil {
			w.logger.Error("Ingest worker did not stop cleanly", zap.Error(err))
		}
	}()

	results := make([]IngestResult, 0, len(products))
	for r := range w.results {
		results = append(results, r)
	}
	<-fed
	return results, ctx.Err()
}

func (w *IngestWorker) processJobs(ctx context.Context) {
	defer w.wg.Done()
	for product := range w.jobs {
		w.results <- w.processJob(ctx, product)
	}
}

func (w *IngestWorker) processJob(ctx context.Context, product models.Product) IngestResult {
	start := time.Now()
	result := IngestResult{ProductID: product.ID}

	if err := ctx.Err(); err != nil {
		result.Err = err
		w.recordJob(start, err)
		return result
	}

	processor := func(ctx context.Context, job interface{}) error {
		n, err := w.process(ctx, job.(models.Product))
		result.Propositions = n
		return err
	}
	if w.config.EnableRecovery {
		processor = RecoverableJobProcessor(processor)
	}

	result.Err = processor(ctx, product)
	result.Duration = time.Since(start)
	w.recordJob(start, result.Err)

	if result.Err != nil {
		w.logger.Warn("Product ingestion failed",
			zap.String("product_id", product.ID),
			zap.Error(result.Err))
	} else {
		w.logger.Debug("Product ingested",
			zap.String("product_id", product.ID),
			zap.Int("propositions", result.Propositions),
			zap.Duration("duration", result.Duration))
	}
	return result
}
