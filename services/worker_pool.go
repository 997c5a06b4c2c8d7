// Package services provides business logic implementations.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/TripCarbon/trip-carbon-backend/config"
	"github.com/TripCarbon/trip-carbon-backend/logger"
)

// Job represents a unit of work for the worker pool.
type Job struct {
	// Name is a descriptive name for logging purposes
	Name string
	// Execute is the function that performs the work
	Execute func(ctx context.Context) error
}

// WorkerPool manages a bounded set of workers processing jobs from a queue.
// Submission blocks while the queue is full, which throttles the producer to
// the speed of the writers. The first job failure cancels the pool's context
// so remaining jobs stop instead of loading more data after a fatal row.
type WorkerPool struct {
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger
	metrics  *workerPoolMetrics
	config   config.ETLConfig
	mu       sync.Mutex
	running  bool
	firstErr error
}

// workerPoolMetrics holds Prometheus metrics for the worker pool.
type workerPoolMetrics struct {
	queueDepth    prometheus.Gauge
	activeWorkers prometheus.Gauge
	completedJobs prometheus.Counter
	errorCount    prometheus.Counter
	jobDuration   prometheus.Histogram
}

// Singleton pattern for metrics (avoid double registration in tests).
var (
	wpMetricsInstance *workerPoolMetrics
	wpMetricsOnce     sync.Once
	wpDefaultRegistry = prometheus.DefaultRegisterer
)

// newWorkerPoolMetrics initializes and registers Prometheus metrics using singleton pattern.
func newWorkerPoolMetrics() *workerPoolMetrics {
	wpMetricsOnce.Do(func() {
		wpMetricsInstance = &workerPoolMetrics{
			queueDepth: promauto.With(wpDefaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "tripetl_pool_queue_depth",
				Help: "Current number of batches waiting in queue",
			}),
			activeWorkers: promauto.With(wpDefaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "tripetl_pool_active_workers",
				Help: "Current number of workers processing batches",
			}),
			completedJobs: promauto.With(wpDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "tripetl_pool_completed_batches_total",
				Help: "Total number of successfully processed batches",
			}),
			errorCount: promauto.With(wpDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "tripetl_pool_errors_total",
				Help: "Total number of batch execution errors",
			}),
			jobDuration: promauto.With(wpDefaultRegistry).NewHistogram(prometheus.HistogramOpts{
				Name:    "tripetl_pool_batch_duration_seconds",
				Help:    "Time taken to enrich and write batches",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}),
		}
	})
	return wpMetricsInstance
}

// resetWorkerPoolMetricsForTesting resets the metrics singleton for test isolation.
// This should only be called from tests.
func resetWorkerPoolMetricsForTesting() {
	reg := prometheus.NewRegistry()
	wpDefaultRegistry = reg
	wpMetricsInstance = nil
	wpMetricsOnce = sync.Once{}
}

// NewWorkerPool creates a new worker pool. The pool's context derives from
// ctx, so cancelling the run cancels every in-flight job. The pool must be
// started with Start() before submitting jobs.
func NewWorkerPool(ctx context.Context, cfg config.ETLConfig) *WorkerPool {
	poolCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		jobQueue: make(chan Job, cfg.QueueSize),
		ctx:      poolCtx,
		cancel:   cancel,
		logger:   logger.GetLogger().Named("worker-pool"),
		metrics:  newWorkerPoolMetrics(),
		config:   cfg,
	}
}

// Start launches the worker goroutines. Calling Start() multiple times is safe
// and will only start workers once.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		wp.logger.Warn("Worker pool already running")
		return
	}
	wp.running = true

	wp.logger.Debugw("Starting worker pool",
		"maxWorkers", wp.config.MaxWorkers,
		"queueSize", wp.config.QueueSize)

	for i := 0; i < wp.config.MaxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// worker is the main loop for each worker goroutine.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debugw("Worker stopping (run cancelled)", "workerId", id)
			return
		case job, ok := <-wp.jobQueue:
			if !ok {
				wp.logger.Debugw("Worker stopping (queue drained)", "workerId", id)
				return
			}
			wp.executeJob(id, job)
		}
	}
}

// executeJob runs a single job with metrics and error handling.
func (wp *WorkerPool) executeJob(workerID int, job Job) {
	wp.metrics.activeWorkers.Inc()
	wp.metrics.queueDepth.Dec()
	defer wp.metrics.activeWorkers.Dec()

	start := time.Now()

	if err := job.Execute(wp.ctx); err != nil {
		wp.logger.Errorw("Job execution failed",
			"job", job.Name,
			"workerId", workerID,
			"error", err,
			"duration", time.Since(start))
		wp.metrics.errorCount.Inc()
		wp.recordError(err)
		return
	}

	wp.metrics.jobDuration.Observe(time.Since(start).Seconds())
	wp.metrics.completedJobs.Inc()
}

// recordError keeps the first job failure and cancels the pool so queued and
// in-flight jobs stop.
func (wp *WorkerPool) recordError(err error) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.firstErr == nil {
		wp.firstErr = err
		wp.cancel()
	}
}

// Err returns the first job failure, or nil.
func (wp *WorkerPool) Err() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.firstErr
}

// Submit queues a job, blocking while the queue is full. It fails once the
// pool's context is cancelled, either because a prior job failed or because
// the run was cancelled, so producers stop reading as soon as the run is
// doomed. This method is safe to call from multiple goroutines.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case wp.jobQueue <- job:
		wp.metrics.queueDepth.Inc()
		return nil
	case <-wp.ctx.Done():
		if err := wp.Err(); err != nil {
			return err
		}
		return wp.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs, waits for already queued jobs to finish and
// returns the first job failure, if any. The context bounds how long to wait
// for the drain. After a job failure the pool's context is already cancelled,
// so workers exit without draining the queue.
func (wp *WorkerPool) Shutdown(ctx context.Context) error {
	wp.mu.Lock()
	if !wp.running {
		firstErr := wp.firstErr
		wp.mu.Unlock()
		return firstErr
	}
	wp.running = false
	wp.mu.Unlock()

	close(wp.jobQueue)

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		wp.logger.Warnw("Worker pool shutdown timed out", "error", ctx.Err())
		return ctx.Err()
	}

	wp.cancel()
	return wp.Err()
}

// QueueDepth returns the current number of jobs waiting in the queue.
func (wp *WorkerPool) QueueDepth() int {
	return len(wp.jobQueue)
}

// IsRunning returns whether the worker pool is currently running.
func (wp *WorkerPool) IsRunning() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.running
}
