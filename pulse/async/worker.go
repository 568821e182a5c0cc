package async

import (
	"context"
	"database/sql"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/db"
	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/metrics"
)

const (
	// MaxOrphanedJobsToRecover limits how many jobs left running by a
	// previous process are requeued on start
	MaxOrphanedJobsToRecover = 1000

	stopTimeout = 30 * time.Second
)

// pulseLogger wraps zap.SugaredLogger with markers for pool lifecycle events
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an opening event at DEBUG level
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw("✿ "+msg, keysAndValues...)
}

// Closing logs a closing event at WARN level
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw("❀ "+msg, keysAndValues...)
}

// JobExecutor runs a dequeued job. HandlerRegistry is the production executor.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers         int           `json:"workers"`          // Number of concurrent workers
	PollInterval    time.Duration `json:"poll_interval"`    // How often idle workers check for new jobs
	JobTimeout      time.Duration `json:"job_timeout"`      // Hard limit for one job, zero for none
	CleanupInterval time.Duration `json:"cleanup_interval"` // How often finished jobs are purged, zero disables
	ResultTTL       time.Duration `json:"result_ttl"`       // Age after which finished jobs are purged
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:         am.DefaultWorkers,
		PollInterval:    time.Second,
		JobTimeout:      am.DefaultJobTimeout * time.Second,
		CleanupInterval: time.Hour,
		ResultTTL:       am.DefaultResultTTL * time.Second,
	}
}

// WorkerPoolConfigFrom derives the pool configuration from the harvester config.
func WorkerPoolConfigFrom(cfg *am.Config) WorkerPoolConfig {
	poolCfg := DefaultWorkerPoolConfig()
	if cfg == nil {
		return poolCfg
	}
	if cfg.Pulse.Workers > 0 {
		poolCfg.Workers = cfg.Pulse.Workers
	}
	if cfg.Pulse.PollIntervalMS > 0 {
		poolCfg.PollInterval = time.Duration(cfg.Pulse.PollIntervalMS) * time.Millisecond
	}
	if cfg.Pulse.JobTimeoutSeconds > 0 {
		poolCfg.JobTimeout = time.Duration(cfg.Pulse.JobTimeoutSeconds) * time.Second
	}
	if ttl := cfg.ResultTTL(); ttl > 0 {
		poolCfg.ResultTTL = ttl
	}
	return poolCfg
}

// WorkerPool manages a pool of workers that process queued jobs
type WorkerPool struct {
	queue      *Queue
	registry   *HandlerRegistry
	executor   JobExecutor
	poolConfig WorkerPoolConfig
	parentCtx  context.Context // Parent context from which worker context is derived
	ctx        context.Context
	cancel     context.CancelFunc
	wg         *conc.WaitGroup
	logger     pulseLogger
	mu         sync.Mutex

	activeWorkers int
	jobsProcessed int
}

// NewWorkerPool creates a worker pool executing jobs through registry.
// Cancelling ctx stops the workers the same way Stop does.
func NewWorkerPool(ctx context.Context, database *sql.DB, poolCfg WorkerPoolConfig, registry *HandlerRegistry, log *zap.SugaredLogger) *WorkerPool {
	if registry == nil {
		registry = NewHandlerRegistry()
	}
	if poolCfg.Workers <= 0 {
		poolCfg.Workers = 1
	}
	if poolCfg.PollInterval <= 0 {
		poolCfg.PollInterval = time.Second
	}
	if log == nil {
		log = logger.Logger
	}

	workerCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		queue:      NewQueue(database),
		registry:   registry,
		executor:   registry,
		poolConfig: poolCfg,
		parentCtx:  ctx,
		ctx:        workerCtx,
		cancel:     cancel,
		wg:         conc.NewWaitGroup(),
		logger:     pulseLogger{log.Named("pulse")},
	}
}

// Start recovers orphaned jobs and starts the workers.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.wg = conc.NewWaitGroup()
		wp.logger.Starting("Recreated worker context after previous shutdown")
	default:
	}
	wg := wp.wg
	wp.mu.Unlock()

	if err := wp.recoverOrphanedJobs(); err != nil {
		wp.logger.Warnw("Failed to recover orphaned jobs", logger.FieldError, err)
	}

	for i := 0; i < wp.poolConfig.Workers; i++ {
		id := i
		wg.Go(func() { wp.worker(id) })
	}

	if wp.poolConfig.CleanupInterval > 0 {
		wg.Go(wp.cleanupLoop)
	}

	wp.logger.Starting("Worker pool started",
		"workers", wp.poolConfig.Workers,
		"handlers", wp.registry.Names())
}

// recoverOrphanedJobs requeues jobs still marked running, which only
// happens when a previous process died mid-job.
func (wp *WorkerPool) recoverOrphanedJobs() error {
	runningStatus := JobStatusRunning
	orphaned, err := wp.queue.ListJobs(&runningStatus, MaxOrphanedJobsToRecover)
	if err != nil {
		return errors.Wrap(err, "failed to list running jobs")
	}

	for _, job := range orphaned {
		job.Requeue()
		if err := wp.queue.UpdateJob(job); err != nil {
			wp.logger.Warnw("Failed to recover orphaned job", logger.FieldJobID, job.ID, logger.FieldError, err)
			continue
		}
		wp.logger.Starting("Recovered orphaned job", logger.FieldJobID, job.ID, logger.FieldHandler, job.HandlerName)
	}
	return nil
}

// Stop cancels the workers and waits for them to exit.
// Jobs interrupted by the cancellation are requeued. Stop gives up
// waiting after 30 seconds.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	cancel, wg := wp.cancel, wp.wg
	wp.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Infow("❀ Worker pool stopped - all workers exited cleanly")
	case <-time.After(stopTimeout):
		wp.logger.Closing("Worker pool stop timed out - workers may still be running", "timeout", stopTimeout)
	}
}

func (wp *WorkerPool) context() context.Context {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.ctx
}

// worker processes jobs from the queue until the pool is stopped
func (wp *WorkerPool) worker(id int) {
	ctx := wp.context()

	ticker := time.NewTicker(wp.poolConfig.PollInterval)
	defer ticker.Stop()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0
	const maxConsecutiveErrors = 5
	errorCount := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain the queue before waiting for the next tick
		for {
			processed, err := wp.processNextJob(ctx)
			if err != nil {
				if ctx.Err() != nil || db.IsDatabaseClosed(err) {
					return
				}
				errorCount++
				wp.logger.Errorw("Worker error processing job",
					"worker_id", id,
					logger.FieldError, err,
					"consecutive_errors", errorCount)

				if errorCount >= maxConsecutiveErrors {
					wait := policy.NextBackOff()
					wp.logger.Warnw("Worker backing off due to consecutive errors",
						"worker_id", id,
						"backoff", wait,
						"consecutive_errors", errorCount)
					select {
					case <-ctx.Done():
						return
					case <-time.After(wait):
					}
				}
				break
			}

			if errorCount > 0 {
				wp.logger.Infow("Worker recovered from errors",
					"worker_id", id,
					"previous_error_count", errorCount)
				errorCount = 0
				policy.Reset()
			}
			if !processed || ctx.Err() != nil {
				break
			}
		}
	}
}

// processNextJob dequeues one job and runs it to a final state.
// It reports whether a job was found.
func (wp *WorkerPool) processNextJob(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	job, err := wp.queue.Dequeue()
	if err != nil {
		return false, errors.Wrap(err, "failed to dequeue job")
	}
	if job == nil {
		return false, nil
	}

	wp.mu.Lock()
	wp.activeWorkers++
	wp.jobsProcessed++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
		wp.refreshJobMetrics()
	}()

	log := wp.logger.With(logger.FieldJobID, job.ID, logger.FieldHandler, job.HandlerName)
	log.Infow("Job started", logger.FieldSource, job.Source)
	start := time.Now()

	jobCtx := logger.WithJobID(ctx, job.ID)
	var cancel context.CancelFunc
	if wp.poolConfig.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(jobCtx, wp.poolConfig.JobTimeout)
	} else {
		jobCtx, cancel = context.WithCancel(jobCtx)
	}
	defer cancel()

	execErr := wp.execute(jobCtx, job)

	if execErr != nil && ctx.Err() != nil {
		// Shutdown interrupted the job: give it back to the queue
		wp.logger.Closing("Job interrupted by shutdown, re-queuing", logger.FieldJobID, job.ID)
		job.Requeue()
		if err := wp.queue.UpdateJob(job); err != nil {
			log.Errorw("Failed to re-queue interrupted job", logger.FieldError, err)
		}
		return true, nil
	}

	duration := time.Since(start)
	if execErr != nil {
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			execErr = errors.Mark(errors.Wrapf(execErr, "job exceeded %s", wp.poolConfig.JobTimeout), errors.ErrTimeout)
		}
		classified := ClassifyError(job.HandlerName, execErr)
		log.Warnw("Job failed",
			logger.FieldError, execErr,
			"error_code", classified.Code,
			"transient", classified.Transient,
			logger.FieldDurationMS, duration.Milliseconds())
		return true, wp.queue.FailJob(job, execErr)
	}

	log.Infow("Job completed", logger.FieldDurationMS, duration.Milliseconds())
	return true, wp.queue.CompleteJob(job)
}

// execute runs the job, turning a handler panic into an error.
func (wp *WorkerPool) execute(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Errorw("Job handler panicked",
				logger.FieldJobID, job.ID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = errors.Newf("handler %s panicked: %v", job.HandlerName, r)
		}
	}()
	return wp.executor.Execute(ctx, job)
}

// cleanupLoop periodically purges finished jobs older than the result TTL
func (wp *WorkerPool) cleanupLoop() {
	ctx := wp.context()
	ticker := time.NewTicker(wp.poolConfig.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := wp.queue.Cleanup(ctx, wp.poolConfig.ResultTTL)
			if err != nil {
				if ctx.Err() == nil {
					wp.logger.Warnw("Job cleanup failed", logger.FieldError, err)
				}
				continue
			}
			if removed > 0 {
				wp.logger.Infow("Removed expired jobs", logger.FieldCount, removed)
				wp.refreshJobMetrics()
			}
		}
	}
}

func (wp *WorkerPool) refreshJobMetrics() {
	stats, err := wp.queue.GetStats()
	if err != nil {
		wp.logger.Debugw("Failed to refresh job metrics", logger.FieldError, err)
		return
	}
	metrics.SetJobCounts(stats.StatusCounts())
}

// GetQueue returns the job queue (useful for enqueuing jobs)
func (wp *WorkerPool) GetQueue() *Queue {
	return wp.queue
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.poolConfig.Workers
}

// Registry returns the handler registry. Register handlers before Start:
//
//	pool := async.NewWorkerPool(ctx, db, async.WorkerPoolConfigFrom(cfg), nil, log)
//	pool.Registry().Register(harvest.NewHandler(...))
//	pool.Start()
func (wp *WorkerPool) Registry() *HandlerRegistry {
	return wp.registry
}

// ActiveWorkers returns how many workers are executing a job right now.
func (wp *WorkerPool) ActiveWorkers() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.activeWorkers
}

// String describes the pool for logs and the CLI.
func (wp *WorkerPool) String() string {
	return fmt.Sprintf("WorkerPool{workers: %d, poll: %s, timeout: %s}",
		wp.poolConfig.Workers, wp.poolConfig.PollInterval, wp.poolConfig.JobTimeout)
}
