package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/pulse/async"
)

// ErrSkipRun tells the ticker that a scheduled job has nothing to do this time.
// The run is recorded as skipped and the job moves to its next date.
var ErrSkipRun = errors.New("scheduled run skipped")

// PayloadFunc computes the async job payload when a scheduled job fires.
// Return ErrSkipRun (optionally wrapped) to skip the run.
type PayloadFunc func(ctx context.Context, scheduled *Job) ([]byte, error)

// Ticker periodically enqueues async jobs for due scheduled jobs
type Ticker struct {
	store           *Store
	execStore       *ExecutionStore
	queue           *async.Queue
	payloads        map[string]PayloadFunc
	interval        time.Duration
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	logger          *zap.SugaredLogger
	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
}

// TickerConfig contains configuration for the ticker
type TickerConfig struct {
	Interval time.Duration // How often to check for scheduled jobs (default: 1 second)
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval: 1 * time.Second,
	}
}

// NewTicker creates a ticker bound to ctx; cancelling ctx stops it.
func NewTicker(ctx context.Context, store *Store, queue *async.Queue, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}
	if log == nil {
		log = logger.Logger
	}
	tickerCtx, cancel := context.WithCancel(ctx)

	return &Ticker{
		store:     store,
		execStore: NewExecutionStore(store.DB()),
		queue:     queue,
		payloads:  make(map[string]PayloadFunc),
		interval:  cfg.Interval,
		ctx:       tickerCtx,
		cancel:    cancel,
		logger:    log.Named("schedule"),
	}
}

// SetPayloadFunc registers how payloads are computed for jobs routed to
// handlerName. Without one, the stored payload is used as is.
func (t *Ticker) SetPayloadFunc(handlerName string, fn PayloadFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.payloads[handlerName] = fn
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.logger.Infow("Schedule ticker started", "interval", t.interval)
}

// Stop gracefully stops the ticker
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.logger.Infow("Schedule ticker stopped")
}

// run is the main ticker loop
func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticksSinceStart++
			ticks := t.ticksSinceStart
			t.mu.Unlock()

			if err := t.CheckScheduledJobs(tickTime); err != nil && t.ctx.Err() == nil {
				t.logger.Warnw("Schedule tick error", logger.FieldError, err, "tick", ticks)
			}
		}
	}
}

// CheckScheduledJobs fires every scheduled job due at now
func (t *Ticker) CheckScheduledJobs(now time.Time) error {
	jobs, err := t.store.ListJobsDue(t.ctx, now)
	if err != nil {
		return errors.Wrap(err, "failed to list scheduled jobs")
	}

	for _, job := range jobs {
		if err := t.ctx.Err(); err != nil {
			return err
		}

		if err := t.executeScheduledJob(job, now); err != nil {
			t.logger.Errorw("Failed to execute scheduled job",
				logger.FieldJobID, job.ID,
				logger.FieldError, err)
			// Continue with other jobs even if one fails
		}
	}

	return nil
}

// nextRunAfter returns the first slot of the job's cadence strictly after now.
// Missed slots are coalesced into one run.
func nextRunAfter(scheduled *Job, now time.Time) time.Time {
	next := NextDate(scheduled.NextRunAt.Add(scheduled.Interval()), scheduled.Interval(), now)
	if !next.After(now) {
		next = next.Add(scheduled.Interval())
	}
	return next
}

// executeScheduledJob enqueues the async job for a due scheduled job,
// records the execution and moves the job to its next run.
func (t *Ticker) executeScheduledJob(scheduled *Job, now time.Time) error {
	startTime := time.Now()
	log := t.logger.With("scheduled_job_id", scheduled.ID, logger.FieldHandler, scheduled.HandlerName)

	execution := NewExecution(scheduled.ID, startTime)
	if err := t.execStore.CreateExecution(execution); err != nil {
		log.Errorw("Failed to create execution record", logger.FieldError, err)
		// Continue anyway - execution tracking is nice-to-have
	}

	asyncJobID, err := t.enqueueAsyncJob(scheduled)
	took := time.Since(startTime)
	durationMs := took.Milliseconds()

	switch {
	case errors.Is(err, ErrSkipRun):
		execution.finish(ExecutionStatusSkipped, startTime.Add(took), took)
		execution.ResultSummary = ptr(err.Error())
		log.Infow("Scheduled run skipped", "reason", err.Error())

	case err != nil:
		execution.finish(ExecutionStatusFailed, startTime.Add(took), took)
		execution.ErrorMessage = ptr(err.Error())
		log.Errorw("Scheduled run failed",
			"execution_id", execution.ID,
			logger.FieldDurationMS, durationMs,
			logger.FieldError, err)

	default:
		execution.finish(ExecutionStatusCompleted, startTime.Add(took), took)
		execution.AsyncJobID = &asyncJobID
		execution.ResultSummary = ptr("Enqueued async job " + asyncJobID)
	}

	nextRun := nextRunAfter(scheduled, now)
	if execution.Status == ExecutionStatusCompleted {
		log.Infow("Scheduled run enqueued",
			"async_job_id", asyncJobID,
			"execution_id", execution.ID,
			logger.FieldDurationMS, durationMs,
			"next_run_at", nextRun.Format(time.RFC3339))
	}

	if err := t.execStore.UpdateExecution(execution); err != nil {
		log.Errorw("Failed to update execution record",
			"execution_id", execution.ID,
			logger.FieldError, err)
	}

	if err := t.store.UpdateJobAfterExecution(scheduled.ID, now, execution.ID, nextRun); err != nil {
		return errors.Wrap(err, "failed to update scheduled job")
	}
	return nil
}

// enqueueAsyncJob creates the async job for a scheduled job, unless one
// from the same schedule is still queued or running.
func (t *Ticker) enqueueAsyncJob(scheduled *Job) (string, error) {
	if scheduled.HandlerName == "" {
		return "", errors.Newf("scheduled job %s missing handler_name", scheduled.ID)
	}

	source := scheduled.Source
	if source == "" {
		source = "schedule:" + scheduled.ID
	}

	existingJob, err := t.queue.FindActiveJobBySourceAndHandler(source, scheduled.HandlerName)
	if err != nil {
		return "", errors.Wrap(err, "failed to check for duplicate job")
	}
	if existingJob != nil {
		t.logger.Debugw("Skipping duplicate job",
			logger.FieldSource, source,
			logger.FieldHandler, scheduled.HandlerName,
			"existing_job_id", existingJob.ID,
			"existing_status", existingJob.Status)
		return existingJob.ID, nil
	}

	payload := scheduled.Payload
	t.mu.Lock()
	payloadFn := t.payloads[scheduled.HandlerName]
	t.mu.Unlock()
	if payloadFn != nil {
		if payload, err = payloadFn(t.ctx, scheduled); err != nil {
			return "", err
		}
	}

	description := fmt.Sprintf("%s (scheduled every %s)", scheduled.Name, scheduled.Interval())
	job, err := async.NewJobWithPayload(scheduled.HandlerName, source, description, payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to create async job")
	}

	if err := t.queue.Enqueue(job); err != nil {
		return "", errors.Wrap(err, "failed to enqueue job")
	}

	return job.ID, nil
}

// GetStats returns ticker statistics
func (t *Ticker) GetStats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticksSinceStart,
		"interval":          t.interval,
	}
}
