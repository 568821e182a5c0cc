// Package server exposes the harvester over HTTP: harvest jobs, the
// periodic schedule, the catalog browser, a websocket job stream and
// Prometheus metrics.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/browser"
	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/harvest"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/pulse/async"
	"github.com/teranos/breg-harvester/pulse/schedule"
)

const (
	// ShutdownTimeout bounds how long Stop waits for server goroutines
	ShutdownTimeout = 10 * time.Second

	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// BrowserFactory builds the catalog browser for a configuration.
type BrowserFactory func(cfg *am.Config) (*browser.Browser, error)

// Deps are the collaborators of a HarvesterServer. Queue must be the
// queue the workers and the ticker use, otherwise the job stream misses
// their updates.
type Deps struct {
	Config     *am.Config
	DB         *sql.DB
	Queue      *async.Queue
	Pool       *async.WorkerPool // nil = jobs are queued but not run here
	Ticker     *schedule.Ticker  // nil = no periodic harvests
	NewBrowser BrowserFactory    // nil = browser endpoints answer 503
	Logger     *zap.SugaredLogger
	Now        func() time.Time
}

// HarvesterServer serves the harvester API
type HarvesterServer struct {
	cfg        atomic.Pointer[am.Config]
	queue      *async.Queue
	pool       *async.WorkerPool
	ticker     *schedule.Ticker
	schedules  *schedule.Store
	newBrowser BrowserFactory
	browser    atomic.Pointer[browser.Browser]
	now        func() time.Time
	logger     *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	clients map[*streamClient]bool

	handler    http.Handler
	httpServer *http.Server
	started    atomic.Bool
}

// New wires a server from deps. Background services start with Start.
func New(deps Deps) (*HarvesterServer, error) {
	if deps.Config == nil {
		return nil, errors.NewConfigurationError("server needs a configuration")
	}
	if deps.DB == nil {
		return nil, errors.NewConfigurationError("server needs a database")
	}
	log := deps.Logger
	if log == nil {
		log = logger.Logger
	}
	queue := deps.Queue
	if queue == nil {
		if deps.Pool != nil {
			queue = deps.Pool.GetQueue()
		} else {
			queue = async.NewQueue(deps.DB)
		}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &HarvesterServer{
		queue:      queue,
		pool:       deps.Pool,
		ticker:     deps.Ticker,
		schedules:  schedule.NewStore(deps.DB),
		newBrowser: deps.NewBrowser,
		now:        now,
		logger:     log.Named("server"),
		ctx:        ctx,
		cancel:     cancel,
		clients:    make(map[*streamClient]bool),
	}
	s.cfg.Store(deps.Config)
	s.rebuildBrowser(deps.Config)

	if s.ticker != nil {
		s.ticker.SetPayloadFunc(harvest.HandlerName, harvest.SchedulePayload(s.config))
	}

	s.handler = s.routes()
	return s, nil
}

// Handler returns the HTTP handler with middleware applied.
func (s *HarvesterServer) Handler() http.Handler {
	return s.handler
}

func (s *HarvesterServer) config() *am.Config {
	return s.cfg.Load()
}

func (s *HarvesterServer) currentBrowser() (*browser.Browser, error) {
	b := s.browser.Load()
	if b == nil {
		return nil, errors.Mark(errors.New("catalog browser is not configured"), errors.ErrServiceUnavailable)
	}
	return b, nil
}

func (s *HarvesterServer) rebuildBrowser(cfg *am.Config) {
	if s.newBrowser == nil {
		return
	}
	b, err := s.newBrowser(cfg)
	if err != nil {
		s.logger.Warnw("Catalog browser unavailable", logger.FieldError, err)
		return
	}
	s.browser.Store(b)
}

// SetConfig applies a reloaded configuration. The store, browser and
// schedule interval follow the new values; the listen address does not.
func (s *HarvesterServer) SetConfig(cfg *am.Config) {
	old := s.cfg.Swap(cfg)
	s.rebuildBrowser(cfg)

	if old == nil || !cfg.Scheduler.Enabled || cfg.Scheduler.IntervalSeconds == old.Scheduler.IntervalSeconds {
		return
	}
	if cfg.Scheduler.IntervalSeconds <= 0 {
		s.logger.Warnw("Ignoring non-positive scheduler interval", "interval_seconds", cfg.Scheduler.IntervalSeconds)
		return
	}
	err := s.schedules.UpdateJobInterval(cfg.Scheduler.JobID, cfg.Scheduler.IntervalSeconds)
	switch {
	case errors.IsNotFoundError(err):
		s.ensureSchedule(cfg)
	case err != nil:
		s.logger.Warnw("Failed to update scheduler interval", logger.FieldError, err)
	default:
		s.logger.Infow("Scheduler interval updated",
			"job_id", cfg.Scheduler.JobID,
			"interval_seconds", cfg.Scheduler.IntervalSeconds)
	}
}

// ensureSchedule creates the periodic harvest unless it already exists,
// so a restart keeps an interval set through the API.
func (s *HarvesterServer) ensureSchedule(cfg *am.Config) {
	if !cfg.Scheduler.Enabled {
		return
	}
	job := harvest.NewScheduledJob(cfg.Scheduler.JobID, cfg.Scheduler.IntervalSeconds, s.now())
	existing, created, err := s.schedules.EnsureJob(job)
	if err != nil {
		s.logger.Warnw("Failed to create scheduled harvest", logger.FieldError, err)
		return
	}
	s.logger.Infow("Scheduled harvest ready",
		"job_id", existing.ID,
		"created", created,
		"interval_seconds", existing.IntervalSeconds)
}

// startBackgroundServices starts the workers, the ticker and the job
// stream fan-out.
func (s *HarvesterServer) startBackgroundServices() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.ensureSchedule(s.config())

	if s.pool != nil {
		s.pool.Start()
		s.logger.Infow("Workers started", "workers", s.pool.Workers())
	}
	if s.ticker != nil {
		s.ticker.Start()
	}

	updates := s.queue.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.broadcastJobs(updates)
	}()
}
