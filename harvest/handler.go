package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/pulse/async"
	"github.com/teranos/breg-harvester/pulse/schedule"
	"github.com/teranos/breg-harvester/sparql"
	"github.com/teranos/breg-harvester/validator"
)

// HandlerName identifies harvest jobs in the queue
const HandlerName = "harvest.run"

// Job sources used for deduplication
const (
	JobSourceManual    = "harvest:manual"
	JobSourceScheduled = "harvest:scheduled"
)

// Payload is the input of a harvest job.
type Payload struct {
	Sources  []Source `json:"sources"`
	GraphURI string   `json:"graph_uri,omitempty"` // empty = harvest.graph_uri
	Strict   *bool    `json:"strict,omitempty"`    // nil = harvest.strict
}

// Handler implements async.JobHandler for harvest jobs. Each execution
// opens its own store connection and selects the validator from the
// configuration current at that time.
type Handler struct {
	cfg     atomic.Pointer[am.Config]
	queue   *async.Queue
	fetcher Fetcher
	logger  *zap.SugaredLogger

	newStore     func(am.SPARQLConfig, *zap.SugaredLogger) (Store, error)
	newValidator func(am.ValidatorConfig, *zap.SugaredLogger) validator.Validator
}

// NewHandler creates a harvest job handler. queue may be nil, in which
// case progress is only logged.
func NewHandler(cfg *am.Config, queue *async.Queue, fetcher Fetcher, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	h := &Handler{
		queue:   queue,
		fetcher: fetcher,
		logger:  log.With(logger.FieldHandler, HandlerName),
		newStore: func(c am.SPARQLConfig, l *zap.SugaredLogger) (Store, error) {
			return sparql.FromConfig(c, l)
		},
		newValidator: validator.FromConfig,
	}
	h.cfg.Store(cfg)
	return h
}

// Name returns the handler identifier
func (h *Handler) Name() string {
	return HandlerName
}

// SetConfig swaps the configuration used by later executions.
func (h *Handler) SetConfig(cfg *am.Config) {
	h.cfg.Store(cfg)
}

// Execute runs the harvest described by the job payload and stores the
// Result on the job.
func (h *Handler) Execute(ctx context.Context, job *async.Job) error {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.Wrap(err, "failed to decode harvest payload")
	}

	cfg := h.cfg.Load()
	if cfg == nil {
		return errors.NewConfigurationError("harvest handler has no configuration")
	}

	graph := payload.GraphURI
	if graph == "" {
		graph = cfg.Harvest.GraphURI
	}
	if graph == "" {
		return errors.NewConfigurationError("harvest.graph_uri is not set")
	}
	strict := cfg.Harvest.Strict
	if payload.Strict != nil {
		strict = *payload.Strict
	}

	log := h.logger.With(logger.FieldJobID, job.ID)
	store, err := h.newStore(cfg.SPARQL, log)
	if err != nil {
		return err
	}
	v := h.newValidator(cfg.Validator, log)

	emitter := async.NewJobProgressEmitter(job, h.queue, log)
	pipeline := NewPipeline(h.fetcher, log)
	pipeline.Strict = strict
	pipeline.OnStage = emitter.EmitStage
	pipeline.OnProgress = emitter.EmitProgress

	result, err := pipeline.Run(logger.WithJobID(ctx, job.ID), payload.Sources, v, store, graph)
	if err != nil {
		emitter.EmitError("harvest", err)
		return err
	}
	return job.SetResult(result)
}

// Enqueue creates a harvest job for sources. With no sources nothing is
// enqueued and the returned job is nil.
func Enqueue(queue *async.Queue, sources []Source, cfg *am.Config) (*async.Job, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	payload := NewPayload(sources, cfg)
	job, err := async.NewJobWithPayload(HandlerName, JobSourceManual, describe(sources, payload.GraphURI), payload.JSON())
	if err != nil {
		return nil, err
	}
	if err := queue.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}

// NewPayload fixes the graph and strictness from cfg at enqueue time.
func NewPayload(sources []Source, cfg *am.Config) *Payload {
	p := &Payload{Sources: sources}
	if cfg != nil {
		p.GraphURI = cfg.Harvest.GraphURI
		strict := cfg.Harvest.Strict
		p.Strict = &strict
	}
	return p
}

// JSON encodes the payload. Sources and flags always encode.
func (p *Payload) JSON() json.RawMessage {
	data, _ := json.Marshal(p)
	return data
}

func describe(sources []Source, graph string) string {
	noun := "sources"
	if len(sources) == 1 {
		noun = "source"
	}
	if graph == "" {
		return fmt.Sprintf("harvest %d %s", len(sources), noun)
	}
	return fmt.Sprintf("harvest %d %s into %s", len(sources), noun, graph)
}

// SchedulePayload builds the payload of a scheduled harvest from the
// configuration current when the schedule fires. A run with no
// configured sources is skipped.
func SchedulePayload(config func() *am.Config) schedule.PayloadFunc {
	return func(ctx context.Context, scheduled *schedule.Job) ([]byte, error) {
		cfg := config()
		sources, err := SourcesFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		if len(sources) == 0 {
			return nil, errors.Wrapf(schedule.ErrSkipRun, "no sources configured for %s", scheduled.Name)
		}
		return NewPayload(sources, cfg).JSON(), nil
	}
}

// NewScheduledJob describes the periodic harvest. The first run is one
// interval from now.
func NewScheduledJob(id string, intervalSeconds int, now time.Time) *schedule.Job {
	return &schedule.Job{
		ID:              id,
		Name:            "scheduled_harvest",
		HandlerName:     HandlerName,
		Source:          JobSourceScheduled,
		IntervalSeconds: intervalSeconds,
		NextRunAt:       now.Add(time.Duration(intervalSeconds) * time.Second),
		State:           schedule.StateActive,
	}
}
