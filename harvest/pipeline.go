package harvest

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/metrics"
	"github.com/teranos/breg-harvester/rdf"
	"github.com/teranos/breg-harvester/validator"
)

// Store is the part of the triple store connection a harvest writes to.
// *sparql.Store satisfies it.
type Store interface {
	EnterUpdate()
	EnterRead()
	InsertGraph(ctx context.Context, graph string, g *rdf.Graph) error
	Count(ctx context.Context, graph string) (int, error)
}

// Fetcher reads a source document. *sniff.Parser satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Stage names reported through OnStage
const (
	StageValidate = "validate"
	StageIngest   = "ingest"
	StageCount    = "count"
)

// ReasonValidationFailed is recorded for sources rejected in lenient mode.
const ReasonValidationFailed = "validation failed"

// Pipeline runs one harvest at a time. It holds no per-run state, so a
// single value may serve successive runs.
type Pipeline struct {
	// Strict aborts the run when any source fails validation.
	Strict  bool
	Fetcher Fetcher
	// DecodeOptions.Base is overridden with each source URI.
	DecodeOptions rdf.DecodeOptions

	// OnStage and OnProgress, when set, observe the run.
	OnStage    func(stage, message string)
	OnProgress func(done, total int)

	decode func([]byte, rdf.Format, rdf.DecodeOptions) (*rdf.Graph, error)
	logger *zap.SugaredLogger
}

// NewPipeline returns a lenient pipeline fetching through fetcher.
func NewPipeline(fetcher Fetcher, log *zap.SugaredLogger) *Pipeline {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{
		Fetcher: fetcher,
		decode:  rdf.Decode,
		logger:  log.With(logger.FieldComponent, "harvest"),
	}
}

// Run validates sources, ingests the accepted ones into graphIRI and
// reports the graph size.
//
// A strict validation failure returns a validation error before the
// store is touched. A fetch, decode or insert failure aborts the run;
// triples already inserted stay. The store is always left in read mode.
func (p *Pipeline) Run(ctx context.Context, sources []Source, v validator.Validator, store Store, graphIRI string) (result *Result, err error) {
	if v == nil {
		v = validator.AlwaysPass{}
	}
	start := time.Now()
	outcome := "completed"
	defer func() {
		if err != nil {
			outcome = "failed"
			if errors.IsValidationError(err) {
				outcome = "rejected"
			}
		}
		metrics.RecordHarvestRun(outcome, time.Since(start))
	}()

	log := logger.FromContext(ctx, p.logger).With(logger.FieldGraph, graphIRI, logger.FieldStrict, p.Strict)
	log.Infow("Starting harvest", logger.FieldCount, len(sources), logger.FieldValidator, v.Name())

	p.stage(StageValidate, "validating sources")
	accepted := make([]Source, 0, len(sources))
	rejected := make([]Rejection, 0)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if v.Validate(ctx, src.validatorSource(), p.Strict) {
			metrics.RecordHarvestSource("accepted")
			accepted = append(accepted, src)
			continue
		}
		metrics.RecordHarvestSource("rejected")
		if p.Strict {
			log.Warnw("Source failed strict validation, aborting", logger.FieldSource, src.URI)
			return nil, errors.NewValidationError("source %s failed validation", src.URI)
		}
		log.Infow("Source rejected", logger.FieldSource, src.URI)
		rejected = append(rejected, Rejection{Source: src.URI, Reason: ReasonValidationFailed})
	}

	if len(accepted) > 0 {
		if err := p.ingest(ctx, log, accepted, store, graphIRI); err != nil {
			return nil, err
		}
	} else {
		log.Infow("No valid sources, skipping ingest")
	}

	p.stage(StageCount, "counting triples")
	n, err := store.Count(ctx, graphIRI)
	if err != nil {
		return nil, err
	}
	metrics.SetGraphTriples(n)

	log.Infow("Harvest finished",
		logger.FieldTriples, n,
		"accepted", len(accepted),
		"rejected", len(rejected),
		logger.FieldDurationMS, time.Since(start).Milliseconds())

	return &Result{
		NumTriples: n,
		Sources:    Outcomes(accepted),
		Rejected:   rejected,
	}, nil
}

func (p *Pipeline) ingest(ctx context.Context, log *zap.SugaredLogger, sources []Source, store Store, graphIRI string) error {
	store.EnterUpdate()
	defer store.EnterRead()

	p.stage(StageIngest, "ingesting sources")
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := p.ingestOne(ctx, src, store, graphIRI)
		if err != nil {
			log.Errorw("Source ingest failed",
				logger.FieldSource, src.URI,
				logger.FieldFormat, src.Type,
				logger.FieldError, err)
			return err
		}
		log.Debugw("Source ingested",
			logger.FieldSource, src.URI,
			logger.FieldFormat, src.Type,
			logger.FieldTriples, n)
		if p.OnProgress != nil {
			p.OnProgress(i+1, len(sources))
		}
	}
	return nil
}

func (p *Pipeline) ingestOne(ctx context.Context, src Source, store Store, graphIRI string) (int, error) {
	if p.Fetcher == nil {
		return 0, errors.NewConfigurationError("harvest pipeline has no fetcher")
	}
	data, err := p.Fetcher.Fetch(ctx, src.URI)
	if err != nil {
		if !errors.IsFetchError(err) {
			err = errors.NewFetchError(err, "fetch %s", src.URI)
		}
		return 0, err
	}

	decode := p.decode
	if decode == nil {
		decode = rdf.Decode
	}
	opts := p.DecodeOptions
	opts.Base = src.URI
	g, err := decode(data, src.Type, opts)
	if err != nil {
		return 0, errors.NewParseError(err, "decode %s as %s", src.URI, src.Type)
	}

	// Blank nodes of this document must not meet those of other sources
	// or earlier runs in the shared graph
	g = g.RelabelBlanks(ulid.Make().String() + "-")

	if err := store.InsertGraph(ctx, graphIRI, g); err != nil {
		return 0, errors.Wrapf(err, "insert %s", src.URI)
	}
	return g.Len(), nil
}

func (p *Pipeline) stage(stage, message string) {
	if p.OnStage != nil {
		p.OnStage(stage, message)
	}
}
