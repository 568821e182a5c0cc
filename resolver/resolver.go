// Package resolver enriches RDF terms with human-readable labels taken
// from the documents their IRIs dereference to.
//
// Resolution is cache-aside: a cached document is used as is, a term
// that failed before is not fetched again, and anything else is fetched,
// parsed and cached. Failures never surface to callers; the result just
// carries no label.
package resolver

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/internal/httpclient"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/metrics"
	"github.com/teranos/breg-harvester/rdf"
	"github.com/teranos/breg-harvester/rdf/sniff"
	"github.com/teranos/breg-harvester/termcache"
)

// DefaultLang is the label language used when none is configured.
const DefaultLang = "en"

// Status says how a result was produced. It is diagnostic only.
type Status string

const (
	StatusSkipped    Status = "skipped"
	StatusCacheHit   Status = "cache_hit"
	StatusParsed     Status = "parsed"
	StatusUnresolved Status = "unresolved"
)

// Result is the wire form of a resolved term.
type Result struct {
	N3        string `json:"n3"`
	Class     string `json:"class"`
	Label     string `json:"label,omitempty"`
	LabelProp string `json:"label_prop,omitempty"`
	Status    Status `json:"-"`
}

// DocumentSource dereferences an IRI into a graph. *sniff.Parser is the
// production implementation.
type DocumentSource interface {
	Resolve(ctx context.Context, iri string) (*rdf.Graph, error)
}

// Options tune a Resolver.
type Options struct {
	Lang string
	// RequestsPerSecond bounds document fetches; zero disables the limit.
	RequestsPerSecond float64
	Burst             int
}

// Resolver is safe for concurrent use.
type Resolver struct {
	cache   *termcache.Cache
	source  DocumentSource
	limiter *rate.Limiter
	lang    string
	logger  *zap.SugaredLogger
}

// New builds a resolver over cache and source.
func New(cache *termcache.Cache, source DocumentSource, opts Options, log *zap.SugaredLogger) *Resolver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	lang := opts.Lang
	if lang == "" {
		lang = DefaultLang
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Resolver{
		cache:   cache,
		source:  source,
		limiter: limiter,
		lang:    lang,
		logger:  log.With(logger.FieldComponent, "resolver"),
	}
}

// FromConfig wires a resolver that fetches public IRIs only.
func FromConfig(cfg am.ResolverConfig, cache *termcache.Cache, log *zap.SugaredLogger) *Resolver {
	client := httpclient.New(httpclient.PublicOptions(cfg.FetchTimeout))

	parser := sniff.New(client, log)
	parser.BlockPrivate = true
	if cfg.ParseTimeout > 0 {
		parser.ParseTimeout = cfg.ParseTimeout
	}
	if cfg.FetchTimeout > 0 {
		parser.FetchTimeout = cfg.FetchTimeout
	}

	return New(cache, parser, Options{
		Lang:              cfg.LabelLang,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}, log)
}

// Lang is the label language in use.
func (r *Resolver) Lang() string { return r.lang }

// Resolve describes term and, when extended is set and term is an IRI,
// adds its preferred label.
func (r *Resolver) Resolve(ctx context.Context, term rdf.Term, extended bool) Result {
	res := Result{N3: term.N3(), Class: term.Class(), Status: StatusSkipped}
	if !extended || !term.IsIRI() {
		return res
	}
	// Such IRIs are not dereferenceable as written and cannot be found
	// again in a cached document
	if !rdf.ValidIRI(term.Value) {
		res.Status = StatusUnresolved
		metrics.RecordResolution(string(res.Status))
		r.logger.Debugw("IRI not resolvable", logger.FieldTerm, res.N3)
		return res
	}

	g, status := r.load(ctx, term)
	res.Status = status
	metrics.RecordResolution(string(status))

	if g != nil {
		if label, prop, ok := g.PreferredLabel(term, r.lang); ok {
			res.Label = label.Value
			res.LabelProp = prop
		}
	}

	r.logger.Debugw("Resolved term",
		logger.FieldTerm, res.N3,
		logger.FieldStatus, status,
		"label", res.Label)
	return res
}

func (r *Resolver) load(ctx context.Context, term rdf.Term) (*rdf.Graph, Status) {
	g, hit, err := r.cache.Get(ctx, term)
	if err != nil {
		r.logger.Warnw("Term cache read failed", logger.FieldTerm, term.N3(), logger.FieldError, err)
	}
	if hit {
		return g, StatusCacheHit
	}

	failed, err := r.cache.HasFailedBefore(ctx, term)
	if err != nil {
		r.logger.Warnw("Term cache read failed", logger.FieldTerm, term.N3(), logger.FieldError, err)
	}
	if failed {
		return nil, StatusUnresolved
	}

	if err := r.limiter.Wait(ctx); err != nil {
		r.logger.Debugw("Fetch not attempted", logger.FieldTerm, term.N3(), logger.FieldError, err)
		return nil, StatusUnresolved
	}

	g, err = r.source.Resolve(ctx, term.Value)
	if err != nil {
		// A caller going away says nothing about the term itself
		if ctx.Err() != nil {
			return nil, StatusUnresolved
		}
		r.logger.Debugw("Term document unavailable", logger.FieldTerm, term.N3(), logger.FieldError, err)
		if err := r.cache.MarkFailed(ctx, term); err != nil {
			r.logger.Warnw("Term cache write failed", logger.FieldTerm, term.N3(), logger.FieldError, err)
		}
		return nil, StatusUnresolved
	}

	if err := r.cache.Put(ctx, term, g); err != nil {
		r.logger.Warnw("Term cache write failed", logger.FieldTerm, term.N3(), logger.FieldError, err)
	}
	return g, StatusParsed
}

var _ DocumentSource = (*sniff.Parser)(nil)
