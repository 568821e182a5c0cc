// Package browser answers the catalog browsing endpoints: term lists
// drawn from the harvest graph, optionally enriched with labels, and a
// faceted dataset search.
package browser

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/rdf"
	"github.com/teranos/breg-harvester/resolver"
)

const (
	// DefaultSearchLimit applies when a search names no limit
	DefaultSearchLimit = 200
	// MaxSearchLimit caps the search limit a client may ask for
	MaxSearchLimit = 10000

	resolveConcurrency = 8
)

// Querier runs SPARQL SELECT queries. *sparql.Store satisfies it.
type Querier interface {
	Select(ctx context.Context, query string) ([]map[string]rdf.Term, error)
}

// TermResolver labels terms. *resolver.Resolver satisfies it.
type TermResolver interface {
	Resolve(ctx context.Context, term rdf.Term, extended bool) resolver.Result
}

// Browser reads from one graph.
type Browser struct {
	store    Querier
	resolver TermResolver
	graph    string
	logger   *zap.SugaredLogger
}

func New(store Querier, res TermResolver, graph string, log *zap.SugaredLogger) *Browser {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Browser{
		store:    store,
		resolver: res,
		graph:    graph,
		logger:   log.With(logger.FieldComponent, "browser"),
	}
}

// Terms lists the distinct terms of facet f in first-seen order. With
// extended set, IRIs are labelled through the resolver.
func (b *Browser) Terms(ctx context.Context, f Facet, extended bool) ([]resolver.Result, error) {
	query, err := FacetQuery(f, b.graph)
	if err != nil {
		return nil, err
	}
	rows, err := b.store.Select(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "query facet %s", f)
	}

	seen := make(map[string]bool, len(rows))
	terms := make([]rdf.Term, 0, len(rows))
	for _, row := range rows {
		t, ok := row["object"]
		if !ok || seen[t.N3()] {
			continue
		}
		seen[t.N3()] = true
		terms = append(terms, t)
	}

	b.logger.Debugw("Facet queried", "facet", f, logger.FieldCount, len(terms), "extended", extended)
	return b.resolveAll(ctx, terms, extended), nil
}

// resolveAll resolves terms with bounded concurrency, keeping their order.
func (b *Browser) resolveAll(ctx context.Context, terms []rdf.Term, extended bool) []resolver.Result {
	results := make([]resolver.Result, len(terms))
	if b.resolver == nil || !extended {
		for i, t := range terms {
			results[i] = resolver.Result{N3: t.N3(), Class: t.Class()}
		}
		return results
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(resolveConcurrency)
	for i, t := range terms {
		p.Go(func(ctx context.Context) error {
			results[i] = b.resolver.Resolve(ctx, t, extended)
			return nil
		})
	}
	_ = p.Wait()
	return results
}

// SearchRequest is the body of a dataset search.
type SearchRequest struct {
	Limit   *int    `json:"limit,omitempty"`
	Filters Filters `json:"filters,omitempty"`
}

// Dataset is one row of dataset details. IRIs are given in N3 form,
// literals by their lexical value.
type Dataset struct {
	CatalogURI            string `json:"catalog_uri"`
	URI                   string `json:"uri"`
	Description           string `json:"description"`
	Identifier            string `json:"identifier"`
	Title                 string `json:"title"`
	DistributionURI       string `json:"distribution_uri"`
	DistributionAccessURL string `json:"distribution_access_url"`
	DistributionType      string `json:"distribution_type"`
	Location              string `json:"location"`
	Theme                 string `json:"theme"`
}

// Search finds datasets matching the filters and returns their details.
func (b *Browser) Search(ctx context.Context, req SearchRequest) ([]Dataset, error) {
	limit := DefaultSearchLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit <= 0 || limit > MaxSearchLimit {
		return nil, errors.NewInvalidRequestError("limit must be between 1 and %d", MaxSearchLimit)
	}

	query, err := SearchQuery(req.Filters, limit, b.graph)
	if err != nil {
		return nil, err
	}
	rows, err := b.store.Select(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "search datasets")
	}

	seen := make(map[string]bool)
	var datasets []rdf.Term
	for _, row := range rows {
		d, ok := row[KeyDataset]
		if !ok || seen[d.N3()] {
			continue
		}
		seen[d.N3()] = true
		datasets = append(datasets, d)
	}
	if len(datasets) == 0 {
		return []Dataset{}, nil
	}

	rows, err = b.store.Select(ctx, DatasetsQuery(datasets, b.graph))
	if err != nil {
		return nil, errors.Wrap(err, "load dataset details")
	}

	out := make([]Dataset, 0, len(rows))
	for _, row := range rows {
		out = append(out, Dataset{
			CatalogURI:            n3(row["catalog"]),
			URI:                   n3(row["dataset"]),
			Description:           row["description"].Value,
			Identifier:            row["identifier"].Value,
			Title:                 row["title"].Value,
			DistributionURI:       n3(row["distribution"]),
			DistributionAccessURL: n3(row["distributionURL"]),
			DistributionType:      n3(row["distributionType"]),
			Location:              n3(row["datasetSpatial"]),
			Theme:                 n3(row["theme"]),
		})
	}
	b.logger.Debugw("Datasets searched", "matches", len(datasets), logger.FieldCount, len(out))
	return out, nil
}

func n3(t rdf.Term) string {
	if t.IsZero() {
		return ""
	}
	return t.N3()
}
