package sparql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/rdf"
)

// Node renders t for a SPARQL request. Blank nodes cannot be sent in
// INSERT DATA under a stable identity, so they become <bnode:b<id>> IRIs.
func Node(t rdf.Term) string {
	if t.IsBlank() {
		return "<bnode:b" + t.Value + ">"
	}
	return t.N3()
}

// InsertQuery builds one INSERT DATA request for triples into graph.
func InsertQuery(graph string, triples []rdf.Triple) string {
	var b strings.Builder
	b.WriteString("INSERT DATA { GRAPH ")
	b.WriteString(rdf.NewIRI(graph).N3())
	b.WriteString(" {\n")
	for _, t := range triples {
		b.WriteString(Node(t.Subject))
		b.WriteByte(' ')
		b.WriteString(Node(t.Predicate))
		b.WriteByte(' ')
		b.WriteString(Node(t.Object))
		b.WriteString(" .\n")
	}
	b.WriteString("} }")
	return b.String()
}

// Insert adds triples to graph in batches. Batches already sent stay in
// the store when a later one fails.
func (s *Store) Insert(ctx context.Context, graph string, triples []rdf.Triple) error {
	for start := 0; start < len(triples); start += s.batchSize {
		end := start + s.batchSize
		if end > len(triples) {
			end = len(triples)
		}
		if err := s.Update(ctx, InsertQuery(graph, triples[start:end])); err != nil {
			return errors.Wrapf(err, "insert triples %d-%d into %s", start, end, graph)
		}
		s.logger.Debugw("Inserted batch", logger.FieldGraph, graph, logger.FieldCount, end-start)
	}
	return nil
}

// InsertGraph adds every triple of g to graph.
func (s *Store) InsertGraph(ctx context.Context, graph string, g *rdf.Graph) error {
	return s.Insert(ctx, graph, g.Triples())
}

// CountQuery counts the triples of graph.
func CountQuery(graph string) string {
	return "SELECT (COUNT(*) AS ?n) WHERE { GRAPH " + rdf.NewIRI(graph).N3() + " { ?s ?p ?o } }"
}

// Count returns the number of triples in graph.
func (s *Store) Count(ctx context.Context, graph string) (int, error) {
	rows, err := s.Select(ctx, CountQuery(graph))
	if err != nil {
		return 0, errors.Wrapf(err, "count %s", graph)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, ok := rows[0]["n"]
	if !ok {
		return 0, errors.NewStoreProtocolError(errors.New("missing ?n binding"), "count %s", graph)
	}
	count, err := strconv.Atoi(strings.TrimSpace(n.Value))
	if err != nil {
		return 0, errors.NewStoreProtocolError(err, "count %s", graph)
	}
	return count, nil
}

type resultsDocument struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]binding `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean,omitempty"`
}

type binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang"`
	Datatype string `json:"datatype"`
}

func (b binding) term() (rdf.Term, error) {
	switch b.Type {
	case "uri":
		return rdf.NewIRI(b.Value), nil
	case "bnode":
		return rdf.NewBlank(b.Value), nil
	case "literal", "typed-literal":
		return rdf.NewTypedLiteral(b.Value, b.Lang, b.Datatype), nil
	}
	return rdf.Term{}, errors.Newf("unknown binding type %q", b.Type)
}

// Select runs query against the query endpoint and returns one map per
// solution. Unbound variables are absent from the map.
func (s *Store) Select(ctx context.Context, query string) ([]map[string]rdf.Term, error) {
	start := time.Now()
	headers := http.Header{}
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	headers.Set("Accept", MIMESparqlResults)
	form := url.Values{"query": {query}}.Encode()

	resp, err := s.do(ctx, "select", http.MethodPost, s.queryEndpoint, []byte(form), headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var doc resultsDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errors.NewStoreProtocolError(err, "decode query results")
	}

	rows := make([]map[string]rdf.Term, 0, len(doc.Results.Bindings))
	for _, sol := range doc.Results.Bindings {
		row := make(map[string]rdf.Term, len(sol))
		for name, b := range sol {
			t, err := b.term()
			if err != nil {
				return nil, errors.NewStoreProtocolError(err, "decode binding ?%s", name)
			}
			row[name] = t
		}
		rows = append(rows, row)
	}

	s.logger.Debugw("Query answered",
		logger.FieldCount, len(rows),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return rows, nil
}

// Ping waits for the query endpoint to answer, retrying with exponential
// backoff until maxWait elapses. Configuration errors are not retried.
func (s *Store) Ping(ctx context.Context, maxWait time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait

	attempt := 1
	err := backoff.Retry(func() error {
		_, err := s.Select(ctx, "SELECT * WHERE { ?s ?p ?o } LIMIT 1")
		if err == nil {
			return nil
		}
		if errors.IsConfigurationError(err) {
			return backoff.Permanent(err)
		}
		s.logger.Infow("Waiting for the triple store", "attempt", attempt, logger.FieldError, err)
		attempt++
		return err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return errors.Wrapf(err, "triple store at %s is not answering", s.queryEndpoint)
	}
	return nil
}
