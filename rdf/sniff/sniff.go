// Package sniff parses RDF payloads of unknown syntax by trying a fixed
// list of formats, each under its own deadline.
package sniff

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/internal/httpclient"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/rdf"
)

// DefaultOrder is the order in which formats are attempted.
var DefaultOrder = []rdf.Format{
	rdf.FormatRDFXML,
	rdf.FormatTurtle,
	rdf.FormatJSONLD,
	rdf.FormatNTriples,
}

const (
	DefaultParseTimeout = 4 * time.Second
	DefaultFetchTimeout = 10 * time.Second

	// maxDocumentSize caps how much of a remote document is read
	maxDocumentSize = 16 << 20
)

// Parser is stateless and safe for concurrent use.
type Parser struct {
	Client       *http.Client
	ParseTimeout time.Duration
	FetchTimeout time.Duration
	// BlockPrivate refuses IRIs naming localhost or private addresses.
	BlockPrivate bool
	// OnAttempt, when set, is called after every parse attempt.
	OnAttempt func(format rdf.Format, err error)

	decode func([]byte, rdf.Format, rdf.DecodeOptions) (*rdf.Graph, error)
	logger *zap.SugaredLogger
}

// New returns a parser using client for fetches and JSON-LD contexts.
func New(client *http.Client, log *zap.SugaredLogger) *Parser {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Parser{
		Client:       client,
		ParseTimeout: DefaultParseTimeout,
		FetchTimeout: DefaultFetchTimeout,
		decode:       rdf.Decode,
		logger:       log.With(logger.FieldComponent, "sniff"),
	}
}

type attemptResult struct {
	graph *rdf.Graph
	err   error
}

// Parse tries formats in order and returns the first graph that decodes.
// base is used for relative IRIs where the syntax supports it.
func (p *Parser) Parse(ctx context.Context, data []byte, base string, formats []rdf.Format) (*rdf.Graph, rdf.Format, error) {
	if len(formats) == 0 {
		formats = DefaultOrder
	}

	var attempted []string
	for _, format := range formats {
		if err := ctx.Err(); err != nil {
			return nil, "", errors.NewParseError(err, "parse interrupted after %s", strings.Join(attempted, ", "))
		}

		g, err := p.attempt(ctx, data, base, format)
		attempted = append(attempted, string(format))
		if p.OnAttempt != nil {
			p.OnAttempt(format, err)
		}
		if err == nil {
			p.logger.Debugw("Parsed document", logger.FieldFormat, format, logger.FieldTriples, g.Len())
			return g, format, nil
		}
		p.logger.Debugw("Parse attempt failed", logger.FieldFormat, format, logger.FieldError, err)
	}

	return nil, "", errors.NewParseError(
		errors.New("no candidate format matched"),
		"could not parse document (tried %s)", strings.Join(attempted, ", "))
}

// attempt runs one decode on its own goroutine so the deadline holds even
// though decoders take no context. A timed-out decode is abandoned; it only
// holds data, and the buffered channel lets it finish without blocking.
func (p *Parser) attempt(ctx context.Context, data []byte, base string, format rdf.Format) (*rdf.Graph, error) {
	timeout := p.ParseTimeout
	if timeout <= 0 {
		timeout = DefaultParseTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: errors.Newf("decoder panic: %v", r)}
			}
		}()
		g, err := p.decode(data, format, rdf.DecodeOptions{Base: base, HTTPClient: p.Client})
		done <- attemptResult{graph: g, err: err}
	}()

	select {
	case res := <-done:
		return res.graph, res.err
	case <-timer.C:
		return nil, errors.Mark(errors.Newf("%s parse exceeded %s", format, timeout), errors.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve dereferences iri and parses the response with DefaultOrder.
// Fetch failures are returned as fetch errors without trying any format.
func (p *Parser) Resolve(ctx context.Context, iri string) (*rdf.Graph, error) {
	data, err := p.Fetch(ctx, iri)
	if err != nil {
		return nil, err
	}
	g, _, err := p.Parse(ctx, data, iri, DefaultOrder)
	return g, err
}

// Fetch reads the document at iri under FetchTimeout. The body is fully
// read and closed before returning.
func (p *Parser) Fetch(ctx context.Context, iri string) ([]byte, error) {
	if _, err := httpclient.ValidateURL(iri, p.BlockPrivate); err != nil {
		return nil, errors.NewFetchError(err, "refusing to fetch %s", iri)
	}

	timeout := p.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iri, nil)
	if err != nil {
		return nil, errors.NewFetchError(err, "build request for %s", iri)
	}
	req.Header.Set("Accept", rdf.AcceptHeader(DefaultOrder))

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	p.logger.Debugw("Fetching document", logger.FieldURL, iri)
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.NewFetchError(err, "fetch %s", iri)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errors.NewFetchError(errors.Newf("status %d", resp.StatusCode), "fetch %s", iri)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, errors.NewFetchError(err, "read %s", iri)
	}
	return data, nil
}
