// Package sparql talks to a remote triple store over the SPARQL 1.1
// protocol: reads go to the query endpoint, INSERT DATA updates to the
// update endpoint.
//
// A Store carries a mode. EnterUpdate sets the Content-Type header that
// marks request bodies as raw SPARQL Update; EnterRead clears it. The
// store does not check the mode before operations, callers switch it
// around their writes.
package sparql

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/internal/httpclient"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/metrics"
)

// Mode is the request mode of a Store.
type Mode int

const (
	ModeRead Mode = iota
	ModeUpdate
)

func (m Mode) String() string {
	if m == ModeUpdate {
		return "update"
	}
	return "read"
}

const (
	MIMESparqlUpdate  = "application/sparql-update"
	MIMESparqlResults = "application/sparql-results+json"

	// DefaultBatchSize is the number of triples per INSERT DATA request
	DefaultBatchSize = 500

	requestTimeout = 5 * time.Minute
	maxErrorBody   = 1024
)

// Options configure a Store.
type Options struct {
	QueryEndpoint  string
	UpdateEndpoint string
	User           string
	Password       string
	BatchSize      int
	Client         *http.Client
	Logger         *zap.SugaredLogger
}

// Store is a connection to one triple store. Mode switches are safe for
// concurrent use, but a store is meant to serve one harvest at a time.
type Store struct {
	queryEndpoint  string
	updateEndpoint string
	user           string
	password       string
	batchSize      int
	client         *http.Client
	logger         *zap.SugaredLogger

	mu      sync.Mutex
	headers http.Header
}

// New returns a store in read mode.
func New(opts Options) (*Store, error) {
	if opts.QueryEndpoint == "" {
		return nil, errors.NewConfigurationError("sparql query endpoint is not set")
	}
	if opts.UpdateEndpoint == "" {
		return nil, errors.NewConfigurationError("sparql update endpoint is not set")
	}

	s := &Store{
		queryEndpoint:  opts.QueryEndpoint,
		updateEndpoint: opts.UpdateEndpoint,
		user:           opts.User,
		password:       opts.Password,
		batchSize:      opts.BatchSize,
		client:         opts.Client,
		logger:         opts.Logger,
		headers:        http.Header{},
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.client == nil {
		s.client = httpclient.New(httpclient.DefaultOptions(requestTimeout))
	}
	if s.user != "" {
		s.client = httpclient.WithDigestAuth(s.client, s.user, s.password)
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	s.logger = s.logger.With(logger.FieldComponent, "sparql")
	return s, nil
}

// FromConfig opens a store for the configured endpoints.
func FromConfig(cfg am.SPARQLConfig, log *zap.SugaredLogger) (*Store, error) {
	return New(Options{
		QueryEndpoint:  cfg.Endpoint,
		UpdateEndpoint: cfg.UpdateEndpoint,
		User:           cfg.User,
		Password:       cfg.Password,
		BatchSize:      cfg.BatchSize,
		Client:         httpclient.New(httpclient.DefaultOptions(requestTimeout)),
		Logger:         log,
	})
}

// EnterUpdate marks subsequent update bodies as SPARQL Update. Idempotent.
func (s *Store) EnterUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers.Set("Content-Type", MIMESparqlUpdate)
	s.logger.Debugw("Store entered update mode")
}

// EnterRead clears the update Content-Type. Idempotent.
func (s *Store) EnterRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers.Del("Content-Type")
	s.logger.Debugw("Store entered read mode")
}

// Mode reports the current mode.
func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headers.Get("Content-Type") == MIMESparqlUpdate {
		return ModeUpdate
	}
	return ModeRead
}

// Header returns a copy of the headers sent with updates.
func (s *Store) Header() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers.Clone()
}

// QueryEndpoint is the endpoint reads are sent to.
func (s *Store) QueryEndpoint() string { return s.queryEndpoint }

// Update posts a raw SPARQL Update with the current headers.
func (s *Store) Update(ctx context.Context, update string) error {
	headers := s.Header()
	resp, err := s.do(ctx, "update", http.MethodPost, s.updateEndpoint, []byte(update), headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// do sends a request. Credentials go out as basic auth until the store
// issues a Digest challenge, which the client answers from then on.
// Non-2xx responses become store protocol errors.
func (s *Store) do(ctx context.Context, op, method, endpoint string, body []byte, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "build %s request", op)
	}
	for k, v := range headers {
		req.Header[k] = append([]string(nil), v...)
	}
	if s.user != "" {
		req.SetBasicAuth(s.user, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.RecordStoreRequest(op, 0)
		return nil, errors.NewStoreProtocolError(err, "%s %s", op, endpoint)
	}

	metrics.RecordStoreRequest(op, resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := errors.Newf("%s returned %d", endpoint, resp.StatusCode)
		err = errors.WithDetailf(err, "status: %d", resp.StatusCode)
		err = errors.WithDetailf(err, "body: %s", strings.TrimSpace(string(data)))
		return nil, errors.NewStoreProtocolError(err, "%s rejected", op)
	}
	return resp, nil
}
