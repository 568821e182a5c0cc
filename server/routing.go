package server

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/metrics"
)

const requestIDHeader = "X-Request-ID"

// routes builds the mux. Every /api route answers with JSON.
func (s *HarvesterServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/harvest", s.handleHarvestRun)
	mux.HandleFunc("POST /api/harvest/{$}", s.handleHarvestRun)
	mux.HandleFunc("GET /api/harvest", s.handleHarvestList)
	mux.HandleFunc("GET /api/harvest/{$}", s.handleHarvestList)
	mux.HandleFunc("GET /api/harvest/source", s.handleHarvestSources)
	mux.HandleFunc("GET /api/harvest/{id}", s.handleHarvestJob)

	mux.HandleFunc("GET /api/scheduler", s.handleSchedulerGet)
	mux.HandleFunc("POST /api/scheduler", s.handleSchedulerSet)

	mux.HandleFunc("GET /api/browser/{facet...}", s.handleBrowserTerms)
	mux.HandleFunc("POST /api/browser/dataset/search", s.handleDatasetSearch)

	mux.HandleFunc("GET /api/jobs/stream", s.handleJobStream)

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   s.config().GetServerAllowedOrigins(),
		AllowCredentials: true,
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{requestIDHeader},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
	})
	return s.instrument(c.Handler(mux))
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// instrument tags each request with an ID and records request counts
// and latency per route pattern.
func (s *HarvesterServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.RecordHTTPRequest(route, r.Method, rec.status, elapsed)
		s.log(r).Debugw("Request served",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, elapsed.Milliseconds())
	})
}

// log returns the server logger carrying the request ID of r.
func (s *HarvesterServer) log(r *http.Request) *zap.SugaredLogger {
	return logger.FromContext(r.Context(), s.logger)
}
