// Package metrics holds the harvester's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "breg_harvester"

var (
	// harvestRuns counts pipeline runs by outcome (completed, failed, rejected)
	harvestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "harvest",
		Name:      "runs_total",
		Help:      "Harvest pipeline runs by outcome",
	}, []string{"outcome"})

	harvestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "harvest",
		Name:      "duration_seconds",
		Help:      "Harvest pipeline run duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// harvestSources counts sources by validation outcome (accepted, rejected)
	harvestSources = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "harvest",
		Name:      "sources_total",
		Help:      "Harvest sources by validation outcome",
	}, []string{"outcome"})

	harvestTriples = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "harvest",
		Name:      "graph_triples",
		Help:      "Triples in the harvest graph after the last run",
	})

	// resolverOutcomes counts term resolutions by status (cache_hit, parsed, unresolved)
	resolverOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Term resolutions by outcome",
	}, []string{"status"})

	// validatorResults counts validation verdicts by validator and result (pass, fail)
	validatorResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validator",
		Name:      "results_total",
		Help:      "Source validation verdicts",
	}, []string{"validator", "result"})

	storeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sparql",
		Name:      "requests_total",
		Help:      "Requests sent to the triple store by operation and status code",
	}, []string{"operation", "code"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by route and status code",
	}, []string{"route", "method", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	parseAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "parser",
		Name:      "attempts_total",
		Help:      "Source parse attempts by format and result",
	}, []string{"format", "result"})

	jobsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "by_status",
		Help:      "Jobs in the queue by status",
	}, []string{"status"})
)

func RecordHarvestRun(outcome string, d time.Duration) {
	harvestRuns.WithLabelValues(outcome).Inc()
	harvestDuration.Observe(d.Seconds())
}

func RecordHarvestSource(outcome string) {
	harvestSources.WithLabelValues(outcome).Inc()
}

func SetGraphTriples(n int) {
	harvestTriples.Set(float64(n))
}

func RecordResolution(status string) {
	resolverOutcomes.WithLabelValues(status).Inc()
}

func RecordValidation(validator string, pass bool) {
	result := "fail"
	if pass {
		result = "pass"
	}
	validatorResults.WithLabelValues(validator, result).Inc()
}

// RecordParseAttempt counts one format tried on a source document.
func RecordParseAttempt(format string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	parseAttempts.WithLabelValues(format, result).Inc()
}

// RecordStoreRequest counts a triple store call; code 0 means no response.
func RecordStoreRequest(operation string, code int) {
	storeRequests.WithLabelValues(operation, strconv.Itoa(code)).Inc()
}

func RecordHTTPRequest(route, method string, code int, d time.Duration) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// SetJobCounts replaces the per-status job gauges.
func SetJobCounts(counts map[string]int) {
	for status, n := range counts {
		jobsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
