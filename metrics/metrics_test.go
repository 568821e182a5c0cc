package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordResolution(t *testing.T) {
	before := testutil.ToFloat64(resolverOutcomes.WithLabelValues("cache_hit"))
	RecordResolution("cache_hit")
	RecordResolution("cache_hit")
	assert.Equal(t, before+2, testutil.ToFloat64(resolverOutcomes.WithLabelValues("cache_hit")))
}

func TestRecordValidation(t *testing.T) {
	before := testutil.ToFloat64(validatorResults.WithLabelValues("always-pass", "pass"))
	RecordValidation("always-pass", true)
	assert.Equal(t, before+1, testutil.ToFloat64(validatorResults.WithLabelValues("always-pass", "pass")))
}

func TestRecordParseAttempt(t *testing.T) {
	before := testutil.ToFloat64(parseAttempts.WithLabelValues("turtle", "error"))
	RecordParseAttempt("turtle", io.ErrUnexpectedEOF)
	RecordParseAttempt("turtle", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(parseAttempts.WithLabelValues("turtle", "error")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordHarvestRun("completed", 2*time.Second)
	SetGraphTriples(42)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "breg_harvester_harvest_runs_total")
	assert.Contains(t, string(body), "breg_harvester_harvest_graph_triples 42")
}
