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

func TestCollector_Records(t *testing.T) {
	c := New()
	c.ObserveFetch("ok", 20*time.Millisecond)
	c.ObserveFetch("ok", 30*time.Millisecond)
	c.ObserveFetch("timeout", time.Second)
	c.IncRetry("timeout")
	c.ObserveOutcome("ok")
	c.ObserveOutcome("failed")
	c.ObserveRun("published", 3*time.Second, 42, time.Unix(1700000000, 0))
	c.ObserveRun("failed", time.Second, 7, time.Unix(1700000100, 0))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.fetchesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retriesTotal.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.outcomesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("failed")))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.routesCurrent), "failed runs leave the gauge alone")
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(c.lastSuccess))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.ObserveFetch("ok", time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "arbitrage_aggregator_fetches_total")
	assert.Contains(t, string(body), "go_goroutines")
}
