package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("test")

	c.ObserveComputation("curve", nil, 10*time.Millisecond)
	c.ObserveComputation("curve", errors.New("boom"), time.Millisecond)
	c.DegradedRead("price")
	c.DegradedRead("price")
	c.OracleRequest("hit")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.computations.WithLabelValues("curve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.computations.WithLabelValues("curve", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.degradedReads.WithLabelValues("price")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.oracleRequests.WithLabelValues("hit")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.DegradedRead("price")
		c.ObserveComputation("curve", nil, time.Second)
		c.SetRecommendedApy("0xabc", 0.1)
		c.ObserveCycle(time.Second)
		c.StoreWrites("ok", 3)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("test")
	c.SetRecommendedApy("0xabc", 0.05)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_vault_recommended_apy{vault="0xabc"} 0.05`))
}
