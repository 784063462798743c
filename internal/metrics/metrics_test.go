package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-essam23/collab-dispatch/internal/metrics"
)

func TestCountersAndHandler(t *testing.T) {
	m := metrics.New()
	m.Connections.Set(3)
	m.InboundEvents.WithLabelValues("task:update").Inc()
	m.ThrottledEvents.Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InboundEvents.WithLabelValues("task:update")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "collab_connections 3")
	assert.Contains(t, string(body), `collab_inbound_events_total{event="task:update"} 1`)
	assert.Contains(t, string(body), "collab_throttled_events_total 1")
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := metrics.New(), metrics.New()
	a.Rooms.Set(2)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Rooms))
}
