package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("concern_cloud")
	b := NewCollector("concern_cloud")

	a.ObserveHTTP(http.MethodGet, "/flows", http.StatusOK, 20*time.Millisecond)
	a.ObserveTheming("success", 4)
	a.ObserveTheming("upstream_error", 0)
	a.ConcernsCreated.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.HTTPRequests.WithLabelValues("GET", "/flows", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.ThemingRequests.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.ConcernsCreated))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ConcernsCreated))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("concern_cloud")
	c.ConcernsDeleted.Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "concern_cloud_concerns_deleted_total 1")
}
