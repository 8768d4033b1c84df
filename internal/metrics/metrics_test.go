package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		CyclesTotal,
		CycleDuration,
		PostsPublished,
		PublicationFailures,
		LastPublishedDataTimestamp,
		ConsecutiveFailures,
	}

	for _, c := range collectors {
		desc := make(chan *prometheus.Desc, 1)
		c.Describe(desc)
		close(desc)
		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestCyclesTotalByResult(t *testing.T) {
	before := testutil.ToFloat64(CyclesTotal.WithLabelValues(ResultNoUpdate))
	CyclesTotal.WithLabelValues(ResultNoUpdate).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(CyclesTotal.WithLabelValues(ResultNoUpdate)))
}

func TestServerExposesMetrics(t *testing.T) {
	PostsPublished.Add(3)

	srv := NewServer(":0")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "dailythread_posts_published_total"))
}
