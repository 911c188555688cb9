package metrics

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricSets_RegisterWithoutConflicts(t *testing.T) {
	reg := NewRegistry()

	require.NotPanics(t, func() {
		NewHTTPMetrics(reg)
		NewRoomMetrics(reg)
		NewCommentMetrics(reg)
		NewRedisMetrics(reg)
		NewDatabaseMetrics(reg)
	})
}

func TestMetricSets_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRoomMetrics(reg)

	assert.Panics(t, func() { NewRoomMetrics(reg) })
}

func TestCommentMetrics_CountsByLabel(t *testing.T) {
	m := NewCommentMetrics(prometheus.NewRegistry())

	m.Mutations.WithLabelValues("add_comment", "ok").Inc()
	m.Mutations.WithLabelValues("add_comment", "ok").Inc()
	m.Mutations.WithLabelValues("toggle_like", "persistence_error").Inc()

	assert.InDelta(t, 2, testutil.ToFloat64(m.Mutations.WithLabelValues("add_comment", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Mutations.WithLabelValues("toggle_like", "persistence_error")), 0)
}

func TestNewRegistry_ExposesBuildInfo(t *testing.T) {
	reg := NewRegistry()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fanpulse_build_info{commit="unknown",go_version="`+runtime.Version()+`",version="dev"} 1`)
}
