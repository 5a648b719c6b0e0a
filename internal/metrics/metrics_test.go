package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value gathers m and returns the value of the series name with the given
// label pairs, or zero when the series does not exist.
func value(t *testing.T, m *Metrics, name string, labels ...string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if !hasLabels(metric, labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func hasLabels(metric *dto.Metric, labels []string) bool {
	for i := 0; i+1 < len(labels); i += 2 {
		found := false
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == labels[i] && pair.GetValue() == labels[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestObserveBuild(t *testing.T) {
	m := New()

	m.ObserveBuild("selected", 120*time.Millisecond, nil)
	m.ObserveBuild("selected", 80*time.Millisecond, nil)
	m.ObserveBuild("all", time.Second, errors.New("boom"))

	assert.Equal(t, 2.0, value(t, m, "docserve_builds_total", "mode", "selected", "outcome", OutcomeSuccess))
	assert.Equal(t, 1.0, value(t, m, "docserve_builds_total", "mode", "all", "outcome", OutcomeFailure))
	assert.Equal(t, 0.0, value(t, m, "docserve_builds_total", "mode", "all", "outcome", OutcomeSuccess))
	assert.Equal(t, 2.0, value(t, m, "docserve_build_duration_seconds", "mode", "selected"))
}

func TestSubscriberGauges(t *testing.T) {
	m := New()

	doneA := m.SSEConnected()
	doneB := m.SSEConnected()
	doneWS := m.WSConnected()
	assert.Equal(t, 2.0, value(t, m, "docserve_sse_subscribers"))
	assert.Equal(t, 1.0, value(t, m, "docserve_ws_subscribers"))

	doneA()
	doneB()
	doneWS()
	assert.Equal(t, 0.0, value(t, m, "docserve_sse_subscribers"))
	assert.Equal(t, 0.0, value(t, m, "docserve_ws_subscribers"))
}

func TestReloadsAndChanges(t *testing.T) {
	m := New()
	m.Reloaded()
	m.Changed("modified")
	m.Changed("modified")
	m.Changed("created")

	assert.Equal(t, 1.0, value(t, m, "docserve_reloads_total"))
	assert.Equal(t, 2.0, value(t, m, "docserve_changes_total", "kind", "modified"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBuild("all", time.Second, nil)
	m.Reloaded()
	m.Changed("created")
	m.SSEConnected()()
	m.WSConnected()()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.Reloaded()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "docserve_reloads_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
