package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gathered returns the value of a counter or the sample count of a
// histogram in m's registry, matching all given label values.
func gathered(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			if h := metric.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
		}
	}
	return 0
}

func TestMetrics_ObserveSearch(t *testing.T) {
	// Given: fresh metrics
	m := NewMetrics()

	// When: two searches are observed, one degraded
	m.ObserveSearch(12*time.Millisecond, 5, false)
	m.ObserveSearch(40*time.Millisecond, 3, true)

	// Then: totals and the degraded counter reflect both
	assert.InDelta(t, 2, gathered(t, m, "hybridrag_searches_total", nil), 1e-9)
	assert.InDelta(t, 1, gathered(t, m, "hybridrag_search_degraded_total", nil), 1e-9)
	assert.InDelta(t, 2, gathered(t, m, "hybridrag_search_duration_seconds", nil), 1e-9)
}

func TestMetrics_ObserveRequest(t *testing.T) {
	m := NewMetrics()

	m.ObserveRequest("POST", "/v1/search", 200, time.Millisecond)
	m.ObserveRequest("POST", "/v1/search", 200, time.Millisecond)
	m.ObserveRequest("POST", "/v1/search", 400, time.Millisecond)

	ok := map[string]string{"route": "/v1/search", "status": "200"}
	bad := map[string]string{"route": "/v1/search", "status": "400"}
	assert.InDelta(t, 2, gathered(t, m, "hybridrag_http_requests_total", ok), 1e-9)
	assert.InDelta(t, 1, gathered(t, m, "hybridrag_http_requests_total", bad), 1e-9)
}

func TestMetrics_PrivateRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	assert.NotPanics(t, func() {
		_ = NewMetrics()
		_ = NewMetrics()
	})
}
