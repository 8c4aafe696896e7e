package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("companion")
	c.Ticks.Add(3)
	c.Saves.WithLabelValues("periodic", "ok").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(c.Ticks))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "companion_ticks_total 3")
	assert.Contains(t, string(body), `companion_saves_total{result="ok",trigger="periodic"} 1`)
}

func TestCollector_Independent(t *testing.T) {
	a := NewCollector("companion")
	b := NewCollector("companion")
	a.Ticks.Inc()

	assert.Equal(t, 0.0, testutil.ToFloat64(b.Ticks))
}
