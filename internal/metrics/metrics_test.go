package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorStaticGauges(t *testing.T) {
	c := NewCollector(1.5, 16*time.Millisecond, 6*time.Second)
	assert.InDelta(t, 1.5, testutil.ToFloat64(c.SpeedMultiplier), 1e-9)
	assert.InDelta(t, 0.016, testutil.ToFloat64(c.FrameInterval), 1e-9)
	assert.InDelta(t, 6, testutil.ToFloat64(c.AlertDebounce), 1e-9)
}

func TestHandlerExposesAlerts(t *testing.T) {
	c := NewCollector(1, time.Second, time.Second)
	c.Alerts.WithLabelValues("warning", "speed").Inc()
	c.Alerts.WithLabelValues("warning", "speed").Inc()
	c.Ticks.Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `metro_alerts_total{category="warning",kind="speed"} 2`), text)
	assert.Contains(t, text, "metro_ticks_total 1")
}
