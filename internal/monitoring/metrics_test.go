package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveRun(4, 10, 2, 3*time.Millisecond)
	c.ObserveRun(6, 5, 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Runs))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.TracksLastRun))
	assert.Equal(t, 15.0, testutil.ToFloat64(c.Matches))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.UnmatchedHours))
}

func TestCollectorLabeledCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveNowcast("wind")
	c.ObserveNowcast("wind")
	c.ObserveNowcast("none")
	c.ObserveWindCache(true)
	c.ObserveWindCache(false)
	c.ObserveWindCache(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Nowcasts.WithLabelValues("wind")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Nowcasts.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.WindCache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.WindCache.WithLabelValues("miss")))
}

func TestNewCollectorTwiceReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	first.ObserveRun(1, 1, 0, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.Runs))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveRun(1, 2, 3, time.Second)
	c.ObserveNowcast("wind")
	c.ObserveWindCache(true)
}

func TestCollectorHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.ObserveRun(3, 1, 0, time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "reconstruction_tracks 3"), "body:\n%s", body)
}
