package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/balloon.report/internal/config"
	"github.com/banshee-data/balloon.report/internal/db"
	"github.com/banshee-data/balloon.report/internal/frames"
	"github.com/banshee-data/balloon.report/internal/geo"
	"github.com/banshee-data/balloon.report/internal/httputil"
	"github.com/banshee-data/balloon.report/internal/monitoring"
	"github.com/banshee-data/balloon.report/internal/nowcast"
	"github.com/banshee-data/balloon.report/internal/testutil"
	"github.com/banshee-data/balloon.report/internal/timeutil"
	"github.com/banshee-data/balloon.report/internal/tracks"
	"github.com/banshee-data/balloon.report/internal/wind"
)

func init() {
	monitoring.SetLogger(nil)
}

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// twoHourResults is one balloon drifting east, seen at hours 1 and 0.
func twoHourResults() []frames.FetchResult {
	return append(testutil.Drift(45, 7, 0.5, 12, 2), testutil.FailedFrame(2, "timeout"))
}

func posAt(lat, lon, alt float64) geo.Position {
	return geo.Position{Latitude: lat, Longitude: lon, AltitudeKm: alt}
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = timeutil.NewMockClock(testNow)
	}
	if opts.Tuning == nil {
		opts.Tuning = config.MustLoadDefaultConfig()
	}
	s := NewServer(opts)
	ts := httptest.NewServer(LoggingMiddleware(s.ServeMux()))
	t.Cleanup(ts.Close)
	return s, ts
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestReconstructHandler(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp := postJSON(t, ts.URL+"/api/reconstruct", ReconstructRequest{Results: twoHourResults()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-Run-ID"), "no run store configured")

	res := decode[tracks.Result](t, resp)
	require.Len(t, res.Tracks, 1)
	tr := res.Tracks[0]
	assert.Equal(t, "track-1", tr.ID)
	require.Len(t, tr.Points, 2)
	assert.WithinDuration(t, testNow.Add(-time.Hour), tr.Points[0].Timestamp, 0)
	assert.WithinDuration(t, testNow, tr.Points[1].Timestamp, 0)
	assert.Equal(t, []int{2}, res.UnmatchedHours)
	assert.Equal(t, 1, res.MatchStatistics.TotalMatches)
}

func TestReconstructHandlerRejectsBadRequests(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	t.Run("method", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/api/reconstruct")
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("unknown field", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/reconstruct", "application/json", strings.NewReader(`{"frames":[]}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[httputil.ErrorResponse](t, resp)
		assert.Contains(t, body.Error, "frames")
	})

	t.Run("format", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/reconstruct?format=svg", ReconstructRequest{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestReconstructHandlerRenders(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	t.Run("png", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/reconstruct?format=png", ReconstructRequest{Results: twoHourResults()})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		var buf bytes.Buffer
		_, err := buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
	})

	t.Run("html", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/reconstruct?format=html", ReconstructRequest{Results: twoHourResults()})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		var buf bytes.Buffer
		_, err := buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "track-1")
		assert.Contains(t, buf.String(), "nowcast")
	})
}

func TestRunEndpoints(t *testing.T) {
	_, ts := newTestServer(t, Options{DB: newTestDB(t)})

	resp := postJSON(t, ts.URL+"/api/reconstruct", ReconstructRequest{Results: twoHourResults()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := resp.Header.Get("X-Run-ID")
	require.NotEmpty(t, id)

	list := do(t, http.MethodGet, ts.URL+"/api/runs")
	require.Equal(t, http.StatusOK, list.StatusCode)
	runs := decode[[]db.RunReport](t, list)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "api", runs[0].Source)
	assert.Equal(t, 2, runs[0].Frames)
	assert.Equal(t, 1, runs[0].Tracks)
	assert.Equal(t, []int{2}, runs[0].UnmatchedHours)

	got := do(t, http.MethodGet, ts.URL+"/api/runs/"+id)
	require.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, id, decode[db.RunReport](t, got).ID)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, ts.URL+"/api/runs?limit=0").StatusCode)
	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, ts.URL+"/api/runs/"+id).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/api/runs/"+id).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, ts.URL+"/api/runs/"+id).StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, http.MethodPut, ts.URL+"/api/runs/"+id).StatusCode)
}

func TestRunEndpointsWithoutStore(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, http.MethodGet, ts.URL+"/api/runs").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, http.MethodGet, ts.URL+"/api/runs/abc").StatusCode)
}

func TestNowcastWithExplicitWind(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	track := &tracks.Track{
		ID: "mine",
		Points: []tracks.TrackPoint{
			{Position: posAt(45, 7, 12), Timestamp: testNow},
		},
	}
	history := []wind.Sample{{SpeedKmh: 40}, {SpeedKmh: 60}}
	resp := postJSON(t, ts.URL+"/api/nowcast?units=mph", NowcastRequest{
		TrackRef: TrackRef{Track: track},
		Wind:     &wind.Vector{SpeedKmh: 50, DirectionDeg: 90},
		History:  history,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[NowcastResponse](t, resp)
	assert.Equal(t, "mine", body.TrackID)
	require.NotNil(t, body.Prediction)
	assert.Equal(t, nowcast.MethodWind, body.Prediction.Method)
	assert.InDelta(t, 50, body.Prediction.PredictedDistanceKm, 1e-9)
	assert.WithinDuration(t, testNow.Add(time.Hour), body.Prediction.PredictedTime, 0)
	require.NotNil(t, body.Uncertainty)
	assert.InDelta(t, 5, *body.Uncertainty, 1e-9, "half the spread of the history speeds")
	assert.Equal(t, "31.1 mph", body.PredictedSpeed)
	assert.Equal(t, "mph", body.Units)
}

func TestNowcastFromResultsFallsBackToVelocity(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp := postJSON(t, ts.URL+"/api/nowcast", NowcastRequest{
		TrackRef: TrackRef{Results: twoHourResults(), TrackID: "track-1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[NowcastResponse](t, resp)
	require.NotNil(t, body.Prediction)
	assert.Equal(t, nowcast.MethodVelocity, body.Prediction.Method)
	assert.Nil(t, body.Uncertainty)
	assert.Greater(t, body.Prediction.PredictedLongitude, 7.5)
}

func TestNowcastErrors(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	cases := []struct {
		name   string
		url    string
		req    NowcastRequest
		status int
	}{
		{"no track", "/api/nowcast", NowcastRequest{}, http.StatusBadRequest},
		{"missing id", "/api/nowcast", NowcastRequest{TrackRef: TrackRef{Results: twoHourResults()}}, http.StatusBadRequest},
		{"unknown id", "/api/nowcast", NowcastRequest{TrackRef: TrackRef{Results: twoHourResults(), TrackID: "track-9"}}, http.StatusNotFound},
		{"bad units", "/api/nowcast?units=furlongs", NowcastRequest{}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+tc.url, tc.req)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestNowcastUsesRemoteWindAndCache(t *testing.T) {
	mock := httputil.NewMockHTTPClient().Handle("/wind", http.StatusOK,
		`{"samples":[{"latitude":45,"longitude":7.5,"pressure":200,"altitude":11.8,"speed":72,"direction":180,"timestamp":"2026-05-01T11:30:00Z"}]}`)
	s, ts := newTestServer(t, Options{WindClient: mock, WindURL: "http://wind.test/wind"})

	req := NowcastRequest{TrackRef: TrackRef{Results: twoHourResults(), TrackID: "track-1"}}
	for i := 0; i < 2; i++ {
		resp := postJSON(t, ts.URL+"/api/nowcast", req)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[NowcastResponse](t, resp)
		require.NotNil(t, body.Prediction)
		assert.Equal(t, nowcast.MethodWind, body.Prediction.Method)
		require.NotNil(t, body.Prediction.Wind)
		assert.Equal(t, 72.0, body.Prediction.Wind.SpeedKmh)
		require.NotNil(t, body.Uncertainty)
		assert.InDelta(t, 14.4, *body.Uncertainty, 1e-9, "single sample history uses 20% of speed")
	}
	assert.Equal(t, 1, mock.RequestCount(), "second lookup served from cache")
	assert.Equal(t, 1, s.cache.Len())

	resp := do(t, http.MethodDelete, ts.URL+"/api/wind/cache")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]int{"cleared": 1}, decode[map[string]int](t, resp))
	assert.Zero(t, s.cache.Len())
}

func TestNowcastRemoteWindFailureFallsBack(t *testing.T) {
	mock := httputil.NewMockHTTPClient().Handle("/wind", http.StatusBadGateway, "down")
	_, ts := newTestServer(t, Options{WindClient: mock, WindURL: "http://wind.test/wind"})

	resp := postJSON(t, ts.URL+"/api/nowcast", NowcastRequest{
		TrackRef: TrackRef{Results: twoHourResults(), TrackID: "track-1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[NowcastResponse](t, resp)
	require.NotNil(t, body.Prediction)
	assert.Equal(t, nowcast.MethodVelocity, body.Prediction.Method)
}

func TestTransitionsHandler(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	samples := []wind.Sample{
		{SpeedKmh: 20, DirectionDeg: 90, Timestamp: testNow.Add(-time.Hour)},
		{SpeedKmh: 40, DirectionDeg: 180, Timestamp: testNow},
	}
	resp := postJSON(t, ts.URL+"/api/transitions", TransitionsRequest{
		TrackRef: TrackRef{Results: twoHourResults(), TrackID: "track-1"},
		Samples:  samples,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[TransitionsResponse](t, resp)
	assert.Equal(t, "track-1", body.TrackID)
	assert.Equal(t, 200.0, body.PressureLevel)
	require.Len(t, body.Transitions, 1)
	assert.Equal(t, wind.TransitionBoth, body.Transitions[0].Type)
	assert.Equal(t, wind.TransitionCounts{Total: 1, Both: 1}, body.Counts)
}

func TestTransitionsHandlerWithoutWind(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp := postJSON(t, ts.URL+"/api/transitions", TransitionsRequest{
		TrackRef: TrackRef{Results: twoHourResults(), TrackID: "track-1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[TransitionsResponse](t, resp)
	assert.NotNil(t, body.Transitions)
	assert.Empty(t, body.Transitions)
	assert.Zero(t, body.Counts.Total)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := monitoring.NewCollector(reg)
	require.NoError(t, err)
	_, ts := newTestServer(t, Options{Metrics: metrics})

	health := do(t, http.MethodGet, ts.URL+"/healthz")
	require.Equal(t, http.StatusOK, health.StatusCode)
	h := decode[map[string]any](t, health)
	assert.Equal(t, "ok", h["status"])
	assert.Equal(t, false, h["runStore"])

	postJSON(t, ts.URL+"/api/reconstruct", ReconstructRequest{Results: twoHourResults()})

	resp := do(t, http.MethodGet, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "reconstruction_runs_total 1")
	assert.Contains(t, buf.String(), "reconstruction_matches_total 1")
	assert.NotContains(t, buf.String(), "nowcast_predictions_total")
}

func TestTrackMapRenderIsNotCountedAsNowcast(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := monitoring.NewCollector(reg)
	require.NoError(t, err)
	_, ts := newTestServer(t, Options{Metrics: metrics})

	resp := postJSON(t, ts.URL+"/api/reconstruct?format=html", ReconstructRequest{Results: twoHourResults()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, promtestutil.CollectAndCount(metrics.Nowcasts))

	resp = postJSON(t, ts.URL+"/api/nowcast", NowcastRequest{TrackRef: TrackRef{Results: twoHourResults(), TrackID: "track-1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Nowcasts.WithLabelValues(nowcast.MethodVelocity)))
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"404"+colorReset, statusCodeColor(404))
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	defer monitoring.SetLogger(nil)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Len(t, lines, 1)
}
