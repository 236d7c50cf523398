// Package api serves the tracker over HTTP: reconstruction, nowcasts,
// layer transitions and the run-report store.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/balloon.report/internal/config"
	"github.com/banshee-data/balloon.report/internal/db"
	"github.com/banshee-data/balloon.report/internal/diagnostics"
	"github.com/banshee-data/balloon.report/internal/fetch"
	"github.com/banshee-data/balloon.report/internal/frames"
	"github.com/banshee-data/balloon.report/internal/httputil"
	"github.com/banshee-data/balloon.report/internal/monitoring"
	"github.com/banshee-data/balloon.report/internal/nowcast"
	"github.com/banshee-data/balloon.report/internal/pressure"
	"github.com/banshee-data/balloon.report/internal/timeutil"
	"github.com/banshee-data/balloon.report/internal/tracks"
	"github.com/banshee-data/balloon.report/internal/units"
	"github.com/banshee-data/balloon.report/internal/version"
	"github.com/banshee-data/balloon.report/internal/wind"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultRunLimit caps GET /api/runs when no limit is given.
const DefaultRunLimit = 50

// Options wires a Server. Only Tuning-derived defaults are required; a nil
// DB disables the run endpoints and an empty WindURL disables remote wind
// lookups.
type Options struct {
	Tuning     *config.TuningConfig
	DB         *db.DB
	Metrics    *monitoring.Collector
	Clock      timeutil.Clock
	Units      string
	WindClient httputil.HTTPClient
	WindURL    string
}

type Server struct {
	assembler  *tracks.Assembler
	correlator *wind.Correlator
	predictor  *nowcast.Predictor
	cache      *wind.Cache
	windSource *fetch.WindSource
	db         *db.DB
	metrics    *monitoring.Collector
	solver     string
	units      string
}

func NewServer(opts Options) *Server {
	tuning := opts.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	u := opts.Units
	if !units.IsValid(u) {
		u = units.KMPH
	}

	assembler := tracks.NewAssembler()
	assembler.Engine = tuning.Engine()
	assembler.BridgeGaps = tuning.GetBridgeGaps()
	assembler.Clock = clock
	assembler.Metrics = opts.Metrics

	predictor := tuning.Predictor()
	predictor.Metrics = opts.Metrics

	s := &Server{
		assembler:  assembler,
		correlator: tuning.Correlator(),
		predictor:  predictor,
		cache:      wind.NewCache(tuning.GetWindCacheTTL(), clock, opts.Metrics),
		db:         opts.DB,
		metrics:    opts.Metrics,
		solver:     tuning.GetAssignmentSolver(),
		units:      u,
	}
	if opts.WindURL != "" {
		client := opts.WindClient
		if client == nil {
			client = httputil.NewStandardClient(nil)
		}
		s.windSource = &fetch.WindSource{Client: client, URL: opts.WindURL, Cache: s.cache}
	}
	return s
}

// Assembler exposes the configured assembler so the CLI reconstructs with
// the same policy as the server.
func (s *Server) Assembler() *tracks.Assembler { return s.assembler }

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/reconstruct", s.reconstructHandler)
	mux.HandleFunc("/api/nowcast", s.nowcastHandler)
	mux.HandleFunc("/api/transitions", s.transitionsHandler)
	mux.HandleFunc("/api/runs", s.listRunsHandler)
	mux.HandleFunc("/api/runs/{id}", s.runHandler)
	mux.HandleFunc("/api/wind/cache", s.windCacheHandler)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", s.healthHandler)
	return mux
}

// ReconstructRequest is the body of POST /api/reconstruct.
type ReconstructRequest struct {
	Results []frames.FetchResult `json:"results"`
}

// TrackRef selects the track a nowcast or transition request is about:
// either the track itself, or a set of fetch results plus the ID of one of
// the tracks reconstructed from them.
type TrackRef struct {
	Track   *tracks.Track        `json:"track,omitempty"`
	Results []frames.FetchResult `json:"results,omitempty"`
	TrackID string               `json:"trackId,omitempty"`
}

// NowcastRequest is the body of POST /api/nowcast. Wind overrides any
// remote lookup; History feeds the uncertainty estimate.
type NowcastRequest struct {
	TrackRef
	Wind    *wind.Vector  `json:"wind,omitempty"`
	History []wind.Sample `json:"history,omitempty"`
}

type NowcastResponse struct {
	TrackID        string              `json:"trackId"`
	Prediction     *nowcast.Prediction `json:"prediction"`
	Uncertainty    *float64            `json:"uncertainty,omitempty"`
	PredictedSpeed string              `json:"predictedSpeed,omitempty"`
	AverageSpeed   string              `json:"averageSpeed"`
	Units          string              `json:"units"`
}

// TransitionsRequest is the body of POST /api/transitions. Without samples
// the server looks up the wind series at the track's last position.
type TransitionsRequest struct {
	TrackRef
	Samples []wind.Sample `json:"samples,omitempty"`
}

type TransitionsResponse struct {
	TrackID       string                `json:"trackId"`
	PressureLevel float64               `json:"pressureLevel"`
	Transitions   []wind.Transition     `json:"transitions"`
	Counts        wind.TransitionCounts `json:"counts"`
}

func (s *Server) reconstructHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json", "png", "html":
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown format %q; use json, png or html", format))
		return
	}
	var req ReconstructRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res := s.assembler.Reconstruct(req.Results)

	if s.db != nil {
		usable, _ := frames.ParseResults(req.Results)
		report, err := s.db.RecordRun(r.Context(), db.Summarize(res, len(usable), "api", s.solver))
		if err != nil {
			monitoring.Logf("failed to record run: %v", err)
		} else {
			w.Header().Set("X-Run-ID", report.ID)
		}
	}

	switch format {
	case "png":
		var buf bytes.Buffer
		if err := diagnostics.WriteAltitudePlot(res, &buf); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	case "html":
		predictions := make([]*nowcast.Prediction, 0, len(res.Tracks))
		for _, t := range res.Tracks {
			if p := s.predictor.Preview(t, nil); p != nil {
				predictions = append(predictions, p)
			}
		}
		var buf bytes.Buffer
		if err := diagnostics.RenderTrackMap(&buf, res, predictions); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to render map: %v", err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	default:
		httputil.WriteJSONOK(w, res)
	}
}

func (s *Server) nowcastHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	u, ok := s.requestUnits(w, r)
	if !ok {
		return
	}
	var req NowcastRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	track, status, err := s.resolveTrack(req.TrackRef)
	if err != nil {
		httputil.WriteJSONError(w, status, err.Error())
		return
	}

	vec, history := req.Wind, req.History
	if vec == nil {
		var series []wind.Sample
		vec, series = s.remoteWind(r.Context(), track)
		if len(history) == 0 {
			history = series
		}
	}

	resp := NowcastResponse{
		TrackID:      track.ID,
		Prediction:   s.predictor.Predict(track, vec),
		AverageSpeed: units.FormatSpeed(track.AverageSpeedKmh, u),
		Units:        u,
	}
	if vec != nil {
		radius := nowcast.PredictionUncertainty(*vec, history)
		resp.Uncertainty = &radius
	}
	if resp.Prediction != nil {
		resp.PredictedSpeed = units.FormatSpeed(resp.Prediction.PredictedDistanceKm/nowcast.Horizon.Hours(), u)
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) transitionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req TransitionsRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	track, status, err := s.resolveTrack(req.TrackRef)
	if err != nil {
		httputil.WriteJSONError(w, status, err.Error())
		return
	}

	series := req.Samples
	if len(series) == 0 {
		_, series = s.remoteWind(r.Context(), track)
	}

	resp := TransitionsResponse{
		TrackID:     track.ID,
		Transitions: s.correlator.DetectLayerTransitions(track, series),
	}
	if last, ok := track.Last(); ok {
		resp.PressureLevel = pressure.AltitudeToPressureLevel(last.AltitudeKm)
	}
	resp.Counts = wind.CountTransitions(resp.Transitions)
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	limit := DefaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.db.ListRuns(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		run, err := s.db.GetRun(r.Context(), id)
		if errors.Is(err, db.ErrNotFound) {
			httputil.NotFound(w, fmt.Sprintf("run %s not found", id))
			return
		}
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to load run: %v", err))
			return
		}
		httputil.WriteJSONOK(w, run)
	case http.MethodDelete:
		err := s.db.DeleteRun(r.Context(), id)
		if errors.Is(err, db.ErrNotFound) {
			httputil.NotFound(w, fmt.Sprintf("run %s not found", id))
			return
		}
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to delete run: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) windCacheHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		httputil.MethodNotAllowed(w)
		return
	}
	n := s.cache.Clear()
	monitoring.Logf("wind cache cleared (%d entries)", n)
	httputil.WriteJSONOK(w, map[string]int{"cleared": n})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"status":    "ok",
		"version":   version.Current(),
		"windCache": s.cache.Len(),
		"runStore":  s.db != nil,
	})
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "run store not configured")
		return false
	}
	return true
}

func (s *Server) requestUnits(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, true
	}
	if !units.IsValid(u) {
		httputil.BadRequest(w, fmt.Sprintf("invalid units %q; valid options: %s", u, units.GetValidUnitsString()))
		return "", false
	}
	return u, true
}

// resolveTrack returns the referenced track with its metadata recomputed,
// plus the HTTP status to report when it cannot be resolved.
func (s *Server) resolveTrack(ref TrackRef) (*tracks.Track, int, error) {
	if ref.Track != nil {
		t := *ref.Track
		t.Points = append([]tracks.TrackPoint(nil), ref.Track.Points...)
		t.Finalize()
		return &t, http.StatusOK, nil
	}
	if ref.Results == nil {
		return nil, http.StatusBadRequest, errors.New("either track or results is required")
	}
	if ref.TrackID == "" {
		return nil, http.StatusBadRequest, errors.New("trackId is required with results")
	}
	t := s.assembler.Reconstruct(ref.Results).Track(ref.TrackID)
	if t == nil {
		return nil, http.StatusNotFound, fmt.Errorf("track %s not found", ref.TrackID)
	}
	return t, http.StatusOK, nil
}

// remoteWind looks up the wind series at the track's last position and
// pressure level. Lookup failures are logged and yield no wind, so callers
// fall back to velocity extrapolation.
func (s *Server) remoteWind(ctx context.Context, track *tracks.Track) (*wind.Vector, []wind.Sample) {
	if s.windSource == nil {
		return nil, nil
	}
	last, ok := track.Last()
	if !ok {
		return nil, nil
	}
	hpa := pressure.AltitudeToPressureLevel(last.AltitudeKm)
	series, err := s.windSource.Series(ctx, last.Latitude, last.Longitude, hpa)
	if err != nil {
		monitoring.Logf("wind lookup at %.2f,%.2f %.0f hPa failed: %v", last.Latitude, last.Longitude, hpa, err)
		return nil, nil
	}
	sample := s.correlator.GetAtTime(series, last.Timestamp)
	if sample == nil {
		return nil, series
	}
	v := sample.Vector()
	return &v, series
}
