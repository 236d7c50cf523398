package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/balloon.report/internal/artifacts"
	"github.com/banshee-data/balloon.report/internal/config"
	"github.com/banshee-data/balloon.report/internal/db"
	"github.com/banshee-data/balloon.report/internal/fetch"
	"github.com/banshee-data/balloon.report/internal/frames"
	"github.com/banshee-data/balloon.report/internal/httputil"
	"github.com/banshee-data/balloon.report/internal/monitoring"
	"github.com/banshee-data/balloon.report/internal/nowcast"
	"github.com/banshee-data/balloon.report/internal/timeutil"
	"github.com/banshee-data/balloon.report/internal/tracks"
	"github.com/banshee-data/balloon.report/internal/units"
	"github.com/banshee-data/balloon.report/internal/wind"
)

// runConfig carries everything one batch run needs. Client and Clock
// default to the real implementations.
type runConfig struct {
	Input    string
	FeedURL  string
	WindFile string

	OutDir string
	Prefix string
	Plot   bool
	HTML   bool
	Units  string

	Tuning  *config.TuningConfig
	DB      *db.DB
	Metrics *monitoring.Collector
	Clock   timeutil.Clock
	Client  httputil.HTTPClient
	FS      artifacts.FileSystem
	Stdout  io.Writer
}

type nowcastOutput struct {
	TrackID string `json:"trackId"`
	Speed   string `json:"speed"`
	*nowcast.Prediction
}

type transitionOutput struct {
	Transitions []wind.Transition     `json:"transitions"`
	Counts      wind.TransitionCounts `json:"counts"`
}

// runOutput is the report printed by a batch run.
type runOutput struct {
	RunID string `json:"runId,omitempty"`
	*tracks.Result
	Nowcasts    []nowcastOutput             `json:"nowcasts"`
	Transitions map[string]transitionOutput `json:"transitions,omitempty"`
}

func run(ctx context.Context, cfg runConfig) error {
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	if cfg.FS == nil {
		cfg.FS = artifacts.OSFileSystem{}
	}

	results, source, err := loadResults(ctx, cfg)
	if err != nil {
		return err
	}

	var series []wind.Sample
	if cfg.WindFile != "" {
		if series, err = artifacts.ReadWind(cfg.FS, cfg.WindFile); err != nil {
			return err
		}
	}

	assembler := tracks.NewAssembler()
	assembler.Engine = tuning.Engine()
	assembler.BridgeGaps = tuning.GetBridgeGaps()
	assembler.Metrics = cfg.Metrics
	if cfg.Clock != nil {
		assembler.Clock = cfg.Clock
	}
	res := assembler.Reconstruct(results)

	correlator := tuning.Correlator()
	predictor := tuning.Predictor()
	predictor.Metrics = cfg.Metrics

	out := runOutput{Result: res, Nowcasts: []nowcastOutput{}}
	for _, t := range res.Tracks {
		var vec *wind.Vector
		if last, ok := t.Last(); ok {
			if s := correlator.GetAtTime(wind.Column(series, last.Position), last.Timestamp); s != nil {
				v := s.Vector()
				vec = &v
			}
		}
		if p := predictor.Predict(t, vec); p != nil {
			out.Nowcasts = append(out.Nowcasts, nowcastOutput{
				TrackID:    t.ID,
				Speed:      units.FormatSpeed(p.PredictedDistanceKm/nowcast.Horizon.Hours(), cfg.Units),
				Prediction: p,
			})
		}
	}
	if len(series) > 0 {
		out.Transitions = make(map[string]transitionOutput, len(res.Tracks))
		for _, t := range res.Tracks {
			var column []wind.Sample
			if last, ok := t.Last(); ok {
				column = wind.Column(series, last.Position)
			}
			ts := correlator.DetectLayerTransitions(t, column)
			out.Transitions[t.ID] = transitionOutput{Transitions: ts, Counts: wind.CountTransitions(ts)}
		}
	}

	if cfg.DB != nil {
		usable, _ := frames.ParseResults(results)
		report, err := cfg.DB.RecordRun(ctx, db.Summarize(res, len(usable), source, tuning.GetAssignmentSolver()))
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		out.RunID = report.ID
		monitoring.Logf("recorded run %s", report.ID)
	}

	if cfg.OutDir != "" {
		if err := writeArtifacts(cfg, out); err != nil {
			return err
		}
	}

	stdout := cfg.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

func loadResults(ctx context.Context, cfg runConfig) ([]frames.FetchResult, string, error) {
	switch {
	case cfg.Input != "":
		results, err := artifacts.ReadFrames(cfg.FS, cfg.Input)
		return results, cfg.Input, err
	case cfg.FeedURL != "":
		f := fetch.NewFetcher(cfg.FeedURL)
		if cfg.Client != nil {
			f.Client = cfg.Client
		}
		return f.FetchFrames(ctx), cfg.FeedURL, nil
	default:
		return nil, "", errors.New("no input: set -input or -url")
	}
}

func writeArtifacts(cfg runConfig, out runOutput) error {
	store := artifacts.NewStore(cfg.FS, cfg.OutDir)
	stem := artifacts.SanitizeName(cfg.Prefix)

	written := make([]string, 0, 3)
	p, err := store.WriteJSON(stem+".json", out)
	if err != nil {
		return err
	}
	written = append(written, p)

	if cfg.Plot {
		if p, err = store.WriteAltitudePlot(stem+"-altitude.png", out.Result); err != nil {
			return err
		}
		written = append(written, p)
	}
	if cfg.HTML {
		predictions := make([]*nowcast.Prediction, 0, len(out.Nowcasts))
		for _, n := range out.Nowcasts {
			predictions = append(predictions, n.Prediction)
		}
		if p, err = store.WriteTrackMap(stem+"-map.html", out.Result, predictions); err != nil {
			return err
		}
		written = append(written, p)
	}
	for _, w := range written {
		monitoring.Logf("wrote %s", w)
	}
	return nil
}
