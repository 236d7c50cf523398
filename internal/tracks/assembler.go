package tracks

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/balloon.report/internal/association"
	"github.com/banshee-data/balloon.report/internal/frames"
	"github.com/banshee-data/balloon.report/internal/geo"
	"github.com/banshee-data/balloon.report/internal/monitoring"
	"github.com/banshee-data/balloon.report/internal/timeutil"
)

// MatchStatistics summarises the matches accepted during one run.
type MatchStatistics struct {
	TotalMatches      int     `json:"totalMatches"`
	AverageDistanceKm float64 `json:"averageDistance"`
	AverageConfidence float64 `json:"averageConfidence"`
}

// Result is the output of one reconstruction run. UnmatchedHours lists the
// hours that produced no usable frame.
type Result struct {
	Tracks          []*Track        `json:"tracks"`
	UnmatchedHours  []int           `json:"unmatchedPoints"`
	MatchStatistics MatchStatistics `json:"matchStatistics"`
}

// Track returns the track with the given ID, or nil.
func (r *Result) Track(id string) *Track {
	for _, t := range r.Tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Assembler chains hourly frames into tracks. An Assembler holds no state
// between runs and may be shared by concurrent callers.
type Assembler struct {
	Engine *association.Engine
	Clock  timeutil.Clock

	// BridgeGaps keeps the last usable frame alive across missing hours and
	// widens the distance gate by the number of hours skipped. When false a
	// missing hour ends every track that was alive before it.
	BridgeGaps bool

	Metrics *monitoring.Collector
}

// NewAssembler returns an Assembler with the default association engine
// and the wall clock.
func NewAssembler() *Assembler {
	return &Assembler{
		Engine: association.NewEngine(),
		Clock:  timeutil.RealClock{},
	}
}

// Reconstruct builds tracks from a set of hourly fetch outcomes. Frames are
// consumed oldest first. Point timestamps are derived from a single reading
// of the clock as now minus the hour label.
func (a *Assembler) Reconstruct(results []frames.FetchResult) *Result {
	engine := a.Engine
	if engine == nil {
		engine = association.NewEngine()
	}
	clock := a.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	now := clock.Now()
	started := time.Now()

	byHour, unmatched := frames.ParseResults(results)

	run := &run{now: now}
	var (
		prev     []geo.Position
		owners   []*Track
		prevHour int
	)

	for hour := frames.WindowHours - 1; hour >= 0; hour-- {
		frame, ok := byHour[hour]
		if !ok {
			if !a.BridgeGaps {
				prev, owners = nil, nil
			}
			continue
		}

		current := make([]*Track, len(frame.Positions))
		if len(prev) > 0 {
			scale := 1.0
			if a.BridgeGaps {
				scale = float64(prevHour - hour)
			}
			for _, m := range engine.AssociateScaled(prev, frame.Positions, scale) {
				owner := owners[m.FromIndex]
				if owner == nil || current[m.ToIndex] != nil || run.extended(owner, hour) {
					continue
				}
				run.extend(owner, frame.Positions[m.ToIndex], hour, m)
				current[m.ToIndex] = owner
			}
		}
		for j, p := range frame.Positions {
			if current[j] == nil {
				current[j] = run.start(p, hour)
			}
		}

		prev, owners, prevHour = frame.Positions, current, hour
	}

	for _, t := range run.tracks {
		t.Finalize()
	}

	res := &Result{
		Tracks:          run.tracks,
		UnmatchedHours:  unmatched,
		MatchStatistics: run.statistics(),
	}
	if res.Tracks == nil {
		res.Tracks = []*Track{}
	}

	monitoring.Logf("tracks: %d frames, %d tracks, %d matches, %d unmatched hours",
		len(byHour), len(res.Tracks), res.MatchStatistics.TotalMatches, len(res.UnmatchedHours))
	a.Metrics.ObserveRun(len(res.Tracks), res.MatchStatistics.TotalMatches, len(res.UnmatchedHours), time.Since(started))
	return res
}

// run is the per-invocation state of Reconstruct.
type run struct {
	now         time.Time
	tracks      []*Track
	lastHour    map[*Track]int
	distances   []float64
	confidences []float64
}

func (r *run) start(p geo.Position, hour int) *Track {
	t := &Track{
		ID:     fmt.Sprintf("track-%d", len(r.tracks)+1),
		Points: []TrackPoint{{Position: p, Timestamp: timeutil.HourOffset(r.now, hour), Hour: hour}},
	}
	r.tracks = append(r.tracks, t)
	r.mark(t, hour)
	return t
}

func (r *run) extend(t *Track, p geo.Position, hour int, m association.Match) {
	t.Points = append(t.Points, TrackPoint{
		Position:   p,
		Timestamp:  timeutil.HourOffset(r.now, hour),
		Hour:       hour,
		Confidence: m.Confidence,
	})
	r.mark(t, hour)
	r.distances = append(r.distances, m.DistanceKm)
	r.confidences = append(r.confidences, m.Confidence)
}

func (r *run) mark(t *Track, hour int) {
	if r.lastHour == nil {
		r.lastHour = make(map[*Track]int)
	}
	r.lastHour[t] = hour
}

// extended reports whether t already received a point for hour.
func (r *run) extended(t *Track, hour int) bool {
	h, ok := r.lastHour[t]
	return ok && h == hour
}

func (r *run) statistics() MatchStatistics {
	if len(r.distances) == 0 {
		return MatchStatistics{}
	}
	return MatchStatistics{
		TotalMatches:      len(r.distances),
		AverageDistanceKm: stat.Mean(r.distances, nil),
		AverageConfidence: stat.Mean(r.confidences, nil),
	}
}
