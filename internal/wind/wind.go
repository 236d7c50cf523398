// Package wind correlates tracks with wind observations and detects
// changes of wind layer along a track.
package wind

import (
	"math"
	"time"

	"github.com/banshee-data/balloon.report/internal/geo"
	"github.com/banshee-data/balloon.report/internal/tracks"
)

// DefaultStaleness is how far a sample may be from the requested time and
// still count as evidence.
const DefaultStaleness = time.Hour

// Transition thresholds.
const (
	DefaultDirectionChangeDeg = 30.0
	DefaultSpeedChangeKmh     = 10.0
)

// Sample is one wind observation at a location and pressure level.
type Sample struct {
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	PressureHpa  float64   `json:"pressure"`
	AltitudeKm   float64   `json:"altitude"`
	SpeedKmh     float64   `json:"speed"`
	DirectionDeg float64   `json:"direction"`
	Timestamp    time.Time `json:"timestamp"`
}

// Vector returns the speed and direction of the sample.
func (s Sample) Vector() Vector {
	return Vector{SpeedKmh: s.SpeedKmh, DirectionDeg: s.DirectionDeg}
}

// Vector is a wind velocity. DirectionDeg is the heading the air moves
// toward, 0 = north, clockwise.
type Vector struct {
	SpeedKmh     float64 `json:"speed"`
	DirectionDeg float64 `json:"direction"`
}

// CorrelatedPoint pairs a track point with the nearest usable wind sample.
type CorrelatedPoint struct {
	Point tracks.TrackPoint `json:"point"`
	Wind  *Sample           `json:"wind,omitempty"`
}

// Correlator resolves wind samples for track points. The zero value uses
// DefaultStaleness and the default transition thresholds.
type Correlator struct {
	Staleness          time.Duration
	DirectionChangeDeg float64
	SpeedChangeKmh     float64
}

// NewCorrelator returns a Correlator with the default thresholds.
func NewCorrelator() *Correlator {
	return &Correlator{
		Staleness:          DefaultStaleness,
		DirectionChangeDeg: DefaultDirectionChangeDeg,
		SpeedChangeKmh:     DefaultSpeedChangeKmh,
	}
}

func (c *Correlator) staleness() time.Duration {
	if c == nil || c.Staleness <= 0 {
		return DefaultStaleness
	}
	return c.Staleness
}

// GetAtTime returns the sample closest in time to t, or nil when the
// series is empty or the closest sample is more than the staleness window
// away. Ties keep the earlier entry in the series.
func (c *Correlator) GetAtTime(series []Sample, t time.Time) *Sample {
	best := -1
	var bestDiff time.Duration
	for i := range series {
		d := absDuration(series[i].Timestamp.Sub(t))
		if best < 0 || d < bestDiff {
			best, bestDiff = i, d
		}
	}
	if best < 0 || bestDiff > c.staleness() {
		return nil
	}
	s := series[best]
	return &s
}

// GetAtTime is Correlator.GetAtTime with the default staleness window.
func GetAtTime(series []Sample, t time.Time) *Sample {
	return (*Correlator)(nil).GetAtTime(series, t)
}

// Correlate attaches the nearest usable sample to every point of the track.
func (c *Correlator) Correlate(track *tracks.Track, series []Sample) []CorrelatedPoint {
	if track.Len() == 0 {
		return []CorrelatedPoint{}
	}
	out := make([]CorrelatedPoint, len(track.Points))
	for i, p := range track.Points {
		out[i] = CorrelatedPoint{Point: p, Wind: c.GetAtTime(series, p.Timestamp)}
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// directionChange is the circular difference between two headings, 0..180.
func directionChange(a, b float64) float64 {
	return geo.AngleDiffDeg(a, b)
}

func speedChange(a, b float64) float64 {
	return math.Abs(b - a)
}
