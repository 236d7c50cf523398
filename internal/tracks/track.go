// Package tracks assembles hourly frames into balloon tracks.
package tracks

import (
	"math"
	"sort"
	"time"

	"github.com/banshee-data/balloon.report/internal/geo"
)

// TrackPoint is one observed position of a track. Confidence is the
// association confidence of the match that appended the point; the first
// point of a track carries none.
type TrackPoint struct {
	geo.Position
	Timestamp  time.Time `json:"timestamp"`
	Hour       int       `json:"hour"`
	Confidence float64   `json:"confidence,omitempty"`
}

// Track is a sequence of positions believed to belong to one balloon.
// Metadata fields are only meaningful after Finalize.
type Track struct {
	ID     string       `json:"id"`
	Points []TrackPoint `json:"points"`

	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationHours   float64   `json:"durationHours"`
	TotalDistanceKm float64   `json:"totalDistance"`
	AverageSpeedKmh float64   `json:"averageSpeed"`
	MinAltitudeKm   float64   `json:"minAltitude"`
	MaxAltitudeKm   float64   `json:"maxAltitude"`
	AltitudeRangeKm float64   `json:"altitudeRange"`
}

// Len returns the number of points on the track.
func (t *Track) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Points)
}

// Last returns the most recent point. ok is false for an empty track.
func (t *Track) Last() (p TrackPoint, ok bool) {
	if t.Len() == 0 {
		return TrackPoint{}, false
	}
	return t.Points[len(t.Points)-1], true
}

// Finalize orders the points by time and recomputes the metadata.
func (t *Track) Finalize() {
	sort.SliceStable(t.Points, func(i, j int) bool {
		return t.Points[i].Timestamp.Before(t.Points[j].Timestamp)
	})

	t.StartTime, t.EndTime = time.Time{}, time.Time{}
	t.DurationHours, t.TotalDistanceKm, t.AverageSpeedKmh = 0, 0, 0
	t.MinAltitudeKm, t.MaxAltitudeKm, t.AltitudeRangeKm = 0, 0, 0
	if len(t.Points) == 0 {
		return
	}

	first, last := t.Points[0], t.Points[len(t.Points)-1]
	t.StartTime = first.Timestamp
	t.EndTime = last.Timestamp
	t.DurationHours = last.Timestamp.Sub(first.Timestamp).Hours()

	minAlt, maxAlt := math.Inf(1), math.Inf(-1)
	for i, p := range t.Points {
		if i > 0 {
			t.TotalDistanceKm += geo.DistanceKm(t.Points[i-1].Position, p.Position)
		}
		minAlt = math.Min(minAlt, p.AltitudeKm)
		maxAlt = math.Max(maxAlt, p.AltitudeKm)
	}
	t.MinAltitudeKm = minAlt
	t.MaxAltitudeKm = maxAlt
	t.AltitudeRangeKm = maxAlt - minAlt

	if t.DurationHours > 0 {
		t.AverageSpeedKmh = t.TotalDistanceKm / t.DurationHours
	}
}
