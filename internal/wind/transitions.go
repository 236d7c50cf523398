package wind

import (
	"time"

	"github.com/banshee-data/balloon.report/internal/tracks"
)

// Transition kinds.
const (
	TransitionDirection = "direction"
	TransitionSpeed     = "speed"
	TransitionBoth      = "both"
)

// Transition marks a change of wind regime between two consecutive track
// points, typically the balloon moving into a different layer.
type Transition struct {
	FromTime           time.Time `json:"fromTime"`
	ToTime             time.Time `json:"toTime"`
	FromAltitudeKm     float64   `json:"fromAltitude"`
	ToAltitudeKm       float64   `json:"toAltitude"`
	DirectionChangeDeg float64   `json:"directionChange"`
	SpeedChangeKmh     float64   `json:"speedChange"`
	Type               string    `json:"type"`
}

// TransitionCounts summarises transitions by kind.
type TransitionCounts struct {
	Total     int `json:"total"`
	Direction int `json:"direction"`
	Speed     int `json:"speed"`
	Both      int `json:"both"`
}

func (c *Correlator) thresholds() (dir, speed float64) {
	dir, speed = DefaultDirectionChangeDeg, DefaultSpeedChangeKmh
	if c != nil && c.DirectionChangeDeg > 0 {
		dir = c.DirectionChangeDeg
	}
	if c != nil && c.SpeedChangeKmh > 0 {
		speed = c.SpeedChangeKmh
	}
	return dir, speed
}

// DetectLayerTransitions walks the track in order and reports each pair of
// consecutive points whose wind samples differ by more than the direction
// or speed threshold. Pairs where either point has no usable sample are
// skipped.
func (c *Correlator) DetectLayerTransitions(track *tracks.Track, series []Sample) []Transition {
	out := []Transition{}
	if track.Len() < 2 || len(series) == 0 {
		return out
	}
	dirLimit, speedLimit := c.thresholds()

	points := c.Correlate(track, series)
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		if a.Wind == nil || b.Wind == nil {
			continue
		}
		dDir := directionChange(a.Wind.DirectionDeg, b.Wind.DirectionDeg)
		dSpeed := speedChange(a.Wind.SpeedKmh, b.Wind.SpeedKmh)

		dirShift := dDir > dirLimit
		speedShift := dSpeed > speedLimit
		var kind string
		switch {
		case dirShift && speedShift:
			kind = TransitionBoth
		case dirShift:
			kind = TransitionDirection
		case speedShift:
			kind = TransitionSpeed
		default:
			continue
		}

		out = append(out, Transition{
			FromTime:           a.Point.Timestamp,
			ToTime:             b.Point.Timestamp,
			FromAltitudeKm:     a.Point.AltitudeKm,
			ToAltitudeKm:       b.Point.AltitudeKm,
			DirectionChangeDeg: dDir,
			SpeedChangeKmh:     dSpeed,
			Type:               kind,
		})
	}
	return out
}

// DetectLayerTransitions uses the default staleness window and thresholds.
func DetectLayerTransitions(track *tracks.Track, series []Sample) []Transition {
	return (*Correlator)(nil).DetectLayerTransitions(track, series)
}

// CountTransitions tallies transitions by kind.
func CountTransitions(ts []Transition) TransitionCounts {
	c := TransitionCounts{Total: len(ts)}
	for _, t := range ts {
		switch t.Type {
		case TransitionDirection:
			c.Direction++
		case TransitionSpeed:
			c.Speed++
		case TransitionBoth:
			c.Both++
		}
	}
	return c
}
