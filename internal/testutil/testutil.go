// Package testutil provides shared frame fixtures for tests.
package testutil

import (
	"github.com/banshee-data/balloon.report/internal/frames"
)

// Frame returns a successful fetch result for hour holding the given
// [lat, lon, alt] triples.
func Frame(hour int, points ...[]float64) frames.FetchResult {
	if points == nil {
		points = [][]float64{}
	}
	return frames.FetchResult{Hour: hour, Success: true, Data: points}
}

// FailedFrame returns a failed fetch result for hour.
func FailedFrame(hour int, msg string) frames.FetchResult {
	return frames.FetchResult{Hour: hour, Success: false, Error: msg}
}

// Drift returns one frame per hour from hours-1 down to 0 with a single
// balloon at latitude lat moving stepLon degrees east each hour, starting
// from lon0 in the oldest frame.
func Drift(lat, lon0, stepLon, alt float64, hours int) []frames.FetchResult {
	out := make([]frames.FetchResult, 0, hours)
	for h := hours - 1; h >= 0; h-- {
		lon := lon0 + stepLon*float64(hours-1-h)
		out = append(out, Frame(h, []float64{lat, lon, alt}))
	}
	return out
}
