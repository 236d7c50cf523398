// Package pressure maps balloon altitudes to the discrete meteorological
// pressure levels used to key wind queries, and back.
package pressure

import "math"

// Level pairs a pressure level with its reference altitude.
type Level struct {
	Hpa        float64
	AltitudeKm float64
}

// Standard atmosphere reference table, surface first. Pressures are
// strictly descending and altitudes strictly ascending.
var levels = []Level{
	{1000, 0.1},
	{925, 0.8},
	{850, 1.5},
	{700, 3.0},
	{600, 4.2},
	{500, 5.6},
	{400, 7.2},
	{300, 9.2},
	{250, 10.4},
	{200, 11.8},
	{150, 13.6},
	{100, 16.2},
	{70, 18.5},
	{50, 20.6},
	{30, 23.9},
	{20, 26.5},
	{10, 31.2},
}

// Clamp bounds for queries outside the table.
const (
	MinAltitudeKm = 0.0
	MaxAltitudeKm = 35.0
)

func surface() Level { return levels[0] }
func top() Level     { return levels[len(levels)-1] }

// AltitudeToPressureLevel returns the table pressure level whose reference
// altitude is closest to altitudeKm. Altitudes below 0 clamp to the surface
// level and above 35 km to the highest level. Ties go to the first entry.
func AltitudeToPressureLevel(altitudeKm float64) float64 {
	if altitudeKm < MinAltitudeKm || math.IsNaN(altitudeKm) {
		return surface().Hpa
	}
	if altitudeKm > MaxAltitudeKm {
		return top().Hpa
	}

	best := levels[0]
	bestDiff := math.Abs(altitudeKm - best.AltitudeKm)
	for _, l := range levels[1:] {
		if d := math.Abs(altitudeKm - l.AltitudeKm); d < bestDiff {
			best, bestDiff = l, d
		}
	}
	return best.Hpa
}

// PressureLevelToAltitude returns the reference altitude for a table level.
// Pressures between table entries are interpolated log-linearly between the
// table extremes; pressures above 1000 hPa clamp to 0 km and below 10 hPa
// to 35 km.
func PressureLevelToAltitude(hpa float64) float64 {
	for _, l := range levels {
		if l.Hpa == hpa {
			return l.AltitudeKm
		}
	}

	lo, hi := surface(), top()
	if hpa > lo.Hpa {
		return MinAltitudeKm
	}
	if hpa < hi.Hpa || hpa <= 0 || math.IsNaN(hpa) {
		return MaxAltitudeKm
	}

	frac := (math.Log(lo.Hpa) - math.Log(hpa)) / (math.Log(lo.Hpa) - math.Log(hi.Hpa))
	return lo.AltitudeKm + frac*(hi.AltitudeKm-lo.AltitudeKm)
}

// AvailablePressureLevels returns the table pressures, strictly descending.
func AvailablePressureLevels() []float64 {
	out := make([]float64, len(levels))
	for i, l := range levels {
		out[i] = l.Hpa
	}
	return out
}

// Levels returns a copy of the reference table.
func Levels() []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}
