package wind

import (
	"math"

	"github.com/banshee-data/balloon.report/internal/geo"
	"github.com/banshee-data/balloon.report/internal/pressure"
)

// Column returns the samples of series that describe the air at p: those at
// the pressure level of p's altitude, from the sampled location nearest p.
// Locations are compared at the 0.1° resolution of cache keys. The result is
// nil when no sample is at that level.
func Column(series []Sample, p geo.Position) []Sample {
	level := pressure.AltitudeToPressureLevel(p.AltitudeKm)

	var (
		nearest Key
		found   bool
		best    = math.Inf(1)
	)
	for _, s := range series {
		if s.PressureHpa != level {
			continue
		}
		d := geo.DistanceKm(p, geo.Position{Latitude: s.Latitude, Longitude: s.Longitude})
		if d < best {
			best = d
			nearest = NewKey(s.Latitude, s.Longitude, level)
			found = true
		}
	}
	if !found {
		return nil
	}

	var out []Sample
	for _, s := range series {
		if s.PressureHpa == level && NewKey(s.Latitude, s.Longitude, level) == nearest {
			out = append(out, s)
		}
	}
	return out
}
