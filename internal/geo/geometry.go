// Package geo holds the position type and the spherical-earth primitives
// shared by the tracking, wind and nowcast packages.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by all distance calculations.
const EarthRadiusKm = 6371.0

// KmPerDegreeLat is the flat-earth conversion used for short projections.
const KmPerDegreeLat = 111.0

// Valid ranges for a reported balloon position.
const (
	MinLatitude   = -90.0
	MaxLatitude   = 90.0
	MinLongitude  = -180.0
	MaxLongitude  = 180.0
	MinAltitudeKm = 0.0
	MaxAltitudeKm = 50.0 // balloon plausibility limit
)

// Position is a single reported location. Values are immutable once parsed.
type Position struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	AltitudeKm float64 `json:"altitude"`
}

// Valid reports whether every component is finite and inside its range.
func (p Position) Valid() bool {
	for _, v := range [3]float64{p.Latitude, p.Longitude, p.AltitudeKm} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return p.Latitude >= MinLatitude && p.Latitude <= MaxLatitude &&
		p.Longitude >= MinLongitude && p.Longitude <= MaxLongitude &&
		p.AltitudeKm >= MinAltitudeKm && p.AltitudeKm <= MaxAltitudeKm
}

func (p Position) String() string {
	return fmt.Sprintf("(%.4f,%.4f) %.2fkm", p.Latitude, p.Longitude, p.AltitudeKm)
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceKm returns the haversine great-circle distance between a and b.
// Altitude is ignored.
func DistanceKm(a, b Position) float64 {
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)
	dLat := lat2 - lat1
	dLon := toRad(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	// Rounding can push h just outside [0,1] near antipodal points.
	if h < 0 {
		h = 0
	} else if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// AltitudeDeltaKm returns |a.alt - b.alt|.
func AltitudeDeltaKm(a, b Position) float64 {
	return math.Abs(a.AltitudeKm - b.AltitudeKm)
}

// BearingDeg returns the initial great-circle bearing from a to b in
// degrees clockwise from north, normalised to [0, 360).
func BearingDeg(a, b Position) float64 {
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeDeg(toDeg(math.Atan2(y, x)))
}

// NormalizeDeg wraps an angle into [0, 360).
func NormalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// AngleDiffDeg returns the absolute circular difference between two
// headings, in [0, 180].
func AngleDiffDeg(a, b float64) float64 {
	d := math.Abs(NormalizeDeg(a) - NormalizeDeg(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Offset moves p by distanceKm along bearingDeg using the flat-earth
// approximation: 1° latitude ≈ 111 km, longitude scaled by cos(latitude).
// Altitude is carried over unchanged. Longitude is wrapped into
// [-180, 180] and latitude clamped to the poles.
func Offset(p Position, distanceKm, bearingDeg float64) Position {
	theta := toRad(bearingDeg)
	north := distanceKm * math.Cos(theta)
	east := distanceKm * math.Sin(theta)

	dLat := north / KmPerDegreeLat
	var dLon float64
	if cosLat := math.Cos(toRad(p.Latitude)); math.Abs(cosLat) > 1e-9 {
		dLon = east / (KmPerDegreeLat * cosLat)
	}

	lat := p.Latitude + dLat
	if lat > MaxLatitude {
		lat = MaxLatitude
	} else if lat < MinLatitude {
		lat = MinLatitude
	}

	lon := p.Longitude + dLon
	for lon > MaxLongitude {
		lon -= 360
	}
	for lon < MinLongitude {
		lon += 360
	}

	return Position{Latitude: lat, Longitude: lon, AltitudeKm: p.AltitudeKm}
}
