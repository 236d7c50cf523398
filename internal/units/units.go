// Package units provides shared constants and validation for speed units
package units

import "fmt"

// Unit constants
const (
	KMPH  = "kmph"
	KPH   = "kph"
	MPS   = "mps"
	MPH   = "mph"
	KNOTS = "knots"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{KMPH, KPH, MPS, MPH, KNOTS}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "kmph, kph, mps, mph, knots"
}

// ConvertSpeed converts a speed from kilometres per hour to the target units.
// Wind samples and track speeds are carried in km/h throughout.
func ConvertSpeed(speedKmh float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedKmh / 3.6
	case MPH:
		return speedKmh * 0.62137119223733
	case KNOTS:
		return speedKmh * 0.53995680345572
	default:
		return speedKmh
	}
}

// Label returns a short display suffix for a unit.
func Label(unit string) string {
	switch unit {
	case MPS:
		return "m/s"
	case MPH:
		return "mph"
	case KNOTS:
		return "kn"
	default:
		return "km/h"
	}
}

// FormatSpeed renders a km/h speed in the target units, e.g. "13.9 m/s".
func FormatSpeed(speedKmh float64, targetUnits string) string {
	return fmt.Sprintf("%.1f %s", ConvertSpeed(speedKmh, targetUnits), Label(targetUnits))
}
