package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid kmph", KMPH, true},
		{"valid kph", KPH, true},
		{"valid mps", MPS, true},
		{"valid mph", MPH, true},
		{"valid knots", KNOTS, true},
		{"invalid unit", "furlongs", false},
		{"empty unit", "", false},
		{"uppercase MPS", "MPS", false}, // Case-sensitive
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.unit)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	result := GetValidUnitsString()
	expected := "kmph, kph, mps, mph, knots"
	if result != expected {
		t.Errorf("GetValidUnitsString() = %s, want %s", result, expected)
	}
}

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name     string
		speedKmh float64
		unit     string
		expected float64
	}{
		{"0 km/h to kmph", 0.0, KMPH, 0.0},
		{"50 km/h to kph", 50.0, KPH, 50.0},
		{"36 km/h to mps", 36.0, MPS, 10.0},
		{"100 km/h to mph", 100.0, MPH, 62.137119223733},
		{"100 km/h to knots", 100.0, KNOTS, 53.995680345572},
		{"unknown unit passes through", 42.0, "bogus", 42.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertSpeed(tt.speedKmh, tt.unit)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("ConvertSpeed(%v, %s) = %v, want %v", tt.speedKmh, tt.unit, got, tt.expected)
			}
		})
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := FormatSpeed(36, MPS); got != "10.0 m/s" {
		t.Errorf("FormatSpeed = %q", got)
	}
	if got := FormatSpeed(50, KMPH); got != "50.0 km/h" {
		t.Errorf("FormatSpeed = %q", got)
	}
}
