package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/balloon.report/internal/frames"
)

func TestFrameAndFailedFrame(t *testing.T) {
	f := Frame(3, []float64{1, 2, 3})
	assert.True(t, f.Success)
	assert.Equal(t, 3, f.Hour)
	assert.Len(t, frames.ParseSnapshot(f.Data), 1)

	assert.Empty(t, frames.ParseSnapshot(Frame(4).Data))

	failed := FailedFrame(5, "timeout")
	assert.False(t, failed.Success)
	assert.Equal(t, "timeout", failed.Error)
}

func TestDrift(t *testing.T) {
	results := Drift(10, 20, 0.5, 12, 3)
	require.Len(t, results, 3)

	byHour, unmatched := frames.ParseResults(results)
	assert.Empty(t, unmatched)
	assert.InDelta(t, 20, byHour[2].Positions[0].Longitude, 1e-12, "oldest frame starts at lon0")
	assert.InDelta(t, 21, byHour[0].Positions[0].Longitude, 1e-12)
	assert.Equal(t, 12.0, byHour[1].Positions[0].AltitudeKm)
}
