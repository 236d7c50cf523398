// Package nowcast projects a track one hour ahead, from a wind vector when
// one is available and from the track's own recent velocity otherwise.
package nowcast

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/balloon.report/internal/geo"
	"github.com/banshee-data/balloon.report/internal/monitoring"
	"github.com/banshee-data/balloon.report/internal/tracks"
	"github.com/banshee-data/balloon.report/internal/wind"
)

// Prediction methods.
const (
	MethodWind     = "wind"
	MethodVelocity = "velocity"
	MethodNone     = "none"
)

// Horizon is how far ahead every prediction looks.
const Horizon = time.Hour

// Prediction is a one-hour-ahead position estimate for a track.
type Prediction struct {
	Current             tracks.TrackPoint `json:"current"`
	PredictedLatitude   float64           `json:"predictedLatitude"`
	PredictedLongitude  float64           `json:"predictedLongitude"`
	PredictedAltitudeKm float64           `json:"predictedAltitude"`
	PredictedTime       time.Time         `json:"predictedTime"`
	Wind                *wind.Vector      `json:"wind,omitempty"`
	PredictedDistanceKm float64           `json:"predictedDistance"`
	UncertaintyRadiusKm float64           `json:"uncertaintyRadius"`
	Confidence          float64           `json:"confidence"`
	Method              string            `json:"method"`
}

// Position returns the predicted position.
func (p *Prediction) Position() geo.Position {
	return geo.Position{Latitude: p.PredictedLatitude, Longitude: p.PredictedLongitude, AltitudeKm: p.PredictedAltitudeKm}
}

// Predictor holds the confidence and uncertainty policy.
type Predictor struct {
	WindConfidence  float64
	CalmConfidence  float64
	CalmBelowKmh    float64
	StormConfidence float64
	StormAboveKmh   float64
	WindUncertainty float64 // fraction of wind speed

	VelocityConfidence  float64
	VelocityUncertainty float64 // fraction of extrapolated speed

	Metrics *monitoring.Collector
}

// NewPredictor returns a Predictor with the default policy.
func NewPredictor() *Predictor {
	return &Predictor{
		WindConfidence:      0.8,
		CalmConfidence:      0.6,
		CalmBelowKmh:        5,
		StormConfidence:     0.7,
		StormAboveKmh:       100,
		WindUncertainty:     0.2,
		VelocityConfidence:  0.5,
		VelocityUncertainty: 0.3,
	}
}

// Predict projects the track one hour ahead with the default policy.
func Predict(track *tracks.Track, w *wind.Vector) *Prediction {
	return NewPredictor().Predict(track, w)
}

// Predict projects the last point of the track one hour ahead. With a wind
// vector the balloon drifts with the wind; without one it keeps the
// velocity of its last two points. Altitude is held constant. The result is
// nil when there is nothing to project from.
func (p *Predictor) Predict(track *tracks.Track, w *wind.Vector) *Prediction {
	pred := p.predict(track, w)
	method := MethodNone
	if pred != nil {
		method = pred.Method
	}
	p.Metrics.ObserveNowcast(method)
	return pred
}

// Preview is Predict without counting the request. Map rendering uses it.
func (p *Predictor) Preview(track *tracks.Track, w *wind.Vector) *Prediction {
	return p.predict(track, w)
}

func (p *Predictor) predict(track *tracks.Track, w *wind.Vector) *Prediction {
	last, ok := track.Last()
	if !ok {
		return nil
	}
	if w != nil {
		return p.fromWind(last, *w)
	}
	if track.Len() < 2 {
		return nil
	}
	return p.fromVelocity(track.Points[track.Len()-2], last)
}

func (p *Predictor) fromWind(last tracks.TrackPoint, w wind.Vector) *Prediction {
	distance := w.SpeedKmh * Horizon.Hours()
	confidence := p.WindConfidence
	switch {
	case w.SpeedKmh < p.CalmBelowKmh:
		confidence = p.CalmConfidence
	case w.SpeedKmh > p.StormAboveKmh:
		confidence = p.StormConfidence
	}
	vec := w
	return p.project(last, distance, w.DirectionDeg, &Prediction{
		Wind:                &vec,
		UncertaintyRadiusKm: p.WindUncertainty * w.SpeedKmh,
		Confidence:          confidence,
		Method:              MethodWind,
	})
}

func (p *Predictor) fromVelocity(prev, last tracks.TrackPoint) *Prediction {
	hours := last.Timestamp.Sub(prev.Timestamp).Hours()
	if hours <= 0 {
		return nil
	}
	speed := geo.DistanceKm(prev.Position, last.Position) / hours
	bearing := geo.BearingDeg(prev.Position, last.Position)
	return p.project(last, speed*Horizon.Hours(), bearing, &Prediction{
		UncertaintyRadiusKm: p.VelocityUncertainty * speed,
		Confidence:          p.VelocityConfidence,
		Method:              MethodVelocity,
	})
}

func (p *Predictor) project(last tracks.TrackPoint, distanceKm, bearingDeg float64, pred *Prediction) *Prediction {
	next := geo.Offset(last.Position, distanceKm, bearingDeg)
	pred.Current = last
	pred.PredictedLatitude = next.Latitude
	pred.PredictedLongitude = next.Longitude
	pred.PredictedAltitudeKm = last.AltitudeKm
	pred.PredictedTime = last.Timestamp.Add(Horizon)
	pred.PredictedDistanceKm = distanceKm
	return pred
}

// PredictionUncertainty estimates the uncertainty radius for a wind-based
// prediction. With at least two historical samples it is half the
// population standard deviation of their speeds; otherwise 20% of the
// current wind speed.
func PredictionUncertainty(w wind.Vector, history []wind.Sample) float64 {
	if len(history) < 2 {
		return 0.2 * w.SpeedKmh
	}
	speeds := make([]float64, len(history))
	for i, s := range history {
		speeds[i] = s.SpeedKmh
	}
	return 0.5 * math.Sqrt(stat.PopVariance(speeds, nil))
}
