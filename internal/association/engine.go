// Package association matches positions between two consecutive frames.
//
// Every (from, to) pair is gated on one-hour plausibility limits, scored
// with a horizontal-plus-weighted-vertical cost, and resolved into a
// conflict-free set of matches. The default resolver is a single greedy
// lowest-cost-first pass; an exact Hungarian solver can be selected behind
// the same gate and cost contract.
package association

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/balloon.report/internal/geo"
)

// Solver names accepted by Engine.Solver.
const (
	SolverGreedy    = "greedy"
	SolverHungarian = "hungarian"
)

// Default one-hour limits and scoring constants.
const (
	DefaultMaxDistanceKm      = 600.0
	DefaultMaxAltitudeDeltaKm = 5.0
	DefaultAltitudeWeight     = 10.0
	DefaultConfidenceNormKm   = 1200.0 // twice the distance gate
)

// Match relates position FromIndex of the older frame to position ToIndex
// of the newer frame.
type Match struct {
	FromIndex       int     `json:"fromIndex"`
	ToIndex         int     `json:"toIndex"`
	DistanceKm      float64 `json:"distance"`
	AltitudeDeltaKm float64 `json:"altitudeDelta"`
	Cost            float64 `json:"cost"`
	Confidence      float64 `json:"confidence"`
}

// Engine holds the gate and cost parameters for one association policy.
// The zero value is not usable; start from NewEngine.
type Engine struct {
	MaxDistanceKm      float64
	MaxAltitudeDeltaKm float64
	AltitudeWeight     float64
	ConfidenceNormKm   float64
	Solver             string
}

// NewEngine returns an Engine with the default gates and the greedy solver.
func NewEngine() *Engine {
	return &Engine{
		MaxDistanceKm:      DefaultMaxDistanceKm,
		MaxAltitudeDeltaKm: DefaultMaxAltitudeDeltaKm,
		AltitudeWeight:     DefaultAltitudeWeight,
		ConfidenceNormKm:   DefaultConfidenceNormKm,
		Solver:             SolverGreedy,
	}
}

// Validate checks that the engine parameters are usable.
func (e *Engine) Validate() error {
	if e.MaxDistanceKm <= 0 {
		return fmt.Errorf("max distance must be positive, got %f", e.MaxDistanceKm)
	}
	if e.MaxAltitudeDeltaKm < 0 {
		return fmt.Errorf("max altitude delta must be non-negative, got %f", e.MaxAltitudeDeltaKm)
	}
	if e.AltitudeWeight < 0 {
		return fmt.Errorf("altitude weight must be non-negative, got %f", e.AltitudeWeight)
	}
	if e.ConfidenceNormKm <= 0 {
		return fmt.Errorf("confidence normalisation must be positive, got %f", e.ConfidenceNormKm)
	}
	switch e.Solver {
	case SolverGreedy, SolverHungarian:
	default:
		return fmt.Errorf("unknown assignment solver %q", e.Solver)
	}
	return nil
}

// Cost scores a pair that passed the gate.
func (e *Engine) Cost(distanceKm, altitudeDeltaKm float64) float64 {
	return distanceKm + e.AltitudeWeight*altitudeDeltaKm
}

// Confidence maps a cost to [0,1]: 1 for coincident positions, falling
// linearly to 0 at ConfidenceNormKm.
func (e *Engine) Confidence(cost float64) float64 {
	return 1 - math.Min(cost/e.ConfidenceNormKm, 1)
}

// Candidates returns every gated (from, to) pair with its cost, in
// from-major order. Pairs beyond distanceScale×MaxDistanceKm or
// MaxAltitudeDeltaKm are not generated.
func (e *Engine) Candidates(from, to []geo.Position, distanceScale float64) []Match {
	if distanceScale <= 0 {
		distanceScale = 1
	}
	maxDist := e.MaxDistanceKm * distanceScale

	out := make([]Match, 0, len(from))
	for i, a := range from {
		for j, b := range to {
			d := geo.DistanceKm(a, b)
			if d > maxDist {
				continue
			}
			dAlt := geo.AltitudeDeltaKm(a, b)
			if dAlt > e.MaxAltitudeDeltaKm {
				continue
			}
			cost := e.Cost(d, dAlt)
			out = append(out, Match{
				FromIndex:       i,
				ToIndex:         j,
				DistanceKm:      d,
				AltitudeDeltaKm: dAlt,
				Cost:            cost,
				Confidence:      e.Confidence(cost),
			})
		}
	}
	return out
}

// Associate matches positions of an older frame to a newer frame one hour
// later. Unmatched indices on either side are implicit.
func (e *Engine) Associate(from, to []geo.Position) []Match {
	return e.AssociateScaled(from, to, 1)
}

// AssociateScaled is Associate with the distance gate widened by
// distanceScale, used when frames are several hours apart.
func (e *Engine) AssociateScaled(from, to []geo.Position, distanceScale float64) []Match {
	if len(from) == 0 || len(to) == 0 {
		return nil
	}
	candidates := e.Candidates(from, to, distanceScale)
	if len(candidates) == 0 {
		return nil
	}
	if e.Solver == SolverHungarian {
		return solveExact(candidates, len(from), len(to))
	}
	return Greedy(candidates)
}

// Greedy accepts candidates in ascending cost order, skipping any whose
// from or to index is already claimed. This approximates minimum-cost
// bipartite matching; near-ties can resolve differently from an exact
// solver. The result is ordered by acceptance (ascending cost).
func Greedy(candidates []Match) []Match {
	sorted := make([]Match, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Cost < sorted[j].Cost })

	claimedFrom := make(map[int]bool)
	claimedTo := make(map[int]bool)
	accepted := make([]Match, 0, len(sorted))
	for _, c := range sorted {
		if claimedTo[c.ToIndex] || claimedFrom[c.FromIndex] {
			continue
		}
		claimedTo[c.ToIndex] = true
		claimedFrom[c.FromIndex] = true
		accepted = append(accepted, c)
	}
	return accepted
}

// solveExact builds a dense cost matrix from the gated candidates and runs
// the Hungarian solver. Pairs that were gated out stay forbidden.
func solveExact(candidates []Match, nFrom, nTo int) []Match {
	cost := make([][]float64, nFrom)
	for i := range cost {
		cost[i] = make([]float64, nTo)
		for j := range cost[i] {
			cost[i][j] = math.Inf(1)
		}
	}
	byPair := make(map[[2]int]Match, len(candidates))
	for _, c := range candidates {
		cost[c.FromIndex][c.ToIndex] = c.Cost
		byPair[[2]int{c.FromIndex, c.ToIndex}] = c
	}

	assign := HungarianAssign(cost)
	out := make([]Match, 0, len(assign))
	for i, j := range assign {
		if j < 0 {
			continue
		}
		if m, ok := byPair[[2]int{i, j}]; ok {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Cost < out[b].Cost })
	return out
}
