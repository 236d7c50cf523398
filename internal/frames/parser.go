// Package frames turns raw hourly snapshots into validated position frames.
//
// A snapshot is an array of [latitude, longitude, altitudeKm] triples as
// published by the upstream feed. Malformed entries are dropped silently;
// a frame that ends up empty is indistinguishable from a missing one.
package frames

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"

	"github.com/banshee-data/balloon.report/internal/geo"
	"github.com/banshee-data/balloon.report/internal/monitoring"
)

// WindowHours is the lookback window: hour 0 is the most recent snapshot,
// hour WindowHours-1 the oldest.
const WindowHours = 24

// Frame is the set of valid positions observed at one hour.
type Frame struct {
	Hour      int            `json:"hour"`
	Positions []geo.Position `json:"positions"`
}

// Empty reports whether the frame carries no usable positions.
func (f Frame) Empty() bool { return len(f.Positions) == 0 }

// FetchResult is the outcome of fetching one hourly snapshot, as handed
// over by the retrieval collaborator.
type FetchResult struct {
	Hour    int    `json:"hour"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ParseSnapshot returns the well-formed, in-range positions of a raw
// snapshot. raw may be nil, a decoded JSON array ([]any), or an already
// typed [][]float64. Anything else yields no positions.
func ParseSnapshot(raw any) []geo.Position {
	switch v := raw.(type) {
	case []any:
		out := make([]geo.Position, 0, len(v))
		for _, entry := range v {
			if p, ok := parseEntry(entry); ok {
				out = append(out, p)
			}
		}
		return out
	case [][]float64:
		out := make([]geo.Position, 0, len(v))
		for _, entry := range v {
			if len(entry) != 3 {
				continue
			}
			p := geo.Position{Latitude: entry[0], Longitude: entry[1], AltitudeKm: entry[2]}
			if p.Valid() {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

// DecodeSnapshot parses a JSON-encoded snapshot. Invalid JSON is treated
// the same as an empty snapshot.
func DecodeSnapshot(data []byte) []geo.Position {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil
	}
	return ParseSnapshot(raw)
}

func parseEntry(entry any) (geo.Position, bool) {
	triple, ok := entry.([]any)
	if !ok || len(triple) != 3 {
		return geo.Position{}, false
	}
	var vals [3]float64
	for i, x := range triple {
		f, ok := toFloat(x)
		if !ok {
			return geo.Position{}, false
		}
		vals[i] = f
	}
	p := geo.Position{Latitude: vals[0], Longitude: vals[1], AltitudeKm: vals[2]}
	return p, p.Valid()
}

func toFloat(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ParseResults converts fetch outcomes into frames keyed by hour. Hours
// whose fetch failed or whose snapshot held no valid positions are
// returned in unmatched, sorted ascending. Results for hours outside the
// window are ignored; if an hour is reported more than once the first
// usable frame wins.
func ParseResults(results []FetchResult) (map[int]Frame, []int) {
	byHour := make(map[int]Frame, len(results))
	failed := make(map[int]bool)

	for _, r := range results {
		if r.Hour < 0 || r.Hour >= WindowHours {
			monitoring.Logf("frames: ignoring snapshot for out-of-window hour %d", r.Hour)
			continue
		}
		if _, ok := byHour[r.Hour]; ok {
			continue
		}
		if !r.Success {
			failed[r.Hour] = true
			continue
		}
		positions := ParseSnapshot(r.Data)
		if len(positions) == 0 {
			failed[r.Hour] = true
			continue
		}
		byHour[r.Hour] = Frame{Hour: r.Hour, Positions: positions}
		delete(failed, r.Hour)
	}

	unmatched := make([]int, 0, len(failed))
	for h := range failed {
		unmatched = append(unmatched, h)
	}
	sort.Ints(unmatched)
	return byHour, unmatched
}
