package diagnostics

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/balloon.report/internal/nowcast"
	"github.com/banshee-data/balloon.report/internal/tracks"
)

// MaxMapSeries caps the number of per-track series on the map; remaining
// tracks are merged into one "other" series.
const MaxMapSeries = 40

// RenderTrackMap writes an HTML page with a lon/lat scatter of every
// track, optional nowcast positions, and a histogram of track durations.
func RenderTrackMap(w io.Writer, res *tracks.Result, predictions []*nowcast.Prediction) error {
	page := components.NewPage()
	page.SetPageTitle("Balloon tracks")
	page.AddCharts(newPositionChart(res, predictions), newDurationChart(res))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render track map: %w", err)
	}
	return nil
}

func newPositionChart(res *tracks.Result, predictions []*nowcast.Prediction) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Balloon tracks", Width: "1200px", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Reconstructed tracks",
			Subtitle: fmt.Sprintf("tracks=%d matches=%d unmatched hours=%d", len(res.Tracks), res.MatchStatistics.TotalMatches, len(res.UnmatchedHours)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -180, Max: 180, Name: "Longitude", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -90, Max: 90, Name: "Latitude", NameLocation: "middle", NameGap: 30}),
	)

	ordered := make([]*tracks.Track, len(res.Tracks))
	copy(ordered, res.Tracks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Len() > ordered[j].Len() })

	var other []opts.ScatterData
	for i, t := range ordered {
		data := make([]opts.ScatterData, 0, t.Len())
		for _, p := range t.Points {
			data = append(data, opts.ScatterData{Name: fmt.Sprintf("%s h-%d", t.ID, p.Hour), Value: []interface{}{p.Longitude, p.Latitude, p.AltitudeKm}})
		}
		if i >= MaxMapSeries {
			other = append(other, data...)
			continue
		}
		scatter.AddSeries(t.ID, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	}
	if len(other) > 0 {
		scatter.AddSeries("other", other, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	}

	if len(predictions) > 0 {
		data := make([]opts.ScatterData, 0, len(predictions))
		for _, p := range predictions {
			if p == nil {
				continue
			}
			data = append(data, opts.ScatterData{
				Name:  fmt.Sprintf("%s (%s, %.0f%%)", p.PredictedTime.Format("15:04"), p.Method, p.Confidence*100),
				Value: []interface{}{p.PredictedLongitude, p.PredictedLatitude, p.UncertaintyRadiusKm},
			})
		}
		scatter.AddSeries("nowcast", data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}),
		)
	}
	return scatter
}

func newDurationChart(res *tracks.Result) *charts.Bar {
	counts := make([]int, 24)
	for _, t := range res.Tracks {
		h := int(t.DurationHours)
		if h < 0 {
			h = 0
		}
		if h > 23 {
			h = 23
		}
		counts[h]++
	}
	x := make([]string, len(counts))
	y := make([]opts.BarData, len(counts))
	for i, c := range counts {
		x[i] = fmt.Sprintf("%dh", i)
		y[i] = opts.BarData{Value: c}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Track durations"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("tracks", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
