package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pendulum.report/internal/db"
	"github.com/banshee-data/pendulum.report/internal/monitoring"
	"github.com/banshee-data/pendulum.report/internal/oscillation"
	"github.com/banshee-data/pendulum.report/internal/plotting"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

func pointData(series []oscillation.Sample) []opts.ScatterData {
	out := make([]opts.ScatterData, 0, len(series))
	for _, p := range series {
		out = append(out, opts.ScatterData{Value: []interface{}{p.Time, p.Position}})
	}
	return out
}

func lineData(series []oscillation.Sample) []opts.LineData {
	out := make([]opts.LineData, 0, len(series))
	for _, p := range series {
		out = append(out, opts.LineData{Value: []interface{}{p.Time, p.Position}})
	}
	return out
}

// runChart renders an interactive HTML chart of a stored run: the position
// trace with candidate and filtered peaks overlaid.
func (s *Server) runChart(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Pendulum Run", Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Run " + run.ID, Subtitle: chartSubtitle(run)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "X", Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.AddSeries("X(t)", lineData(run.Samples),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	peaks := charts.NewScatter()
	peaks.AddSeries("candidates", pointData(run.Candidates),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#a0a0a0"}))
	peaks.AddSeries("peaks", pointData(run.Peaks),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#dc0000"}))
	line.Overlap(peaks)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, "failed to render chart", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func chartSubtitle(run db.Run) string {
	if run.Warning != "" {
		return run.Warning
	}
	return fmt.Sprintf("T=%.4fs b=%.4f/s A=%.4fm peaks=%d",
		run.Params.ExperimentalPeriod, run.Params.Damping, run.Params.Amplitude, len(run.Peaks))
}

func (s *Server) runPlot(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := plotting.WritePNG(&buf, plotting.Run{
		Title:       "Run " + run.ID,
		Samples:     run.Samples,
		Candidates:  run.Candidates,
		Peaks:       run.Peaks,
		Equilibrium: run.Geometry.Equilibrium,
		Damping:     run.Params.Damping,
	})
	if err != nil {
		monitoring.Logf("api: plot for run %s: %v", run.ID, err)
		s.writeJSONError(w, http.StatusUnprocessableEntity, "failed to plot run: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
