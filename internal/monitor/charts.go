package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/pressure.report/internal/httputil"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleSeriesChart renders the voltage and step history as a line chart
// with steps on a second axis.
func (s *Server) handleSeriesChart(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()

	x := make([]string, len(snap.Voltages))
	volts := make([]opts.LineData, len(snap.Voltages))
	for i, v := range snap.Voltages {
		x[i] = strconv.Itoa(i - len(snap.Voltages) + 1)
		volts[i] = opts.LineData{Value: v}
	}
	steps := make([]opts.LineData, len(snap.Steps))
	for i, v := range snap.Steps {
		steps[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sensor history", Theme: "dark", Width: "100%", Height: "400px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Sensor history", Subtitle: fmt.Sprintf("tick=%d samples=%d", snap.Tick, len(snap.Voltages))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "volts"}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "steps"})
	line.SetXAxis(x).
		AddSeries("voltage", volts, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})).
		AddSeries("steps", steps, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false), YAxisIndex: 1}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	httputil.WriteHTML(w, buf.Bytes())
}

// handleZonesChart plots the current zones in frame coordinates, the
// y axis flipped so the plot reads like the image.
func (s *Server) handleZonesChart(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()
	width, height := 0, 0
	if snap.Frame != nil {
		width, height = snap.Frame.Rect.Dx(), snap.Frame.Rect.Dy()
	}

	data := make([]opts.ScatterData, 0, len(snap.Zones))
	for _, z := range snap.Zones {
		data = append(data, opts.ScatterData{
			Name:       fmt.Sprintf("Z%d", z.Rank),
			Value:      []interface{}{z.X, height - z.Y, z.PeakDensity},
			SymbolSize: 10 + int(30*z.PeakDensity),
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Activity zones", Theme: "dark", Width: "800px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Activity zones", Subtitle: fmt.Sprintf("tick=%d zones=%d", snap.Tick, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: width, Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: height, Name: "y (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#313695", "#4575b4", "#74add1", "#fee090", "#f46d43", "#a50026"}},
		}),
	)
	scatter.AddSeries("zones", data, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top", Formatter: "{b}"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	httputil.WriteHTML(w, buf.Bytes())
}
