package dashboard

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/gridline-data/lap.report/internal/httputil"
	"github.com/gridline-data/lap.report/internal/laps"
	"github.com/gridline-data/lap.report/internal/telemetry"
	"github.com/gridline-data/lap.report/internal/units"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridis colour ramp used by every speed-coloured chart
var viridisRamp = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// handleMapChart renders the reconstructed track path as a scatter plot
// coloured by speed.
// Query params:
//   - vehicle, lap (optional; default the reference lap)
//   - max_points (optional; default 8000) to reduce payload size
func (ws *WebServer) handleMapChart(w http.ResponseWriter, r *http.Request) {
	key, samples, err := ws.lapFromQuery(r, "vehicle", "lap", ws.analysis.Reference)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(samples) > maxPoints {
		stride = int(math.Ceil(float64(len(samples)) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, len(samples)/stride+1)
	maxAbs := 0.0
	maxSpeed := 0.0
	for i := 0; i < len(samples); i += stride {
		s := samples[i]
		if math.Abs(s.X) > maxAbs {
			maxAbs = math.Abs(s.X)
		}
		if math.Abs(s.Y) > maxAbs {
			maxAbs = math.Abs(s.Y)
		}
		kph := units.FromMPS(s.Speed, units.KPH)
		if kph > maxSpeed {
			maxSpeed = kph
		}
		data = append(data, opts.ScatterData{Value: []interface{}{s.X, s.Y, kph}})
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if maxSpeed == 0 {
		maxSpeed = 1
	}

	// Force a square plot by using equal width/height and symmetric axis ranges
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Track Map", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Reconstructed Track Path", Subtitle: fmt.Sprintf("%s lap %d, points=%d stride=%d", key.Vehicle, key.Lap, len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxSpeed),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisRamp},
		}),
	)

	scatter.AddSeries("path", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	ws.renderChart(w, scatter)
}

// handleFrictionChart renders the friction circle: lateral vs longitudinal
// acceleration in G, coloured by speed.
func (ws *WebServer) handleFrictionChart(w http.ResponseWriter, r *http.Request) {
	key, samples, err := ws.lapFromQuery(r, "vehicle", "lap", ws.analysis.Reference)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	data := make([]opts.ScatterData, 0, len(samples))
	maxAbs := 0.0
	maxSpeed := 0.0
	for _, s := range samples {
		lat := s.AccLat / units.Gravity
		long := s.AccLong / units.Gravity
		if math.Abs(lat) > maxAbs {
			maxAbs = math.Abs(lat)
		}
		if math.Abs(long) > maxAbs {
			maxAbs = math.Abs(long)
		}
		kph := units.FromMPS(s.Speed, units.KPH)
		if kph > maxSpeed {
			maxSpeed = kph
		}
		data = append(data, opts.ScatterData{Value: []interface{}{lat, long, kph}})
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if maxSpeed == 0 {
		maxSpeed = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Friction Circle", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Friction Circle", Subtitle: fmt.Sprintf("%s lap %d", key.Vehicle, key.Lap)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "Lateral (G)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Longitudinal (G)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxSpeed),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisRamp},
		}),
	)
	scatter.AddSeries("friction", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	ws.renderChart(w, scatter)
}

// handleSpeedChart renders speed against distance for the target lap,
// overlaid on the reference lap when they differ.
func (ws *WebServer) handleSpeedChart(w http.ResponseWriter, r *http.Request) {
	refKey, ref, err := ws.lapFromQuery(r, "ref_vehicle", "ref_lap", ws.analysis.Reference)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	key, samples, err := ws.lapFromQuery(r, "vehicle", "lap", refKey)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Speed", Theme: "dark", Width: "1200px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Speed vs Distance", Subtitle: fmt.Sprintf("%s lap %d vs %s lap %d", key.Vehicle, key.Lap, refKey.Vehicle, refKey.Lap)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Distance (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Speed (km/h)", NameLocation: "middle", NameGap: 40}),
	)

	line.SetXAxis(distanceAxis(samples)).
		AddSeries(fmt.Sprintf("lap %d", key.Lap), channelSeries(samples, func(s telemetry.ReconstructedSample) float64 {
			return units.FromMPS(s.Speed, units.KPH)
		}))
	if key != refKey {
		line.AddSeries(fmt.Sprintf("lap %d (ref)", refKey.Lap), channelSeries(ref, func(s telemetry.ReconstructedSample) float64 {
			return units.FromMPS(s.Speed, units.KPH)
		}))
	}

	ws.renderChart(w, line)
}

// handleInputsChart renders driver inputs against distance for one lap.
func (ws *WebServer) handleInputsChart(w http.ResponseWriter, r *http.Request) {
	key, samples, err := ws.lapFromQuery(r, "vehicle", "lap", ws.analysis.Reference)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Inputs", Theme: "dark", Width: "1200px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Driver Inputs", Subtitle: fmt.Sprintf("%s lap %d", key.Vehicle, key.Lap)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Distance (m)", NameLocation: "middle", NameGap: 25}),
	)

	line.SetXAxis(distanceAxis(samples)).
		AddSeries("throttle", channelSeries(samples, func(s telemetry.ReconstructedSample) float64 { return s.Throttle })).
		AddSeries("brake front", channelSeries(samples, func(s telemetry.ReconstructedSample) float64 { return s.BrakeFront })).
		AddSeries("brake rear", channelSeries(samples, func(s telemetry.ReconstructedSample) float64 { return s.BrakeRear }))

	ws.renderChart(w, line)
}

// handleDeltaChart renders the time delta of the target lap against the
// reference lap over distance.
func (ws *WebServer) handleDeltaChart(w http.ResponseWriter, r *http.Request) {
	refKey, ref, err := ws.lapFromQuery(r, "ref_vehicle", "ref_lap", ws.analysis.Reference)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	key, samples, err := ws.lapFromQuery(r, "vehicle", "lap", refKey)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	step := ws.analysis.GridStep
	if step <= 0 {
		step = 10
	}

	trace, err := laps.Delta(ref, samples, step)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("compute delta: %v", err))
		return
	}

	subtitle := fmt.Sprintf("%s lap %d vs %s lap %d", key.Vehicle, key.Lap, refKey.Vehicle, refKey.Lap)
	if dist, rate, ok := trace.WorstLoss(5); ok {
		subtitle += fmt.Sprintf(" | worst loss %.3f s/m at %.0f m", rate, dist)
	}

	axis := make([]string, len(trace.Grid))
	data := make([]opts.LineData, len(trace.Delta))
	for i := range trace.Grid {
		axis[i] = strconv.FormatFloat(trace.Grid[i], 'f', 0, 64)
		data[i] = opts.LineData{Value: trace.Delta[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Delta", Theme: "dark", Width: "1200px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Time Delta", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Distance (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Delta (s)", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(axis).AddSeries("delta", data)

	ws.renderChart(w, line)
}

type renderable interface {
	Render(w io.Writer) error
}

func (ws *WebServer) renderChart(w http.ResponseWriter, chart renderable) {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func distanceAxis(samples []telemetry.ReconstructedSample) []string {
	axis := make([]string, len(samples))
	for i, s := range samples {
		axis[i] = strconv.FormatFloat(s.Distance, 'f', 0, 64)
	}
	return axis
}

func channelSeries(samples []telemetry.ReconstructedSample, pick func(telemetry.ReconstructedSample) float64) []opts.LineData {
	data := make([]opts.LineData, len(samples))
	for i, s := range samples {
		data[i] = opts.LineData{Value: pick(s)}
	}
	return data
}
