// Package plotout renders reconstructed laps to static PNG files for
// offline reports, without the dashboard running.
package plotout

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/gridline-data/lap.report/internal/telemetry"
	"github.com/gridline-data/lap.report/internal/units"
)

// Renderer writes lap plots into a single output directory.
type Renderer struct {
	outputDir string
}

// NewRenderer creates a renderer targeting outputDir.
func NewRenderer(outputDir string) *Renderer {
	return &Renderer{outputDir: outputDir}
}

// Start creates the output directory.
func (r *Renderer) Start() error {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	return nil
}

// RenderLap writes the track path and speed trace plots for one lap and
// returns the files written.
func (r *Renderer) RenderLap(key telemetry.LapKey, samples []telemetry.ReconstructedSample) ([]string, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("plotout: no samples for %s lap %d", key.Vehicle, key.Lap)
	}

	pathFile := filepath.Join(r.outputDir, fmt.Sprintf("%s_lap_%02d_path.png", key.Vehicle, key.Lap))
	if err := r.renderPath(key, samples, pathFile); err != nil {
		return nil, err
	}

	speedFile := filepath.Join(r.outputDir, fmt.Sprintf("%s_lap_%02d_speed.png", key.Vehicle, key.Lap))
	if err := r.renderSpeed(key, samples, speedFile); err != nil {
		return []string{pathFile}, err
	}

	return []string{pathFile, speedFile}, nil
}

// RenderAll renders every lap and returns the number of plots written.
func (r *Renderer) RenderAll(keys []telemetry.LapKey, recon map[telemetry.LapKey][]telemetry.ReconstructedSample) (int, error) {
	count := 0
	for _, key := range keys {
		files, err := r.RenderLap(key, recon[key])
		count += len(files)
		if err != nil {
			return count, fmt.Errorf("lap %s/%d: %w", key.Vehicle, key.Lap, err)
		}
	}
	return count, nil
}

// renderPath draws the reconstructed X/Y path with symmetric axis ranges so
// the track keeps its aspect ratio.
func (r *Renderer) renderPath(key telemetry.LapKey, samples []telemetry.ReconstructedSample, file string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s Lap %d - Track Path", key.Vehicle, key.Lap)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	pts := make(plotter.XYs, len(samples))
	maxAbs := 0.0
	for i, s := range samples {
		pts[i] = plotter.XY{X: s.X, Y: s.Y}
		if math.Abs(s.X) > maxAbs {
			maxAbs = math.Abs(s.X)
		}
		if math.Abs(s.Y) > maxAbs {
			maxAbs = math.Abs(s.Y)
		}
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	p.X.Min, p.X.Max = -pad, pad
	p.Y.Min, p.Y.Max = -pad, pad

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("path", line)
	p.Legend.Top = true
	p.Legend.Left = false

	if err := p.Save(10*vg.Inch, 10*vg.Inch, file); err != nil {
		return fmt.Errorf("save path plot: %w", err)
	}
	return nil
}

// renderSpeed draws speed against distance.
func (r *Renderer) renderSpeed(key telemetry.LapKey, samples []telemetry.ReconstructedSample, file string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s Lap %d - Speed Trace", key.Vehicle, key.Lap)
	p.X.Label.Text = "Distance (m)"
	p.Y.Label.Text = "Speed (km/h)"

	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i] = plotter.XY{X: s.Distance, Y: units.FromMPS(s.Speed, units.KPH)}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save speed plot: %w", err)
	}
	return nil
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory name:
// plots/<csv_basename>/<timestamp>.
func MakePlotOutputDir(baseDir, csvFile string) string {
	ts := FormatTimestamp(time.Now())
	if csvFile != "" {
		base := filepath.Base(csvFile)
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "session_"+ts)
}
