package plotout

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gridline-data/lap.report/internal/telemetry"
)

func circleLap(lap, n int) []telemetry.ReconstructedSample {
	samples := make([]telemetry.ReconstructedSample, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		samples[i] = telemetry.ReconstructedSample{
			Sample:   telemetry.Sample{Vehicle: "gr86-01", Lap: lap, Elapsed: float64(i), Speed: 40},
			Distance: 100 * theta,
			X:        100 * math.Cos(theta),
			Y:        100 * math.Sin(theta),
		}
	}
	return samples
}

func TestRenderLap(t *testing.T) {
	r := NewRenderer(filepath.Join(t.TempDir(), "plots"))
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	key := telemetry.LapKey{Vehicle: "gr86-01", Lap: 3}
	files, err := r.RenderLap(key, circleLap(3, 120))
	if err != nil {
		t.Fatalf("RenderLap: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		// PNG signature
		if len(data) < 8 || data[0] != 0x89 || string(data[1:4]) != "PNG" {
			t.Errorf("%s is not a PNG", f)
		}
	}
}

func TestRenderLapEmpty(t *testing.T) {
	r := NewRenderer(t.TempDir())
	if _, err := r.RenderLap(telemetry.LapKey{Vehicle: "x", Lap: 1}, nil); err == nil {
		t.Error("empty lap must fail")
	}
}

func TestRenderAll(t *testing.T) {
	r := NewRenderer(filepath.Join(t.TempDir(), "plots"))
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	k1 := telemetry.LapKey{Vehicle: "gr86-01", Lap: 1}
	k2 := telemetry.LapKey{Vehicle: "gr86-01", Lap: 2}
	recon := map[telemetry.LapKey][]telemetry.ReconstructedSample{
		k1: circleLap(1, 60),
		k2: circleLap(2, 60),
	}

	count, err := r.RenderAll([]telemetry.LapKey{k1, k2}, recon)
	if err != nil {
		t.Fatalf("RenderAll: %v", err)
	}
	if count != 4 {
		t.Errorf("got %d plots, want 4", count)
	}
}

func TestMakePlotOutputDir(t *testing.T) {
	dir := MakePlotOutputDir("plots", "/data/session.csv")
	if !strings.HasPrefix(dir, filepath.Join("plots", "session")) {
		t.Errorf("dir = %s, want under plots/session", dir)
	}

	live := MakePlotOutputDir("plots", "")
	if !strings.Contains(live, "session_") {
		t.Errorf("dir = %s, want session_<timestamp>", live)
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := FormatTimestamp(time.Date(2026, 4, 12, 14, 3, 5, 0, time.UTC))
	if ts != "20260412_140305" {
		t.Errorf("FormatTimestamp = %s", ts)
	}
}
