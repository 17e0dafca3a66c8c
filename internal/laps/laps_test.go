package laps

import (
	"math"
	"testing"
	"time"

	"github.com/gridline-data/lap.report/internal/telemetry"
)

// constantSpeedLap builds a reconstructed lap at constant speed covering the
// given distance, sampled every dt seconds.
func constantSpeedLap(vehicle string, lap int, speed, distance, dt float64) []telemetry.ReconstructedSample {
	n := int(distance/(speed*dt)) + 1
	out := make([]telemetry.ReconstructedSample, n)
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		out[i] = telemetry.ReconstructedSample{
			Sample:   telemetry.Sample{Vehicle: vehicle, Lap: lap, Elapsed: t, Speed: speed},
			Distance: speed * t,
			X:        speed * t,
		}
	}
	return out
}

func TestSummarize(t *testing.T) {
	key := telemetry.LapKey{Vehicle: "gr86-01", Lap: 3}
	samples := []telemetry.ReconstructedSample{
		{Sample: telemetry.Sample{Elapsed: 10, Speed: 20, AccLat: -12, AccLong: 3}, Distance: 0},
		{Sample: telemetry.Sample{Elapsed: 11, Speed: 30, AccLat: 8, AccLong: -9}, Distance: 30},
		{Sample: telemetry.Sample{Elapsed: 12, Speed: 25, AccLat: 2, AccLong: 1}, Distance: 55},
	}

	sums := Summarize([]telemetry.LapKey{key}, map[telemetry.LapKey][]telemetry.ReconstructedSample{key: samples})
	if len(sums) != 1 {
		t.Fatalf("got %d summaries, want 1", len(sums))
	}

	s := sums[0]
	if s.Vehicle != "gr86-01" || s.Lap != 3 {
		t.Errorf("identity = %s/%d, want gr86-01/3", s.Vehicle, s.Lap)
	}
	if s.LapTime != 2 {
		t.Errorf("LapTime = %f, want 2", s.LapTime)
	}
	if s.Distance != 55 {
		t.Errorf("Distance = %f, want 55", s.Distance)
	}
	if s.TopSpeed != 30 {
		t.Errorf("TopSpeed = %f, want 30", s.TopSpeed)
	}
	if s.MeanSpeed != 25 {
		t.Errorf("MeanSpeed = %f, want 25", s.MeanSpeed)
	}
	if s.PeakLat != 12 {
		t.Errorf("PeakLat = %f, want 12 (absolute)", s.PeakLat)
	}
	if s.PeakLong != 9 {
		t.Errorf("PeakLong = %f, want 9 (absolute)", s.PeakLong)
	}
}

func TestValidityWindowFilter(t *testing.T) {
	w := ValidityWindow{
		MinDistance: 4000, MaxDistance: 7000,
		MinTime: 60 * time.Second, MaxTime: 180 * time.Second,
	}

	sums := []Summary{
		{Lap: 1, Distance: 5200, LapTime: 130},
		{Lap: 2, Distance: 5200, LapTime: 125},
		{Lap: 3, Distance: 800, LapTime: 125},  // too short: pit exit
		{Lap: 4, Distance: 5200, LapTime: 300}, // too slow: cool-down
	}

	valid := w.Filter(sums)
	if len(valid) != 2 {
		t.Fatalf("got %d valid laps, want 2", len(valid))
	}
	// Sorted fastest first
	if valid[0].Lap != 2 || valid[1].Lap != 1 {
		t.Errorf("order = [%d %d], want [2 1]", valid[0].Lap, valid[1].Lap)
	}
}

func TestValidityWindowFallback(t *testing.T) {
	w := ValidityWindow{MinDistance: 4000, MaxDistance: 7000, MinTime: time.Minute, MaxTime: 3 * time.Minute}

	sums := []Summary{
		{Lap: 1, Distance: 900, LapTime: 45},
		{Lap: 2, Distance: 900, LapTime: 44},
	}

	valid := w.Filter(sums)
	if len(valid) != 2 {
		t.Fatalf("fallback should keep all laps, got %d", len(valid))
	}
	if valid[0].Lap != 2 {
		t.Errorf("fallback not sorted fastest first: lap %d", valid[0].Lap)
	}
}

func TestFastest(t *testing.T) {
	if _, ok := Fastest(nil); ok {
		t.Error("Fastest(nil) reported a lap")
	}

	best, ok := Fastest([]Summary{
		{Lap: 1, LapTime: 130},
		{Lap: 2, LapTime: 122},
		{Lap: 3, LapTime: 128},
	})
	if !ok || best.Lap != 2 {
		t.Errorf("Fastest = lap %d ok=%v, want lap 2", best.Lap, ok)
	}
}

func TestDeltaClosedForm(t *testing.T) {
	// Reference at 50 m/s, target at 40 m/s: time at distance d is d/v, so
	// delta(d) = d/40 - d/50 = d/200.
	ref := constantSpeedLap("a", 1, 50, 5000, 0.1)
	tgt := constantSpeedLap("a", 2, 40, 5000, 0.1)

	trace, err := Delta(ref, tgt, 10)
	if err != nil {
		t.Fatalf("Delta: %v", err)
	}

	if trace.Grid[0] != 0 {
		t.Errorf("grid starts at %f, want 0", trace.Grid[0])
	}
	for i, d := range trace.Grid {
		want := d / 200
		if math.Abs(trace.Delta[i]-want) > 1e-9 {
			t.Fatalf("delta at %gm = %f, want %f", d, trace.Delta[i], want)
		}
	}
}

func TestDeltaIdenticalLapsIsZero(t *testing.T) {
	lap := constantSpeedLap("a", 1, 45, 5000, 0.1)
	trace, err := Delta(lap, lap, 10)
	if err != nil {
		t.Fatalf("Delta: %v", err)
	}
	for i, v := range trace.Delta {
		if math.Abs(v) > 1e-12 {
			t.Fatalf("delta[%d] = %g, want 0", i, v)
		}
	}
}

func TestDeltaHandlesStalledSamples(t *testing.T) {
	// Duplicate distance points (car stationary) must not break the fit.
	ref := constantSpeedLap("a", 1, 50, 1000, 0.1)
	stalled := append([]telemetry.ReconstructedSample{}, ref...)
	stalled = append(stalled[:3], append([]telemetry.ReconstructedSample{stalled[2]}, stalled[3:]...)...)

	if _, err := Delta(stalled, ref, 10); err != nil {
		t.Errorf("Delta with stalled samples: %v", err)
	}
}

func TestDeltaErrors(t *testing.T) {
	lap := constantSpeedLap("a", 1, 50, 1000, 0.1)

	if _, err := Delta(lap, lap, 0); err == nil {
		t.Error("zero step must fail")
	}
	if _, err := Delta(lap[:1], lap, 10); err == nil {
		t.Error("single-point reference must fail")
	}
}

func TestWorstLoss(t *testing.T) {
	// Flat delta except a sharp rise around 500m.
	grid := make([]float64, 101)
	delta := make([]float64, 101)
	for i := range grid {
		grid[i] = float64(i) * 10
		if i >= 50 && i < 55 {
			delta[i] = delta[i-1] + 0.2
		} else if i > 0 {
			delta[i] = delta[i-1]
		}
	}
	trace := &DeltaTrace{Grid: grid, Delta: delta}

	dist, rate, ok := trace.WorstLoss(5)
	if !ok {
		t.Fatal("WorstLoss reported no result")
	}
	if dist < 480 || dist > 560 {
		t.Errorf("worst loss at %fm, want near 500-540", dist)
	}
	if rate <= 0 {
		t.Errorf("loss rate = %f, want positive", rate)
	}
}

func TestWorstLossTooShort(t *testing.T) {
	trace := &DeltaTrace{Grid: []float64{0, 10}, Delta: []float64{0, 1}}
	if _, _, ok := trace.WorstLoss(1); ok {
		t.Error("WorstLoss on 2-point trace must report not ok")
	}
}
