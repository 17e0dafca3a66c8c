package reconstruct

import (
	"errors"
	"math"
	"testing"

	"github.com/gridline-data/lap.report/internal/telemetry"
)

const tolerance = 1e-9

func frameOf(samples ...telemetry.Sample) *telemetry.Frame {
	return &telemetry.Frame{Samples: samples}
}

func TestReconstructEmptyInput(t *testing.T) {
	ig := New(0)

	if _, err := ig.Reconstruct(nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("nil frame: got %v, want ErrEmptyInput", err)
	}
	if _, err := ig.Reconstruct(frameOf()); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("empty frame: got %v, want ErrEmptyInput", err)
	}
}

func TestReconstructSingleSample(t *testing.T) {
	ig := New(0)

	out, err := ig.Reconstruct(frameOf(telemetry.Sample{Elapsed: 3.2, Speed: 40, AccLat: 5}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d samples, want 1", len(out))
	}
	s := out[0]
	if s.Distance != 0 || s.Heading != 0 || s.X != 0 || s.Y != 0 {
		t.Errorf("first sample must anchor at origin, got %+v", s)
	}
}

func TestReconstructStraightLine(t *testing.T) {
	// Constant 10 m/s, no lateral acceleration: distance 0,10,20 along X.
	ig := New(0)
	out, err := ig.Reconstruct(frameOf(
		telemetry.Sample{Elapsed: 0, Speed: 10},
		telemetry.Sample{Elapsed: 1, Speed: 10},
		telemetry.Sample{Elapsed: 2, Speed: 10},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantDist := []float64{0, 10, 20}
	for i, s := range out {
		if math.Abs(s.Distance-wantDist[i]) > tolerance {
			t.Errorf("distance[%d] = %f, want %f", i, s.Distance, wantDist[i])
		}
		if s.Heading != 0 {
			t.Errorf("heading[%d] = %f, want 0", i, s.Heading)
		}
		if math.Abs(s.X-wantDist[i]) > tolerance || math.Abs(s.Y) > tolerance {
			t.Errorf("position[%d] = (%f, %f), want (%f, 0)", i, s.X, s.Y, wantDist[i])
		}
	}
}

func TestReconstructDistanceIsRunningSum(t *testing.T) {
	// Distance must equal the running sum of speed[i]*dt for arbitrary input.
	ig := New(0)
	samples := []telemetry.Sample{
		{Elapsed: 0.0, Speed: 12.5, AccLat: 3},
		{Elapsed: 0.1, Speed: 13.0, AccLat: -2},
		{Elapsed: 0.3, Speed: 14.7, AccLat: 8},
		{Elapsed: 0.35, Speed: 14.6, AccLat: 8},
		{Elapsed: 0.9, Speed: 9.1, AccLat: 0},
	}

	out, err := ig.Reconstruct(frameOf(samples...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum := 0.0
	for i := 1; i < len(samples); i++ {
		sum += samples[i].Speed * (samples[i].Elapsed - samples[i-1].Elapsed)
		if math.Abs(out[i].Distance-sum) > tolerance*math.Abs(sum) {
			t.Errorf("distance[%d] = %.12f, want %.12f", i, out[i].Distance, sum)
		}
		if out[i].Distance < out[i-1].Distance {
			t.Errorf("distance decreased at %d: %f -> %f", i, out[i-1].Distance, out[i].Distance)
		}
	}
}

func TestReconstructConstantTurn(t *testing.T) {
	// Constant speed v and lateral acceleration a: heading advances at a/v
	// per second. Verify against the closed form over many small steps.
	const (
		v  = 20.0 // m/s
		a  = 8.0  // m/s²
		dt = 0.01
		n  = 500
	)

	samples := make([]telemetry.Sample, n)
	for i := range samples {
		samples[i] = telemetry.Sample{Elapsed: float64(i) * dt, Speed: v, AccLat: a}
	}

	ig := New(0)
	out, err := ig.Reconstruct(frameOf(samples...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rate := a / v
	prev := out[0].Heading
	for i := 1; i < n; i++ {
		want := rate * float64(i) * dt
		if math.Abs(out[i].Heading-want) > 1e-9 {
			t.Fatalf("heading[%d] = %.12f, want %.12f", i, out[i].Heading, want)
		}
		if out[i].Heading <= prev {
			t.Fatalf("heading not monotonically increasing at %d", i)
		}
		prev = out[i].Heading
	}

	// The path should close into a circle of radius v²/a; check the chord
	// distance from the origin midway round (diameter) against 2r.
	r := v * v / a
	period := 2 * math.Pi / rate
	halfIdx := int(period / 2 / dt)
	if halfIdx < n {
		got := math.Hypot(out[halfIdx].X, out[halfIdx].Y)
		if math.Abs(got-2*r)/r > 0.02 {
			t.Errorf("half-circle chord = %f, want ~%f", got, 2*r)
		}
	}
}

func TestReconstructZeroSpeedNoDivision(t *testing.T) {
	// Speed zero throughout: yaw rate must be forced to zero, heading stays 0,
	// no NaN or Inf anywhere.
	ig := New(0)
	out, err := ig.Reconstruct(frameOf(
		telemetry.Sample{Elapsed: 0, Speed: 0, AccLat: 9.81},
		telemetry.Sample{Elapsed: 1, Speed: 0, AccLat: -9.81},
		telemetry.Sample{Elapsed: 2, Speed: 0, AccLat: 15},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, s := range out {
		if s.Heading != 0 {
			t.Errorf("heading[%d] = %f, want 0", i, s.Heading)
		}
		for name, v := range map[string]float64{"distance": s.Distance, "heading": s.Heading, "x": s.X, "y": s.Y} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("%s[%d] is not finite: %f", name, i, v)
			}
		}
	}
}

func TestReconstructSpeedFloor(t *testing.T) {
	// Just above the floor the yaw rate applies; at or below it does not.
	ig := New(0.5)
	out, err := ig.Reconstruct(frameOf(
		telemetry.Sample{Elapsed: 0, Speed: 0.5, AccLat: 1},
		telemetry.Sample{Elapsed: 1, Speed: 0.5, AccLat: 1}, // at floor: zero yaw
		telemetry.Sample{Elapsed: 2, Speed: 0.6, AccLat: 1}, // above floor
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out[1].Heading != 0 {
		t.Errorf("heading at floor speed = %f, want 0", out[1].Heading)
	}
	want := 1.0 / 0.6
	if math.Abs(out[2].Heading-want) > tolerance {
		t.Errorf("heading above floor = %f, want %f", out[2].Heading, want)
	}
}

func TestReconstructZeroDurationStep(t *testing.T) {
	// Duplicate timestamps are zero-length steps: no distance, heading or
	// position change.
	ig := New(0)
	out, err := ig.Reconstruct(frameOf(
		telemetry.Sample{Elapsed: 0, Speed: 30, AccLat: 4},
		telemetry.Sample{Elapsed: 1, Speed: 30, AccLat: 4},
		telemetry.Sample{Elapsed: 1, Speed: 35, AccLat: 9},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out[2].Distance != out[1].Distance {
		t.Errorf("distance changed over zero-duration step: %f -> %f", out[1].Distance, out[2].Distance)
	}
	if out[2].Heading != out[1].Heading {
		t.Errorf("heading changed over zero-duration step: %f -> %f", out[1].Heading, out[2].Heading)
	}
	if out[2].X != out[1].X || out[2].Y != out[1].Y {
		t.Errorf("position changed over zero-duration step")
	}
}

func TestReconstructNonMonotonicTimestamps(t *testing.T) {
	ig := New(0)
	_, err := ig.Reconstruct(frameOf(
		telemetry.Sample{Elapsed: 0, Speed: 10},
		telemetry.Sample{Elapsed: -1, Speed: 10},
	))

	var tsErr *TimestampError
	if !errors.As(err, &tsErr) {
		t.Fatalf("got %v, want *TimestampError", err)
	}
	if tsErr.Index != 1 {
		t.Errorf("Index = %d, want 1", tsErr.Index)
	}
	if tsErr.Delta != -1 {
		t.Errorf("Delta = %f, want -1", tsErr.Delta)
	}
}

func TestReconstructIdempotent(t *testing.T) {
	// Two runs on the same input must be bit-identical.
	samples := []telemetry.Sample{
		{Elapsed: 0, Speed: 33.3, AccLat: 2.1},
		{Elapsed: 0.1, Speed: 34.0, AccLat: -7.3},
		{Elapsed: 0.2, Speed: 34.4, AccLat: 11.0},
		{Elapsed: 0.3, Speed: 35.1, AccLat: 10.2},
	}

	ig := New(0)
	a, err := ig.Reconstruct(frameOf(samples...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ig.Reconstruct(frameOf(samples...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Errorf("run mismatch at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestReconstructDoesNotMutateInput(t *testing.T) {
	samples := []telemetry.Sample{
		{Elapsed: 0, Speed: 10, AccLat: 1},
		{Elapsed: 1, Speed: 20, AccLat: 2},
	}
	orig := make([]telemetry.Sample, len(samples))
	copy(orig, samples)

	if _, err := New(0).Reconstruct(frameOf(samples...)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range samples {
		if samples[i] != orig[i] {
			t.Errorf("input mutated at %d: %+v", i, samples[i])
		}
	}
}

func TestReconstructLaps(t *testing.T) {
	f := frameOf(
		telemetry.Sample{Vehicle: "a", Lap: 1, Elapsed: 0, Speed: 10},
		telemetry.Sample{Vehicle: "a", Lap: 1, Elapsed: 1, Speed: 10},
		telemetry.Sample{Vehicle: "a", Lap: 2, Elapsed: 100, Speed: 20},
		telemetry.Sample{Vehicle: "a", Lap: 2, Elapsed: 101, Speed: 20},
	)

	keys, recon, err := New(0).ReconstructLaps(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d laps, want 2", len(keys))
	}

	// Every lap restarts at the origin
	for _, k := range keys {
		r := recon[k]
		if r[0].Distance != 0 || r[0].X != 0 || r[0].Y != 0 {
			t.Errorf("lap %+v does not start at origin: %+v", k, r[0])
		}
	}
	if d := recon[telemetry.LapKey{Vehicle: "a", Lap: 2}][1].Distance; d != 20 {
		t.Errorf("lap 2 distance = %f, want 20", d)
	}
}

func TestReconstructLapsEmpty(t *testing.T) {
	_, _, err := New(0).ReconstructLaps(&telemetry.Frame{})
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("got %v, want ErrEmptyInput", err)
	}
}
