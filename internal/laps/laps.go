// Package laps turns reconstructed telemetry into per-lap summaries and
// lap-to-lap comparisons: validity filtering, fastest-lap selection, and
// time-delta traces on a uniform distance grid.
package laps

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"

	"github.com/gridline-data/lap.report/internal/telemetry"
)

// Summary aggregates one lap of one vehicle. Speeds are m/s, accelerations
// m/s², times seconds, distances meters.
type Summary struct {
	Vehicle    string  `json:"vehicle"`
	Lap        int     `json:"lap"`
	LapTime    float64 `json:"lap_time_s"`
	Distance   float64 `json:"distance_m"`
	TopSpeed   float64 `json:"top_speed_mps"`
	MeanSpeed  float64 `json:"mean_speed_mps"`
	PeakLat    float64 `json:"peak_lat_ms2"`
	PeakLong   float64 `json:"peak_long_ms2"`
	SampleSize int     `json:"samples"`
}

// Key returns the lap's identity.
func (s Summary) Key() telemetry.LapKey {
	return telemetry.LapKey{Vehicle: s.Vehicle, Lap: s.Lap}
}

// Summarize computes per-lap summaries from reconstructed lap groups.
// Results follow the order of keys.
func Summarize(keys []telemetry.LapKey, recon map[telemetry.LapKey][]telemetry.ReconstructedSample) []Summary {
	summaries := make([]Summary, 0, len(keys))
	for _, k := range keys {
		samples := recon[k]
		if len(samples) == 0 {
			continue
		}

		speeds := make([]float64, len(samples))
		for i, s := range samples {
			speeds[i] = s.Speed
		}

		peakLat, peakLong := 0.0, 0.0
		for _, s := range samples {
			if a := math.Abs(s.AccLat); a > peakLat {
				peakLat = a
			}
			if a := math.Abs(s.AccLong); a > peakLong {
				peakLong = a
			}
		}

		summaries = append(summaries, Summary{
			Vehicle:    k.Vehicle,
			Lap:        k.Lap,
			LapTime:    samples[len(samples)-1].Elapsed - samples[0].Elapsed,
			Distance:   samples[len(samples)-1].Distance,
			TopSpeed:   floats.Max(speeds),
			MeanSpeed:  stat.Mean(speeds, nil),
			PeakLat:    peakLat,
			PeakLong:   peakLong,
			SampleSize: len(samples),
		})
	}
	return summaries
}

// ValidityWindow rejects out-laps, in-laps and partial recordings by
// distance and duration.
type ValidityWindow struct {
	MinDistance float64
	MaxDistance float64
	MinTime     time.Duration
	MaxTime     time.Duration
}

// Filter returns the summaries inside the window, sorted fastest first.
// When nothing qualifies it falls back to all laps (still sorted), so a
// session recorded on an unexpected circuit remains inspectable.
func (w ValidityWindow) Filter(summaries []Summary) []Summary {
	var valid []Summary
	for _, s := range summaries {
		if s.Distance < w.MinDistance || s.Distance > w.MaxDistance {
			continue
		}
		if s.LapTime < w.MinTime.Seconds() || s.LapTime > w.MaxTime.Seconds() {
			continue
		}
		valid = append(valid, s)
	}

	if len(valid) == 0 {
		valid = append(valid, summaries...)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].LapTime < valid[j].LapTime
	})
	return valid
}

// Fastest returns the quickest lap in summaries, if any.
func Fastest(summaries []Summary) (Summary, bool) {
	if len(summaries) == 0 {
		return Summary{}, false
	}
	best := summaries[0]
	for _, s := range summaries[1:] {
		if s.LapTime < best.LapTime {
			best = s
		}
	}
	return best, true
}

// DeltaTrace is the time lost (positive) or gained (negative) by the target
// lap against the reference lap, sampled on a uniform distance grid.
type DeltaTrace struct {
	Grid  []float64 `json:"distance_m"`
	Delta []float64 `json:"delta_s"`
}

// Delta compares two reconstructed laps by interpolating each lap's
// elapsed-time-at-distance onto a shared grid with the given step, then
// differencing. The trace is normalised to zero at its first point and
// covers only the distance range both laps reached.
func Delta(ref, target []telemetry.ReconstructedSample, step float64) (*DeltaTrace, error) {
	if step <= 0 {
		return nil, fmt.Errorf("laps: grid step must be positive, got %g", step)
	}

	refDist, refTime := monotonicDistanceTime(ref)
	tgtDist, tgtTime := monotonicDistanceTime(target)
	if len(refDist) < 2 || len(tgtDist) < 2 {
		return nil, fmt.Errorf("laps: need at least 2 distinct distance points per lap (ref=%d, target=%d)", len(refDist), len(tgtDist))
	}

	var refFit, tgtFit interp.PiecewiseLinear
	if err := refFit.Fit(refDist, refTime); err != nil {
		return nil, fmt.Errorf("laps: fit reference lap: %w", err)
	}
	if err := tgtFit.Fit(tgtDist, tgtTime); err != nil {
		return nil, fmt.Errorf("laps: fit target lap: %w", err)
	}

	maxDist := math.Min(refDist[len(refDist)-1], tgtDist[len(tgtDist)-1])
	n := int(maxDist/step) + 1

	trace := &DeltaTrace{
		Grid:  make([]float64, n),
		Delta: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		d := float64(i) * step
		trace.Grid[i] = d
		trace.Delta[i] = tgtFit.Predict(d) - refFit.Predict(d)
	}

	// Zero the trace at the start so it reads as time lost since the line.
	base := trace.Delta[0]
	for i := range trace.Delta {
		trace.Delta[i] -= base
	}

	return trace, nil
}

// WorstLoss locates the steepest time loss in a delta trace: the grid point
// with the largest positive gradient, ignoring a margin at both ends where
// the interpolation is least trustworthy. Returns the distance and the loss
// rate in seconds per meter.
func (t *DeltaTrace) WorstLoss(margin int) (distance, rate float64, ok bool) {
	n := len(t.Delta)
	if n < 3 {
		return 0, 0, false
	}
	if margin < 1 {
		margin = 1
	}
	if 2*margin >= n {
		margin = 1
	}

	grad := make([]float64, n)
	for i := 1; i < n-1; i++ {
		grad[i] = (t.Delta[i+1] - t.Delta[i-1]) / (t.Grid[i+1] - t.Grid[i-1])
	}

	idx := margin + floats.MaxIdx(grad[margin:n-margin])
	return t.Grid[idx], grad[idx], true
}

// monotonicDistanceTime extracts strictly increasing (distance, elapsed)
// pairs from a lap, dropping stalled points so the interpolant is well
// defined. Elapsed is rebased to the lap start.
func monotonicDistanceTime(samples []telemetry.ReconstructedSample) ([]float64, []float64) {
	if len(samples) == 0 {
		return nil, nil
	}

	start := samples[0].Elapsed
	dist := make([]float64, 0, len(samples))
	elapsed := make([]float64, 0, len(samples))
	for _, s := range samples {
		if len(dist) > 0 && s.Distance <= dist[len(dist)-1] {
			continue
		}
		dist = append(dist, s.Distance)
		elapsed = append(elapsed, s.Elapsed-start)
	}
	return dist, elapsed
}
