// Package telemetry defines the in-memory model for a recorded telemetry
// session: timestamped samples of speed, driver inputs and accelerations,
// grouped by vehicle and lap.
//
// All values are stored in SI units (seconds, m/s, m/s²). Unit conversion
// happens at the loader boundary, never here.
package telemetry

import (
	"sort"
)

// Sample is one telemetry row. Elapsed, Speed and AccLat drive the path
// reconstruction; the remaining channels are carried for display only.
type Sample struct {
	Elapsed float64 // seconds since session start, non-decreasing per lap
	Speed   float64 // m/s, non-negative
	AccLat  float64 // lateral acceleration, m/s², signed
	AccLong float64 // longitudinal acceleration, m/s², signed

	Throttle   float64 // normalized driver inputs
	BrakeFront float64
	BrakeRear  float64
	Steer      float64

	RPM  float64
	Gear float64

	Vehicle string
	Lap     int
}

// Frame is an ordered sequence of samples, ordered by Elapsed within each
// (vehicle, lap) group.
type Frame struct {
	Samples []Sample
}

// Len returns the number of samples in the frame.
func (f *Frame) Len() int {
	return len(f.Samples)
}

// Duration returns the elapsed time covered by the frame in seconds.
func (f *Frame) Duration() float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	return f.Samples[len(f.Samples)-1].Elapsed - f.Samples[0].Elapsed
}

// LapKey identifies one lap of one vehicle within a session.
type LapKey struct {
	Vehicle string
	Lap     int
}

// Laps groups the frame's samples by (vehicle, lap), preserving sample order
// within each group. The returned keys are sorted by vehicle then lap number
// so iteration is deterministic.
func (f *Frame) Laps() ([]LapKey, map[LapKey][]Sample) {
	groups := make(map[LapKey][]Sample)
	for _, s := range f.Samples {
		k := LapKey{Vehicle: s.Vehicle, Lap: s.Lap}
		groups[k] = append(groups[k], s)
	}

	keys := make([]LapKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Vehicle != keys[j].Vehicle {
			return keys[i].Vehicle < keys[j].Vehicle
		}
		return keys[i].Lap < keys[j].Lap
	})

	return keys, groups
}

// Vehicles returns the distinct vehicle identifiers in the frame, sorted.
func (f *Frame) Vehicles() []string {
	seen := make(map[string]bool)
	var vehicles []string
	for _, s := range f.Samples {
		if !seen[s.Vehicle] {
			seen[s.Vehicle] = true
			vehicles = append(vehicles, s.Vehicle)
		}
	}
	sort.Strings(vehicles)
	return vehicles
}

// ReconstructedSample extends a Sample with the derived path columns produced
// by the reconstruction integrator.
type ReconstructedSample struct {
	Sample

	Distance float64 // cumulative distance traveled, meters, non-decreasing
	Heading  float64 // unwrapped heading angle, radians
	X        float64 // planar position, meters
	Y        float64
}
