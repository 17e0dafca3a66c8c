// Package reconstruct derives an approximate track path from speed and
// lateral acceleration by planar dead reckoning.
//
// The integrator is deterministic and pure: given the same ordered sample
// sequence it always produces the same output, it performs no smoothing or
// filtering of the raw signals, and it never mutates its input.
package reconstruct

import (
	"errors"
	"fmt"
	"math"

	"github.com/gridline-data/lap.report/internal/telemetry"
)

// DefaultSpeedFloor is the minimum speed (m/s) below which the yaw rate is
// forced to zero instead of dividing lateral acceleration by a near-zero
// speed.
const DefaultSpeedFloor = 0.1

// ErrEmptyInput is returned when the input sequence contains no samples.
var ErrEmptyInput = errors.New("reconstruct: empty sample sequence")

// TimestampError reports a negative time step in the input sequence. The
// integrator rejects out-of-order timestamps rather than reordering: sorting
// behind the caller's back would silently corrupt the integration.
type TimestampError struct {
	Index int     // index of the offending sample
	Delta float64 // negative step duration in seconds
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("reconstruct: non-monotonic timestamp at sample %d (dt=%gs)", e.Index, e.Delta)
}

// Integrator reconstructs track paths from ordered sample sequences.
// The zero value is not usable; call New.
type Integrator struct {
	speedFloor float64
}

// New returns an Integrator with the given speed floor. A floor <= 0 falls
// back to DefaultSpeedFloor.
func New(speedFloor float64) *Integrator {
	if speedFloor <= 0 {
		speedFloor = DefaultSpeedFloor
	}
	return &Integrator{speedFloor: speedFloor}
}

// Reconstruct integrates an ordered sample sequence into a sequence of equal
// length carrying cumulative distance, unwrapped heading, and planar X/Y
// position. It uses rectangular integration with the current sample's values
// (distance step = speed[i]·dt), matching the recorded data's sampling model.
//
// The first sample anchors the path at distance 0, heading 0, position (0,0).
// For each later sample:
//
//	dt         = elapsed[i] − elapsed[i−1]        (ties are zero-length steps)
//	yawRate[i] = accLat[i]/speed[i]               (0 when speed[i] <= floor)
//	heading[i] = heading[i−1] + yawRate[i]·dt
//	x[i]       = x[i−1] + speed[i]·dt·cos(heading[i])
//	y[i]       = y[i−1] + speed[i]·dt·sin(heading[i])
//
// It returns ErrEmptyInput for a zero-length sequence and a *TimestampError
// for a negative dt. The result is freshly allocated; the input is not
// modified.
func (ig *Integrator) Reconstruct(frame *telemetry.Frame) ([]telemetry.ReconstructedSample, error) {
	if frame == nil || len(frame.Samples) == 0 {
		return nil, ErrEmptyInput
	}

	samples := frame.Samples
	out := make([]telemetry.ReconstructedSample, len(samples))
	out[0] = telemetry.ReconstructedSample{Sample: samples[0]}

	for i := 1; i < len(samples); i++ {
		dt := samples[i].Elapsed - samples[i-1].Elapsed
		if dt < 0 {
			return nil, &TimestampError{Index: i, Delta: dt}
		}

		prev := out[i-1]
		cur := samples[i]

		step := cur.Speed * dt

		yawRate := 0.0
		if cur.Speed > ig.speedFloor {
			yawRate = cur.AccLat / cur.Speed
		}
		heading := prev.Heading + yawRate*dt

		out[i] = telemetry.ReconstructedSample{
			Sample:   cur,
			Distance: prev.Distance + step,
			Heading:  heading,
			X:        prev.X + step*math.Cos(heading),
			Y:        prev.Y + step*math.Sin(heading),
		}
	}

	return out, nil
}

// ReconstructLaps runs the integrator independently on each (vehicle, lap)
// group so every lap's path starts at the origin with heading zero. Groups
// are returned keyed by lap; iteration order of the keys slice is
// deterministic.
func (ig *Integrator) ReconstructLaps(frame *telemetry.Frame) ([]telemetry.LapKey, map[telemetry.LapKey][]telemetry.ReconstructedSample, error) {
	keys, groups := frame.Laps()
	if len(keys) == 0 {
		return nil, nil, ErrEmptyInput
	}

	recon := make(map[telemetry.LapKey][]telemetry.ReconstructedSample, len(groups))
	for _, k := range keys {
		r, err := ig.Reconstruct(&telemetry.Frame{Samples: groups[k]})
		if err != nil {
			return nil, nil, fmt.Errorf("lap %d (%s): %w", k.Lap, k.Vehicle, err)
		}
		recon[k] = r
	}

	return keys, recon, nil
}
