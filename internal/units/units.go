// Package units provides shared constants and conversions for telemetry units.
package units

// Speed unit identifiers accepted in config and on the API.
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// Gravity is the conversion factor from G to m/s² used when scaling
// accelerometer channels. The source data logger reports lateral and
// longitudinal acceleration in G.
const Gravity = 9.81

// ValidSpeedUnits contains all valid speed unit values.
var ValidSpeedUnits = []string{MPS, MPH, KMPH, KPH}

// IsValidSpeedUnit checks if the given unit is in the list of valid units.
func IsValidSpeedUnit(unit string) bool {
	for _, validUnit := range ValidSpeedUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ToMPS converts a speed expressed in the given unit to meters per second.
// All internal computation (distance and path integration) is done in m/s.
func ToMPS(speed float64, unit string) float64 {
	switch unit {
	case MPH:
		return speed / 2.2369362920544
	case KMPH, KPH:
		return speed / 3.6
	case MPS:
		return speed
	default:
		return speed
	}
}

// FromMPS converts a speed in meters per second to the target unit for display.
func FromMPS(speedMPS float64, unit string) float64 {
	switch unit {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	case MPS:
		return speedMPS
	default:
		return speedMPS
	}
}

// GToMS2 converts an acceleration in G to m/s².
func GToMS2(g float64) float64 {
	return g * Gravity
}
