package loader

import (
	"fmt"
	"strings"
)

// Channel identifies a logical telemetry channel after header mapping.
type Channel string

// Logical channels. Timestamp, speed and lateral acceleration are required;
// the rest are optional display channels.
const (
	ChanTimestamp  Channel = "timestamp"
	ChanSpeed      Channel = "speed"
	ChanThrottle   Channel = "throttle"
	ChanBrakeFront Channel = "brake_front"
	ChanBrakeRear  Channel = "brake_rear"
	ChanAccLong    Channel = "acc_long"
	ChanAccLat     Channel = "acc_lat"
	ChanSteer      Channel = "steer"
	ChanRPM        Channel = "rpm"
	ChanGear       Channel = "gear"
	ChanLap        Channel = "lap"
	ChanVehicle    Channel = "vehicle"

	// Long-format pivot columns
	ChanName  Channel = "telemetry_name"
	ChanValue Channel = "telemetry_value"
)

// requiredChannels must be present after mapping or the load fails.
var requiredChannels = []Channel{ChanTimestamp, ChanSpeed, ChanAccLat}

// MissingColumnError reports a required channel with no matching CSV column.
type MissingColumnError struct {
	Channel Channel
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("loader: no column matches required channel %q", e.Channel)
}

// ParseError reports a malformed cell, carrying the 1-based CSV line number.
type ParseError struct {
	Line   int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("loader: line %d, column %q: %v", e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// rule maps a lowercase header substring to a channel. Rules are checked in
// order; the first match wins, so more specific substrings come first.
type rule struct {
	substr  string
	channel Channel
}

// Schema maps raw CSV headers to logical channels by substring matching,
// mirroring the naming of the data logger's export (ath = throttle position,
// pbrake = brake pressure, nmot = engine speed, accx/accy = chassis
// accelerations).
type Schema struct {
	rules []rule
}

// DefaultSchema returns the schema for the logger's standard export naming.
// Overrides replace the substring for the named channel (keys are channel
// names as in config column_overrides).
func DefaultSchema(overrides map[string]string) Schema {
	rules := []rule{
		{"telemetry_name", ChanName},
		{"telemetry_value", ChanValue},
		{"timestamp", ChanTimestamp},
		{"time", ChanTimestamp},
		{"vehicle", ChanVehicle},
		{"lap", ChanLap},
		{"speed", ChanSpeed},
		{"ath", ChanThrottle},
		{"throttle", ChanThrottle},
		{"pbrake_f", ChanBrakeFront},
		{"pbrake_r", ChanBrakeRear},
		{"brake", ChanBrakeFront},
		{"accx", ChanAccLong},
		{"accy", ChanAccLat},
		{"steering", ChanSteer},
		{"steer", ChanSteer},
		{"nmot", ChanRPM},
		{"rpm", ChanRPM},
		{"gear", ChanGear},
	}

	for i, r := range rules {
		if override, ok := overrides[string(r.channel)]; ok && override != "" {
			rules[i].substr = strings.ToLower(override)
		}
	}

	return Schema{rules: rules}
}

// Match returns the channel for a raw header, or "" if no rule matches.
func (s Schema) Match(header string) Channel {
	h := strings.ToLower(strings.TrimSpace(header))
	for _, r := range s.rules {
		if strings.Contains(h, r.substr) {
			return r.channel
		}
	}
	return ""
}

// MapHeaders maps each CSV header to its channel. Later columns never
// override an earlier match for the same channel (first column wins, like
// the export's own de-duplication).
func (s Schema) MapHeaders(headers []string) map[int]Channel {
	mapped := make(map[int]Channel)
	taken := make(map[Channel]bool)
	for i, h := range headers {
		ch := s.Match(h)
		if ch == "" || taken[ch] {
			continue
		}
		mapped[i] = ch
		taken[ch] = true
	}
	return mapped
}
