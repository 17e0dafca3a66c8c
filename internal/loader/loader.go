// Package loader reads delimited telemetry exports into ordered sample
// frames. It handles both wide exports (one column per channel) and the
// logger's long export (telemetry_name/telemetry_value pairs), validates the
// column schema up front, converts units at the boundary, and optionally
// round-trips through the binary snapshot cache.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gridline-data/lap.report/internal/monitoring"
	"github.com/gridline-data/lap.report/internal/snapshot"
	"github.com/gridline-data/lap.report/internal/telemetry"
	"github.com/gridline-data/lap.report/internal/units"
)

// Config holds loader settings. Zero values fall back to the logger's
// defaults (km/h speeds, accelerations in G, no cache).
type Config struct {
	SpeedUnit       string            // unit of the speed column (units.KPH etc.)
	AccelUnit       string            // "g" or "ms2"
	ColumnOverrides map[string]string // channel -> header substring
	Cache           *snapshot.Cache   // nil disables LoadCached's caching
}

// Loader parses telemetry CSV files.
type Loader struct {
	schema    Schema
	speedUnit string
	accelInG  bool
	cache     *snapshot.Cache
}

// New creates a Loader from config.
func New(cfg Config) *Loader {
	speedUnit := cfg.SpeedUnit
	if speedUnit == "" {
		speedUnit = units.KPH
	}
	return &Loader{
		schema:    DefaultSchema(cfg.ColumnOverrides),
		speedUnit: speedUnit,
		accelInG:  cfg.AccelUnit != "ms2",
		cache:     cfg.Cache,
	}
}

// Load parses the CSV at path into a frame. It fails with a
// *MissingColumnError if a required channel has no matching column and a
// *ParseError on a malformed cell.
func (l *Loader) Load(path string) (*telemetry.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	frame, err := l.parse(f)
	if err != nil {
		return nil, err
	}

	monitoring.Logf("loader: parsed %d samples from %s", frame.Len(), path)
	return frame, nil
}

// LoadCached is Load behind the snapshot cache: a fresh snapshot is served
// directly; otherwise the CSV is parsed and a new snapshot written. A failed
// snapshot write is logged but does not fail the load, since the cache is a
// derived artifact.
func (l *Loader) LoadCached(path string) (*telemetry.Frame, error) {
	if l.cache == nil {
		return l.Load(path)
	}

	if frame, ok, err := l.cache.Load(path); err != nil {
		return nil, err
	} else if ok {
		monitoring.Logf("loader: snapshot hit for %s (%d samples)", path, frame.Len())
		return frame, nil
	}

	frame, err := l.Load(path)
	if err != nil {
		return nil, err
	}

	if err := l.cache.Store(path, frame); err != nil {
		monitoring.Logf("loader: failed to write snapshot for %s: %v", path, err)
	}

	return frame, nil
}

// row is the intermediate mutable form before gap fill and conversion.
// Optional channels start as NaN so forward/backward fill can distinguish
// "absent" from zero.
type row struct {
	elapsed float64
	vehicle string
	lap     int
	values  map[Channel]float64
}

var numericChannels = []Channel{
	ChanSpeed, ChanThrottle, ChanBrakeFront, ChanBrakeRear,
	ChanAccLong, ChanAccLat, ChanSteer, ChanRPM, ChanGear,
}

func (l *Loader) parse(r io.Reader) (*telemetry.Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, &ParseError{Line: 1, Column: "", Err: fmt.Errorf("empty file")}
	}
	if err != nil {
		return nil, &ParseError{Line: 1, Column: "", Err: err}
	}

	mapped := l.schema.MapHeaders(headers)

	channelCols := make(map[Channel]int)
	for idx, ch := range mapped {
		channelCols[ch] = idx
	}

	_, isLong := channelCols[ChanName]
	_, hasValue := channelCols[ChanValue]
	isLong = isLong && hasValue

	var rows []row
	if isLong {
		rows, err = l.parseLong(cr, headers, channelCols)
	} else {
		rows, err = l.parseWide(cr, headers, mapped, channelCols)
	}
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return &telemetry.Frame{}, nil
	}

	fillGaps(rows)
	return l.toFrame(rows), nil
}

// parseWide reads one sample per CSV record.
func (l *Loader) parseWide(cr *csv.Reader, headers []string, mapped map[int]Channel, channelCols map[Channel]int) ([]row, error) {
	for _, ch := range requiredChannels {
		if _, ok := channelCols[ch]; !ok {
			return nil, &MissingColumnError{Channel: ch}
		}
	}

	var rows []row
	var epoch time.Time
	haveEpoch := false
	line := 1

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &ParseError{Line: line, Column: "", Err: err}
		}

		rw := row{vehicle: "default", values: make(map[Channel]float64, len(numericChannels))}
		for _, ch := range numericChannels {
			rw.values[ch] = math.NaN()
		}

		for idx, ch := range mapped {
			if idx >= len(record) {
				continue
			}
			cell := strings.TrimSpace(record[idx])

			switch ch {
			case ChanTimestamp:
				elapsed, newEpoch, err := parseTimestamp(cell, epoch, haveEpoch)
				if err != nil {
					return nil, &ParseError{Line: line, Column: headers[idx], Err: err}
				}
				if !haveEpoch && !newEpoch.IsZero() {
					epoch = newEpoch
					haveEpoch = true
				}
				rw.elapsed = elapsed
			case ChanVehicle:
				if cell != "" {
					rw.vehicle = cell
				}
			case ChanLap:
				if cell == "" {
					continue
				}
				lap, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, &ParseError{Line: line, Column: headers[idx], Err: err}
				}
				rw.lap = int(lap)
			default:
				if cell == "" {
					continue // left as NaN for gap fill
				}
				v, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, &ParseError{Line: line, Column: headers[idx], Err: err}
				}
				rw.values[ch] = v
			}
		}

		rows = append(rows, rw)
	}

	return rows, nil
}

// parseLong pivots telemetry_name/telemetry_value records into wide rows
// keyed by (timestamp, vehicle, lap). The first value seen for a channel in
// a group wins, matching the export's own pivot behaviour.
func (l *Loader) parseLong(cr *csv.Reader, headers []string, channelCols map[Channel]int) ([]row, error) {
	tsCol, ok := channelCols[ChanTimestamp]
	if !ok {
		return nil, &MissingColumnError{Channel: ChanTimestamp}
	}
	nameCol := channelCols[ChanName]
	valueCol := channelCols[ChanValue]
	lapCol, hasLap := channelCols[ChanLap]
	vehicleCol, hasVehicle := channelCols[ChanVehicle]

	type groupKey struct {
		elapsed float64
		vehicle string
		lap     int
	}

	groups := make(map[groupKey]*row)
	var order []groupKey
	var epoch time.Time
	haveEpoch := false
	line := 1

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &ParseError{Line: line, Column: "", Err: err}
		}
		if tsCol >= len(record) || nameCol >= len(record) || valueCol >= len(record) {
			return nil, &ParseError{Line: line, Column: "", Err: fmt.Errorf("short record: %d fields", len(record))}
		}

		elapsed, newEpoch, err := parseTimestamp(strings.TrimSpace(record[tsCol]), epoch, haveEpoch)
		if err != nil {
			return nil, &ParseError{Line: line, Column: headers[tsCol], Err: err}
		}
		if !haveEpoch && !newEpoch.IsZero() {
			epoch = newEpoch
			haveEpoch = true
		}

		key := groupKey{elapsed: elapsed, vehicle: "default"}
		if hasVehicle && vehicleCol < len(record) && record[vehicleCol] != "" {
			key.vehicle = strings.TrimSpace(record[vehicleCol])
		}
		if hasLap && lapCol < len(record) && record[lapCol] != "" {
			lap, err := strconv.ParseFloat(strings.TrimSpace(record[lapCol]), 64)
			if err != nil {
				return nil, &ParseError{Line: line, Column: headers[lapCol], Err: err}
			}
			key.lap = int(lap)
		}

		ch := l.schema.Match(record[nameCol])
		if ch == "" || ch == ChanName || ch == ChanValue || ch == ChanTimestamp {
			continue // unrecognised channel name: skipped, not fatal
		}

		rw, ok := groups[key]
		if !ok {
			rw = &row{elapsed: key.elapsed, vehicle: key.vehicle, lap: key.lap, values: make(map[Channel]float64, len(numericChannels))}
			for _, nc := range numericChannels {
				rw.values[nc] = math.NaN()
			}
			groups[key] = rw
			order = append(order, key)
		}

		if !math.IsNaN(rw.values[ch]) {
			continue // first value wins
		}
		cell := strings.TrimSpace(record[valueCol])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, &ParseError{Line: line, Column: headers[valueCol], Err: err}
		}
		rw.values[ch] = v
	}

	rows := make([]row, 0, len(order))
	sawSpeed, sawAccLat := false, false
	for _, key := range order {
		rw := groups[key]
		if !math.IsNaN(rw.values[ChanSpeed]) {
			sawSpeed = true
		}
		if !math.IsNaN(rw.values[ChanAccLat]) {
			sawAccLat = true
		}
		rows = append(rows, *rw)
	}

	if len(rows) > 0 {
		if !sawSpeed {
			return nil, &MissingColumnError{Channel: ChanSpeed}
		}
		if !sawAccLat {
			return nil, &MissingColumnError{Channel: ChanAccLat}
		}
	}

	return rows, nil
}

// parseTimestamp accepts either elapsed seconds as a plain float or an
// absolute datetime. Datetimes are rebased against the first one seen
// (epoch) so both styles yield seconds from session start.
func parseTimestamp(cell string, epoch time.Time, haveEpoch bool) (float64, time.Time, error) {
	if cell == "" {
		return 0, time.Time{}, fmt.Errorf("empty timestamp")
	}

	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		return v, time.Time{}, nil
	}

	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, cell)
		if err != nil {
			continue
		}
		if !haveEpoch {
			return 0, t, nil
		}
		return t.Sub(epoch).Seconds(), epoch, nil
	}

	return 0, time.Time{}, fmt.Errorf("unparseable timestamp %q", cell)
}

// fillGaps forward-fills then back-fills NaN values per channel, the same
// repair the original export pipeline applies to dropped sensor readings.
// Channels that are NaN throughout become zero.
func fillGaps(rows []row) {
	for _, ch := range numericChannels {
		last := math.NaN()
		for i := range rows {
			if math.IsNaN(rows[i].values[ch]) {
				rows[i].values[ch] = last
			} else {
				last = rows[i].values[ch]
			}
		}

		next := math.NaN()
		for i := len(rows) - 1; i >= 0; i-- {
			if math.IsNaN(rows[i].values[ch]) {
				rows[i].values[ch] = next
			} else {
				next = rows[i].values[ch]
			}
		}

		for i := range rows {
			if math.IsNaN(rows[i].values[ch]) {
				rows[i].values[ch] = 0
			}
		}
	}
}

// toFrame converts filled rows to SI-unit samples ordered by vehicle, lap,
// then time.
func (l *Loader) toFrame(rows []row) *telemetry.Frame {
	samples := make([]telemetry.Sample, len(rows))
	for i, rw := range rows {
		accLat := rw.values[ChanAccLat]
		accLong := rw.values[ChanAccLong]
		if l.accelInG {
			accLat = units.GToMS2(accLat)
			accLong = units.GToMS2(accLong)
		}

		samples[i] = telemetry.Sample{
			Elapsed:    rw.elapsed,
			Speed:      units.ToMPS(rw.values[ChanSpeed], l.speedUnit),
			AccLat:     accLat,
			AccLong:    accLong,
			Throttle:   rw.values[ChanThrottle],
			BrakeFront: rw.values[ChanBrakeFront],
			BrakeRear:  rw.values[ChanBrakeRear],
			Steer:      rw.values[ChanSteer],
			RPM:        rw.values[ChanRPM],
			Gear:       rw.values[ChanGear],
			Lap:        rw.lap,
			Vehicle:    rw.vehicle,
		}
	}

	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].Vehicle != samples[j].Vehicle {
			return samples[i].Vehicle < samples[j].Vehicle
		}
		if samples[i].Lap != samples[j].Lap {
			return samples[i].Lap < samples[j].Lap
		}
		return samples[i].Elapsed < samples[j].Elapsed
	})

	return &telemetry.Frame{Samples: samples}
}
