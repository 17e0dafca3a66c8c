// Package snapshot caches parsed telemetry as a binary columnar artifact so
// repeated runs against the same CSV skip the parse entirely.
//
// The artifact is a gob-encoded, gzip-compressed column store keyed by a
// fingerprint of the source file (path, size, modification time). A snapshot
// whose fingerprint no longer matches the source is treated as stale and
// ignored; corrupt snapshots are treated the same way, since the artifact is
// derived and always rebuildable.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/gridline-data/lap.report/internal/fsutil"
	"github.com/gridline-data/lap.report/internal/monitoring"
	"github.com/gridline-data/lap.report/internal/telemetry"
)

// formatVersion is bumped whenever the columnar layout changes; snapshots
// written by another version are treated as stale.
const formatVersion = 2

// Fingerprint identifies the exact source file state a snapshot was built
// from.
type Fingerprint struct {
	Path          string
	Size          int64
	ModTimeNanos  int64
	FormatVersion int
}

// Columns is the columnar layout of a telemetry frame. All slices have equal
// length.
type Columns struct {
	Elapsed    []float64
	Speed      []float64
	AccLat     []float64
	AccLong    []float64
	Throttle   []float64
	BrakeFront []float64
	BrakeRear  []float64
	Steer      []float64
	RPM        []float64
	Gear       []float64
	Lap        []int
	Vehicle    []string
}

// artifact is the on-disk payload.
type artifact struct {
	Source  Fingerprint
	Columns Columns
}

// Cache stores and retrieves snapshots through an injected filesystem.
type Cache struct {
	fs  fsutil.FileSystem
	dir string
}

// NewCache creates a cache writing artifacts into dir.
func NewCache(filesystem fsutil.FileSystem, dir string) *Cache {
	return &Cache{fs: filesystem, dir: dir}
}

// pathFor derives the artifact path for a source file. The name embeds a
// short hash of the full source path so two files with the same base name
// don't collide.
func (c *Cache) pathFor(sourcePath string) string {
	sum := sha256.Sum256([]byte(sourcePath))
	base := filepath.Base(sourcePath)
	return filepath.Join(c.dir, fmt.Sprintf("%s-%s.snap", base, hex.EncodeToString(sum[:4])))
}

// fingerprint stats the source file and builds its current fingerprint.
func (c *Cache) fingerprint(sourcePath string) (Fingerprint, error) {
	info, err := c.fs.Stat(sourcePath)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat source: %w", err)
	}
	return Fingerprint{
		Path:          sourcePath,
		Size:          info.Size(),
		ModTimeNanos:  info.ModTime().UnixNano(),
		FormatVersion: formatVersion,
	}, nil
}

// Load returns the cached frame for sourcePath if a fresh snapshot exists.
// The second return value reports a cache hit; a miss (no artifact, stale
// fingerprint, or unreadable artifact) is not an error.
func (c *Cache) Load(sourcePath string) (*telemetry.Frame, bool, error) {
	want, err := c.fingerprint(sourcePath)
	if err != nil {
		return nil, false, err
	}

	path := c.pathFor(sourcePath)
	data, err := c.fs.ReadFile(path)
	if err != nil {
		return nil, false, nil // no artifact yet
	}

	art, err := decode(data)
	if err != nil {
		monitoring.Logf("snapshot: discarding unreadable artifact %s: %v", path, err)
		return nil, false, nil
	}

	if art.Source != want {
		monitoring.Logf("snapshot: stale artifact for %s (source changed)", sourcePath)
		return nil, false, nil
	}

	frame, err := fromColumns(art.Columns)
	if err != nil {
		monitoring.Logf("snapshot: discarding inconsistent artifact %s: %v", path, err)
		return nil, false, nil
	}

	return frame, true, nil
}

// Store writes a snapshot of frame keyed to the current state of sourcePath.
func (c *Cache) Store(sourcePath string, frame *telemetry.Frame) error {
	fp, err := c.fingerprint(sourcePath)
	if err != nil {
		return err
	}

	data, err := encode(&artifact{Source: fp, Columns: toColumns(frame)})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if c.dir != "" {
		if err := c.fs.MkdirAll(c.dir, 0755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}

	path := c.pathFor(sourcePath)
	if err := c.fs.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	monitoring.Logf("snapshot: wrote %s (%d samples, %d bytes)", path, frame.Len(), len(data))
	return nil
}

// Invalidate removes the snapshot for sourcePath if present.
func (c *Cache) Invalidate(sourcePath string) error {
	path := c.pathFor(sourcePath)
	if !c.fs.Exists(path) {
		return nil
	}
	if err := c.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

func encode(art *artifact) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(art); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*artifact, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer gz.Close()

	var art artifact
	if err := gob.NewDecoder(gz).Decode(&art); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}

	// Drain to surface trailing CRC errors.
	if _, err := io.Copy(io.Discard, gz); err != nil {
		return nil, fmt.Errorf("gunzip trailer: %w", err)
	}

	return &art, nil
}

// toColumns transposes a frame into column slices.
func toColumns(frame *telemetry.Frame) Columns {
	n := frame.Len()
	cols := Columns{
		Elapsed:    make([]float64, n),
		Speed:      make([]float64, n),
		AccLat:     make([]float64, n),
		AccLong:    make([]float64, n),
		Throttle:   make([]float64, n),
		BrakeFront: make([]float64, n),
		BrakeRear:  make([]float64, n),
		Steer:      make([]float64, n),
		RPM:        make([]float64, n),
		Gear:       make([]float64, n),
		Lap:        make([]int, n),
		Vehicle:    make([]string, n),
	}
	for i, s := range frame.Samples {
		cols.Elapsed[i] = s.Elapsed
		cols.Speed[i] = s.Speed
		cols.AccLat[i] = s.AccLat
		cols.AccLong[i] = s.AccLong
		cols.Throttle[i] = s.Throttle
		cols.BrakeFront[i] = s.BrakeFront
		cols.BrakeRear[i] = s.BrakeRear
		cols.Steer[i] = s.Steer
		cols.RPM[i] = s.RPM
		cols.Gear[i] = s.Gear
		cols.Lap[i] = s.Lap
		cols.Vehicle[i] = s.Vehicle
	}
	return cols
}

// fromColumns rebuilds a frame from column slices, verifying they agree on
// length.
func fromColumns(cols Columns) (*telemetry.Frame, error) {
	n := len(cols.Elapsed)
	lengths := []int{
		len(cols.Speed), len(cols.AccLat), len(cols.AccLong),
		len(cols.Throttle), len(cols.BrakeFront), len(cols.BrakeRear),
		len(cols.Steer), len(cols.RPM), len(cols.Gear),
		len(cols.Lap), len(cols.Vehicle),
	}
	for _, l := range lengths {
		if l != n {
			return nil, fmt.Errorf("column length mismatch: %d vs %d", l, n)
		}
	}

	samples := make([]telemetry.Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = telemetry.Sample{
			Elapsed:    cols.Elapsed[i],
			Speed:      cols.Speed[i],
			AccLat:     cols.AccLat[i],
			AccLong:    cols.AccLong[i],
			Throttle:   cols.Throttle[i],
			BrakeFront: cols.BrakeFront[i],
			BrakeRear:  cols.BrakeRear[i],
			Steer:      cols.Steer[i],
			RPM:        cols.RPM[i],
			Gear:       cols.Gear[i],
			Lap:        cols.Lap[i],
			Vehicle:    cols.Vehicle[i],
		}
	}
	return &telemetry.Frame{Samples: samples}, nil
}
