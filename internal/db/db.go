// Package db persists imported sessions and their lap summaries in a
// local sqlite database so prior imports can be listed and re-opened.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gridline-data/lap.report/internal/laps"
	"github.com/gridline-data/lap.report/internal/timeutil"
)

type DB struct {
	*sql.DB

	clock timeutil.Clock
}

// Session records one CSV import: where the file came from, its identity at
// import time, and how much data it carried.
type Session struct {
	ID            string    `json:"session_id"`
	SourcePath    string    `json:"source_path"`
	SourceSize    int64     `json:"source_size"`
	SourceModTime int64     `json:"source_mod_time_ns"`
	SpeedUnit     string    `json:"speed_unit"`
	SampleCount   int       `json:"sample_count"`
	ImportedAt    time.Time `json:"imported_at"`
}

// SessionLap is one stored lap summary with its validity flag.
type SessionLap struct {
	laps.Summary
	Valid bool `json:"valid"`
}

// OpenDB opens the database without touching the schema. Used by the
// migrate subcommands, which manage the schema themselves.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("db: enable foreign keys: %w", err)
	}
	return &DB{DB: sqlDB, clock: timeutil.RealClock{}}, nil
}

// NewDB opens the database and brings the schema up to date.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SetClock overrides the clock used for imported_at timestamps.
func (db *DB) SetClock(clock timeutil.Clock) {
	db.clock = clock
}

// NewSession builds a Session with a fresh id and the current time.
func (db *DB) NewSession(sourcePath string, sourceSize, sourceModTime int64, speedUnit string, sampleCount int) Session {
	return Session{
		ID:            uuid.NewString(),
		SourcePath:    sourcePath,
		SourceSize:    sourceSize,
		SourceModTime: sourceModTime,
		SpeedUnit:     speedUnit,
		SampleCount:   sampleCount,
		ImportedAt:    db.clock.Now().UTC(),
	}
}

// RecordSession stores a session and its lap summaries in one transaction.
// validIDs marks which (vehicle, lap) pairs passed the validity window.
func (db *DB) RecordSession(session Session, summaries []laps.Summary, validIDs map[string]bool) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("db: begin session transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (
			session_id, source_path, source_size, source_mod_time_ns,
			speed_unit, sample_count, imported_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.SourcePath, session.SourceSize, session.SourceModTime,
		session.SpeedUnit, session.SampleCount, session.ImportedAt,
	)
	if err != nil {
		return fmt.Errorf("db: insert session: %w", err)
	}

	for _, s := range summaries {
		valid := 0
		if validIDs[lapID(s.Vehicle, s.Lap)] {
			valid = 1
		}
		_, err = tx.Exec(
			`INSERT INTO laps (
				session_id, vehicle, lap, lap_time, distance, top_speed,
				mean_speed, peak_lat, peak_long, sample_count, valid
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID, s.Vehicle, s.Lap, s.LapTime, s.Distance, s.TopSpeed,
			s.MeanSpeed, s.PeakLat, s.PeakLong, s.SampleSize, valid,
		)
		if err != nil {
			return fmt.Errorf("db: insert lap %s/%d: %w", s.Vehicle, s.Lap, err)
		}
	}

	return tx.Commit()
}

// ListSessions returns up to limit sessions, newest first.
func (db *DB) ListSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(
		`SELECT session_id, source_path, source_size, source_mod_time_ns,
			speed_unit, sample_count, imported_at
		FROM sessions ORDER BY imported_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(
			&s.ID, &s.SourcePath, &s.SourceSize, &s.SourceModTime,
			&s.SpeedUnit, &s.SampleCount, &s.ImportedAt,
		); err != nil {
			return nil, fmt.Errorf("db: scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SessionLaps returns the stored lap summaries for one session, fastest
// valid laps first, invalid laps after.
func (db *DB) SessionLaps(sessionID string) ([]SessionLap, error) {
	rows, err := db.Query(
		`SELECT vehicle, lap, lap_time, distance, top_speed, mean_speed,
			peak_lat, peak_long, sample_count, valid
		FROM laps WHERE session_id = ?
		ORDER BY valid DESC, lap_time ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("db: session laps: %w", err)
	}
	defer rows.Close()

	var out []SessionLap
	for rows.Next() {
		var l SessionLap
		var valid int
		if err := rows.Scan(
			&l.Vehicle, &l.Lap, &l.LapTime, &l.Distance, &l.TopSpeed,
			&l.MeanSpeed, &l.PeakLat, &l.PeakLong, &l.SampleSize, &valid,
		); err != nil {
			return nil, fmt.Errorf("db: scan lap: %w", err)
		}
		l.Valid = valid != 0
		out = append(out, l)
	}
	return out, rows.Err()
}

func lapID(vehicle string, lap int) string {
	return fmt.Sprintf("%s/%d", vehicle, lap)
}

// LapIDs builds the validity set RecordSession expects from filtered
// summaries.
func LapIDs(summaries []laps.Summary) map[string]bool {
	ids := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		ids[lapID(s.Vehicle, s.Lap)] = true
	}
	return ids
}
