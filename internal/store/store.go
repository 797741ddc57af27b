// Package store persists sessions, per-hop commands and calibration
// baselines in sqlite so sessions can be reviewed offline and baselines
// reloaded without re-calibrating.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bci-flystick/flystick/internal/axis"
	"github.com/bci-flystick/flystick/internal/calibration"
)

// Store wraps the sqlite session database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. Run Migrate before first
// use on a fresh file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single-writer discipline: the cadenced loop is the only writer.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for migrations and reports.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Session is one recorded run of a producer.
type Session struct {
	ID        string
	Mode      string
	StartedAt time.Time
}

// CreateSession inserts a new session row and returns it.
func (s *Store) CreateSession(mode string) (Session, error) {
	sess := Session{
		ID:        uuid.New().String(),
		Mode:      mode,
		StartedAt: time.Now(),
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, mode, started_at) VALUES (?, ?, ?)`,
		sess.ID, sess.Mode, sess.StartedAt.UnixNano(),
	)
	if err != nil {
		return Session{}, fmt.Errorf("store: create session: %w", err)
	}
	return sess, nil
}

// Sessions lists all sessions, newest first.
func (s *Store) Sessions() ([]Session, error) {
	rows, err := s.db.Query(`SELECT session_id, mode, started_at FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var startedAt int64
		if err := rows.Scan(&sess.ID, &sess.Mode, &startedAt); err != nil {
			return nil, err
		}
		sess.StartedAt = time.Unix(0, startedAt)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession() (Session, error) {
	sessions, err := s.Sessions()
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, sql.ErrNoRows
	}
	return sessions[0], nil
}

// RecordCommand appends one command to a session.
func (s *Store) RecordCommand(sessionID string, cmd axis.Command) error {
	neutral := 0
	if cmd.Neutral {
		neutral = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO commands (session_id, seq, ts, yaw, altitude, pitch, throttle, neutral)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, cmd.Seq, cmd.Timestamp.UnixNano(),
		cmd.Value(axis.Yaw), cmd.Value(axis.Altitude), cmd.Value(axis.Pitch), cmd.Value(axis.Throttle),
		neutral,
	)
	if err != nil {
		return fmt.Errorf("store: record command: %w", err)
	}
	return nil
}

// Commands returns a session's commands in sequence order.
func (s *Store) Commands(sessionID string) ([]axis.Command, error) {
	rows, err := s.db.Query(
		`SELECT seq, ts, yaw, altitude, pitch, throttle, neutral
		 FROM commands WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: load commands: %w", err)
	}
	defer rows.Close()

	var out []axis.Command
	for rows.Next() {
		var cmd axis.Command
		var ts int64
		var vals [axis.Count]float64
		var neutral int
		if err := rows.Scan(&cmd.Seq, &ts, &vals[0], &vals[1], &vals[2], &vals[3], &neutral); err != nil {
			return nil, err
		}
		cmd.Timestamp = time.Unix(0, ts)
		cmd.Neutral = neutral != 0
		for i, v := range vals {
			cmd.Axes[i] = float32(v)
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

// SaveProfile persists a calibration profile, optionally linked to a session.
func (s *Store) SaveProfile(sessionID string, p *calibration.Profile) error {
	blob, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: marshal profile: %w", err)
	}
	var sid interface{}
	if sessionID != "" {
		sid = sessionID
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO baselines (profile_id, session_id, created_at, profile_json)
		 VALUES (?, ?, ?, ?)`,
		p.ID, sid, p.CreatedAt.UnixNano(), string(blob),
	)
	if err != nil {
		return fmt.Errorf("store: save profile: %w", err)
	}
	return nil
}

// LatestProfile loads the most recently created calibration profile.
// sql.ErrNoRows signals that no profile has been stored yet.
func (s *Store) LatestProfile() (*calibration.Profile, error) {
	var blob string
	err := s.db.QueryRow(
		`SELECT profile_json FROM baselines ORDER BY created_at DESC LIMIT 1`,
	).Scan(&blob)
	if err != nil {
		return nil, err
	}
	p := &calibration.Profile{}
	if err := json.Unmarshal([]byte(blob), p); err != nil {
		return nil, fmt.Errorf("store: unmarshal profile: %w", err)
	}
	return p, nil
}
