package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

type CallStatus string

const (
	StatusQueued    CallStatus = "queued"
	StatusDialing   CallStatus = "dialing"
	StatusConnected CallStatus = "connected"
	StatusCompleted CallStatus = "completed"
	StatusFailed    CallStatus = "failed"
)

// Terminal reports whether a status ends a call's lifecycle.
func (s CallStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Outcome string

const (
	OutcomeSuccessfulWaste Outcome = "successful_waste"
	OutcomeExposedScam     Outcome = "exposed_scam"
	OutcomeTechnicalError  Outcome = "technical_error"
	OutcomeStopped         Outcome = "stopped"
)

// CallRecord tracks one dispatched call from creation to its terminal
// status. Mutated only by the dispatcher that owns it.
type CallRecord struct {
	ID              string
	PhoneNumber     string
	ScamCategory    string
	Status          CallStatus
	Outcome         Outcome
	StartedAt       time.Time
	EndedAt         time.Time
	DurationSeconds int
}

// PersonaAssignment is the durable phone-number-to-persona binding; it
// survives conversation-state expiry so a number always meets the same
// persona again.
type PersonaAssignment struct {
	PhoneNumber string
	Persona     string
	TotalCalls  int
	LastCallAt  time.Time
}

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS persona_assignments (
			phone_number TEXT PRIMARY KEY,
			persona TEXT NOT NULL,
			total_calls INTEGER NOT NULL DEFAULT 0,
			last_call_at TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS call_records (
			id TEXT PRIMARY KEY,
			phone_number TEXT NOT NULL,
			scam_category TEXT NOT NULL DEFAULT 'unknown',
			status TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL DEFAULT '',
			ended_at TEXT NOT NULL DEFAULT '',
			duration_seconds INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_phone ON call_records(phone_number)`,
		`CREATE INDEX IF NOT EXISTS idx_records_status ON call_records(status, started_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetAssignment returns the durable assignment for a number, or nil when
// none exists.
func (s *Store) GetAssignment(phone string) (*PersonaAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT phone_number, persona, total_calls, last_call_at
		FROM persona_assignments WHERE phone_number = ?`, phone)

	var a PersonaAssignment
	var lastCall string
	if err := row.Scan(&a.PhoneNumber, &a.Persona, &a.TotalCalls, &lastCall); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	a.LastCallAt = parseTime(lastCall)
	return &a, nil
}

// RecordContact binds a persona to a number if it has none yet and bumps
// the call counters. Returns the persisted assignment.
func (s *Store) RecordContact(phone, persona string, at time.Time) (*PersonaAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO persona_assignments (phone_number, persona, total_calls, last_call_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(phone_number) DO UPDATE SET
			total_calls = total_calls + 1,
			last_call_at = excluded.last_call_at`,
		phone, persona, formatTime(at))
	if err != nil {
		return nil, fmt.Errorf("record contact: %w", err)
	}

	row := s.db.QueryRow(`
		SELECT phone_number, persona, total_calls, last_call_at
		FROM persona_assignments WHERE phone_number = ?`, phone)
	var a PersonaAssignment
	var lastCall string
	if err := row.Scan(&a.PhoneNumber, &a.Persona, &a.TotalCalls, &lastCall); err != nil {
		return nil, fmt.Errorf("reload assignment: %w", err)
	}
	a.LastCallAt = parseTime(lastCall)
	return &a, nil
}

func (s *Store) SaveCallRecord(r *CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO call_records
			(id, phone_number, scam_category, status, outcome, started_at, ended_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			outcome = excluded.outcome,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			duration_seconds = excluded.duration_seconds`,
		r.ID, r.PhoneNumber, r.ScamCategory, string(r.Status), string(r.Outcome),
		formatTime(r.StartedAt), formatTime(r.EndedAt), r.DurationSeconds)
	if err != nil {
		return fmt.Errorf("save call record: %w", err)
	}
	return nil
}

func (s *Store) GetCallRecord(id string) (*CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, phone_number, scam_category, status, outcome, started_at, ended_at, duration_seconds
		FROM call_records WHERE id = ?`, id)

	var r CallRecord
	var status, outcome, started, ended string
	if err := row.Scan(&r.ID, &r.PhoneNumber, &r.ScamCategory, &status, &outcome, &started, &ended, &r.DurationSeconds); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get call record: %w", err)
	}
	r.Status = CallStatus(status)
	r.Outcome = Outcome(outcome)
	r.StartedAt = parseTime(started)
	r.EndedAt = parseTime(ended)
	return &r, nil
}

// CategoryFor returns the scam category of the most recent call record
// for a number, or "unknown" when the number has no history.
func (s *Store) CategoryFor(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT scam_category FROM call_records
		WHERE phone_number = ?
		ORDER BY started_at DESC LIMIT 1`, phone)
	var category string
	if err := row.Scan(&category); err != nil || category == "" {
		return "unknown"
	}
	return category
}

// CountCompletedSince reports terminal call records that started at or
// after the cutoff; the status command uses it for the daily summary.
func (s *Store) CountCompletedSince(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT COUNT(*) FROM call_records
		WHERE status IN (?, ?) AND started_at >= ?`,
		string(StatusCompleted), string(StatusFailed), formatTime(cutoff))
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count completed: %w", err)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
