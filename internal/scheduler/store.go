// Package scheduler owns the appointment lifecycle: durable storage, atomic
// id assignment, dedupe of retried submissions, and status transitions.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/entdesk/entdesk/pkg/types"
)

var (
	// ErrNotFound indicates the appointment does not exist.
	ErrNotFound = errors.New("scheduler: appointment not found")

	// ErrInvalidTransition indicates a status change the state machine forbids
	// (e.g. completing a cancelled appointment). No partial change occurs.
	ErrInvalidTransition = errors.New("scheduler: invalid status transition")

	// ErrIncompleteIntake indicates a create attempt with missing required
	// fields. The triage intake flow reports these as Pending before the
	// scheduler is ever reached; this is the backstop.
	ErrIncompleteIntake = errors.New("scheduler: intake record is incomplete")
)

const schema = `
CREATE TABLE IF NOT EXISTS appointments (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	full_name       TEXT NOT NULL,
	age             INTEGER NOT NULL,
	contact_email   TEXT NOT NULL,
	symptom_summary TEXT NOT NULL,
	preferred_time  TEXT NOT NULL,
	fingerprint     TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS appointments_fingerprint_idx ON appointments (fingerprint, created_at);
`

// Store persists appointments in SQLite. AUTOINCREMENT guarantees strictly
// increasing ids that are never reused, even across restarts and after
// cancellations — the original in-memory booking list lost every prior
// booking per call, which this store exists to fix.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the appointment database at dsn.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("scheduler: failed to open database: %w", err)
	}

	// SQLite supports one concurrent writer; a single connection serialises
	// writes and avoids SQLITE_BUSY under concurrent create calls. WAL lets
	// readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("scheduler: failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("scheduler: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// insert persists a new scheduled appointment and returns its snapshot with
// the assigned id.
func (s *Store) insert(ctx context.Context, intake types.IntakeRecord, fingerprint string, now time.Time) (types.Appointment, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO appointments (full_name, age, contact_email, symptom_summary, preferred_time, fingerprint, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		intake.FullName, intake.Age, intake.ContactEmail, intake.SymptomSummary, intake.PreferredTime,
		fingerprint, string(types.StatusScheduled), now.UTC(),
	)
	if err != nil {
		return types.Appointment{}, fmt.Errorf("scheduler: failed to insert appointment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return types.Appointment{}, fmt.Errorf("scheduler: failed to read appointment id: %w", err)
	}

	return types.Appointment{
		ID:        id,
		Intake:    intake,
		Status:    types.StatusScheduled,
		CreatedAt: now.UTC(),
	}, nil
}

// findRecentScheduled returns the newest scheduled appointment with the given
// fingerprint created at or after since, or ErrNotFound. Cancelled and
// completed appointments never dedupe: a user who cancelled may book again
// with the same details.
func (s *Store) findRecentScheduled(ctx context.Context, fingerprint string, since time.Time) (types.Appointment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, age, contact_email, symptom_summary, preferred_time, status, created_at
		FROM appointments
		WHERE fingerprint = ? AND status = ? AND created_at >= ?
		ORDER BY id DESC
		LIMIT 1`,
		fingerprint, string(types.StatusScheduled), since.UTC(),
	)
	return scanAppointment(row)
}

// Get retrieves an appointment snapshot by id.
func (s *Store) Get(ctx context.Context, id int64) (types.Appointment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, age, contact_email, symptom_summary, preferred_time, status, created_at
		FROM appointments
		WHERE id = ?`, id)
	return scanAppointment(row)
}

// transition moves an appointment to next inside a transaction, validating
// against the status state machine. On a forbidden transition nothing
// changes and ErrInvalidTransition is returned.
func (s *Store) transition(ctx context.Context, id int64, next types.AppointmentStatus) (types.Appointment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Appointment{}, fmt.Errorf("scheduler: failed to begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM appointments WHERE id = ?", id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Appointment{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return types.Appointment{}, fmt.Errorf("scheduler: failed to read status: %w", err)
	}

	if !types.IsValidStatusTransition(types.AppointmentStatus(current), next) {
		return types.Appointment{}, fmt.Errorf("%w: %s -> %s for id %d", ErrInvalidTransition, current, next, id)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE appointments SET status = ? WHERE id = ?", string(next), id); err != nil {
		return types.Appointment{}, fmt.Errorf("scheduler: failed to update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return types.Appointment{}, fmt.Errorf("scheduler: failed to commit transition: %w", err)
	}

	return s.Get(ctx, id)
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (types.Appointment, error) {
	var appt types.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.Intake.FullName,
		&appt.Intake.Age,
		&appt.Intake.ContactEmail,
		&appt.Intake.SymptomSummary,
		&appt.Intake.PreferredTime,
		&status,
		&appt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Appointment{}, ErrNotFound
		}
		return types.Appointment{}, fmt.Errorf("scheduler: failed to scan appointment: %w", err)
	}
	appt.Status = types.AppointmentStatus(status)
	return appt, nil
}
