package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/entdesk/entdesk/pkg/types"
)

// Notifier receives the snapshot of a freshly scheduled appointment. The
// external dispatcher renders and delivers the confirmation; the scheduler
// only emits the event.
type Notifier interface {
	AppointmentScheduled(appt types.Appointment) error
}

// Config holds scheduler configuration.
type Config struct {
	// DedupeWindow is how long an identical fingerprint collapses into the
	// existing booking instead of creating a duplicate (default: 10m).
	DedupeWindow time.Duration
}

// Scheduler owns appointment creation and status transitions. Callers only
// ever receive snapshots; the store holds the authoritative records.
type Scheduler struct {
	store    *Store
	notifier Notifier
	window   time.Duration

	// mu serialises the dedupe check and the insert so two concurrent
	// retries of the same submission cannot both miss the check and book
	// twice. This is the only hard mutual-exclusion section in the core.
	mu sync.Mutex

	// now is swapped in tests to step through the dedupe window.
	now func() time.Time
}

// New builds a scheduler on the given store. notifier may be nil, in which
// case no events are emitted.
func New(store *Store, notifier Notifier, cfg Config) *Scheduler {
	if cfg.DedupeWindow == 0 {
		cfg.DedupeWindow = 10 * time.Minute
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		window:   cfg.DedupeWindow,
		now:      time.Now,
	}
}

// Create books an appointment for a complete intake record and returns its
// snapshot. A submission whose (contact_email, preferred_time,
// symptom_summary) fingerprint matches a scheduled appointment created
// within the dedupe window returns that existing appointment instead of
// double-booking.
//
// The notification event is emitted after the booking is durable; an
// emission failure is logged but never rolls the booking back. Delivery is
// at-least-once and retried by the external dispatcher.
func (s *Scheduler) Create(ctx context.Context, intake types.IntakeRecord) (types.Appointment, error) {
	if missing := intake.MissingFields(); len(missing) > 0 {
		return types.Appointment{}, fmt.Errorf("%w: missing %s", ErrIncompleteIntake, strings.Join(missing, ", "))
	}

	fingerprint := intake.Fingerprint()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, err := s.store.findRecentScheduled(ctx, fingerprint, now.Add(-s.window))
	if err == nil {
		log.Printf("scheduler: deduped submission onto appointment %d", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return types.Appointment{}, err
	}

	appt, err := s.store.insert(ctx, intake, fingerprint, now)
	if err != nil {
		return types.Appointment{}, err
	}
	log.Printf("scheduler: created appointment %d for %s", appt.ID, appt.Intake.ContactEmail)

	if s.notifier != nil {
		if err := s.notifier.AppointmentScheduled(appt); err != nil {
			log.Printf("scheduler: failed to emit notification for appointment %d: %v", appt.ID, err)
		}
	}

	return appt, nil
}

// Get returns an appointment snapshot by id.
func (s *Scheduler) Get(ctx context.Context, id int64) (types.Appointment, error) {
	return s.store.Get(ctx, id)
}

// Cancel transitions an appointment to cancelled. The record is retained as
// an audit trail; its id is never reused.
func (s *Scheduler) Cancel(ctx context.Context, id int64) (types.Appointment, error) {
	return s.store.transition(ctx, id, types.StatusCancelled)
}

// Complete transitions an appointment to completed.
func (s *Scheduler) Complete(ctx context.Context, id int64) (types.Appointment, error) {
	return s.store.transition(ctx, id, types.StatusCompleted)
}
