package types

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// AppointmentStatus is the lifecycle state of a booked appointment.
type AppointmentStatus string

// Appointment status constants.
const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// IsValidStatus reports whether s is a known appointment status.
func IsValidStatus(s AppointmentStatus) bool {
	switch s {
	case StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// IsValidStatusTransition validates appointment status transitions.
//
// Valid transitions:
//
//	scheduled -> cancelled | completed
//	cancelled -> (terminal)
//	completed -> (terminal)
//
// Appointments are never deleted; cancellation is a transition, which keeps
// the full booking history as an audit trail.
func IsValidStatusTransition(current, next AppointmentStatus) bool {
	if current != StatusScheduled {
		return false
	}
	return next == StatusCancelled || next == StatusCompleted
}

// IntakeRecord holds the fields collected from a user before an appointment
// can be booked. All fields are required; partial records are held pending by
// the triage engine and never silently defaulted.
type IntakeRecord struct {
	FullName       string `json:"full_name"`
	Age            int    `json:"age"`
	ContactEmail   string `json:"contact_email"`
	SymptomSummary string `json:"symptom_summary"`
	PreferredTime  string `json:"preferred_time"`
}

// Intake field names as reported in IntakeOutcome.Missing and
// TriageDecision.RequiredIntakeFields.
const (
	FieldFullName       = "full_name"
	FieldAge            = "age"
	FieldContactEmail   = "contact_email"
	FieldSymptomSummary = "symptom_summary"
	FieldPreferredTime  = "preferred_time"
)

// MissingFields returns the names of required fields that are still empty,
// in a fixed order.
func (r IntakeRecord) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(r.FullName) == "" {
		missing = append(missing, FieldFullName)
	}
	if r.Age <= 0 {
		missing = append(missing, FieldAge)
	}
	if strings.TrimSpace(r.ContactEmail) == "" {
		missing = append(missing, FieldContactEmail)
	}
	if strings.TrimSpace(r.SymptomSummary) == "" {
		missing = append(missing, FieldSymptomSummary)
	}
	if strings.TrimSpace(r.PreferredTime) == "" {
		missing = append(missing, FieldPreferredTime)
	}
	return missing
}

// IsComplete reports whether every required intake field is present.
func (r IntakeRecord) IsComplete() bool {
	return len(r.MissingFields()) == 0
}

// Fingerprint derives the dedupe key used to collapse retried submissions.
// It hashes the (contact_email, preferred_time, symptom_summary) triple with
// the email lowercased and all fields trimmed, so formatting differences in a
// retry do not create a second booking.
func (r IntakeRecord) Fingerprint() string {
	key := strings.ToLower(strings.TrimSpace(r.ContactEmail)) + "|" +
		strings.TrimSpace(r.PreferredTime) + "|" +
		strings.TrimSpace(r.SymptomSummary)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
}

// Appointment is a booked follow-up derived from a completed intake.
// Instances handed to callers are always snapshots; the scheduler owns the
// authoritative record and ids are strictly increasing and never reused.
type Appointment struct {
	ID        int64             `json:"id"`
	Intake    IntakeRecord      `json:"intake"`
	Status    AppointmentStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}
