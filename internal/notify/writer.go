// Package notify provides cross-process appointment event notification
// between the server and external dispatchers using filesystem events.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/entdesk/entdesk/pkg/types"
)

// EventAppointmentScheduled is emitted once per durable booking.
const EventAppointmentScheduled = "appointment.scheduled"

// Event is the payload written to an event file. It carries the full
// appointment snapshot so the dispatcher never has to read the store.
type Event struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Appointment types.Appointment `json:"appointment"`
	Time        int64             `json:"time"`
}

// EventWriter writes notification event files to a shared directory.
// It is the scheduler's Notifier.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events to {dataPath}/events/.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: filepath.Join(dataPath, "events")}
}

// AppointmentScheduled writes an appointment.scheduled event file.
// Safe to call concurrently. Errors are returned but not fatal; delivery is
// at-least-once and the dispatcher owns retries.
func (w *EventWriter) AppointmentScheduled(appt types.Appointment) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	evt := Event{
		ID:          uuid.New().String(),
		Type:        EventAppointmentScheduled,
		Appointment: appt,
		Time:        time.Now().UnixNano(),
	}
	data, _ := json.Marshal(evt)
	filename := fmt.Sprintf("%d-%s.event", evt.Time, evt.ID)
	path := filepath.Join(w.dir, filename)
	return os.WriteFile(path, data, 0o600)
}
