package scheduler_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entdesk/entdesk/internal/scheduler"
	"github.com/entdesk/entdesk/pkg/types"
)

// recordingNotifier captures emitted events and can simulate failures.
type recordingNotifier struct {
	mu     sync.Mutex
	events []types.Appointment
	fail   bool
}

func (n *recordingNotifier) AppointmentScheduled(appt types.Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("dispatcher unreachable")
	}
	n.events = append(n.events, appt)
	return nil
}

func newTestScheduler(t *testing.T, notifier scheduler.Notifier) *scheduler.Scheduler {
	t.Helper()
	store, err := scheduler.NewStore(filepath.Join(t.TempDir(), "appointments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return scheduler.New(store, notifier, scheduler.Config{DedupeWindow: 10 * time.Minute})
}

func completeIntake(email string) types.IntakeRecord {
	return types.IntakeRecord{
		FullName:       "Ada Example",
		Age:            34,
		ContactEmail:   email,
		SymptomSummary: "persistent sinus pain",
		PreferredTime:  "2025-03-10 09:00",
	}
}

func TestCreateAssignsIncreasingIDs(t *testing.T) {
	sched := newTestScheduler(t, nil)
	ctx := context.Background()

	first, err := sched.Create(ctx, completeIntake("a@example.com"))
	require.NoError(t, err)
	second, err := sched.Create(ctx, completeIntake("b@example.com"))
	require.NoError(t, err)

	assert.Equal(t, types.StatusScheduled, first.Status)
	assert.Greater(t, second.ID, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestCreateRejectsIncompleteIntake(t *testing.T) {
	sched := newTestScheduler(t, nil)

	intake := completeIntake("a@example.com")
	intake.ContactEmail = ""
	_, err := sched.Create(context.Background(), intake)
	assert.ErrorIs(t, err, scheduler.ErrIncompleteIntake)
}

func TestDedupeReturnsExistingAppointment(t *testing.T) {
	notifier := &recordingNotifier{}
	sched := newTestScheduler(t, notifier)
	ctx := context.Background()

	first, err := sched.Create(ctx, completeIntake("a@example.com"))
	require.NoError(t, err)

	// Retried submission with cosmetic differences dedupes onto the
	// existing booking.
	retry := completeIntake("A@Example.com")
	retry.FullName = "Ada B. Example"
	second, err := sched.Create(ctx, retry)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, notifier.events, 1, "dedupe must not re-emit the notification")
}

func TestCancelledAppointmentDoesNotDedupe(t *testing.T) {
	sched := newTestScheduler(t, nil)
	ctx := context.Background()

	first, err := sched.Create(ctx, completeIntake("a@example.com"))
	require.NoError(t, err)
	_, err = sched.Cancel(ctx, first.ID)
	require.NoError(t, err)

	second, err := sched.Create(ctx, completeIntake("a@example.com"))
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID, "rebooking after cancellation needs a fresh id")
}

func TestConcurrentCreatesGetDistinctIDs(t *testing.T) {
	sched := newTestScheduler(t, nil)
	ctx := context.Background()

	const n = 100
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			appt, err := sched.Create(ctx, completeIntake(fmt.Sprintf("user%d@example.com", i)))
			if err != nil {
				t.Errorf("Create() failed: %v", err)
				return
			}
			ids <- appt.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d assigned twice", id)
		}
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestStatusTransitions(t *testing.T) {
	sched := newTestScheduler(t, nil)
	ctx := context.Background()

	appt, err := sched.Create(ctx, completeIntake("a@example.com"))
	require.NoError(t, err)

	completed, err := sched.Complete(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, completed.Status)

	// Cancelling a completed appointment is invalid and changes nothing.
	_, err = sched.Cancel(ctx, appt.ID)
	assert.ErrorIs(t, err, scheduler.ErrInvalidTransition)

	got, err := sched.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
}

func TestCompletingCancelledFails(t *testing.T) {
	sched := newTestScheduler(t, nil)
	ctx := context.Background()

	appt, err := sched.Create(ctx, completeIntake("a@example.com"))
	require.NoError(t, err)
	_, err = sched.Cancel(ctx, appt.ID)
	require.NoError(t, err)

	_, err = sched.Complete(ctx, appt.ID)
	assert.ErrorIs(t, err, scheduler.ErrInvalidTransition)
}

func TestTransitionOnMissingAppointment(t *testing.T) {
	sched := newTestScheduler(t, nil)
	_, err := sched.Cancel(context.Background(), 12345)
	assert.ErrorIs(t, err, scheduler.ErrNotFound)
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	notifier := &recordingNotifier{fail: true}
	sched := newTestScheduler(t, notifier)
	ctx := context.Background()

	appt, err := sched.Create(ctx, completeIntake("a@example.com"))
	require.NoError(t, err)

	got, err := sched.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusScheduled, got.Status)
}

func TestNotificationCarriesFullSnapshot(t *testing.T) {
	notifier := &recordingNotifier{}
	sched := newTestScheduler(t, notifier)

	_, err := sched.Create(context.Background(), completeIntake("a@example.com"))
	require.NoError(t, err)

	require.Len(t, notifier.events, 1)
	evt := notifier.events[0]
	assert.Equal(t, "Ada Example", evt.Intake.FullName)
	assert.Equal(t, "a@example.com", evt.Intake.ContactEmail)
	assert.Equal(t, "2025-03-10 09:00", evt.Intake.PreferredTime)
	assert.Equal(t, types.StatusScheduled, evt.Status)
}
