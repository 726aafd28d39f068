package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entdesk/entdesk/internal/scheduler"
	"github.com/entdesk/entdesk/internal/triage"
	"github.com/entdesk/entdesk/pkg/types"
	"github.com/entdesk/entdesk/web/handlers"
)

// stubRetriever serves a fixed candidate list.
type stubRetriever struct {
	candidates []types.RetrievalCandidate
}

func (s *stubRetriever) Retrieve(ctx context.Context, queryText string, topK int) ([]types.RetrievalCandidate, error) {
	return s.candidates, nil
}

func newTestHandlers(t *testing.T) *handlers.APIHandlers {
	t.Helper()

	retriever := &stubRetriever{candidates: []types.RetrievalCandidate{
		{
			Payload:  types.Payload{Question: "sore throat", Answer: "Rest, fluids, and warm saline gargle."},
			Distance: 0.05,
		},
	}}
	engine, err := triage.NewEngine(retriever, triage.DefaultVocabulary(), triage.Config{})
	require.NoError(t, err)

	store, err := scheduler.NewStore(filepath.Join(t.TempDir(), "appointments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return handlers.NewAPIHandlers(engine, scheduler.New(store, nil, scheduler.Config{}))
}

func newTestMux(h *handlers.APIHandlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/query", h.PostQuery)
	mux.HandleFunc("POST /api/intake", h.PostIntake)
	mux.HandleFunc("GET /api/appointments/{id}", h.GetAppointment)
	mux.HandleFunc("POST /api/appointments/{id}/cancel", h.CancelAppointment)
	mux.HandleFunc("POST /api/appointments/{id}/complete", h.CompleteAppointment)
	return mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestPostQuery_AnswersFromKnowledgeBase(t *testing.T) {
	mux := newTestMux(newTestHandlers(t))

	w := postJSON(t, mux, "/api/query", handlers.QueryRequest{Text: "I have a mild sore throat"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "answer", resp.Decision)
	assert.Equal(t, "Rest, fluids, and warm saline gargle.", resp.Answer)
	assert.NotEmpty(t, resp.SessionID, "server must assign a session id")
}

func TestPostQuery_RejectsEmptyText(t *testing.T) {
	mux := newTestMux(newTestHandlers(t))

	w := postJSON(t, mux, "/api/query", handlers.QueryRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostQuery_ReusesSession(t *testing.T) {
	mux := newTestMux(newTestHandlers(t))

	w := postJSON(t, mux, "/api/query", handlers.QueryRequest{Text: "hello"})
	var first handlers.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	w = postJSON(t, mux, "/api/query", handlers.QueryRequest{SessionID: first.SessionID, Text: "hello again"})
	var second handlers.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))

	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestIntakeFlow_EscalationToBooking(t *testing.T) {
	mux := newTestMux(newTestHandlers(t))

	// Severe symptom escalates and opens the intake flow.
	w := postJSON(t, mux, "/api/query", handlers.QueryRequest{Text: "I am having severe difficulty breathing"})
	require.Equal(t, http.StatusOK, w.Code)

	var query handlers.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &query))
	require.Equal(t, "escalate", query.Decision)
	assert.Len(t, query.RequiredIntakeFields, 5)

	// Partial intake reports what is still missing.
	w = postJSON(t, mux, "/api/intake", handlers.IntakeRequest{
		SessionID:      query.SessionID,
		FullName:       "Ada Example",
		Age:            34,
		SymptomSummary: "severe difficulty breathing",
		PreferredTime:  "2025-03-10 09:00",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var pending handlers.IntakeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Equal(t, "pending", pending.Status)
	assert.Equal(t, []string{types.FieldContactEmail}, pending.Missing)
	assert.Nil(t, pending.Appointment)

	// Final field completes the record and books the appointment.
	w = postJSON(t, mux, "/api/intake", handlers.IntakeRequest{
		SessionID:    query.SessionID,
		ContactEmail: "ada@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var ready handlers.IntakeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.Equal(t, "ready", ready.Status)
	require.NotNil(t, ready.Appointment)
	assert.Equal(t, "scheduled", ready.Appointment.Status)
	assert.Equal(t, "ada@example.com", ready.Appointment.ContactEmail)
	assert.Greater(t, ready.Appointment.ID, int64(0))
}

func TestPostIntake_UnknownSession(t *testing.T) {
	mux := newTestMux(newTestHandlers(t))

	w := postJSON(t, mux, "/api/intake", handlers.IntakeRequest{SessionID: "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAppointmentLifecycleOverHTTP(t *testing.T) {
	h := newTestHandlers(t)
	mux := newTestMux(h)

	// Book via the intake flow.
	w := postJSON(t, mux, "/api/query", handlers.QueryRequest{Text: "please book an appointment"})
	var query handlers.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &query))
	require.Equal(t, "escalate", query.Decision)

	w = postJSON(t, mux, "/api/intake", handlers.IntakeRequest{
		SessionID:      query.SessionID,
		FullName:       "Ada Example",
		Age:            34,
		ContactEmail:   "ada@example.com",
		SymptomSummary: "recurring sinus pain",
		PreferredTime:  "2025-03-10 09:00",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var booked handlers.IntakeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &booked))
	require.NotNil(t, booked.Appointment)
	id := booked.Appointment.ID

	// Fetch it back.
	req := httptest.NewRequest("GET", fmt.Sprintf("/api/appointments/%d", id), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Cancel, then completing the cancelled appointment conflicts.
	w = postJSON(t, mux, fmt.Sprintf("/api/appointments/%d/cancel", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled handlers.AppointmentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancelled))
	assert.Equal(t, "cancelled", cancelled.Status)

	w = postJSON(t, mux, fmt.Sprintf("/api/appointments/%d/complete", id), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetAppointment_NotFound(t *testing.T) {
	mux := newTestMux(newTestHandlers(t))

	req := httptest.NewRequest("GET", "/api/appointments/999", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAppointment_BadID(t *testing.T) {
	mux := newTestMux(newTestHandlers(t))

	req := httptest.NewRequest("GET", "/api/appointments/abc", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
