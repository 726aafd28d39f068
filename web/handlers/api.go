// Package handlers provides HTTP handlers and middleware for the ENT desk API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/entdesk/entdesk/internal/scheduler"
	"github.com/entdesk/entdesk/internal/triage"
	"github.com/entdesk/entdesk/pkg/types"
)

// session pairs a conversation context with its own lock so concurrent
// requests for the same session serialise without blocking other sessions.
type session struct {
	mu  sync.Mutex
	ctx *types.SessionContext
}

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	engine *triage.Engine
	sched  *scheduler.Scheduler

	mu       sync.Mutex
	sessions map[string]*session
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(engine *triage.Engine, sched *scheduler.Scheduler) *APIHandlers {
	return &APIHandlers{
		engine:   engine,
		sched:    sched,
		sessions: make(map[string]*session),
	}
}

// getSession returns the session for id, creating a fresh one when id is
// empty or unknown.
func (h *APIHandlers) getSession(id string) *session {
	h.mu.Lock()
	defer h.mu.Unlock()

	if id != "" {
		if s, ok := h.sessions[id]; ok {
			return s
		}
	}
	s := &session{ctx: types.NewSessionContext()}
	h.sessions[s.ctx.ID] = s
	return s
}

// PostQuery handles POST /api/query - triage one patient query.
func (h *APIHandlers) PostQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required", nil)
		return
	}

	s := h.getSession(req.SessionID)
	s.mu.Lock()
	decision, err := h.engine.HandleQuery(r.Context(), req.Text, s.ctx)
	s.mu.Unlock()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to handle query", err)
		return
	}

	resp := QueryResponse{
		SessionID:            s.ctx.ID,
		Decision:             string(decision.Kind),
		Confidence:           decision.Confidence,
		Reason:               decision.Reason,
		RequiredIntakeFields: decision.RequiredIntakeFields,
	}
	for _, c := range decision.Candidates {
		resp.Candidates = append(resp.Candidates, CandidateResponse{
			Question:   c.Payload.Question,
			Answer:     c.Payload.Answer,
			SourceRef:  c.Payload.SourceRef,
			Confidence: 1 - c.Distance,
			Rank:       c.Rank,
		})
	}
	if decision.Kind == types.DecisionAnswer && len(decision.Candidates) > 0 {
		resp.Answer = decision.Candidates[0].Payload.Answer
	}

	respondJSON(w, http.StatusOK, resp)
}

// PostIntake handles POST /api/intake - submit intake fields for an escalated
// session. Once the record is complete the appointment is booked and returned.
func (h *APIHandlers) PostIntake(w http.ResponseWriter, r *http.Request) {
	var req IntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required", nil)
		return
	}

	h.mu.Lock()
	s, ok := h.sessions[req.SessionID]
	h.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "unknown session", nil)
		return
	}

	update := types.IntakeRecord{
		FullName:       req.FullName,
		Age:            req.Age,
		ContactEmail:   req.ContactEmail,
		SymptomSummary: req.SymptomSummary,
		PreferredTime:  req.PreferredTime,
	}

	s.mu.Lock()
	outcome := h.engine.SubmitIntake(s.ctx, update)
	s.mu.Unlock()

	if outcome.Status == types.IntakePending {
		respondJSON(w, http.StatusOK, IntakeResponse{
			SessionID: s.ctx.ID,
			Status:    string(outcome.Status),
			Missing:   outcome.Missing,
		})
		return
	}

	appt, err := h.sched.Create(r.Context(), *outcome.Record)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create appointment", err)
		return
	}

	respondJSON(w, http.StatusCreated, IntakeResponse{
		SessionID:   s.ctx.ID,
		Status:      string(outcome.Status),
		Appointment: appointmentResponse(appt),
	})
}

// GetAppointment handles GET /api/appointments/{id}.
func (h *APIHandlers) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.sched.Get(r.Context(), id)
	if err != nil {
		respondSchedulerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, appointmentResponse(appt))
}

// CancelAppointment handles POST /api/appointments/{id}/cancel.
func (h *APIHandlers) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.sched.Cancel(r.Context(), id)
	if err != nil {
		respondSchedulerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, appointmentResponse(appt))
}

// CompleteAppointment handles POST /api/appointments/{id}/complete.
func (h *APIHandlers) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.sched.Complete(r.Context(), id)
	if err != nil {
		respondSchedulerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, appointmentResponse(appt))
}

// Helper functions

// appointmentID extracts and parses the {id} path parameter, writing the
// error response itself on failure.
func appointmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "appointment ID is required", nil)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "appointment ID must be an integer", err)
		return 0, false
	}
	return id, true
}

func respondSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		respondError(w, http.StatusNotFound, "appointment not found", err)
	case errors.Is(err, scheduler.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "invalid status transition", err)
	default:
		respondError(w, http.StatusInternalServerError, "scheduler error", err)
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; nothing to do but note it.
		fmt.Printf("failed to encode JSON response: %v\n", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}
