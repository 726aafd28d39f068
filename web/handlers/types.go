package handlers

import (
	"time"

	"github.com/entdesk/entdesk/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// QueryRequest is the request body for POST /api/query.
type QueryRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
}

// CandidateResponse is one retrieval candidate in a query response.
type CandidateResponse struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	SourceRef  string  `json:"source_ref,omitempty"`
	Confidence float64 `json:"confidence"`
	Rank       int     `json:"rank"`
}

// QueryResponse is the response body for POST /api/query.
type QueryResponse struct {
	SessionID            string              `json:"session_id"`
	Decision             string              `json:"decision"`
	Answer               string              `json:"answer,omitempty"`
	Candidates           []CandidateResponse `json:"candidates,omitempty"`
	Confidence           float64             `json:"confidence"`
	Reason               string              `json:"reason,omitempty"`
	RequiredIntakeFields []string            `json:"required_intake_fields,omitempty"`
}

// IntakeRequest is the request body for POST /api/intake. Omitted fields
// leave previously collected values untouched.
type IntakeRequest struct {
	SessionID      string `json:"session_id"`
	FullName       string `json:"full_name,omitempty"`
	Age            int    `json:"age,omitempty"`
	ContactEmail   string `json:"contact_email,omitempty"`
	SymptomSummary string `json:"symptom_summary,omitempty"`
	PreferredTime  string `json:"preferred_time,omitempty"`
}

// IntakeResponse is the response body for POST /api/intake.
type IntakeResponse struct {
	SessionID   string               `json:"session_id"`
	Status      string               `json:"status"`
	Missing     []string             `json:"missing,omitempty"`
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
}

// AppointmentResponse is the wire form of an appointment snapshot.
type AppointmentResponse struct {
	ID             int64     `json:"id"`
	FullName       string    `json:"full_name"`
	Age            int       `json:"age"`
	ContactEmail   string    `json:"contact_email"`
	SymptomSummary string    `json:"symptom_summary"`
	PreferredTime  string    `json:"preferred_time"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func appointmentResponse(appt types.Appointment) *AppointmentResponse {
	return &AppointmentResponse{
		ID:             appt.ID,
		FullName:       appt.Intake.FullName,
		Age:            appt.Intake.Age,
		ContactEmail:   appt.Intake.ContactEmail,
		SymptomSummary: appt.Intake.SymptomSummary,
		PreferredTime:  appt.Intake.PreferredTime,
		Status:         string(appt.Status),
		CreatedAt:      appt.CreatedAt,
	}
}
