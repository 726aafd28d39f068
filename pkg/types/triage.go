package types

import "github.com/google/uuid"

// DecisionKind distinguishes the two triage outcomes.
type DecisionKind string

// Triage decision kinds.
const (
	DecisionAnswer   DecisionKind = "answer"
	DecisionEscalate DecisionKind = "escalate"
)

// TriageDecision is the per-query outcome of the triage engine: either an
// answer drawn from the knowledge base or an escalation into the intake flow.
// Exactly one variant applies; Candidates is set only for answers, Reason and
// RequiredIntakeFields only for escalations.
type TriageDecision struct {
	Kind                 DecisionKind         `json:"kind"`
	Candidates           []RetrievalCandidate `json:"candidates,omitempty"`
	Confidence           float64              `json:"confidence"`
	Reason               string               `json:"reason,omitempty"`
	RequiredIntakeFields []string             `json:"required_intake_fields,omitempty"`
}

// AnswerDecision builds an ANSWER decision from ranked candidates.
func AnswerDecision(candidates []RetrievalCandidate, confidence float64) TriageDecision {
	return TriageDecision{
		Kind:       DecisionAnswer,
		Candidates: candidates,
		Confidence: confidence,
	}
}

// EscalateDecision builds an ESCALATE decision with the given reason and the
// intake fields still required from the user.
func EscalateDecision(reason string, missing []string) TriageDecision {
	return TriageDecision{
		Kind:                 DecisionEscalate,
		Reason:               reason,
		RequiredIntakeFields: missing,
	}
}

// Signals are the urgency and severity markers extracted from a single query.
// Extraction is deterministic and stateless: the same text always yields the
// same signals.
type Signals struct {
	// Categories holds matched severity categories (e.g. "breathing_difficulty"),
	// sorted and deduplicated.
	Categories []string `json:"categories,omitempty"`

	// ExplicitRequest is true when the user asked for an appointment outright.
	ExplicitRequest bool `json:"explicit_request"`
}

// IntakeStatus is the state of an intake submission.
type IntakeStatus string

// Intake outcome states.
const (
	IntakePending IntakeStatus = "pending"
	IntakeReady   IntakeStatus = "ready"
)

// IntakeOutcome is the result of submitting a partial or complete intake
// record. Pending outcomes list the still-missing fields; only Ready outcomes
// carry a record fit for the scheduler.
type IntakeOutcome struct {
	Status  IntakeStatus  `json:"status"`
	Missing []string      `json:"missing,omitempty"`
	Record  *IntakeRecord `json:"record,omitempty"`
}

// SessionContext is the caller-owned conversation state threaded through
// triage calls. The engine keeps no per-query state of its own; everything it
// needs between turns (a half-collected intake, the reason the conversation
// escalated) lives here.
type SessionContext struct {
	ID               string        `json:"id"`
	PendingIntake    *IntakeRecord `json:"pending_intake,omitempty"`
	EscalationReason string        `json:"escalation_reason,omitempty"`
}

// NewSessionContext creates a fresh session with a unique id.
func NewSessionContext() *SessionContext {
	return &SessionContext{ID: uuid.New().String()}
}
