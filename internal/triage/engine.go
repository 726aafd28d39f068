// Package triage decides per query whether the knowledge base can answer or
// the conversation must escalate into appointment intake.
package triage

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/entdesk/entdesk/internal/retrieval"
	"github.com/entdesk/entdesk/pkg/types"
)

// Escalation reasons. Severity escalations use ReasonSeverityPrefix followed
// by the matched category.
const (
	ReasonUserRequested        = "user requested"
	ReasonSeverityPrefix       = "severity signal: "
	ReasonLowConfidence        = "low retrieval confidence"
	ReasonRetrievalUnavailable = "retrieval unavailable"
)

// Retriever is the slice of the retrieval service the engine depends on.
type Retriever interface {
	Retrieve(ctx context.Context, queryText string, topK int) ([]types.RetrievalCandidate, error)
}

// Config holds triage engine configuration.
type Config struct {
	// Threshold is the minimum top-candidate confidence for answering from
	// the knowledge base (default: 0.35).
	Threshold float64

	// TopK is the number of candidates returned with an answer (default: 5).
	TopK int
}

type signalPattern struct {
	re       *regexp.Regexp
	category string
}

// Engine makes one decision per query. It keeps no state across queries;
// everything conversational lives on the caller-supplied SessionContext.
type Engine struct {
	retriever Retriever
	patterns  []signalPattern
	phrases   []string
	threshold float64
	topK      int
}

// NewEngine compiles the vocabulary and builds an engine. An invalid pattern
// is a configuration error reported here, never silently dropped.
func NewEngine(retriever Retriever, vocab *Vocabulary, cfg Config) (*Engine, error) {
	if vocab == nil || len(vocab.Severity) == 0 {
		return nil, fmt.Errorf("triage: a severity vocabulary is required")
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.35
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("triage: threshold %f outside [0,1]", cfg.Threshold)
	}
	if cfg.TopK < 1 {
		cfg.TopK = 5
	}

	// Compile in sorted pattern order so extraction is deterministic
	// regardless of map iteration.
	patternKeys := make([]string, 0, len(vocab.Severity))
	for p := range vocab.Severity {
		patternKeys = append(patternKeys, p)
	}
	sort.Strings(patternKeys)

	patterns := make([]signalPattern, 0, len(patternKeys))
	for _, p := range patternKeys {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("triage: invalid severity pattern %q: %w", p, err)
		}
		patterns = append(patterns, signalPattern{re: re, category: vocab.Severity[p]})
	}

	phrases := make([]string, 0, len(vocab.EscalationPhrases))
	for _, p := range vocab.EscalationPhrases {
		phrases = append(phrases, strings.ToLower(p))
	}

	return &Engine{
		retriever: retriever,
		patterns:  patterns,
		phrases:   phrases,
		threshold: cfg.Threshold,
		topK:      cfg.TopK,
	}, nil
}

// ExtractSignals runs the severity vocabulary over the query text.
// Extraction is deterministic and stateless.
func (e *Engine) ExtractSignals(text string) types.Signals {
	var signals types.Signals

	lower := strings.ToLower(text)
	for _, phrase := range e.phrases {
		if strings.Contains(lower, phrase) {
			signals.ExplicitRequest = true
			break
		}
	}

	seen := make(map[string]bool)
	for _, p := range e.patterns {
		if p.re.MatchString(text) && !seen[p.category] {
			seen[p.category] = true
			signals.Categories = append(signals.Categories, p.category)
		}
	}
	sort.Strings(signals.Categories)

	return signals
}

// HandleQuery is the sole per-turn entry point called by the external
// conversational layer. The decision rules apply in priority order, first
// match wins:
//
//  1. explicit escalation request
//  2. any severity category
//  3. retrieval failure (forced escalation, not a query error)
//  4. top-candidate confidence below the threshold
//  5. answer with the top candidates
//
// Severity and explicit-request signals dominate retrieval confidence:
// a query that matches the knowledge base perfectly still escalates when it
// names a safety-relevant symptom.
func (e *Engine) HandleQuery(ctx context.Context, text string, session *types.SessionContext) (types.TriageDecision, error) {
	signals := e.ExtractSignals(text)

	if signals.ExplicitRequest {
		return e.escalate(session, ReasonUserRequested), nil
	}
	if len(signals.Categories) > 0 {
		return e.escalate(session, ReasonSeverityPrefix+signals.Categories[0]), nil
	}

	candidates, err := e.retriever.Retrieve(ctx, text, e.topK)
	if err != nil {
		if ctx.Err() != nil {
			// The surrounding turn was abandoned; discard, don't escalate.
			return types.TriageDecision{}, ctx.Err()
		}
		log.Printf("triage: retrieval failed, escalating: %v", err)
		return e.escalate(session, ReasonRetrievalUnavailable), nil
	}

	confidence := retrieval.Confidence(candidates)
	if confidence < e.threshold {
		return e.escalate(session, ReasonLowConfidence), nil
	}

	return types.AnswerDecision(candidates, confidence), nil
}

// escalate records the escalation on the session and opens the intake flow.
func (e *Engine) escalate(session *types.SessionContext, reason string) types.TriageDecision {
	missing := types.IntakeRecord{}.MissingFields()
	if session != nil {
		session.EscalationReason = reason
		if session.PendingIntake == nil {
			session.PendingIntake = &types.IntakeRecord{}
		}
		missing = session.PendingIntake.MissingFields()
	}
	return types.EscalateDecision(reason, missing)
}

// SubmitIntake merges the submitted fields into the session's pending intake
// and reports whether the record is ready for the scheduler. Empty fields in
// the update leave previously collected values untouched; nothing is ever
// silently defaulted.
func (e *Engine) SubmitIntake(session *types.SessionContext, update types.IntakeRecord) types.IntakeOutcome {
	if session.PendingIntake == nil {
		session.PendingIntake = &types.IntakeRecord{}
	}
	pending := session.PendingIntake

	if strings.TrimSpace(update.FullName) != "" {
		pending.FullName = strings.TrimSpace(update.FullName)
	}
	if update.Age > 0 {
		pending.Age = update.Age
	}
	if strings.TrimSpace(update.ContactEmail) != "" {
		pending.ContactEmail = strings.TrimSpace(update.ContactEmail)
	}
	if strings.TrimSpace(update.SymptomSummary) != "" {
		pending.SymptomSummary = strings.TrimSpace(update.SymptomSummary)
	}
	if strings.TrimSpace(update.PreferredTime) != "" {
		pending.PreferredTime = strings.TrimSpace(update.PreferredTime)
	}

	if missing := pending.MissingFields(); len(missing) > 0 {
		return types.IntakeOutcome{Status: types.IntakePending, Missing: missing}
	}

	// Hand out a copy and close the intake flow on the session.
	ready := *pending
	session.PendingIntake = nil
	return types.IntakeOutcome{Status: types.IntakeReady, Record: &ready}
}
