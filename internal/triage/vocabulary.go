package triage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Vocabulary is the configurable pattern set driving signal extraction.
// Severity maps regular-expression patterns to category names; clinics tune
// the wording in a YAML file instead of recompiling business logic into the
// engine.
type Vocabulary struct {
	// Severity maps a case-insensitive pattern to its category
	// (e.g. "breathing_difficulty").
	Severity map[string]string `yaml:"severity"`

	// EscalationPhrases are substrings that mark an explicit appointment
	// request, matched case-insensitively.
	EscalationPhrases []string `yaml:"escalation_phrases"`
}

// LoadVocabulary reads a Vocabulary from a YAML file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("triage: failed to read vocabulary file: %w", err)
	}

	var vocab Vocabulary
	if err := yaml.Unmarshal(data, &vocab); err != nil {
		return nil, fmt.Errorf("triage: failed to parse vocabulary file: %w", err)
	}
	if len(vocab.Severity) == 0 {
		return nil, fmt.Errorf("triage: vocabulary file %s defines no severity patterns", path)
	}
	return &vocab, nil
}

// DefaultVocabulary returns the built-in ENT severity vocabulary, used when no
// vocabulary file is configured.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Severity: map[string]string{
			`difficult(y|ies) (in )?breathing|can('|no)?t breathe|short(ness)? of breath|struggling to breathe`: "breathing_difficulty",
			`hearing loss|lost( my)? hearing|can('|no)?t hear`:                                                  "hearing_loss",
			`(high )?fever.{0,40}pain|pain.{0,40}(high )?fever`:                                                 "fever_with_pain",
			`blood|bleeding|discharge with blood`:                                                               "bleeding",
			`vertigo|extreme(ly)? dizz|room (is )?spinning`:                                                     "vertigo",
		},
		EscalationPhrases: []string{
			"book an appointment",
			"make an appointment",
			"schedule an appointment",
			"book me in",
			"see the doctor",
			"see a doctor",
			"speak to a human",
			"talk to a human",
		},
	}
}
