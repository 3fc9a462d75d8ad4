package models

import (
	"fmt"
	"strings"
)

// GuardrailLevel controls how aggressively a persona's guardrails are tuned
type GuardrailLevel string

const (
	GuardrailLevelStrict   GuardrailLevel = "strict"
	GuardrailLevelModerate GuardrailLevel = "moderate"
	GuardrailLevelLenient  GuardrailLevel = "lenient"
)

// IsValid checks if the guardrail level is a known value
func (g GuardrailLevel) IsValid() bool {
	switch g {
	case GuardrailLevelStrict, GuardrailLevelModerate, GuardrailLevelLenient:
		return true
	}
	return false
}

// Persona binds a document corpus, a topic policy and prompt behavior under one id.
// A persona is also called a namespace.
type Persona struct {
	ID                   string         `json:"id" yaml:"id" validate:"required,max=64"`
	Name                 string         `json:"name" yaml:"name" validate:"required,max=255"`
	Description          string         `json:"description" yaml:"description"`
	CorpusFiles          []string       `json:"corpus_files" yaml:"corpus_files"`
	AllowedTopics        []string       `json:"allowed_topics" yaml:"allowed_topics"`
	BlockedTerms         []string       `json:"blocked_terms" yaml:"blocked_terms"`
	GuardrailLevel       GuardrailLevel `json:"guardrail_level" yaml:"guardrail_level"`
	RequireDisclaimer    bool           `json:"require_disclaimer" yaml:"require_disclaimer"`
	SystemPromptOverride string         `json:"system_prompt_override,omitempty" yaml:"system_prompt_override,omitempty"`
}

// Validate checks the persona fields that validator tags cannot express
func (p *Persona) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("persona id is required")
	}
	if strings.ContainsAny(p.ID, "/\\ ") {
		return fmt.Errorf("persona id %q must not contain spaces or path separators", p.ID)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("persona name is required")
	}
	if p.GuardrailLevel != "" && !p.GuardrailLevel.IsValid() {
		return fmt.Errorf("invalid guardrail level %q", p.GuardrailLevel)
	}
	for _, f := range p.CorpusFiles {
		if strings.Contains(f, "..") || strings.ContainsAny(f, "/\\") {
			return fmt.Errorf("corpus file %q must be a bare file name", f)
		}
	}
	return nil
}

// SystemPrompt returns the override when set, otherwise the default citation prompt
func (p *Persona) SystemPrompt() string {
	if p.SystemPromptOverride != "" {
		return p.SystemPromptOverride
	}
	return fmt.Sprintf("You are %s. %s. Cite all sources using [Source: filename, Page X, Section Y] format.",
		p.Name, p.Description)
}

// Clone returns a deep copy so callers cannot mutate registry state
func (p Persona) Clone() Persona {
	c := p
	c.CorpusFiles = append([]string(nil), p.CorpusFiles...)
	c.AllowedTopics = append([]string(nil), p.AllowedTopics...)
	c.BlockedTerms = append([]string(nil), p.BlockedTerms...)
	return c
}
