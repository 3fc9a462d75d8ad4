// Package guard implements the input and output guardrail layers.
//
// Each layer evaluates a fixed set of named checks and derives its decision
// from those checks alone. Detection is pattern based and best effort.
package guard

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/sme-plug/internal/observability"
	"github.com/upb/sme-plug/internal/prompt"
	"github.com/upb/sme-plug/models"
)

// Input check names.
const (
	CheckPromptInjectionSafe = "prompt_injection_safe"
	CheckPIISafe             = "pii_safe"
	CheckTopicInScope        = "topic_in_scope"
	CheckQueryValid          = "query_valid"
)

// Input detail keys.
const (
	DetailInjectionPattern  = "injection_pattern"
	DetailInjectionCategory = "injection_category"
	DetailPIIDetected       = "pii_detected"
	DetailPIIAction         = "pii_action"
	DetailBlockedTermsFound = "blocked_terms_found"
)

// InputGuard screens queries before retrieval.
type InputGuard struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewInputGuard creates an input guard. metrics may be nil.
func NewInputGuard(logger *zap.Logger, metrics *observability.Metrics) *InputGuard {
	return &InputGuard{
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Evaluate runs every input check against the query for the given persona.
func (g *InputGuard) Evaluate(query string, persona models.Persona) models.GuardrailVerdict {
	checks := make(map[string]bool, 4)
	details := make(map[string]string)

	detection, injected := prompt.DetectInjection(query)
	checks[CheckPromptInjectionSafe] = !injected
	if injected {
		details[DetailInjectionPattern] = detection.Pattern
		details[DetailInjectionCategory] = string(detection.Type)
	}

	piiTypes := prompt.DetectPIITypes(query)
	checks[CheckPIISafe] = len(piiTypes) == 0
	if len(piiTypes) > 0 {
		names := make([]string, len(piiTypes))
		for i, t := range piiTypes {
			names[i] = string(t)
		}
		details[DetailPIIDetected] = strings.Join(names, ", ")
	}

	found := findTerms(query, persona.BlockedTerms)
	checks[CheckTopicInScope] = len(found) == 0
	if len(found) > 0 {
		details[DetailBlockedTermsFound] = strings.Join(found, ", ")
	}

	checks[CheckQueryValid] = strings.TrimSpace(query) != ""

	decision := inputDecision(checks)
	if decision == models.DecisionFlagged {
		details[DetailPIIAction] = "redacted"
	}

	verdict := models.GuardrailVerdict{
		Layer:     models.GuardrailLayerInput,
		Decision:  decision,
		Checks:    checks,
		Details:   details,
		Timestamp: g.now().UTC(),
	}

	g.metrics.RecordGuardrail(string(verdict.Layer), string(verdict.Decision))
	if decision != models.DecisionPassed {
		g.logger.Info("input guardrail triggered",
			zap.String("persona_id", persona.ID),
			zap.String("decision", string(decision)),
			zap.Strings("failed_checks", verdict.Failed()),
		)
	}
	return verdict
}

// Redact replaces PII in text with [REDACTED-<CATEGORY>] placeholders.
func (g *InputGuard) Redact(text string) string {
	return prompt.RedactPII(text)
}

func inputDecision(checks map[string]bool) models.GuardrailDecision {
	switch {
	case !checks[CheckPromptInjectionSafe]:
		return models.DecisionBlocked
	case !checks[CheckTopicInScope]:
		return models.DecisionBlocked
	case !checks[CheckQueryValid]:
		return models.DecisionBlocked
	case !checks[CheckPIISafe]:
		return models.DecisionFlagged
	default:
		return models.DecisionPassed
	}
}

// findTerms returns the terms that occur in text, case-insensitively, in term order.
func findTerms(text string, terms []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			found = append(found, term)
		}
	}
	return found
}
