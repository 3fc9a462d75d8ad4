package guard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/sme-plug/internal/observability"
	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/services/citation"
)

// Output check names.
const (
	CheckHasCitations            = "has_citations"
	CheckHallucinationAcceptable = "hallucination_acceptable"
	CheckDisclaimerPresent       = "disclaimer_present"
	CheckNoBlockedTerms          = "no_blocked_terms"
	CheckResponseValid           = "response_valid"
)

// Output detail keys.
const (
	DetailCitationCount        = "citation_count"
	DetailHallucinationScore   = "hallucination_score"
	DetailBlockedTermsInOutput = "blocked_terms_in_output"
)

// HallucinationThreshold is the highest acceptable hallucination score.
const HallucinationThreshold = 0.30

// minResponseChars is the trimmed length a response must exceed to be valid.
const minResponseChars = 20

var disclaimerKeywords = []string{
	"disclaimer",
	"subject to market risks",
	"consult",
	"not indicative of future",
	"read all scheme",
	"ai-assisted",
	"final determination",
}

// OutputGuard screens generated responses before they are returned.
type OutputGuard struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewOutputGuard creates an output guard. metrics may be nil.
func NewOutputGuard(logger *zap.Logger, metrics *observability.Metrics) *OutputGuard {
	return &OutputGuard{
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Evaluate checks a response against the grounding text it was generated from
// and returns the verdict with the hallucination score.
func (g *OutputGuard) Evaluate(response, grounding string, persona models.Persona) (models.GuardrailVerdict, float64) {
	checks := make(map[string]bool, 5)
	details := make(map[string]string)

	count := citation.Count(response)
	checks[CheckHasCitations] = count > 0
	details[DetailCitationCount] = strconv.Itoa(count)

	score := HallucinationScore(response, grounding)
	checks[CheckHallucinationAcceptable] = score <= HallucinationThreshold
	details[DetailHallucinationScore] = fmt.Sprintf("%.2f", score)

	checks[CheckDisclaimerPresent] = !persona.RequireDisclaimer || hasDisclaimer(response)

	blocked := findTerms(response, persona.BlockedTerms)
	checks[CheckNoBlockedTerms] = len(blocked) == 0
	if len(blocked) > 0 {
		details[DetailBlockedTermsInOutput] = strings.Join(blocked, ", ")
	}

	checks[CheckResponseValid] = len(strings.TrimSpace(response)) > minResponseChars

	verdict := models.GuardrailVerdict{
		Layer:     models.GuardrailLayerOutput,
		Decision:  outputDecision(checks),
		Checks:    checks,
		Details:   details,
		Timestamp: g.now().UTC(),
	}

	g.metrics.RecordGuardrail(string(verdict.Layer), string(verdict.Decision))
	g.metrics.ObserveHallucination(score)
	if verdict.Decision != models.DecisionPassed {
		g.logger.Info("output guardrail triggered",
			zap.String("persona_id", persona.ID),
			zap.String("decision", string(verdict.Decision)),
			zap.Float64("hallucination_score", score),
			zap.Strings("failed_checks", verdict.Failed()),
		)
	}
	return verdict, score
}

func outputDecision(checks map[string]bool) models.GuardrailDecision {
	switch {
	case !checks[CheckHallucinationAcceptable]:
		return models.DecisionBlocked
	case !checks[CheckNoBlockedTerms]:
		return models.DecisionBlocked
	}
	for _, ok := range checks {
		if !ok {
			return models.DecisionFlagged
		}
	}
	return models.DecisionPassed
}

func hasDisclaimer(response string) bool {
	lower := strings.ToLower(response)
	for _, kw := range disclaimerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
