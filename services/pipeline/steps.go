package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/upb/sme-plug/internal/observability"
	"github.com/upb/sme-plug/models"
)

// Step names in execution order.
const (
	StepInputGuardrails      = "Input Guardrails"
	StepDocumentRetrieval    = "Document Retrieval"
	StepLLMGeneration        = "LLM Generation"
	StepCitationVerification = "Citation Verification"
	StepOutputGuardrails     = "Output Guardrails"
)

// Step statuses besides guardrail decisions.
const (
	StatusPassed    = "passed"
	StatusNoResults = "no_results"
	StatusError     = "error"
)

// trace collects the steps of one query. Recording never fails.
type trace struct {
	steps   []models.PipelineStep
	metrics *observability.Metrics
}

func (t *trace) record(name, status string, d time.Duration, details string) {
	t.steps = append(t.steps, models.PipelineStep{
		Name:       name,
		Status:     status,
		DurationMs: millis(d),
		Details:    details,
	})
	t.metrics.ObserveStep(name, status, d)
}

func checksSummary(checks map[string]bool) string {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%t", name, checks[name]))
	}
	return "Checks: " + strings.Join(parts, ", ")
}

func detailsSummary(details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+details[k])
	}
	return strings.Join(parts, "; ")
}

// reason explains a blocking verdict from its failed checks and details.
func reason(prefix string, v models.GuardrailVerdict) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(" Reason: failed checks: ")
	b.WriteString(strings.Join(v.Failed(), ", "))
	if len(v.Details) > 0 {
		b.WriteString(" (")
		b.WriteString(detailsSummary(v.Details))
		b.WriteString(")")
	}
	return b.String()
}

func distinctFiles(passages []models.Passage) int {
	seen := make(map[string]struct{}, len(passages))
	for _, p := range passages {
		seen[p.Filename] = struct{}{}
	}
	return len(seen)
}

func resolvedCount(citations []models.Citation) int {
	n := 0
	for _, c := range citations {
		if c.Resolved {
			n++
		}
	}
	return n
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
