// Package pipeline runs a query through persona resolution, the input guard,
// retrieval, generation, citation verification, the output guard and the
// audit log, in that order.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/sme-plug/internal/observability"
	"github.com/upb/sme-plug/internal/rag"
	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/services"
	"github.com/upb/sme-plug/services/citation"
	"github.com/upb/sme-plug/services/generation"
	"github.com/upb/sme-plug/services/guard"
)

// Fixed response texts.
const (
	NoPersonaText     = "Error: No active persona configured."
	BlockedPrefix     = "Query blocked by input guardrails."
	WithheldPrefix    = "Response withheld by output guardrails."
	VanillaFailedText = "Error: vanilla generation failed."
	UnknownPersona    = "Unknown"
)

// Outcomes reported to metrics.
const (
	OutcomeNoPersona = "no_persona"
	OutcomeError     = "error"
)

// DefaultTopK is the number of passages retrieved per query.
const DefaultTopK = 5

// PersonaResolver picks the persona a request runs under.
type PersonaResolver interface {
	Resolve(id string) (models.Persona, error)
}

// AuditRecorder stores finished audit entries.
type AuditRecorder interface {
	Append(entry *models.AuditEntry) error
}

// Options configures the pipeline.
type Options struct {
	TopK int
}

// Pipeline is the query orchestrator. It holds no per-query state and is
// safe for concurrent use.
type Pipeline struct {
	personas  PersonaResolver
	input     *guard.InputGuard
	output    *guard.OutputGuard
	retriever rag.Retriever
	generator generation.Generator
	audit     AuditRecorder
	opts      Options
	logger    *zap.Logger
	metrics   *observability.Metrics

	newID func() string
	now   func() time.Time
}

// New wires a pipeline from its collaborators.
func New(
	personas PersonaResolver,
	input *guard.InputGuard,
	output *guard.OutputGuard,
	retriever rag.Retriever,
	generator generation.Generator,
	audit AuditRecorder,
	opts Options,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Pipeline {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Pipeline{
		personas:  personas,
		input:     input,
		output:    output,
		retriever: retriever,
		generator: generator,
		audit:     audit,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Process runs one query. Guard blocks are successful results. Errors are
// returned only for an unknown explicit persona id (not_found) and for a
// failed generation (external); their messages carry no provider detail.
func (p *Pipeline) Process(ctx context.Context, req models.QueryRequest) (*models.QueryResult, error) {
	start := p.now()
	queryID := p.newID()
	mode := string(models.ResultStandard)
	if req.CompareMode {
		mode = string(models.ResultComparison)
	}
	logger := p.logger.With(zap.String("query_id", queryID))

	persona, err := p.personas.Resolve(req.PersonaID)
	if err != nil {
		if req.PersonaID != "" {
			p.metrics.RecordQuery(req.PersonaID, mode, OutcomeError)
			return nil, err
		}
		logger.Warn("no active persona")
		p.metrics.RecordQuery("", mode, OutcomeNoPersona)
		return standard(&models.QueryResponse{
			QueryID:       queryID,
			ResponseText:  NoPersonaText,
			Citations:     []models.Citation{},
			PipelineSteps: []models.PipelineStep{},
			PersonaName:   UnknownPersona,
		}), nil
	}
	logger = logger.With(zap.String("persona_id", persona.ID))

	tr := &trace{metrics: p.metrics}

	// input guard
	stepStart := p.now()
	inputVerdict := p.input.Evaluate(req.Text, persona)
	tr.record(StepInputGuardrails, string(inputVerdict.Decision), p.since(stepStart), checksSummary(inputVerdict.Checks))

	if inputVerdict.Decision == models.DecisionBlocked {
		logger.Info("query blocked by input guardrails", zap.Strings("failed_checks", inputVerdict.Failed()))
		p.metrics.RecordQuery(persona.ID, mode, string(models.DecisionBlocked))
		return standard(&models.QueryResponse{
			QueryID:         queryID,
			ResponseText:    reason(BlockedPrefix, inputVerdict),
			Citations:       []models.Citation{},
			InputGuardrail:  &inputVerdict,
			PipelineSteps:   tr.steps,
			PersonaID:       persona.ID,
			PersonaName:     persona.Name,
			TotalDurationMs: millis(p.since(start)),
		}), nil
	}

	query := req.Text
	if inputVerdict.Decision == models.DecisionFlagged {
		query = p.input.Redact(req.Text)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = p.opts.TopK
	}

	// retrieval
	stepStart = p.now()
	passages, retrievalStatus, retrievalDetails := p.retrieve(ctx, logger, query, persona.ID, topK)
	tr.record(StepDocumentRetrieval, retrievalStatus, p.since(stepStart), retrievalDetails)

	// generation
	raw, genDuration, err := p.generator.Generate(ctx, query, passages, persona.SystemPrompt())
	if err != nil {
		tr.record(StepLLMGeneration, StatusError, genDuration, "generation failed")
		logger.Error("generation failed", zap.Error(err))
		p.metrics.RecordQuery(persona.ID, mode, OutcomeError)
		return nil, services.Derive(services.ErrGenerationFailed, err).WithDetail("query_id", queryID)
	}
	tr.record(StepLLMGeneration, StatusPassed, genDuration, fmt.Sprintf("Response length: %d chars", len(raw)))

	// citations
	stepStart = p.now()
	citations := citation.Verify(raw, passages)
	tr.record(StepCitationVerification, StatusPassed, p.since(stepStart),
		fmt.Sprintf("Verified %d citations (%d resolved)", len(citations), resolvedCount(citations)))

	// output guard
	stepStart = p.now()
	outputVerdict, score := p.output.Evaluate(raw, groundingText(passages), persona)
	tr.record(StepOutputGuardrails, string(outputVerdict.Decision), p.since(stepStart),
		fmt.Sprintf("Hallucination score: %.2f", score))

	final := raw
	if outputVerdict.Decision == models.DecisionBlocked {
		final = reason(WithheldPrefix, outputVerdict)
		logger.Info("response withheld by output guardrails", zap.Strings("failed_checks", outputVerdict.Failed()))
	}

	resp := &models.QueryResponse{
		QueryID:            queryID,
		ResponseText:       final,
		Citations:          citations,
		InputGuardrail:     &inputVerdict,
		OutputGuardrail:    &outputVerdict,
		PipelineSteps:      tr.steps,
		HallucinationScore: score,
		PersonaID:          persona.ID,
		PersonaName:        persona.Name,
		TotalDurationMs:    millis(p.since(start)),
	}

	// audit keeps the original query text
	entry := models.NewAuditEntry(queryID, persona, req.Text).
		WithSections(passages).
		WithResponse(raw, final).
		WithVerdicts(&inputVerdict, &outputVerdict, score)
	entry.Citations = citations
	entry.PipelineSteps = tr.steps
	if err := p.audit.Append(entry); err != nil {
		logger.Error("failed to record audit entry", zap.Error(err))
	}

	p.metrics.RecordQuery(persona.ID, mode, string(outputVerdict.Decision))
	logger.Info("query processed",
		zap.String("input_decision", string(inputVerdict.Decision)),
		zap.String("output_decision", string(outputVerdict.Decision)),
		zap.Int("passages", len(passages)),
		zap.Int("citations", len(citations)),
		zap.Float64("hallucination_score", score),
	)

	if !req.CompareMode {
		return standard(resp), nil
	}
	return &models.QueryResult{
		Kind:       models.ResultComparison,
		Comparison: p.compare(ctx, logger, queryID, req.Text, persona, resp),
	}, nil
}

// retrieve never fails the query: errors degrade to an empty passage set.
func (p *Pipeline) retrieve(ctx context.Context, logger *zap.Logger, query, personaID string, topK int) ([]models.Passage, string, string) {
	results, err := p.retriever.Retrieve(ctx, query, personaID, topK)
	if err != nil {
		logger.Warn("retrieval failed, continuing without context", zap.Error(err))
		return []models.Passage{}, StatusError, "Retrieval failed"
	}

	passages := make([]models.Passage, 0, len(results))
	for _, r := range results {
		passages = append(passages, r.Passage)
	}

	status := StatusPassed
	if len(passages) == 0 {
		status = StatusNoResults
	}
	return passages, status, fmt.Sprintf("Retrieved %d sections from %d documents", len(passages), distinctFiles(passages))
}

// compare runs the unguarded answer. A failure there does not discard the
// guarded answer, which is already audited.
func (p *Pipeline) compare(ctx context.Context, logger *zap.Logger, queryID, rawQuery string, persona models.Persona, resp *models.QueryResponse) *models.ComparisonResponse {
	vanilla, d, err := p.generator.GenerateVanilla(ctx, rawQuery)
	if err != nil {
		logger.Error("vanilla generation failed", zap.Error(err))
		vanilla = VanillaFailedText
	}
	return &models.ComparisonResponse{
		QueryID:           queryID,
		VanillaResponse:   vanilla,
		VanillaDurationMs: millis(d),
		SMEPlugResponse:   resp,
		PersonaName:       persona.Name,
	}
}

func (p *Pipeline) since(t time.Time) time.Duration {
	return p.now().Sub(t)
}

func standard(resp *models.QueryResponse) *models.QueryResult {
	return &models.QueryResult{Kind: models.ResultStandard, Standard: resp}
}

func groundingText(passages []models.Passage) string {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		parts = append(parts, p.Content)
	}
	return strings.Join(parts, "\n\n")
}
