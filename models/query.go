package models

// QueryRequest is a user question submitted to the pipeline
type QueryRequest struct {
	Text        string `json:"text" validate:"required,max=4000"`
	PersonaID   string `json:"persona_id,omitempty" validate:"omitempty,max=64"`
	CompareMode bool   `json:"compare_mode"`
	TopK        int    `json:"top_k,omitempty" validate:"omitempty,min=1,max=50"`
}

// QueryResponse is the guarded answer to one query
type QueryResponse struct {
	QueryID            string            `json:"query_id"`
	ResponseText       string            `json:"response_text"`
	Citations          []Citation        `json:"citations"`
	InputGuardrail     *GuardrailVerdict `json:"input_guardrail,omitempty"`
	OutputGuardrail    *GuardrailVerdict `json:"output_guardrail,omitempty"`
	PipelineSteps      []PipelineStep    `json:"pipeline_steps"`
	HallucinationScore float64           `json:"hallucination_score"`
	PersonaID          string            `json:"persona_id"`
	PersonaName        string            `json:"persona_name"`
	TotalDurationMs    float64           `json:"total_duration_ms"`
}

// ComparisonResponse pairs the guarded answer with an unguarded one
type ComparisonResponse struct {
	QueryID           string         `json:"query_id"`
	VanillaResponse   string         `json:"vanilla_response"`
	VanillaDurationMs float64        `json:"vanilla_duration_ms"`
	SMEPlugResponse   *QueryResponse `json:"smeplug_response"`
	PersonaName       string         `json:"persona_name"`
}

// ResultKind tells which variant a QueryResult carries
type ResultKind string

const (
	ResultStandard   ResultKind = "standard"
	ResultComparison ResultKind = "comparison"
)

// QueryResult is the pipeline output: exactly one of Standard or Comparison is set,
// matching Kind
type QueryResult struct {
	Kind       ResultKind          `json:"kind"`
	Standard   *QueryResponse      `json:"standard,omitempty"`
	Comparison *ComparisonResponse `json:"comparison,omitempty"`
}

// Response returns the guarded answer regardless of the variant
func (r *QueryResult) Response() *QueryResponse {
	if r.Kind == ResultComparison && r.Comparison != nil {
		return r.Comparison.SMEPlugResponse
	}
	return r.Standard
}
