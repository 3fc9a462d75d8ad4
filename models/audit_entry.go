package models

import (
	"encoding/json"
	"time"
)

// PipelineStep records one pipeline stage. It is observational only.
type PipelineStep struct {
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	DurationMs float64 `json:"duration_ms"`
	Details    string  `json:"details"`
}

// SectionRef is the audit view of a retrieved passage
type SectionRef struct {
	Filename string `json:"filename"`
	Page     int    `json:"page"`
	Title    string `json:"title"`
	NodeID   string `json:"node_id"`
}

// AuditEntry is the immutable record of one processed query
type AuditEntry struct {
	QueryID            string            `json:"query_id" db:"query_id"`
	Timestamp          time.Time         `json:"timestamp" db:"timestamp"`
	PersonaID          string            `json:"persona_id" db:"persona_id"`
	PersonaName        string            `json:"persona_name" db:"persona_name"`
	QueryText          string            `json:"query_text" db:"query_text"`
	RetrievedSections  []SectionRef      `json:"retrieved_sections"`
	RawResponse        string            `json:"raw_llm_response"`
	FinalResponse      string            `json:"final_response"`
	Citations          []Citation        `json:"citations"`
	InputGuardrail     *GuardrailVerdict `json:"input_guardrail,omitempty"`
	OutputGuardrail    *GuardrailVerdict `json:"output_guardrail,omitempty"`
	HallucinationScore float64           `json:"hallucination_score" db:"hallucination_score"`
	PipelineSteps      []PipelineStep    `json:"pipeline_steps"`
}

// TableName returns the table name for the AuditEntry model
func (AuditEntry) TableName() string {
	return "audit_entries"
}

// NewAuditEntry creates an entry for the given query and persona
func NewAuditEntry(queryID string, persona Persona, queryText string) *AuditEntry {
	return &AuditEntry{
		QueryID:     queryID,
		Timestamp:   time.Now().UTC(),
		PersonaID:   persona.ID,
		PersonaName: persona.Name,
		QueryText:   queryText,
	}
}

// WithSections records the retrieved passages
func (a *AuditEntry) WithSections(passages []Passage) *AuditEntry {
	a.RetrievedSections = make([]SectionRef, 0, len(passages))
	for _, p := range passages {
		a.RetrievedSections = append(a.RetrievedSections, SectionRef{
			Filename: p.Filename,
			Page:     p.Page,
			Title:    p.Title,
			NodeID:   p.NodeID,
		})
	}
	return a
}

// WithResponse sets the raw and final generated text
func (a *AuditEntry) WithResponse(raw, final string) *AuditEntry {
	a.RawResponse = raw
	a.FinalResponse = final
	return a
}

// WithVerdicts sets the guardrail verdicts and the hallucination score
func (a *AuditEntry) WithVerdicts(input, output *GuardrailVerdict, hallucinationScore float64) *AuditEntry {
	a.InputGuardrail = input
	a.OutputGuardrail = output
	a.HallucinationScore = hallucinationScore
	return a
}

// Clone returns a deep copy that shares no maps, slices or verdicts with a
func (a *AuditEntry) Clone() *AuditEntry {
	c := *a
	c.RetrievedSections = cloneSlice(a.RetrievedSections)
	c.Citations = cloneSlice(a.Citations)
	c.PipelineSteps = cloneSlice(a.PipelineSteps)
	c.InputGuardrail = a.InputGuardrail.Clone()
	c.OutputGuardrail = a.OutputGuardrail.Clone()
	return &c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}

// Payload serializes the full entry for JSONB storage
func (a *AuditEntry) Payload() (json.RawMessage, error) {
	return json.Marshal(a)
}

// AuditSummary is the list view of an audit entry
type AuditSummary struct {
	QueryID            string    `json:"query_id"`
	Timestamp          time.Time `json:"timestamp"`
	PersonaName        string    `json:"persona_name"`
	QueryText          string    `json:"query_text"`
	HallucinationScore float64   `json:"hallucination_score"`
	CitationCount      int       `json:"citation_count"`
}

// SummaryTextLimit is the number of query characters kept in summaries
const SummaryTextLimit = 100

// Summary builds the truncated list view of the entry
func (a *AuditEntry) Summary() AuditSummary {
	text := a.QueryText
	if r := []rune(text); len(r) > SummaryTextLimit {
		text = string(r[:SummaryTextLimit]) + "..."
	}
	return AuditSummary{
		QueryID:            a.QueryID,
		Timestamp:          a.Timestamp,
		PersonaName:        a.PersonaName,
		QueryText:          text,
		HallucinationScore: a.HallucinationScore,
		CitationCount:      len(a.Citations),
	}
}
