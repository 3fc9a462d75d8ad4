package models

import (
	"sort"
	"time"
)

// GuardrailLayer identifies where in the pipeline a verdict was produced
type GuardrailLayer string

const (
	GuardrailLayerInput  GuardrailLayer = "input"
	GuardrailLayerOutput GuardrailLayer = "output"
)

// GuardrailDecision is the outcome of a guardrail evaluation
type GuardrailDecision string

const (
	DecisionPassed  GuardrailDecision = "passed"
	DecisionFlagged GuardrailDecision = "flagged"
	DecisionBlocked GuardrailDecision = "blocked"
)

// GuardrailVerdict is the itemized result of one guardrail layer.
// Decision is always derived from Checks by the guard that built it.
type GuardrailVerdict struct {
	Layer     GuardrailLayer    `json:"layer"`
	Decision  GuardrailDecision `json:"decision"`
	Checks    map[string]bool   `json:"checks"`
	Details   map[string]string `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
}

// Failed returns the sorted names of the checks that did not pass
func (v *GuardrailVerdict) Failed() []string {
	var failed []string
	for name, ok := range v.Checks {
		if !ok {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

// Clone returns a deep copy of the verdict, or nil for a nil verdict
func (v *GuardrailVerdict) Clone() *GuardrailVerdict {
	if v == nil {
		return nil
	}
	c := *v
	if v.Checks != nil {
		c.Checks = make(map[string]bool, len(v.Checks))
		for k, ok := range v.Checks {
			c.Checks[k] = ok
		}
	}
	if v.Details != nil {
		c.Details = make(map[string]string, len(v.Details))
		for k, d := range v.Details {
			c.Details[k] = d
		}
	}
	return &c
}
