package prompt

import (
	"regexp"
	"sort"
	"strings"
)

// PIIType represents different types of PII that can be detected
type PIIType string

const (
	PIITypeSSN        PIIType = "ssn"
	PIITypeCreditCard PIIType = "credit_card"
	PIITypeEmail      PIIType = "email"
	PIITypePhone      PIIType = "phone"
)

// PIIDetection represents a detected PII instance
type PIIDetection struct {
	Type     PIIType
	Value    string
	StartPos int
	EndPos   int
}

type piiRule struct {
	Type    PIIType
	Pattern *regexp.Regexp
}

// Table order is also the tie-break priority when two matches overlap.
var piiRules = []piiRule{
	{PIITypeSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{PIITypeCreditCard, regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
	{PIITypeEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)},
	{PIITypePhone, regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
}

// DetectPIITypes returns every PII category present in the text, in table order
func DetectPIITypes(text string) []PIIType {
	var types []PIIType
	for _, rule := range piiRules {
		if rule.Pattern.MatchString(text) {
			types = append(types, rule.Type)
		}
	}
	return types
}

// DetectAllPII returns all PII detections in the text, sorted by position
func DetectAllPII(text string) []PIIDetection {
	var detections []PIIDetection
	for _, rule := range piiRules {
		for _, match := range rule.Pattern.FindAllStringIndex(text, -1) {
			detections = append(detections, PIIDetection{
				Type:     rule.Type,
				Value:    text[match[0]:match[1]],
				StartPos: match[0],
				EndPos:   match[1],
			})
		}
	}
	sort.SliceStable(detections, func(i, j int) bool {
		if detections[i].StartPos != detections[j].StartPos {
			return detections[i].StartPos < detections[j].StartPos
		}
		return detections[i].EndPos-detections[i].StartPos > detections[j].EndPos-detections[j].StartPos
	})
	return detections
}

// RedactPII replaces every PII match with a [REDACTED-<TYPE>] placeholder.
// Matches from all categories are collected on the input first and overlaps are
// merged into the span of the earliest (then longest, then first-listed) match,
// so the result does not depend on the order categories are scanned in.
// Placeholders match no rule, which makes redaction idempotent.
func RedactPII(text string) string {
	detections := DetectAllPII(text)
	if len(detections) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, d := range detections {
		if d.StartPos < last {
			// overlapping match: widen the span already redacted
			if d.EndPos > last {
				last = d.EndPos
			}
			continue
		}
		b.WriteString(text[last:d.StartPos])
		b.WriteString(getRedactionString(d.Type))
		last = d.EndPos
	}
	b.WriteString(text[last:])
	return b.String()
}

// getRedactionString returns the placeholder for a PII type
func getRedactionString(piiType PIIType) string {
	return "[REDACTED-" + strings.ToUpper(string(piiType)) + "]"
}
