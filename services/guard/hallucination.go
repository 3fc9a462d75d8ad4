package guard

import (
	"regexp"
	"strings"
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]\s+`)
	termPattern   = regexp.MustCompile(`\b[a-zA-Z]{4,}\b`)
)

const (
	minSentenceChars = 10
	groundedRatio    = 0.3
)

var stopwords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {},
	"been": {}, "will": {}, "they": {}, "their": {}, "what": {},
	"which": {}, "when": {}, "where": {}, "must": {}, "should": {},
	"could": {}, "would": {}, "also": {}, "based": {}, "about": {},
}

// HallucinationScore estimates the share of response sentences whose key
// terms are not supported by the grounding text. It returns 1.0 when there is
// no grounding text and 0.0 when no sentence carries scoreable terms.
func HallucinationScore(response, grounding string) float64 {
	if strings.TrimSpace(grounding) == "" {
		return 1.0
	}
	groundingLower := strings.ToLower(grounding)

	var scored, ungrounded int
	for _, raw := range sentenceSplit.Split(response, -1) {
		sentence := strings.TrimSpace(raw)
		if len(sentence) <= minSentenceChars {
			continue
		}
		lower := strings.ToLower(sentence)
		if strings.Contains(lower, "[source:") || strings.Contains(lower, "disclaimer") {
			continue
		}

		terms := keyTerms(lower)
		if len(terms) == 0 {
			continue
		}
		scored++

		grounded := 0
		for term := range terms {
			if strings.Contains(groundingLower, term) {
				grounded++
			}
		}
		if float64(grounded)/float64(len(terms)) < groundedRatio {
			ungrounded++
		}
	}

	if scored == 0 {
		return 0
	}
	return float64(ungrounded) / float64(scored)
}

func keyTerms(lowerSentence string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, t := range termPattern.FindAllString(lowerSentence, -1) {
		if _, stop := stopwords[t]; stop {
			continue
		}
		terms[t] = struct{}{}
	}
	return terms
}
