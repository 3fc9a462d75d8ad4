package prompt

import (
	"time"

	"github.com/dlclark/regexp2"
)

// InjectionType represents different types of prompt injection attacks
type InjectionType string

const (
	InjectionTypeInstructionOverride InjectionType = "instruction_override"
	InjectionTypeRoleManipulation    InjectionType = "role_manipulation"
	InjectionTypeSystemPromptLeak    InjectionType = "system_prompt_leak"
	InjectionTypeJailbreak           InjectionType = "jailbreak"
)

// InjectionDetection represents a detected injection attempt.
// StartPos and EndPos are rune offsets into the scanned text.
type InjectionDetection struct {
	Type        InjectionType
	Pattern     string
	Match       string
	StartPos    int
	EndPos      int
	Description string
}

// InjectionRule is one entry of the injection rule table
type InjectionRule struct {
	Type        InjectionType
	Pattern     string
	Description string
	re          *regexp2.Regexp
}

// matchTimeout bounds backtracking on hostile input
const matchTimeout = 250 * time.Millisecond

// Role override rules use a negative lookahead so that asking the assistant to
// act as the domain roles it already plays is not treated as an attack.
var injectionRules = compileInjectionRules([]InjectionRule{
	{Type: InjectionTypeInstructionOverride, Pattern: `ignore\s+(all\s+)?previous\s+instructions`, Description: "Attempt to discard prior instructions"},
	{Type: InjectionTypeInstructionOverride, Pattern: `ignore\s+(all\s+)?above`, Description: "Attempt to discard prior instructions"},
	{Type: InjectionTypeInstructionOverride, Pattern: `disregard\s+(all\s+)?previous`, Description: "Attempt to discard prior instructions"},
	{Type: InjectionTypeRoleManipulation, Pattern: `you\s+are\s+now\s+(?:a|an)\s+(?!compliance|investment|advisor)`, Description: "Attempt to reassign the assistant role"},
	{Type: InjectionTypeRoleManipulation, Pattern: `pretend\s+you\s+are`, Description: "Attempt to reassign the assistant role"},
	{Type: InjectionTypeInstructionOverride, Pattern: `forget\s+(everything|all)`, Description: "Attempt to reset the assistant context"},
	{Type: InjectionTypeSystemPromptLeak, Pattern: `system\s*prompt`, Description: "Attempt to reveal the system prompt"},
	{Type: InjectionTypeSystemPromptLeak, Pattern: `reveal\s+your\s+(?:instructions|prompt|system)`, Description: "Attempt to reveal the system prompt"},
	{Type: InjectionTypeRoleManipulation, Pattern: `act\s+as\s+(?:a|an)\s+(?!compliance|investment|advisor)`, Description: "Attempt to reassign the assistant role"},
	{Type: InjectionTypeJailbreak, Pattern: `jailbreak`, Description: "Jailbreak keyword"},
	{Type: InjectionTypeJailbreak, Pattern: `DAN\s+mode`, Description: "Do Anything Now jailbreak"},
})

func compileInjectionRules(rules []InjectionRule) []InjectionRule {
	for i := range rules {
		re := regexp2.MustCompile(rules[i].Pattern, regexp2.IgnoreCase)
		re.MatchTimeout = matchTimeout
		rules[i].re = re
	}
	return rules
}

// DetectInjection returns the first rule, in table order, that matches the text.
// A rule whose evaluation times out is treated as a match.
func DetectInjection(text string) (InjectionDetection, bool) {
	for _, rule := range injectionRules {
		if d, ok := rule.find(text); ok {
			return d, true
		}
	}
	return InjectionDetection{}, false
}

func (r InjectionRule) find(text string) (InjectionDetection, bool) {
	m, err := r.re.FindStringMatch(text)
	if err != nil {
		return InjectionDetection{
			Type:        r.Type,
			Pattern:     r.Pattern,
			Description: r.Description + " (evaluation timed out)",
		}, true
	}
	if m == nil {
		return InjectionDetection{}, false
	}
	return InjectionDetection{
		Type:        r.Type,
		Pattern:     r.Pattern,
		Match:       m.String(),
		StartPos:    m.Index,
		EndPos:      m.Index + m.Length,
		Description: r.Description,
	}, true
}
