// Package citation extracts [Source: ...] markers from generated text and
// resolves them against the passages the answer was grounded on.
package citation

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/upb/sme-plug/models"
)

// MarkerPattern matches a citation marker and captures its payload.
// The "Source" label is case-sensitive.
var MarkerPattern = regexp.MustCompile(`\[Source:\s*([^\]]+)\]`)

var numberPattern = regexp.MustCompile(`\d+`)

// Count returns how many citation markers appear in text.
func Count(text string) int {
	return len(MarkerPattern.FindAllStringIndex(text, -1))
}

// Verify returns one Citation per marker in text order, duplicates included.
// Markers that name no grounding passage are kept with Resolved=false.
func Verify(text string, passages []models.Passage) []models.Citation {
	matches := MarkerPattern.FindAllStringSubmatch(text, -1)
	citations := make([]models.Citation, 0, len(matches))
	for _, m := range matches {
		c := models.Citation{
			Marker: m[0],
			Source: strings.TrimSpace(m[1]),
		}
		if p, ok := resolve(c.Source, passages); ok {
			c.Resolved = true
			c.Filename = p.Filename
			c.Page = p.Page
			c.Title = p.Title
			c.NodeID = p.NodeID
		}
		citations = append(citations, c)
	}
	return citations
}

// resolve picks the first passage whose filename (or stem) appears in the
// payload, preferring one whose page number is also cited.
func resolve(source string, passages []models.Passage) (models.Passage, bool) {
	lower := strings.ToLower(source)
	pages := citedPages(source)

	var (
		first models.Passage
		found bool
	)
	for _, p := range passages {
		if !namesFile(lower, p.Filename) {
			continue
		}
		if pages[p.Page] {
			return p, true
		}
		if !found {
			first, found = p, true
		}
	}
	return first, found
}

func namesFile(source, filename string) bool {
	if filename == "" {
		return false
	}
	name := strings.ToLower(filename)
	if containsToken(source, name) {
		return true
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return stem != "" && containsToken(source, stem)
}

// containsToken reports whether tok occurs in s with no word character
// directly before or after it.
func containsToken(s, tok string) bool {
	for offset := 0; offset <= len(s)-len(tok); {
		i := strings.Index(s[offset:], tok)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(tok)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(s) || !isWordRune(after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		offset = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func citedPages(source string) map[int]bool {
	pages := make(map[int]bool)
	for _, n := range numberPattern.FindAllString(source, -1) {
		if v, err := strconv.Atoi(n); err == nil {
			pages[v] = true
		}
	}
	return pages
}
