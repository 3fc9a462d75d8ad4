package rag

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// ChunkOptions controls how corpus text is windowed.
type ChunkOptions struct {
	Size     int // words per chunk
	Overlap  int // words shared by consecutive chunks
	MinChars int // chunks with this many characters or fewer are dropped
}

// DefaultChunkOptions matches the ingestion settings used for the bundled corpora.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{Size: 512, Overlap: 64, MinChars: 50}
}

// pageBreak separates pages in extracted corpus text.
const pageBreak = "\f"

// maxHeadingChars bounds upper-case lines treated as section headings.
const maxHeadingChars = 80

// ChunkDocument splits a corpus file into chunks. Pages are separated by form
// feeds and numbered from 1; within a page, heading lines start new sections and
// each section is windowed into overlapping word chunks.
func ChunkDocument(filename, text string, opts ChunkOptions) []Chunk {
	if opts.Size <= 0 {
		opts = DefaultChunkOptions()
	}
	step := opts.Size - opts.Overlap
	if step <= 0 {
		step = opts.Size
	}

	var chunks []Chunk
	for i, page := range strings.Split(text, pageBreak) {
		pageNum := i + 1
		for _, sec := range splitSections(page) {
			words := strings.Fields(sec.body)
			for start := 0; start < len(words); start += step {
				end := start + opts.Size
				if end > len(words) {
					end = len(words)
				}
				content := strings.Join(words[start:end], " ")
				if len(strings.TrimSpace(content)) <= opts.MinChars {
					continue
				}
				chunks = append(chunks, Chunk{
					NodeID:   nodeID(filename, pageNum, len(chunks)),
					Filename: filename,
					Page:     pageNum,
					Title:    sec.title,
					Content:  content,
				})
			}
		}
	}
	return chunks
}

type section struct {
	title string
	body  string
}

func splitSections(page string) []section {
	var (
		sections []section
		current  section
		body     strings.Builder
	)
	flush := func() {
		current.body = body.String()
		if strings.TrimSpace(current.body) != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(page, "\n") {
		if title, ok := headingTitle(line); ok {
			flush()
			current = section{title: title}
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()
	return sections
}

// headingTitle reports whether a line is a section heading: a markdown heading
// or a short line whose letters are all upper case.
func headingTitle(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}
	if strings.HasPrefix(trimmed, "#") {
		title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		return title, title != ""
	}
	if len(trimmed) > maxHeadingChars {
		return "", false
	}
	letters := 0
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return "", false
			}
			letters++
		}
	}
	return trimmed, letters >= 3
}

func nodeID(filename string, page, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("sme-plug:%s:%d:%d", filename, page, index))).String()
}
