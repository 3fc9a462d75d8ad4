package models

// Passage is a retrieved document fragment used as grounding evidence
type Passage struct {
	Filename string `json:"filename"`
	Page     int    `json:"page"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	NodeID   string `json:"node_id"`
}

// RetrievalResult pairs a passage with its relevance score in [0,1]
type RetrievalResult struct {
	Passage Passage `json:"passage"`
	Score   float64 `json:"score"`
}

// Citation is a [Source: ...] marker found in generated text
type Citation struct {
	Marker   string `json:"marker"`
	Source   string `json:"source"`
	Resolved bool   `json:"resolved"`
	Filename string `json:"filename,omitempty"`
	Page     int    `json:"page,omitempty"`
	Title    string `json:"title,omitempty"`
	NodeID   string `json:"node_id,omitempty"`
}
