package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testRequest struct {
	Text  string `json:"text" validate:"required,max=10"`
	ID    string `json:"id" validate:"omitempty,slug"`
	Level string `json:"level" validate:"omitempty,oneof=strict moderate lenient"`
	TopK  int    `json:"top_k" validate:"omitempty,min=1"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     testRequest
		wantField string
		wantMsg   string
	}{
		{"valid", testRequest{Text: "hello", ID: "legal", Level: "strict", TopK: 3}, "", ""},
		{"missing text", testRequest{}, "text", "text is required"},
		{"text too long", testRequest{Text: "01234567890"}, "text", "text must be at most 10"},
		{"bad slug", testRequest{Text: "a", ID: "a b"}, "id", "id must not contain spaces or path separators"},
		{"bad level", testRequest{Text: "a", Level: "paranoid"}, "level", "level must be one of: strict moderate lenient"},
		{"negative top_k", testRequest{Text: "a", TopK: -1}, "top_k", "top_k must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, IsValidationError(err))
			fields := GetValidationFields(err)
			assert.Equal(t, tt.wantMsg, fields[tt.wantField])
			assert.Equal(t, tt.wantMsg, FieldDetails(err)[tt.wantField])
		})
	}
}

func TestGetValidationFields_NonValidationError(t *testing.T) {
	assert.Nil(t, GetValidationFields(assert.AnError))
	assert.Nil(t, FieldDetails(assert.AnError))
	assert.False(t, IsValidationError(assert.AnError))
}
