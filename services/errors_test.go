package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeNotFound,
				Message: "persona not found",
				Err:     errors.New("id legal"),
			},
			wantMsg: "not_found: persona not found (id legal)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"derived from sentinel", Derive(ErrPersonaNotFound, errors.New("x")), ErrPersonaNotFound, true},
		{"same type different message", ErrAuditEntryNotFound, ErrPersonaNotFound, false},
		{"different type", ErrInvalidInput, ErrPersonaNotFound, false},
		{"wrapped with fmt", fmt.Errorf("switch: %w", ErrPersonaNotFound), ErrPersonaNotFound, true},
		{"plain error", errors.New("boom"), ErrPersonaNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDerive_DoesNotMutateSentinel(t *testing.T) {
	err := Derive(ErrPersonaNotFound, nil).WithDetail("persona_id", "ghost")
	assert.Equal(t, "ghost", err.Details["persona_id"])
	assert.Empty(t, ErrPersonaNotFound.Details)
}

func TestTypeHelpers(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrAuditEntryNotFound))
	assert.True(t, IsValidationError(fmt.Errorf("wrap: %w", ErrEmptyQuery)))
	assert.True(t, IsConflictError(ErrDuplicatePersona))
	assert.True(t, IsInternalError(WrapInternal("save", errors.New("disk"))))
	assert.True(t, IsExternalError(WrapExternal("call", errors.New("503"))))
	assert.False(t, IsNotFoundError(errors.New("plain")))

	assert.Equal(t, ErrorTypeExternal, GetErrorType(ErrGenerationFailed))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))

	err := Derive(ErrInvalidPersona, nil).WithDetail("field", "id")
	require.NotNil(t, GetErrorDetails(err))
	assert.Equal(t, "id", GetErrorDetails(err)["field"])
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}
