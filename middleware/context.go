package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Context key type to avoid collisions
type contextKey string

const (
	// LoggerKey is the context key for the request-scoped logger
	LoggerKey contextKey = "logger"

	// PersonaIDKey is the context key for a persona id taken from the request header
	PersonaIDKey contextKey = "persona_id"
)

// PersonaHeader lets clients pin a persona for a single request without
// putting it in the body.
const PersonaHeader = "X-Persona-ID"

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context under chi's key
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, chimw.RequestIDKey, requestID)
}

// WithLogger stores a request-scoped logger in the context
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// LoggerFrom returns the request-scoped logger, or fallback when none is set
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if val := ctx.Value(LoggerKey); val != nil {
		if logger, ok := val.(*zap.Logger); ok {
			return logger
		}
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

// GetPersonaIDFromContext retrieves the header persona id, or ""
func GetPersonaIDFromContext(ctx context.Context) string {
	if val := ctx.Value(PersonaIDKey); val != nil {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}

// WithPersonaID adds a persona id to the context
func WithPersonaID(ctx context.Context, personaID string) context.Context {
	return context.WithValue(ctx, PersonaIDKey, personaID)
}
