package middleware

import (
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/upb/sme-plug/internal/observability"
	"github.com/upb/sme-plug/utils"
)

// maxPersonaIDLength matches the persona id limit on request bodies
const maxPersonaIDLength = 64

// RequestMiddleware provides request logging and persona extraction
type RequestMiddleware struct {
	logger *zap.Logger
}

// NewRequestMiddleware creates a new RequestMiddleware
func NewRequestMiddleware(logger *zap.Logger) *RequestMiddleware {
	return &RequestMiddleware{
		logger: logger,
	}
}

// Logger attaches a request-scoped logger to the context and logs one line
// per request once the handler returns. It must run after chi's RequestID.
func (m *RequestMiddleware) Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		logger := observability.ForRequest(m.logger, GetRequestIDFromContext(ctx))

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(WithLogger(ctx, logger)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
		}
		switch {
		case status >= 500:
			logger.Error("request completed", fields...)
		case status >= 400:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	})
}

// ExtractPersona reads the X-Persona-ID header into the context. Handlers
// use it when the body names no persona.
func (m *RequestMiddleware) ExtractPersona(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		personaID := strings.TrimSpace(r.Header.Get(PersonaHeader))
		if personaID == "" {
			next.ServeHTTP(w, r)
			return
		}

		if len(personaID) > maxPersonaIDLength {
			LoggerFrom(r.Context(), m.logger).Warn("persona header too long",
				zap.Int("length", len(personaID)))
			_ = utils.WriteBadRequest(w, "Invalid "+PersonaHeader+" header", map[string]interface{}{
				"max_length": maxPersonaIDLength,
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPersonaID(r.Context(), personaID)))
	})
}
