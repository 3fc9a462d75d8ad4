package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/sme-plug/services"
	"github.com/upb/sme-plug/utils"
)

// HandleServiceError maps domain errors to HTTP responses. Internal and
// external failures are logged in full but answered with a generic message.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteError(w, http.StatusNotFound, publicMessage(err), details)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, validationMessage(err), details)

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, publicMessage(err), details)

	case services.IsExternalError(err):
		logger.Error("upstream provider error", zap.Error(err))
		writeErr = utils.WriteBadGateway(w, "Pipeline error: "+publicMessage(err))

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		if err := utils.WriteBadRequest(w, "Validation failed", utils.FieldDetails(err)); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// publicMessage returns the domain message without the wrapped cause, so
// provider and filesystem detail never reaches the client.
func publicMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return "request failed"
}

// validationMessage keeps the cause, which describes the caller's own input.
func validationMessage(err error) string {
	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) {
		return err.Error()
	}
	if domainErr.Err != nil {
		return domainErr.Message + ": " + domainErr.Err.Error()
	}
	return domainErr.Message
}
