package handlers

import (
	"net/http"

	"github.com/upb/tryon-gateway/services"
	"github.com/upb/tryon-gateway/services/providers"
	"github.com/upb/tryon-gateway/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := services.GetErrorMessage(err)
	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsRejectedError(err):
		writeErr = utils.WriteUnprocessable(w, message, details)

	case services.IsExternalError(err):
		writeErr = utils.WriteBadGateway(w, message, details)

	case services.IsTimeoutError(err):
		writeErr = utils.WriteGatewayTimeout(w, message, details)

	case services.IsUnavailableError(err):
		writeErr = utils.WriteServiceUnavailable(w, message)

	case services.IsInternalError(err):
		// Log internal errors but return generic message
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
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// WriteTryOnFailure writes a failed try-on result as a JSON error carrying its stage
func WriteTryOnFailure(w http.ResponseWriter, result providers.TryOnResult, logger *zap.Logger) {
	domainErr := services.ResultError(result)
	if domainErr == nil {
		logger.Error("success result passed to failure writer", zap.String("vendor", string(result.Vendor)))
		_ = utils.WriteInternalServerError(w, "An unexpected error occurred")
		return
	}
	HandleServiceError(w, domainErr, logger)
}
