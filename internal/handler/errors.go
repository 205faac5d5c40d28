package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"tracepoint-dashboard-api/internal/logger"
	"tracepoint-dashboard-api/internal/service"
	"tracepoint-dashboard-api/internal/telemetry"
	apperrors "tracepoint-dashboard-api/pkg/errors"
)

// Error response structure for consistent JSON error responses
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	// Back is where the client should navigate to recover.
	Back string `json:"back,omitempty"`
}

// Success response structure for consistent JSON success responses
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorHandler provides centralized error handling functionality for handlers
type ErrorHandler struct {
	Logger    logger.Logger
	Responses *ResponseHelper
}

// NewErrorHandler creates a new ErrorHandler instance
func NewErrorHandler(log logger.Logger) *ErrorHandler {
	if log == nil {
		log = logger.Noop()
	}
	return &ErrorHandler{
		Logger:    log,
		Responses: NewResponseHelper(),
	}
}

// SendErrorResponse sends a structured error response
func (e *ErrorHandler) SendErrorResponse(w http.ResponseWriter, statusCode int, message, code string, details map[string]string) {
	e.writeError(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

func (e *ErrorHandler) writeError(w http.ResponseWriter, statusCode int, response ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	if response.RequestID != "" {
		w.Header().Set(RequestIDHeader, response.RequestID)
	}
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		e.Logger.Error("Failed to encode error response: %v", err)
	}
}

// SendAppError renders appErr with the request id of ctx. A "back" detail
// is lifted to the top level of the response.
func (e *ErrorHandler) SendAppError(ctx context.Context, w http.ResponseWriter, appErr *apperrors.AppError) {
	appErr.WithRequestID(e.Responses.GetRequestIDFromContext(ctx))

	response := ErrorResponse{
		Error:     appErr.Message,
		Code:      string(appErr.Code),
		RequestID: appErr.RequestID,
	}
	for k, v := range appErr.Details {
		if k == "back" {
			response.Back = fmt.Sprint(v)
			continue
		}
		if response.Details == nil {
			response.Details = make(map[string]string, len(appErr.Details))
		}
		response.Details[k] = fmt.Sprint(v)
	}
	e.writeError(w, appErr.GetHTTPStatus(), response)
}

// SendSuccessResponse sends a structured success response
func (e *ErrorHandler) SendSuccessResponse(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := SuccessResponse{
		Message: message,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		e.Logger.Error("Failed to encode success response: %v", err)
	}
}

// SendJSONResponse sends a generic JSON response
func (e *ErrorHandler) SendJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		e.Logger.Error("Failed to encode JSON response: %v", err)
		e.SendErrorResponse(w, http.StatusInternalServerError, "Failed to encode response", "ENCODING_ERROR", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(append(body, '\n')); err != nil {
		e.Logger.Warn("Failed to write JSON response: %v", err)
	}
}

// SendDeviceNotFound renders the device not found view state.
func (e *ErrorHandler) SendDeviceNotFound(ctx context.Context, w http.ResponseWriter, deviceID string) {
	e.SendAppError(ctx, w, apperrors.DeviceNotFoundError(deviceID, service.DevicesBackLink))
}

// HandleServiceError maps service errors to HTTP responses
func (e *ErrorHandler) HandleServiceError(ctx context.Context, w http.ResponseWriter, err error, operation string) {
	var fetchErr *telemetry.FetchError

	switch {
	case errors.Is(err, service.ErrSuperseded):
		e.Logger.Debug("Request superseded during %s", operation)
		e.SendAppError(ctx, w, apperrors.SupersededError())
	case errors.Is(err, service.ErrInvalidCredentials):
		e.SendAppError(ctx, w, apperrors.InvalidCredentialsError())
	case errors.Is(err, service.ErrUnauthenticated):
		e.SendAppError(ctx, w, apperrors.NewAppError(apperrors.ErrorCodeUnauthorized, "Not logged in"))
	case errors.Is(err, service.ErrEmailTaken):
		e.SendAppError(ctx, w, apperrors.AlreadyExistsError("User with this email"))
	case errors.As(err, &fetchErr):
		e.Logger.Error("Upstream error during %s: %v", operation, err)
		e.SendAppError(ctx, w, apperrors.UpstreamUnavailableError(fmt.Sprintf("Failed to load %s", operation), err).
			WithDetail("state", string(telemetry.StateFailed)).
			WithDetail("reason", fetchErr.Reason()))
	case errors.Is(err, context.DeadlineExceeded):
		e.Logger.Warn("Timeout during %s: %v", operation, err)
		e.SendAppError(ctx, w, apperrors.TimeoutError(operation))
	default:
		appErr := apperrors.WrapError(err, fmt.Sprintf("Failed to %s", operation))
		if appErr.GetHTTPStatus() >= http.StatusInternalServerError {
			e.Logger.Error("Error during %s: %v", operation, err)
			// Internal causes stay in the log.
			appErr = apperrors.NewAppError(appErr.Code, fmt.Sprintf("Failed to %s", operation))
		}
		e.SendAppError(ctx, w, appErr)
	}
}

// HandleValidationErrors handles validation errors and sends appropriate response
func (e *ErrorHandler) HandleValidationErrors(ctx context.Context, w http.ResponseWriter, validationErrors map[string]string) {
	if len(validationErrors) > 0 {
		e.SendAppError(ctx, w, apperrors.ValidationErrorWithDetails("Validation failed", validationErrors))
	}
}

// HandleJSONDecodeError handles JSON decoding errors. An empty body is a bad
// request rather than malformed JSON.
func (e *ErrorHandler) HandleJSONDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	e.Logger.Debug("JSON decode error: %v", err)
	if errors.Is(err, io.EOF) {
		e.SendAppError(ctx, w, apperrors.BadRequestError("Request body is required"))
		return
	}
	e.SendAppError(ctx, w, apperrors.InvalidJSONError(err))
}
