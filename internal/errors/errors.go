package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCategory says which side of the service an error originated on.
type ErrorCategory string

const (
	CategoryClient   ErrorCategory = "client"
	CategoryServer   ErrorCategory = "server"
	CategoryExternal ErrorCategory = "external"
)

const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeNotFound        = "NOT_FOUND"

	CodeTaskNotFound      = "TASK_NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeArtifactNotReady  = "ARTIFACT_NOT_READY"
	CodeRetryLimit        = "RETRY_LIMIT_REACHED"

	// Recorded on a task by its run rather than returned to a caller.
	CodeProducerError = "PRODUCER_ERROR"
	CodeCancelled     = "CANCELLED"

	CodeInternalError   = "INTERNAL_ERROR"
	CodeStorageError    = "STORAGE_ERROR"
	CodeCacheError      = "CACHE_ERROR"
	CodeExternalTimeout = "EXTERNAL_TIMEOUT"
)

type codeClass struct {
	category ErrorCategory
	status   int
}

var classes = map[string]codeClass{
	CodeValidationError:   {CategoryClient, http.StatusBadRequest},
	CodeInvalidRequest:    {CategoryClient, http.StatusBadRequest},
	CodeNotFound:          {CategoryClient, http.StatusNotFound},
	CodeTaskNotFound:      {CategoryClient, http.StatusNotFound},
	CodeInvalidTransition: {CategoryClient, http.StatusConflict},
	CodeArtifactNotReady:  {CategoryClient, http.StatusConflict},
	CodeRetryLimit:        {CategoryClient, http.StatusConflict},
	CodeCancelled:         {CategoryClient, http.StatusConflict},
	CodeProducerError:     {CategoryServer, http.StatusUnprocessableEntity},
	CodeInternalError:     {CategoryServer, http.StatusInternalServerError},
	CodeStorageError:      {CategoryServer, http.StatusInternalServerError},
	CodeCacheError:        {CategoryServer, http.StatusInternalServerError},
	CodeExternalTimeout:   {CategoryExternal, http.StatusGatewayTimeout},
}

// AppError is an error with a stable code clients can branch on.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Category   ErrorCategory  `json:"-"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause sets the underlying cause of the error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// ErrorResponse is the JSON structure returned to clients
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains the error details
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// New creates an AppError. Category and status follow from the code; an
// unknown code is treated as an internal error.
func New(code, message string) *AppError {
	class, ok := classes[code]
	if !ok {
		class = classes[CodeInternalError]
	}
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   class.category,
		HTTPStatus: class.status,
	}
}

func BadRequest(message string) *AppError      { return New(CodeInvalidRequest, message) }
func ValidationError(message string) *AppError { return New(CodeValidationError, message) }
func InternalError(message string) *AppError   { return New(CodeInternalError, message) }
func StorageError(message string) *AppError    { return New(CodeStorageError, message) }
func CacheError(message string) *AppError      { return New(CodeCacheError, message) }
func ProducerError(message string) *AppError   { return New(CodeProducerError, message) }

func NotFound(resource string) *AppError {
	return New(CodeNotFound, resource+" not found")
}

func TaskNotFound(id string) *AppError {
	return New(CodeTaskNotFound, "task not found").WithDetails(map[string]any{"task_id": id})
}

func InvalidTransition(from, action string) *AppError {
	return New(CodeInvalidTransition, fmt.Sprintf("cannot %s a task that is %s", action, from)).
		WithDetails(map[string]any{"status": from, "action": action})
}

func ArtifactNotReady(id string) *AppError {
	return New(CodeArtifactNotReady, "artifact is not available until the task completes").
		WithDetails(map[string]any{"task_id": id})
}

func RetryLimit(max int) *AppError {
	return New(CodeRetryLimit, fmt.Sprintf("task has already been retried %d times", max))
}

// Cancelled marks a commit that was discarded because its run was cancelled.
func Cancelled() *AppError {
	return New(CodeCancelled, "run was cancelled")
}

func ExternalTimeout(service string) *AppError {
	return New(CodeExternalTimeout, service+" timed out")
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, requestID string, err error) {
	appErr, ok := As(err)
	if !ok {
		appErr = InternalError("an unexpected error occurred").WithCause(err)
	}
	WriteJSON(w, requestID, appErr.HTTPStatus, ErrorResponse{Error: ErrorBody{
		Code:      appErr.Code,
		Message:   appErr.Message,
		RequestID: requestID,
		Details:   appErr.Details,
	}})
}

// WriteJSON writes a JSON response with the request ID header
func WriteJSON(w http.ResponseWriter, requestID string, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// IsRetryable reports whether err is an AppError that may succeed on a
// later attempt. A failed synthesis is deterministic and never is.
func IsRetryable(err error) bool {
	appErr, ok := As(err)
	if !ok {
		return false
	}
	switch appErr.Category {
	case CategoryExternal:
		return true
	case CategoryServer:
		return appErr.Code != CodeProducerError
	}
	return false
}
