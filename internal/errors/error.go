package errors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sort"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorCode enum for machine-readable errors
type ErrorCode string

const (
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrConflict     ErrorCode = "CONFLICT"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrSearch       ErrorCode = "SEARCH_FAILURE" // search engine rejected or failed a call
	ErrInternal     ErrorCode = "INTERNAL"       // DB died, NATS down
)

// GenericField keys validation messages that are not tied to a field.
const GenericField = "Generic"

// ValidationError is a single field-level validation failure as produced by
// the service validation hooks.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Envelope is the stable wire shape for validation failures: messages keyed
// by field name, fieldless messages under "Generic".
type Envelope struct {
	StatusCode       int                 `json:"statusCode"`
	ValidationErrors map[string][]string `json:"validationErrors"`
}

func NewEnvelope(status int, errs ...ValidationError) *Envelope {
	env := &Envelope{
		StatusCode:       status,
		ValidationErrors: make(map[string][]string),
	}
	for _, e := range errs {
		env.Add(e)
	}
	return env
}

// EnvelopeFromMessage builds an envelope holding exactly one Generic message.
func EnvelopeFromMessage(status int, message string) *Envelope {
	return NewEnvelope(status, ValidationError{Message: message})
}

func (e *Envelope) Add(v ValidationError) {
	field := v.Field
	if field == "" {
		field = GenericField
	}
	e.ValidationErrors[field] = append(e.ValidationErrors[field], v.Message)
}

// Messages flattens the envelope into a single list, field order stable.
func (e *Envelope) Messages() []string {
	fields := make([]string, 0, len(e.ValidationErrors))
	for f := range e.ValidationErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	var out []string
	for _, f := range fields {
		out = append(out, e.ValidationErrors[f]...)
	}
	return out
}

// AppError carries the "User View" and the "System View"
type AppError struct {
	Code     ErrorCode // Machine code (for frontend logic)
	Message  string    // Safe user-facing message
	Internal error     // Original error (DB error, etc) - NEVER show to user
	Stack    string    // Stack trace for audit
	Envelope *Envelope // Set for validation failures
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

// New factory to capture stack trace automatically
func New(code ErrorCode, msg string, internal error) *AppError {
	return &AppError{
		Code:     code,
		Message:  msg,
		Internal: internal,
		Stack:    string(debug.Stack()),
	}
}

// Validation wraps a non-empty set of validation errors into an AppError
// carrying the field-keyed envelope.
func Validation(errs []ValidationError) *AppError {
	return &AppError{
		Code:     ErrInvalidInput,
		Message:  "Validation failed",
		Envelope: NewEnvelope(http.StatusBadRequest, errs...),
		Stack:    string(debug.Stack()),
	}
}

// CodeOf extracts the machine code; non-AppError values count as internal.
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}

var development bool

// SetDevelopment toggles whether internal error detail is included in HTTP
// responses. Production mode (the default) shows only the safe message.
func SetDevelopment(dev bool) { development = dev }

func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetReqID(r.Context())

	var appErr *AppError
	if customErr, ok := err.(*AppError); ok {
		appErr = customErr
	} else {
		appErr = New(ErrInternal, "Unexpected system error", err)
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case ErrInvalidInput:
		status = http.StatusBadRequest
	case ErrConflict:
		status = http.StatusConflict
	case ErrUnauthorized:
		status = http.StatusUnauthorized
	case ErrNotFound:
		status = http.StatusNotFound
	case ErrSearch:
		status = http.StatusBadGateway
	}

	logFields := []any{
		"req_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
		"code", appErr.Code,
		"user_msg", appErr.Message,
	}

	if status >= http.StatusInternalServerError {
		logFields = append(logFields, "internal_err", appErr.Internal, "stack", appErr.Stack)
		slog.Error("Request failed", logFields...)
	} else {
		if appErr.Internal != nil {
			logFields = append(logFields, "internal_details", appErr.Internal)
		}
		slog.Warn("Request failed", logFields...)
	}

	// Validation failures keep the structured field-keyed shape.
	if appErr.Envelope != nil {
		RespondJSON(w, appErr.Envelope.StatusCode, appErr.Envelope)
		return
	}

	body := map[string]string{
		"error_code": string(appErr.Code),
		"message":    appErr.Message,
		"request_id": reqID,
	}
	if development && appErr.Internal != nil {
		body["detail"] = appErr.Internal.Error()
	}
	RespondJSON(w, status, body)
}

// RespondJSON is a handy helper for success cases too
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
