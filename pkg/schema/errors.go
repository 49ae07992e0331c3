package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeExecution          = "EXECUTION_ERROR"
	ErrCodeTimeout            = "TIMEOUT_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeCycleDetected      = "CYCLE_DETECTED"
	ErrCodeUnknownDependency  = "UNKNOWN_DEPENDENCY"
	ErrCodeUnknownStepType    = "UNKNOWN_STEP_TYPE"
	ErrCodeStepFailed         = "STEP_FAILED"
	ErrCodeRetryExhausted     = "RETRY_EXHAUSTED"
	ErrCodeAuthRequired       = "AUTH_REQUIRED"
	ErrCodeResolutionFailed   = "RESOLUTION_FAILED"
	ErrCodeInterventionNeeded = "INTERVENTION_NEEDED"
	ErrCodeStore              = "STORE_ERROR"
	ErrCodeVault              = "VAULT_ERROR"
	ErrCodePlannerOutput      = "PLANNER_OUTPUT_ERROR"
)

// ValetError is the structured error type for all core operations.
type ValetError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ValetError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ValetError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error code denotes a transient condition.
// Only adapter-side transient failures qualify; everything structural
// (validation, cycles, unknown types) fails immediately.
func (e *ValetError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeExecution, ErrCodeTimeout, ErrCodeStepFailed, ErrCodeStore:
		return true
	default:
		return false
	}
}

// NewError creates a new ValetError.
func NewError(code, message string) *ValetError {
	return &ValetError{Code: code, Message: message}
}

// NewErrorf creates a new ValetError with a formatted message.
func NewErrorf(code, format string, args ...any) *ValetError {
	return &ValetError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *ValetError) WithStep(stepID string) *ValetError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *ValetError) WithCause(err error) *ValetError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ValetError) WithDetails(details map[string]any) *ValetError {
	e.Details = details
	return e
}
