package schema

import "time"

// StepResult is the normalized outcome of one step execution.
// Immutable once produced; stored by step id in the execution context so
// downstream steps can read it.
type StepResult struct {
	Success      bool         `json:"success"`
	Data         any          `json:"data,omitempty"`
	Rich         *RichPayload `json:"rich,omitempty"`
	Message      string       `json:"message,omitempty"`
	Error        string       `json:"error,omitempty"`
	StepID       string       `json:"step_id"`
	State        StepState    `json:"state"`
	Timestamp    time.Time    `json:"timestamp"`
	AuthRequired bool         `json:"auth_required,omitempty"`
	AuthURL      string       `json:"auth_url,omitempty"`
}

// RichPayload is a structured adapter response tagged with a domain type and
// a UI hint. The dispatcher passes it through unchanged end-to-end; consumers
// render structure when present instead of flattened text.
type RichPayload struct {
	Type   string `json:"type"`
	UIHint string `json:"ui_hint,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// IsRich reports whether the result carries a structured payload.
func (r *StepResult) IsRich() bool {
	return r != nil && r.Rich != nil
}

// SuccessResult builds a completed result for a step.
func SuccessResult(stepID, message string, data any) *StepResult {
	return &StepResult{
		Success:   true,
		Data:      data,
		Message:   message,
		StepID:    stepID,
		State:     StepStateCompleted,
		Timestamp: time.Now().UTC(),
	}
}

// RichResult builds a completed result carrying a structured payload.
func RichResult(stepID string, rich *RichPayload) *StepResult {
	return &StepResult{
		Success:   true,
		Rich:      rich,
		StepID:    stepID,
		State:     StepStateCompleted,
		Timestamp: time.Now().UTC(),
	}
}

// FailureResult builds a failed result for a step.
func FailureResult(stepID, errMsg string) *StepResult {
	return &StepResult{
		Success:   false,
		Error:     errMsg,
		StepID:    stepID,
		State:     StepStateFailed,
		Timestamp: time.Now().UTC(),
	}
}

// AuthRequiredResult builds the distinct authorization-required outcome.
// It is recoverable once the user completes the out-of-band flow, not a failure.
func AuthRequiredResult(stepID, message, authURL string) *StepResult {
	return &StepResult{
		Success:      false,
		Message:      message,
		StepID:       stepID,
		State:        StepStateWaitingIntervention,
		Timestamp:    time.Now().UTC(),
		AuthRequired: true,
		AuthURL:      authURL,
	}
}

// InterventionResult builds the waiting_intervention outcome that suspends a plan.
func InterventionResult(stepID, prompt string) *StepResult {
	return &StepResult{
		Success:   false,
		Message:   prompt,
		StepID:    stepID,
		State:     StepStateWaitingIntervention,
		Timestamp: time.Now().UTC(),
	}
}
