// Package adapters connects plan steps to the external services that carry
// them out. Each adapter owns one step type (email, calendar, contacts, ...)
// and translates a step's action and params into a call against its backend.
package adapters

import (
	"context"

	"github.com/valetiq/valet/pkg/schema"
)

// Adapter executes one family of step types against an external service.
type Adapter interface {
	// Type is the step type this adapter handles, e.g. "email".
	Type() string

	// Execute runs a single step. execContext carries cross-step data such
	// as session identity and prior step results. A failed operation should
	// be reported through StepResult.Success=false when the failure is a
	// domain outcome, and through the error return when the call itself
	// broke (transport errors, timeouts).
	Execute(ctx context.Context, step schema.ActionStep, execContext map[string]any) (*schema.StepResult, error)
}

// Registry manages adapter lookup by step type.
type Registry interface {
	Register(a Adapter) error
	Get(stepType string) (Adapter, error)
	Has(stepType string) bool
	Types() []string
}
