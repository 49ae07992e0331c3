package store

import (
	"encoding/json"
	"time"

	"github.com/valetiq/valet/pkg/schema"
)

// PlanRecord is the persisted representation of one plan execution: the plan
// itself plus the requester context needed to rebuild an execution context on
// resume.
type PlanRecord struct {
	SessionID string            `json:"session_id"`
	Identity  string            `json:"identity"`
	Channel   string            `json:"channel,omitempty"`
	Timezone  string            `json:"timezone,omitempty"`
	State     schema.PlanState  `json:"state"`
	Plan      schema.ActionPlan `json:"plan"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Event is an immutable entry in the execution event log.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	StepID    string          `json:"step_id,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Event types recorded by the executor.
const (
	EventPlanCreated      = "plan.created"
	EventPlanStarted      = "plan.started"
	EventPlanCompleted    = "plan.completed"
	EventPlanFailed       = "plan.failed"
	EventPlanSuspended    = "plan.suspended"
	EventPlanResumed      = "plan.resumed"
	EventStepStarted      = "step.started"
	EventStepCompleted    = "step.completed"
	EventStepFailed       = "step.failed"
	EventStepRetried      = "step.retried"
	EventStepSuspended    = "step.suspended"
	EventStepAuthRequired = "step.auth_required"
)
