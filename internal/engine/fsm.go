package engine

import (
	"context"

	"github.com/valetiq/valet/internal/store"
	"github.com/valetiq/valet/pkg/schema"
)

// EventAppender is satisfied by the Store; the FSM emits an event on every
// observable transition.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// validPlanTransitions defines the allowed plan lifecycle transitions.
// waiting_intervention is a suspension, not a terminal state; it can resume.
var validPlanTransitions = map[schema.PlanState][]schema.PlanState{
	schema.PlanStateCreated:             {schema.PlanStateRunning, schema.PlanStateFailed},
	schema.PlanStateRunning:             {schema.PlanStateCompleted, schema.PlanStateFailed, schema.PlanStateWaitingIntervention},
	schema.PlanStateWaitingIntervention: {schema.PlanStateRunning, schema.PlanStateFailed},
	schema.PlanStateCompleted:           {},
	schema.PlanStateFailed:              {},
}

// validStepTransitions defines the allowed step lifecycle transitions.
// timeout and waiting_intervention are both re-runnable.
var validStepTransitions = map[schema.StepState][]schema.StepState{
	schema.StepStatePending:             {schema.StepStateRunning, schema.StepStateCompleted, schema.StepStateFailed, schema.StepStateWaitingIntervention},
	schema.StepStateRunning:             {schema.StepStateCompleted, schema.StepStateFailed, schema.StepStateWaitingIntervention, schema.StepStateTimeout},
	schema.StepStateTimeout:             {schema.StepStateRunning, schema.StepStateFailed},
	schema.StepStateWaitingIntervention: {schema.StepStateRunning, schema.StepStateCompleted, schema.StepStateFailed},
	schema.StepStateCompleted:           {},
	schema.StepStateFailed:              {},
}

// CanPlanTransition reports whether a plan may move from one state to another.
func CanPlanTransition(from, to schema.PlanState) bool {
	for _, a := range validPlanTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// CanStepTransition reports whether a step may move from one state to another.
func CanStepTransition(from, to schema.StepState) bool {
	for _, a := range validStepTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// FSM validates plan and step state transitions and appends the matching
// event to the execution log. The caller persists the new state itself; the
// FSM only gates and records.
type FSM struct {
	appender EventAppender
}

// NewFSM creates an FSM emitting events via the given appender. appender may
// be nil, in which case transitions are validated but not recorded.
func NewFSM(appender EventAppender) *FSM {
	return &FSM{appender: appender}
}

// TransitionPlan validates a plan transition and emits its event.
func (f *FSM) TransitionPlan(ctx context.Context, sessionID string, from, to schema.PlanState) error {
	if !CanPlanTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid plan transition: %s -> %s", from, to).
			WithDetails(map[string]any{"session_id": sessionID, "from": string(from), "to": string(to)})
	}
	return f.append(ctx, &store.Event{
		SessionID: sessionID,
		Type:      planEventType(from, to),
	})
}

// TransitionStep validates a step transition and emits its event.
func (f *FSM) TransitionStep(ctx context.Context, sessionID, stepID string, from, to schema.StepState) error {
	if !CanStepTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid step transition: %s -> %s", from, to).
			WithStep(stepID).
			WithDetails(map[string]any{"session_id": sessionID, "from": string(from), "to": string(to)})
	}
	return f.append(ctx, &store.Event{
		SessionID: sessionID,
		StepID:    stepID,
		Type:      stepEventType(to),
	})
}

func (f *FSM) append(ctx context.Context, ev *store.Event) error {
	if f.appender == nil || ev.Type == "" {
		return nil
	}
	if err := f.appender.AppendEvent(ctx, ev); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "emit %s event: %s", ev.Type, err.Error()).WithCause(err)
	}
	return nil
}

func planEventType(from, to schema.PlanState) string {
	switch to {
	case schema.PlanStateRunning:
		if from == schema.PlanStateWaitingIntervention {
			return store.EventPlanResumed
		}
		return store.EventPlanStarted
	case schema.PlanStateCompleted:
		return store.EventPlanCompleted
	case schema.PlanStateFailed:
		return store.EventPlanFailed
	case schema.PlanStateWaitingIntervention:
		return store.EventPlanSuspended
	default:
		return ""
	}
}

func stepEventType(to schema.StepState) string {
	switch to {
	case schema.StepStateRunning:
		return store.EventStepStarted
	case schema.StepStateCompleted:
		return store.EventStepCompleted
	case schema.StepStateFailed, schema.StepStateTimeout:
		return store.EventStepFailed
	case schema.StepStateWaitingIntervention:
		return store.EventStepSuspended
	default:
		return ""
	}
}
