// Package engine drives plan execution: the sequential step dispatcher, the
// plan and step state machines, runtime dependency gating and the retry
// policy around adapter calls. One plan runs to completion or suspension
// inside a single goroutine; concurrent sessions never share an Executor's
// mutable state.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/valetiq/valet/internal/adapters"
	"github.com/valetiq/valet/internal/expressions"
	"github.com/valetiq/valet/internal/logging"
	"github.com/valetiq/valet/internal/store"
	"github.com/valetiq/valet/pkg/schema"
)

// ExecutionContext carries cross-step data for one plan run. It is rebuilt
// from the persisted plan on resume.
type ExecutionContext struct {
	SessionID string
	Identity  string
	Channel   string
	Timezone  string
	Results   map[string]*schema.StepResult
}

// AsMap renders the context in the shape adapters receive.
func (c *ExecutionContext) AsMap() map[string]any {
	results := make(map[string]any, len(c.Results))
	for id, res := range c.Results {
		results[id] = map[string]any{
			"success": res.Success,
			"data":    res.Data,
			"message": res.Message,
		}
	}
	return map[string]any{
		"session_id": c.SessionID,
		"identity":   c.Identity,
		"channel":    c.Channel,
		"timezone":   c.Timezone,
		"results":    results,
	}
}

// InterventionRequester persists the waiting record when a plan suspends on
// a synthetic intervention step.
type InterventionRequester interface {
	Request(ctx context.Context, sessionID, identity string, step schema.ActionStep) error
}

// OutcomeKind classifies how a plan run ended.
type OutcomeKind string

const (
	OutcomeCompleted    OutcomeKind = "completed"
	OutcomeFailed       OutcomeKind = "failed"
	OutcomeSuspended    OutcomeKind = "suspended"
	OutcomeAuthRequired OutcomeKind = "auth_required"
)

// Outcome is the user-visible result of one plan run. Authorization needs
// and suspensions are control-flow outcomes, not failures.
type Outcome struct {
	Kind            OutcomeKind
	SessionID       string
	Message         string
	Rich            *schema.RichPayload
	AuthURL         string
	Prompt          string
	FailedStepIndex int
}

// Executor runs plans step by step against the adapter registry.
type Executor struct {
	adapters  adapters.Registry
	store     store.Store
	fsm       *FSM
	gate      *DepGate
	guard     *expressions.ExprEngine
	intervene InterventionRequester
	retry     RetryPolicy
	logger    *slog.Logger
}

// ExecutorConfig wires an Executor. Store and Adapters are required;
// Intervene may be nil when the caller never produces intervention steps.
type ExecutorConfig struct {
	Adapters  adapters.Registry
	Store     store.Store
	Intervene InterventionRequester
	Retry     RetryPolicy
	Logger    *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		adapters:  cfg.Adapters,
		store:     cfg.Store,
		fsm:       NewFSM(cfg.Store),
		gate:      NewDepGate(expressions.NewGoJQEngine()),
		guard:     expressions.NewExprEngine(),
		intervene: cfg.Intervene,
		retry:     cfg.Retry,
		logger:    cfg.Logger,
	}
}

// Run executes the record's plan from its current cursor until completion,
// failure or suspension, persisting state at every transition. It is used
// both for fresh plans and for resume after an intervention reply.
func (e *Executor) Run(ctx context.Context, rec *store.PlanRecord) (*Outcome, error) {
	ctx = logging.WithSessionID(logging.WithIdentity(ctx, rec.Identity), rec.SessionID)
	log := logging.LogWith(ctx, e.logger)

	if rec.State.Terminal() {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "plan for session %s already %s", rec.SessionID, rec.State)
	}

	if err := e.fsm.TransitionPlan(ctx, rec.SessionID, rec.State, schema.PlanStateRunning); err != nil {
		return nil, err
	}
	if err := e.setPlanState(ctx, rec, schema.PlanStateRunning); err != nil {
		return nil, err
	}

	execCtx := &ExecutionContext{
		SessionID: rec.SessionID,
		Identity:  rec.Identity,
		Channel:   rec.Channel,
		Timezone:  rec.Timezone,
		Results:   make(map[string]*schema.StepResult),
	}
	for _, s := range rec.Plan.Steps {
		if s.State == schema.StepStateCompleted && s.Result != nil {
			execCtx.Results[s.ID] = s.Result
		}
	}

	var rich *schema.RichPayload
	var lastMessage string

	for i := rec.Plan.CurrentStepIndex; i < len(rec.Plan.Steps); i++ {
		step := rec.Plan.Steps[i]
		if step.State == schema.StepStateCompleted {
			rec.Plan = rec.Plan.Advance(i + 1)
			continue
		}

		stepCtx := logging.WithStepID(ctx, step.ID)
		stepLog := logging.LogWith(stepCtx, e.logger)

		if step.Condition != "" {
			ok, err := e.guard.EvaluateBool(stepCtx, step.Condition, e.guardEnv(execCtx))
			if err != nil {
				res := schema.FailureResult(step.ID, fmt.Sprintf("condition %q: %v", step.Condition, err))
				return e.failPlan(stepCtx, rec, i, res)
			}
			if !ok {
				stepLog.Info("condition not met, skipping step", "condition", step.Condition)
				res := schema.SuccessResult(step.ID, "skipped: condition not met", nil)
				execCtx.Results[step.ID] = res
				if err := e.completeStep(stepCtx, rec, i, res); err != nil {
					return nil, err
				}
				continue
			}
		}

		decision, extracted, reason, err := e.gate.Check(stepCtx, step, execCtx.Results)
		if err != nil {
			return nil, err
		}
		switch decision {
		case GateSkip:
			res := schema.FailureResult(step.ID, "dependency unmet: "+reason)
			return e.failPlan(stepCtx, rec, i, res)
		case GateAskUser:
			if reply, ok := clarificationReply(rec.Plan, step.ID); ok {
				// The user already answered a clarification for this step;
				// their reply stands in for the unmet dependency instead of
				// suspending again.
				stepLog.Info("unmet dependency covered by user reply", "reason", reason)
				if extracted == nil {
					extracted = make(map[string]any)
				}
				extracted[step.ID+".user_reply"] = reply.Message
				break
			}
			synthetic := syntheticIntervention(step, reason)
			rec.Plan = rec.Plan.InsertStep(i, synthetic)
			step = rec.Plan.Steps[i]
			stepCtx = logging.WithStepID(ctx, step.ID)
		}

		if step.IsIntervention() {
			return e.suspendOnIntervention(stepCtx, rec, i, step)
		}

		if err := e.fsm.TransitionStep(stepCtx, rec.SessionID, step.ID, step.State, schema.StepStateRunning); err != nil {
			return nil, err
		}
		rec.Plan = rec.Plan.WithStep(i, step.WithState(schema.StepStateRunning))
		step = rec.Plan.Steps[i]

		execMap := execCtx.AsMap()
		for k, v := range extracted {
			execMap[k] = v
		}
		res := e.dispatch(stepCtx, step, execMap, stepLog)

		switch {
		case res.AuthRequired:
			e.appendEvent(stepCtx, rec.SessionID, step.ID, store.EventStepAuthRequired)
			return e.suspendOnAuth(stepCtx, rec, i, res)
		case !res.Success:
			return e.failPlan(stepCtx, rec, i, res)
		}

		execCtx.Results[step.ID] = res
		if res.IsRich() {
			rich = res.Rich
		}
		if res.Message != "" {
			lastMessage = res.Message
		}
		if err := e.completeStep(stepCtx, rec, i, res); err != nil {
			return nil, err
		}
	}

	if err := e.fsm.TransitionPlan(ctx, rec.SessionID, rec.State, schema.PlanStateCompleted); err != nil {
		return nil, err
	}
	if err := e.setPlanState(ctx, rec, schema.PlanStateCompleted); err != nil {
		return nil, err
	}

	msg := lastMessage
	if msg == "" {
		msg = rec.Plan.Summary
	}
	log.Info("plan completed", "steps", len(rec.Plan.Steps))
	return &Outcome{
		Kind:      OutcomeCompleted,
		SessionID: rec.SessionID,
		Message:   msg,
		Rich:      rich,
	}, nil
}

// dispatch invokes the step's adapter under the retry policy. Failures never
// propagate as errors past this point; everything becomes a StepResult.
func (e *Executor) dispatch(ctx context.Context, step schema.ActionStep, execMap map[string]any, log *slog.Logger) *schema.StepResult {
	adapter, err := e.adapters.Get(step.Type)
	if err != nil {
		return schema.FailureResult(step.ID, err.Error())
	}

	var res *schema.StepResult
	for attempt := 0; ; attempt++ {
		res, err = invoke(ctx, adapter, step, execMap)
		if err != nil {
			if attempt < e.retry.MaxRetries && IsRetryableError(err) {
				e.retryWait(ctx, step, attempt, log)
				continue
			}
			return schema.FailureResult(step.ID, err.Error())
		}
		if res == nil {
			return schema.FailureResult(step.ID, fmt.Sprintf("adapter %q returned no result", step.Type))
		}
		if !res.Success && attempt < e.retry.MaxRetries && IsRetryableResult(res) {
			e.retryWait(ctx, step, attempt, log)
			continue
		}
		return res
	}
}

func (e *Executor) retryWait(ctx context.Context, step schema.ActionStep, attempt int, log *slog.Logger) {
	delay := e.retry.Backoff(attempt + 1)
	log.Warn("retrying step", "attempt", attempt+1, "backoff", delay.String())
	e.appendEvent(ctx, logging.SessionID(ctx), step.ID, store.EventStepRetried)
	if err := WaitForBackoff(ctx, delay); err != nil {
		log.Warn("backoff interrupted", "error", err.Error())
	}
}

// invoke isolates the adapter call so a panicking adapter becomes a failed
// step instead of taking down the session goroutine.
func invoke(ctx context.Context, a adapters.Adapter, step schema.ActionStep, execMap map[string]any) (res *schema.StepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = schema.NewErrorf(schema.ErrCodeExecution, "adapter %q panicked: %v", step.Type, r).WithStep(step.ID)
		}
	}()
	return a.Execute(ctx, step, execMap)
}

func (e *Executor) guardEnv(execCtx *ExecutionContext) map[string]any {
	return execCtx.AsMap()
}

func (e *Executor) completeStep(ctx context.Context, rec *store.PlanRecord, index int, res *schema.StepResult) error {
	step := rec.Plan.Steps[index]
	if CanStepTransition(step.State, schema.StepStateCompleted) {
		if err := e.fsm.TransitionStep(ctx, rec.SessionID, step.ID, step.State, schema.StepStateCompleted); err != nil {
			return err
		}
	}
	rec.Plan = rec.Plan.WithStep(index, step.WithResult(res)).Advance(index + 1)
	return e.save(ctx, rec)
}

func (e *Executor) failPlan(ctx context.Context, rec *store.PlanRecord, index int, res *schema.StepResult) (*Outcome, error) {
	step := rec.Plan.Steps[index]
	if CanStepTransition(step.State, schema.StepStateFailed) {
		_ = e.fsm.TransitionStep(ctx, rec.SessionID, step.ID, step.State, schema.StepStateFailed)
	}
	rec.Plan = rec.Plan.WithStep(index, step.WithResult(res))

	if err := e.fsm.TransitionPlan(ctx, rec.SessionID, rec.State, schema.PlanStateFailed); err != nil {
		return nil, err
	}
	if err := e.setPlanState(ctx, rec, schema.PlanStateFailed); err != nil {
		return nil, err
	}

	logging.LogWith(ctx, e.logger).Warn("plan failed", "step_index", index, "error", res.Error)
	return &Outcome{
		Kind:            OutcomeFailed,
		SessionID:       rec.SessionID,
		Message:         fmt.Sprintf("step %d failed: %s", index+1, res.Error),
		FailedStepIndex: index,
	}, nil
}

func (e *Executor) suspendOnIntervention(ctx context.Context, rec *store.PlanRecord, index int, step schema.ActionStep) (*Outcome, error) {
	if e.intervene == nil {
		res := schema.FailureResult(step.ID, "no intervention manager configured")
		return e.failPlan(ctx, rec, index, res)
	}

	prompt := step.Intervention.Prompt
	if err := e.intervene.Request(ctx, rec.SessionID, rec.Identity, step); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "persist intervention record").WithStep(step.ID).WithCause(err)
	}

	if CanStepTransition(step.State, schema.StepStateWaitingIntervention) {
		_ = e.fsm.TransitionStep(ctx, rec.SessionID, step.ID, step.State, schema.StepStateWaitingIntervention)
	}
	res := schema.InterventionResult(step.ID, prompt)
	rec.Plan = rec.Plan.WithStep(index, step.WithResult(res))

	if err := e.fsm.TransitionPlan(ctx, rec.SessionID, rec.State, schema.PlanStateWaitingIntervention); err != nil {
		return nil, err
	}
	if err := e.setPlanState(ctx, rec, schema.PlanStateWaitingIntervention); err != nil {
		return nil, err
	}

	logging.LogWith(ctx, e.logger).Info("plan suspended for intervention", "prompt", prompt)
	return &Outcome{
		Kind:      OutcomeSuspended,
		SessionID: rec.SessionID,
		Message:   prompt,
		Prompt:    prompt,
	}, nil
}

func (e *Executor) suspendOnAuth(ctx context.Context, rec *store.PlanRecord, index int, res *schema.StepResult) (*Outcome, error) {
	step := rec.Plan.Steps[index]
	_ = e.fsm.TransitionStep(ctx, rec.SessionID, step.ID, schema.StepStateRunning, schema.StepStateWaitingIntervention)
	rec.Plan = rec.Plan.WithStep(index, step.WithResult(res))

	if err := e.fsm.TransitionPlan(ctx, rec.SessionID, rec.State, schema.PlanStateWaitingIntervention); err != nil {
		return nil, err
	}
	if err := e.setPlanState(ctx, rec, schema.PlanStateWaitingIntervention); err != nil {
		return nil, err
	}

	return &Outcome{
		Kind:      OutcomeAuthRequired,
		SessionID: rec.SessionID,
		Message:   res.Message,
		AuthURL:   res.AuthURL,
	}, nil
}

func (e *Executor) setPlanState(ctx context.Context, rec *store.PlanRecord, state schema.PlanState) error {
	rec.State = state
	rec.Plan = rec.Plan.WithState(state)
	return e.save(ctx, rec)
}

func (e *Executor) save(ctx context.Context, rec *store.PlanRecord) error {
	if err := e.store.SavePlan(ctx, rec); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "persist plan for session %s", rec.SessionID).WithCause(err)
	}
	return nil
}

func (e *Executor) appendEvent(ctx context.Context, sessionID, stepID, eventType string) {
	if err := e.store.AppendEvent(ctx, &store.Event{SessionID: sessionID, StepID: stepID, Type: eventType}); err != nil {
		logging.LogWith(ctx, e.logger).Warn("event append failed", "event", eventType, "error", err.Error())
	}
}

// clarificationReply returns the result of a completed clarification step
// targeting stepID. It keeps an answered ask_user gate from re-asking the
// same question on every resume.
func clarificationReply(plan schema.ActionPlan, stepID string) (*schema.StepResult, bool) {
	for _, s := range plan.Steps {
		if !s.IsIntervention() || s.Intervention.TargetStepID != stepID {
			continue
		}
		if s.State == schema.StepStateCompleted && s.Result != nil && s.Result.Success {
			return s.Result, true
		}
	}
	return nil, false
}

// syntheticIntervention builds the clarification step inserted ahead of a
// step whose ask_user requirement is unmet.
func syntheticIntervention(target schema.ActionStep, reason string) schema.ActionStep {
	return schema.ActionStep{
		ID:          "intervene-" + target.ID,
		Type:        "intervention",
		Action:      "ask_user",
		Description: "clarification needed before " + target.ID,
		State:       schema.StepStatePending,
		Intervention: &schema.InterventionSpec{
			Prompt:       reason,
			TargetStepID: target.ID,
		},
	}
}
