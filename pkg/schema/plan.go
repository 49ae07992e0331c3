package schema

// StepState enumerates the lifecycle states of a single plan step.
type StepState string

const (
	StepStatePending             StepState = "pending"
	StepStateRunning             StepState = "running"
	StepStateCompleted           StepState = "completed"
	StepStateFailed              StepState = "failed"
	StepStateWaitingIntervention StepState = "waiting_intervention"
	StepStateTimeout             StepState = "timeout"
)

// PlanState enumerates the lifecycle states of a plan.
type PlanState string

const (
	PlanStateCreated             PlanState = "created"
	PlanStateRunning             PlanState = "running"
	PlanStateCompleted           PlanState = "completed"
	PlanStateFailed              PlanState = "failed"
	PlanStateWaitingIntervention PlanState = "waiting_intervention"
)

// Terminal reports whether the plan can never run again.
// A waiting_intervention plan is suspended, not terminal.
func (s PlanState) Terminal() bool {
	return s == PlanStateCompleted || s == PlanStateFailed
}

// RequirementEffect describes how an unmet dependency affects the dependent step.
type RequirementEffect string

const (
	EffectBlocks   RequirementEffect = "blocks"
	EffectEnhances RequirementEffect = "enhances"
	EffectOptional RequirementEffect = "optional"
)

// RequirementStrategy describes what to do when a blocking dependency is unmet.
type RequirementStrategy string

const (
	StrategyWait     RequirementStrategy = "wait"
	StrategySkip     RequirementStrategy = "skip"
	StrategyFallback RequirementStrategy = "fallback"
	StrategyAskUser  RequirementStrategy = "ask_user"
)

// Requirement declares a dependency of one step on another, with an optional
// field selector (jq path) into the dependency's result payload.
type Requirement struct {
	StepID   string              `json:"step_id"`
	Field    string              `json:"field,omitempty"`
	Effect   RequirementEffect   `json:"effect,omitempty"`   // default: blocks
	Strategy RequirementStrategy `json:"strategy,omitempty"` // default: skip
}

// EffectOrDefault returns the declared effect, defaulting to blocks.
func (r Requirement) EffectOrDefault() RequirementEffect {
	if r.Effect == "" {
		return EffectBlocks
	}
	return r.Effect
}

// StrategyOrDefault returns the declared strategy, defaulting to skip.
func (r Requirement) StrategyOrDefault() RequirementStrategy {
	if r.Strategy == "" {
		return StrategySkip
	}
	return r.Strategy
}

// ActionStep is one concrete operation within a plan.
// Steps are created once by the planner/resolution code; the executor threads
// updated copies forward via the With* methods rather than mutating in place.
type ActionStep struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Action      string         `json:"action"`
	Params      map[string]any `json:"params,omitempty"`
	Description string         `json:"description,omitempty"`
	State       StepState      `json:"state"`
	DependsOn   []string       `json:"depends_on,omitempty"`
	Requires    []Requirement  `json:"requires,omitempty"`
	Condition   string         `json:"condition,omitempty"` // expr guard, evaluated before dispatch
	Result      *StepResult    `json:"result,omitempty"`

	// Intervention metadata, set only on synthetic intervention steps.
	Intervention *InterventionSpec `json:"intervention,omitempty"`

	// Extra carries unrecognized planner fields for forward compatibility.
	Extra map[string]any `json:"extra,omitempty"`
}

// InterventionSpec describes the clarification a synthetic intervention step asks for.
type InterventionSpec struct {
	Prompt         string `json:"prompt"`
	EntityValue    string `json:"entity_value,omitempty"` // the unresolved value, e.g. a contact name
	TargetStepID   string `json:"target_step_id,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"` // default 300
}

// WithState returns a copy of the step in the given state.
func (s ActionStep) WithState(state StepState) ActionStep {
	s.State = state
	return s
}

// WithResult returns a copy of the step carrying the result and the result's state.
func (s ActionStep) WithResult(res *StepResult) ActionStep {
	s.Result = res
	if res != nil {
		s.State = res.State
	}
	return s
}

// WithParams returns a copy of the step with replaced params.
func (s ActionStep) WithParams(params map[string]any) ActionStep {
	s.Params = params
	return s
}

// IsIntervention reports whether the step is a synthetic intervention step.
func (s ActionStep) IsIntervention() bool {
	return s.Intervention != nil
}

// ActionPlan is an ordered set of steps derived from one user message.
// A plan is owned by exactly one execution context and never shared across sessions.
type ActionPlan struct {
	Steps            []ActionStep `json:"steps"`
	OriginalMessage  string       `json:"original_message"`
	Summary          string       `json:"summary,omitempty"`
	State            PlanState    `json:"state"`
	CurrentStepIndex int          `json:"current_step_index"`
	IsMultiStep      bool         `json:"is_multi_step"`
}

// WithState returns a copy of the plan in the given state.
func (p ActionPlan) WithState(state PlanState) ActionPlan {
	p.State = state
	return p
}

// WithStep returns a copy of the plan with the step at index replaced.
// The Steps slice is copied so the original plan value is untouched.
func (p ActionPlan) WithStep(index int, step ActionStep) ActionPlan {
	if index < 0 || index >= len(p.Steps) {
		return p
	}
	steps := make([]ActionStep, len(p.Steps))
	copy(steps, p.Steps)
	steps[index] = step
	p.Steps = steps
	return p
}

// Advance returns a copy of the plan with the cursor moved to index, never backwards.
func (p ActionPlan) Advance(index int) ActionPlan {
	if index > p.CurrentStepIndex {
		p.CurrentStepIndex = index
	}
	return p
}

// StepByID returns the step with the given id and its index, or nil and -1.
func (p ActionPlan) StepByID(id string) (*ActionStep, int) {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i], i
		}
	}
	return nil, -1
}

// InsertStep returns a copy of the plan with the step inserted at index.
func (p ActionPlan) InsertStep(index int, step ActionStep) ActionPlan {
	if index < 0 {
		index = 0
	}
	if index > len(p.Steps) {
		index = len(p.Steps)
	}
	steps := make([]ActionStep, 0, len(p.Steps)+1)
	steps = append(steps, p.Steps[:index]...)
	steps = append(steps, step)
	steps = append(steps, p.Steps[index:]...)
	p.Steps = steps
	return p
}
