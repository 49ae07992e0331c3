// Package assistant is the front door: one inbound message goes in, one
// reply comes out. It first checks whether the sender owes a pending
// intervention an answer and resumes that plan; otherwise it drafts a new
// plan, resolves entity placeholders, validates, and executes.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/valetiq/valet/internal/contacts"
	"github.com/valetiq/valet/internal/engine"
	"github.com/valetiq/valet/internal/entities"
	"github.com/valetiq/valet/internal/intervene"
	"github.com/valetiq/valet/internal/logging"
	"github.com/valetiq/valet/internal/planner"
	"github.com/valetiq/valet/internal/resolve"
	"github.com/valetiq/valet/internal/session"
	"github.com/valetiq/valet/internal/store"
	"github.com/valetiq/valet/internal/validation"
	"github.com/valetiq/valet/pkg/schema"
)

// Inbound is one user message with its requester context.
type Inbound struct {
	Identity string
	Channel  string
	Timezone string
	Message  string
}

// Reply is the user-visible response to one inbound message.
type Reply struct {
	SessionID string
	Kind      engine.OutcomeKind
	Text      string
	Rich      *schema.RichPayload
	AuthURL   string
}

// Assistant coordinates the full message-to-operations flow.
type Assistant struct {
	planner   *planner.Planner
	contacts  *contacts.Resolver
	entities  *entities.Cache
	sessions  *session.Manager
	intervene *intervene.Manager
	executor  *engine.Executor
	validator *validation.PlanValidator
	store     store.Store
	logger    *slog.Logger
}

// Config wires an Assistant. Contacts may be nil when no directory is
// configured; unresolved people then always become interventions.
type Config struct {
	Planner   *planner.Planner
	Contacts  *contacts.Resolver
	Entities  *entities.Cache
	Sessions  *session.Manager
	Intervene *intervene.Manager
	Executor  *engine.Executor
	Validator *validation.PlanValidator
	Store     store.Store
	Logger    *slog.Logger
}

// New creates an Assistant.
func New(cfg Config) *Assistant {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assistant{
		planner:   cfg.Planner,
		contacts:  cfg.Contacts,
		entities:  cfg.Entities,
		sessions:  cfg.Sessions,
		intervene: cfg.Intervene,
		executor:  cfg.Executor,
		validator: cfg.Validator,
		store:     cfg.Store,
		logger:    cfg.Logger,
	}
}

// Handle processes one inbound message end to end.
func (a *Assistant) Handle(ctx context.Context, in Inbound) (*Reply, error) {
	ctx = logging.WithIdentity(ctx, in.Identity)

	if rec, err := a.intervene.Match(ctx, in.Identity); err != nil {
		return nil, err
	} else if rec != nil {
		return a.resume(ctx, rec, in)
	}

	a.failExpiredSuspension(ctx, in.Identity)

	return a.startPlan(ctx, in)
}

// startPlan drafts, resolves, validates and runs a new plan.
func (a *Assistant) startPlan(ctx context.Context, in Inbound) (*Reply, error) {
	sessionID, err := a.sessions.Begin(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithSessionID(ctx, sessionID)
	log := logging.LogWith(ctx, a.logger)

	plan, err := a.planner.Plan(ctx, in.Message, nil)
	if err != nil {
		return nil, err
	}

	*plan = a.resolveEntities(ctx, in.Identity, *plan)

	if result := a.validator.Validate(plan); !result.Valid() {
		// Fatal validation failure: report immediately, the plan never starts.
		log.Warn("plan rejected by validation", "errors", len(result.Errors))
		return nil, result.ToError()
	}

	rec := &store.PlanRecord{
		SessionID: sessionID,
		Identity:  in.Identity,
		Channel:   in.Channel,
		Timezone:  in.Timezone,
		State:     schema.PlanStateCreated,
		Plan:      *plan,
	}
	if err := a.store.SavePlan(ctx, rec); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "persist new plan for session %s", sessionID).WithCause(err)
	}
	a.appendEvent(ctx, sessionID, store.EventPlanCreated)

	out, err := a.executor.Run(ctx, rec)
	if err != nil {
		return nil, err
	}
	return replyFrom(out), nil
}

// resume answers a pending intervention with the verbatim reply and
// continues the suspended plan.
func (a *Assistant) resume(ctx context.Context, pending *intervene.Record, in Inbound) (*Reply, error) {
	ctx = logging.WithSessionID(ctx, pending.SessionID)
	log := logging.LogWith(ctx, a.logger)

	resolved, err := a.intervene.Resolve(ctx, pending.SessionID, pending.StepID, in.Message)
	if err != nil {
		return nil, err
	}

	rec, err := a.store.GetPlan(ctx, pending.SessionID)
	if err != nil {
		return nil, err
	}

	// Bind the reply to the placeholder the intervention was asking about.
	if resolved.EntityValue != "" {
		slug := schema.Slugify(resolved.EntityValue)
		rec.Plan = resolve.Bind(rec.Plan, slug, resolved.ResolvedValue)
	}

	// The intervention step itself is now answered.
	if _, idx := rec.Plan.StepByID(pending.StepID); idx >= 0 {
		step := rec.Plan.Steps[idx]
		res := schema.SuccessResult(step.ID, resolved.ResolvedValue, map[string]any{"reply": resolved.ResolvedValue})
		rec.Plan = rec.Plan.WithStep(idx, step.WithResult(res))
	}

	log.Info("resuming plan after intervention", "step_id", pending.StepID)

	out, err := a.executor.Run(ctx, rec)
	if err != nil {
		return nil, err
	}
	return replyFrom(out), nil
}

// resolveEntities substitutes {{ENTITY:slug}} placeholders from the entity
// cache and the contact directory. A person nobody can identify becomes an
// intervention step rather than a hard failure.
func (a *Assistant) resolveEntities(ctx context.Context, identity string, plan schema.ActionPlan) schema.ActionPlan {
	log := logging.LogWith(ctx, a.logger)

	for _, slug := range resolve.UnresolvedSlugs(plan) {
		if ent, ok := a.cachedEntity(ctx, identity, slug); ok {
			plan = resolve.Apply(plan, []schema.CachedEntity{*ent})
			continue
		}

		name := humanize(slug)
		if a.contacts != nil {
			res, err := a.contacts.Resolve(ctx, name)
			if err != nil {
				log.Warn("contact lookup errored, asking the user instead", "name", name, "error", err.Error())
				plan = a.insertClarification(plan, slug, name, nil)
				continue
			}
			if res.Resolved != nil {
				if a.entities != nil {
					if cacheErr := a.entities.Put(ctx, identity, *res.Resolved); cacheErr != nil {
						log.Warn("entity cache write failed", "error", cacheErr.Error())
					}
				}
				plan = resolve.Apply(plan, []schema.CachedEntity{*res.Resolved})
				continue
			}
			plan = a.insertClarification(plan, slug, name, res)
			continue
		}

		plan = a.insertClarification(plan, slug, name, nil)
	}
	return plan
}

// cachedEntity checks the entity cache under the types a resolved person can
// land as: EMAIL once the directory supplied an address, PERSON otherwise.
func (a *Assistant) cachedEntity(ctx context.Context, identity, slug string) (*schema.CachedEntity, bool) {
	if a.entities == nil {
		return nil, false
	}
	for _, typ := range []schema.EntityType{schema.EntityEmail, schema.EntityPerson} {
		if ent, ok, err := a.entities.Get(ctx, identity, typ, slug); err == nil && ok {
			return ent, true
		}
	}
	return nil, false
}

// insertClarification places an intervention step ahead of the first step
// referencing the unresolved slug.
func (a *Assistant) insertClarification(plan schema.ActionPlan, slug, name string, res *contacts.Resolution) schema.ActionPlan {
	prompt := fmt.Sprintf("Who do you mean by %q? Reply with their name or address.", name)
	if res != nil && len(res.Suggestions) > 0 {
		names := make([]string, len(res.Suggestions))
		for i, s := range res.Suggestions {
			names[i] = s.Contact.Name
		}
		prompt = fmt.Sprintf("I found a few matches for %q: %s. Who did you mean?",
			name, strings.Join(names, ", "))
	}

	index := firstReference(plan, slug)
	target := ""
	if index < len(plan.Steps) {
		target = plan.Steps[index].ID
	}

	return plan.InsertStep(index, schema.ActionStep{
		ID:          "clarify-" + slug,
		Type:        "intervention",
		Action:      "ask_user",
		Description: "ask who " + name + " is",
		State:       schema.StepStatePending,
		Intervention: &schema.InterventionSpec{
			Prompt:       prompt,
			EntityValue:  name,
			TargetStepID: target,
		},
	})
}

// failExpiredSuspension finalizes the identity's most recent suspended plan
// whose intervention deadline passed. The sweeper already flipped the record
// to expired; this is the "next touch" that fails the dependent step.
func (a *Assistant) failExpiredSuspension(ctx context.Context, identity string) {
	log := logging.LogWith(ctx, a.logger)

	recent, err := a.sessions.Recent(ctx, identity)
	if err != nil {
		return
	}
	for _, sessionID := range recent {
		rec, err := a.store.GetPlan(ctx, sessionID)
		if err != nil || rec.State != schema.PlanStateWaitingIntervention {
			continue
		}

		expired := false
		for _, step := range rec.Plan.Steps {
			if step.State != schema.StepStateWaitingIntervention {
				continue
			}
			// Auth suspensions have no intervention record; they wait on the
			// out-of-band flow, not on a reply, and never expire here.
			if step.Result != nil && step.Result.AuthRequired {
				continue
			}
			irec, ok, err := a.intervene.Get(ctx, sessionID, step.ID)
			if err != nil {
				continue
			}
			if !ok || irec.Status == intervene.StatusExpired {
				expired = true
				if _, idx := rec.Plan.StepByID(step.ID); idx >= 0 {
					res := schema.FailureResult(step.ID, "no reply before the intervention deadline")
					rec.Plan = rec.Plan.WithStep(idx, rec.Plan.Steps[idx].WithResult(res))
				}
			}
		}
		if !expired {
			continue
		}

		rec.State = schema.PlanStateFailed
		rec.Plan = rec.Plan.WithState(schema.PlanStateFailed)
		if err := a.store.SavePlan(ctx, rec); err != nil {
			log.Warn("finalize expired suspension", "session_id", sessionID, "error", err.Error())
			continue
		}
		a.appendEvent(ctx, sessionID, store.EventPlanFailed)
		log.Info("suspended plan expired", "session_id", sessionID)
	}
}

func (a *Assistant) appendEvent(ctx context.Context, sessionID, eventType string) {
	if err := a.store.AppendEvent(ctx, &store.Event{SessionID: sessionID, Type: eventType}); err != nil {
		logging.LogWith(ctx, a.logger).Warn("event append failed", "event", eventType, "error", err.Error())
	}
}

func replyFrom(out *engine.Outcome) *Reply {
	return &Reply{
		SessionID: out.SessionID,
		Kind:      out.Kind,
		Text:      out.Message,
		Rich:      out.Rich,
		AuthURL:   out.AuthURL,
	}
}

// humanize turns a placeholder slug back into a searchable name.
func humanize(slug string) string {
	return strings.ReplaceAll(slug, "-", " ")
}

// firstReference returns the index of the first step whose params mention
// the slug's placeholder, or 0 when none do.
func firstReference(plan schema.ActionPlan, slug string) int {
	needle := strings.ToLower(schema.Placeholder(slug))
	for i, step := range plan.Steps {
		if paramsMention(step.Params, needle) {
			return i
		}
	}
	return 0
}

func paramsMention(v any, needle string) bool {
	switch t := v.(type) {
	case string:
		return strings.Contains(strings.ToLower(t), needle)
	case map[string]any:
		for _, inner := range t {
			if paramsMention(inner, needle) {
				return true
			}
		}
	case []any:
		for _, inner := range t {
			if paramsMention(inner, needle) {
				return true
			}
		}
	}
	return false
}
