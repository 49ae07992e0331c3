// Package intervene manages human-in-the-loop pauses. When a plan needs a
// value only the user can supply, a keyed waiting record is written to the
// kv plane; a later inbound message from the same identity is matched
// against that identity's recent sessions and, on a hit, the record is
// resolved with the verbatim reply so the plan can resume.
package intervene

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/valetiq/valet/internal/kv"
	"github.com/valetiq/valet/internal/logging"
	"github.com/valetiq/valet/pkg/schema"
)

// Record statuses.
const (
	StatusWaiting  = "waiting"
	StatusResolved = "resolved"
	StatusExpired  = "expired"
)

// DefaultTimeout is the intervention record TTL and the sweeper's soft deadline.
const DefaultTimeout = 300 * time.Second

// BatchStepID keys a record that covers a whole plan rather than one step.
const BatchStepID = "batch"

// Record is the persisted intervention state.
type Record struct {
	Status        string    `json:"status"`
	SessionID     string    `json:"sessionId"`
	StepID        string    `json:"stepId"`
	Identity      string    `json:"identity"`
	Prompt        string    `json:"prompt"`
	EntityValue   string    `json:"entityValue,omitempty"`
	TargetStepID  string    `json:"targetStepId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	ResolvedValue string    `json:"resolvedValue,omitempty"`
	ResolvedAt    time.Time `json:"resolvedAt,omitempty"`
}

// SessionLister exposes the recent-sessions index for an identity; satisfied
// by session.Manager.
type SessionLister interface {
	Recent(ctx context.Context, identity string) ([]string, error)
}

// Manager writes, matches and resolves intervention records.
type Manager struct {
	kv       kv.Store
	sessions SessionLister
	timeout  time.Duration
	logger   *slog.Logger
}

// NewManager creates a Manager with the default 300s timeout.
func NewManager(store kv.Store, sessions SessionLister, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{kv: store, sessions: sessions, timeout: DefaultTimeout, logger: logger}
}

func key(sessionID, stepID string) string {
	if stepID == "" {
		stepID = BatchStepID
	}
	return fmt.Sprintf("intervention:%s:%s", sessionID, stepID)
}

// Request persists a waiting record for the suspended step. Satisfies the
// executor's InterventionRequester contract.
func (m *Manager) Request(ctx context.Context, sessionID, identity string, step schema.ActionStep) error {
	if step.Intervention == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "step %q carries no intervention spec", step.ID).WithStep(step.ID)
	}

	rec := &Record{
		Status:       StatusWaiting,
		SessionID:    sessionID,
		StepID:       step.ID,
		Identity:     identity,
		Prompt:       step.Intervention.Prompt,
		EntityValue:  step.Intervention.EntityValue,
		TargetStepID: step.Intervention.TargetStepID,
		CreatedAt:    time.Now().UTC(),
	}

	ttl := m.timeout
	if step.Intervention.TimeoutSeconds > 0 {
		ttl = time.Duration(step.Intervention.TimeoutSeconds) * time.Second
	}
	// Records outlive their soft deadline so the sweeper can finalize them
	// before the kv plane drops the key.
	if err := m.put(ctx, rec, 2*ttl); err != nil {
		return err
	}

	logging.LogWith(ctx, m.logger).Info("intervention requested",
		"prompt", rec.Prompt, "timeout", ttl.String())
	return nil
}

// Match scans the identity's recent sessions for a waiting record. Returns
// nil when nothing is pending; expired records encountered during the scan
// are finalized in passing.
func (m *Manager) Match(ctx context.Context, identity string) (*Record, error) {
	sessions, err := m.sessions.Recent(ctx, identity)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list recent sessions for %s", identity).WithCause(err)
	}

	for _, sessionID := range sessions {
		keys, err := m.kv.Keys(ctx, fmt.Sprintf("intervention:%s:*", sessionID))
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan interventions for session %s", sessionID).WithCause(err)
		}
		for _, k := range keys {
			rec, ok, err := m.get(ctx, k)
			if err != nil || !ok {
				continue
			}
			if rec.Status != StatusWaiting || rec.Identity != identity {
				continue
			}
			if m.isExpired(rec) {
				m.expire(ctx, rec)
				continue
			}
			return rec, nil
		}
	}
	return nil, nil
}

// Resolve marks a waiting record resolved with the verbatim user reply.
func (m *Manager) Resolve(ctx context.Context, sessionID, stepID, reply string) (*Record, error) {
	k := key(sessionID, stepID)
	rec, ok, err := m.get(ctx, k)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no intervention record for session %s step %s", sessionID, stepID)
	}
	if rec.Status != StatusWaiting {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "intervention for session %s is %s, not waiting", sessionID, rec.Status)
	}

	rec.Status = StatusResolved
	rec.ResolvedValue = reply
	rec.ResolvedAt = time.Now().UTC()

	// Keep the resolved record around briefly for diagnostics.
	if err := m.put(ctx, rec, m.timeout); err != nil {
		return nil, err
	}

	logging.LogWith(ctx, m.logger).Info("intervention resolved", "step_id", rec.StepID)
	return rec, nil
}

// Get returns the record for a session and step, if any.
func (m *Manager) Get(ctx context.Context, sessionID, stepID string) (*Record, bool, error) {
	return m.getChecked(ctx, key(sessionID, stepID))
}

func (m *Manager) getChecked(ctx context.Context, k string) (*Record, bool, error) {
	rec, ok, err := m.get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	if rec.Status == StatusWaiting && m.isExpired(rec) {
		m.expire(ctx, rec)
		rec.Status = StatusExpired
	}
	return rec, true, nil
}

func (m *Manager) isExpired(rec *Record) bool {
	return time.Since(rec.CreatedAt) > m.timeout
}

// expire finalizes a waiting record past its deadline. The dependent step is
// failed by whoever next touches the plan, not here.
func (m *Manager) expire(ctx context.Context, rec *Record) {
	rec.Status = StatusExpired
	if err := m.put(ctx, rec, m.timeout); err != nil {
		logging.LogWith(ctx, m.logger).Warn("expire intervention record",
			"session_id", rec.SessionID, "error", err.Error())
	}
}

func (m *Manager) put(ctx context.Context, rec *Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "encode intervention record").WithCause(err)
	}
	if err := m.kv.Set(ctx, key(rec.SessionID, rec.StepID), string(raw), ttl); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "write intervention record for session %s", rec.SessionID).WithCause(err)
	}
	return nil
}

func (m *Manager) get(ctx context.Context, k string) (*Record, bool, error) {
	raw, ok, err := m.kv.Get(ctx, k)
	if err != nil {
		return nil, false, schema.NewErrorf(schema.ErrCodeStore, "read intervention record %s", k).WithCause(err)
	}
	if !ok {
		return nil, false, nil
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// Corrupt record; drop it rather than wedge the session.
		_ = m.kv.Delete(ctx, k)
		return nil, false, nil
	}
	return &rec, true, nil
}
