// Package store is the durable half of the persistence layer: plan state and
// the append-only execution event log, addressed by session id. It is the
// only place plan state outlives a single request/response cycle.
package store

import "context"

// Store defines the durable persistence contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// SavePlan upserts the plan record for its session id.
	SavePlan(ctx context.Context, rec *PlanRecord) error

	// GetPlan returns the plan record for a session id.
	GetPlan(ctx context.Context, sessionID string) (*PlanRecord, error)

	// ListPlansByIdentity returns an identity's plan records, most recently
	// updated first, bounded by limit.
	ListPlansByIdentity(ctx context.Context, identity string, limit int) ([]*PlanRecord, error)

	// DeletePlan removes a plan record.
	DeletePlan(ctx context.Context, sessionID string) error

	// AppendEvent appends an entry to the execution event log.
	AppendEvent(ctx context.Context, event *Event) error

	// GetEvents returns a session's events with id > since, oldest first.
	GetEvents(ctx context.Context, sessionID string, since int64) ([]*Event, error)

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
