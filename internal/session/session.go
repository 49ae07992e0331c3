// Package session issues per-plan session ids and maintains the bounded
// recent-sessions index per requester identity. Two identities never share a
// session id, so one identity's suspended plan can never block another's.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/valetiq/valet/internal/kv"
)

const (
	// RecentLimit bounds the recent-sessions index per identity; it only
	// exists so the intervention manager can scan for a pending prompt
	// cheaply.
	RecentLimit = 5

	recentTTL = time.Hour
)

// Manager issues session ids and tracks recency.
type Manager struct {
	kv kv.Store
}

// NewManager creates a Manager over the given key-value store.
func NewManager(store kv.Store) *Manager {
	return &Manager{kv: store}
}

func recentKey(identity string) string {
	return fmt.Sprintf("sessions:%s:recent", identity)
}

// Begin generates a fresh session id for identity and records it in the
// recent-sessions index.
func (m *Manager) Begin(ctx context.Context, identity string) (string, error) {
	id := uuid.NewString()
	if err := m.kv.PushRecent(ctx, recentKey(identity), id, RecentLimit, recentTTL); err != nil {
		return "", err
	}
	return id, nil
}

// Recent returns the identity's recently active session ids, newest first.
func (m *Manager) Recent(ctx context.Context, identity string) ([]string, error) {
	return m.kv.Recent(ctx, recentKey(identity))
}
