package intervene

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valetiq/valet/internal/kv"
	"github.com/valetiq/valet/pkg/schema"
)

type fakeSessions struct {
	byIdentity map[string][]string
}

func (f *fakeSessions) Recent(_ context.Context, identity string) ([]string, error) {
	return f.byIdentity[identity], nil
}

func newTestManager(t *testing.T, sessions map[string][]string) (*Manager, kv.Store) {
	t.Helper()
	store := kv.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return NewManager(store, &fakeSessions{byIdentity: sessions}, nil), store
}

func interventionStep(id, prompt string) schema.ActionStep {
	return schema.ActionStep{
		ID:   id,
		Type: "intervention",
		Intervention: &schema.InterventionSpec{
			Prompt:       prompt,
			EntityValue:  "Richard",
			TargetStepID: "send-email",
		},
	}
}

func TestManager_RequestWritesWaitingRecord(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	err := m.Request(ctx, "sess-1", "+15550001111", interventionStep("ask-1", "Which Richard?"))
	require.NoError(t, err)

	rec, ok, err := m.Get(ctx, "sess-1", "ask-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusWaiting, rec.Status)
	assert.Equal(t, "Which Richard?", rec.Prompt)
	assert.Equal(t, "+15550001111", rec.Identity)
	assert.Equal(t, "Richard", rec.EntityValue)
	assert.Equal(t, "send-email", rec.TargetStepID)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestManager_RequestWithoutSpecFails(t *testing.T) {
	m, _ := newTestManager(t, nil)

	err := m.Request(context.Background(), "sess-1", "id", schema.ActionStep{ID: "s1"})
	require.Error(t, err)
	var verr *schema.ValetError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, schema.ErrCodeValidation, verr.Code)
}

func TestManager_MatchFindsWaitingRecordAcrossRecentSessions(t *testing.T) {
	m, _ := newTestManager(t, map[string][]string{
		"+15550001111": {"sess-2", "sess-1"},
	})
	ctx := context.Background()

	require.NoError(t, m.Request(ctx, "sess-1", "+15550001111", interventionStep("ask-1", "Which Richard?")))

	rec, err := m.Match(ctx, "+15550001111")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, "ask-1", rec.StepID)
}

func TestManager_MatchIgnoresOtherIdentities(t *testing.T) {
	m, _ := newTestManager(t, map[string][]string{
		"+15550001111": {"sess-1"},
		"+15550009999": {"sess-9"},
	})
	ctx := context.Background()

	require.NoError(t, m.Request(ctx, "sess-1", "+15550001111", interventionStep("ask-1", "?")))

	rec, err := m.Match(ctx, "+15550009999")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestManager_MatchNothingPending(t *testing.T) {
	m, _ := newTestManager(t, map[string][]string{"+15550001111": {"sess-1"}})

	rec, err := m.Match(context.Background(), "+15550001111")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestManager_ResolveKeepsVerbatimReply(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	require.NoError(t, m.Request(ctx, "sess-1", "id", interventionStep("ask-1", "?")))

	rec, err := m.Resolve(ctx, "sess-1", "ask-1", "  Richard Santin, the one from work ")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, rec.Status)
	assert.Equal(t, "  Richard Santin, the one from work ", rec.ResolvedValue)
	assert.False(t, rec.ResolvedAt.IsZero())

	// Resolving twice is a conflict.
	_, err = m.Resolve(ctx, "sess-1", "ask-1", "again")
	require.Error(t, err)
	var verr *schema.ValetError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, schema.ErrCodeConflict, verr.Code)
}

func TestManager_ResolveMissingRecord(t *testing.T) {
	m, _ := newTestManager(t, nil)

	_, err := m.Resolve(context.Background(), "sess-1", "ask-1", "hi")
	require.Error(t, err)
	var verr *schema.ValetError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, schema.ErrCodeNotFound, verr.Code)
}

func TestManager_ExpiredRecordNotMatched(t *testing.T) {
	m, _ := newTestManager(t, map[string][]string{"+15550001111": {"sess-1"}})
	ctx := context.Background()

	require.NoError(t, m.Request(ctx, "sess-1", "+15550001111", interventionStep("ask-1", "?")))

	// Shrink the deadline after the write so the record is now past due.
	m.timeout = 10 * time.Millisecond
	time.Sleep(30 * time.Millisecond)

	rec, err := m.Match(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Nil(t, rec)

	got, ok, err := m.Get(ctx, "sess-1", "ask-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestManager_BatchKeyForEmptyStepID(t *testing.T) {
	assert.Equal(t, "intervention:sess-1:batch", key("sess-1", ""))
	assert.Equal(t, "intervention:sess-1:step-2", key("sess-1", "step-2"))
}

func TestSweeper_ExpiresStaleRecords(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	require.NoError(t, m.Request(ctx, "sess-old", "id", interventionStep("ask-1", "?")))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, m.Request(ctx, "sess-new", "id", interventionStep("ask-2", "?")))

	// Only sess-old is past the shrunk deadline when the sweep runs.
	m.timeout = 10 * time.Millisecond
	s := NewSweeper(m, "", nil)
	require.NoError(t, s.Sweep(ctx))

	old, ok, err := m.get(ctx, key("sess-old", "ask-1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusExpired, old.Status)

	fresh, ok, err := m.get(ctx, key("sess-new", "ask-2"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusWaiting, fresh.Status)
}
