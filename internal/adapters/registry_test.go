package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valetiq/valet/pkg/schema"
)

type stubAdapter struct {
	typ string
}

func (s *stubAdapter) Type() string { return s.typ }

func (s *stubAdapter) Execute(_ context.Context, step schema.ActionStep, _ map[string]any) (*schema.StepResult, error) {
	return schema.SuccessResult(step.ID, "ok", nil), nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{typ: "email"}))

	a, err := r.Get("email")
	require.NoError(t, err)
	assert.Equal(t, "email", a.Type())
	assert.True(t, r.Has("email"))
	assert.False(t, r.Has("calendar"))
}

func TestRegistry_DuplicateType(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{typ: "email"}))

	err := r.Register(&stubAdapter{typ: "email"})
	require.Error(t, err)
	var verr *schema.ValetError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, schema.ErrCodeConflict, verr.Code)
}

func TestRegistry_RejectsNilAndEmpty(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&stubAdapter{typ: ""}))
}

func TestRegistry_GetUnknownType(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("fax")
	require.Error(t, err)
	var verr *schema.ValetError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, schema.ErrCodeUnknownStepType, verr.Code)
}

func TestRegistry_TypesSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{typ: "email"}))
	require.NoError(t, r.Register(&stubAdapter{typ: "calendar"}))
	require.NoError(t, r.Register(&stubAdapter{typ: "contacts"}))

	assert.Equal(t, []string{"calendar", "contacts", "email"}, r.Types())
}
