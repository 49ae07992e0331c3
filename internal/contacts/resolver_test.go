package contacts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valetiq/valet/pkg/schema"
)

// fakeDirectory serves lookups from an in-memory contact list.
type fakeDirectory struct {
	contacts []Contact
	allCalls int
	failAll  bool
}

func (d *fakeDirectory) LookupByName(_ context.Context, name string) ([]Contact, error) {
	var hits []Contact
	for _, c := range d.contacts {
		if strings.EqualFold(c.Name, name) {
			hits = append(hits, c)
		}
	}
	return hits, nil
}

func (d *fakeDirectory) Search(_ context.Context, query string) ([]Contact, error) {
	var hits []Contact
	for _, c := range d.contacts {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(query)) {
			hits = append(hits, c)
		}
	}
	return hits, nil
}

func (d *fakeDirectory) SearchContains(ctx context.Context, query string) ([]Contact, error) {
	return d.Search(ctx, query)
}

func (d *fakeDirectory) All(_ context.Context) ([]Contact, error) {
	d.allCalls++
	if d.failAll {
		return nil, errors.New("directory unavailable")
	}
	return d.contacts, nil
}

type fakeSuggester struct {
	variants []string
	err      error
	calls    int
}

func (s *fakeSuggester) Variants(_ context.Context, _ string) ([]string, error) {
	s.calls++
	return s.variants, s.err
}

func richardDir() *fakeDirectory {
	return &fakeDirectory{contacts: []Contact{
		{Name: "Richard Santin", Email: "richard.santin@example.com"},
	}}
}

func TestResolve_ExactName_AutoResolves(t *testing.T) {
	r := NewResolver(richardDir(), nil, nil)

	res, err := r.Resolve(context.Background(), "Richard Santin")
	require.NoError(t, err)
	require.NotNil(t, res.Resolved)
	assert.Equal(t, schema.EntityEmail, res.Resolved.Type)
	assert.Equal(t, "richard.santin@example.com", res.Resolved.Email)
	assert.Equal(t, 1.0, res.Resolved.Confidence)
}

func TestResolve_FirstName_AutoResolves(t *testing.T) {
	r := NewResolver(richardDir(), nil, nil)

	res, err := r.Resolve(context.Background(), "Richard")
	require.NoError(t, err)
	require.NotNil(t, res.Resolved)
	assert.GreaterOrEqual(t, res.Resolved.Confidence, 0.8)
	assert.Equal(t, "Richard Santin", res.Resolved.DisplayName)
}

func TestResolve_PartialName_ReturnsSuggestionsNotEmail(t *testing.T) {
	r := NewResolver(richardDir(), nil, nil)

	res, err := r.Resolve(context.Background(), "Rich")
	require.NoError(t, err)

	assert.Nil(t, res.Resolved, "partial match must not silently fabricate a resolution")
	require.NotEmpty(t, res.Suggestions)
	assert.Contains(t, res.Suggestions[0].Contact.Name, "Richard")
	assert.GreaterOrEqual(t, res.Suggestions[0].Confidence, 0.3)
	assert.Less(t, res.Suggestions[0].Confidence, 0.8)
}

func TestResolve_NoMatch_FailsWithSearchedCount(t *testing.T) {
	dir := &fakeDirectory{contacts: []Contact{
		{Name: "Richard Santin"}, {Name: "Jane Doe"},
	}}
	r := NewResolver(dir, nil, nil)

	// An unmatched name is an expected outcome, not an error.
	res, err := r.Resolve(context.Background(), "Wqxzkvp")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Failed())
	assert.Nil(t, res.Resolved)
	assert.Empty(t, res.Suggestions)
	assert.Equal(t, 2, res.Searched)
}

func TestResolve_DirectoryUnavailable_ReturnsError(t *testing.T) {
	dir := &fakeDirectory{failAll: true}
	r := NewResolver(dir, nil, nil)

	res, err := r.Resolve(context.Background(), "Anyone")
	require.Error(t, err)
	assert.Nil(t, res)

	var verr *schema.ValetError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, schema.ErrCodeStore, verr.Code)
}

func TestResolve_SuggestionsCappedAtThree(t *testing.T) {
	dir := &fakeDirectory{contacts: []Contact{
		{Name: "Jon Abbot"}, {Name: "Jon Baker"}, {Name: "Jon Cole"}, {Name: "Jon Drake"},
	}}
	r := NewResolver(dir, nil, nil)

	// "Jon X" matches no one exactly; every candidate shares the first name.
	res, err := r.Resolve(context.Background(), "Jonn")
	require.NoError(t, err)
	assert.Nil(t, res.Resolved)
	assert.LessOrEqual(t, len(res.Suggestions), 3)
	require.NotEmpty(t, res.Suggestions)
}

func TestResolve_VariantBoostOnlyRaises(t *testing.T) {
	dir := &fakeDirectory{contacts: []Contact{
		{Name: "Robert Wilson", Email: "rw@example.com"},
	}}
	sugg := &fakeSuggester{variants: []string{"Robert"}}
	r := NewResolver(dir, sugg, nil)

	// "Bob" alone scores poorly; the variant "Robert" is a first-name exact
	// match plus the boost, clearing the auto-resolve bar.
	res, err := r.Resolve(context.Background(), "Bob")
	require.NoError(t, err)
	require.NotNil(t, res.Resolved)
	assert.GreaterOrEqual(t, res.Resolved.Confidence, 0.9)
	assert.Equal(t, "rw@example.com", res.Resolved.Email)
	assert.Equal(t, 1, sugg.calls)
}

func TestResolve_SuggesterFailureIsIgnored(t *testing.T) {
	sugg := &fakeSuggester{err: errors.New("model offline")}
	r := NewResolver(richardDir(), sugg, nil)

	res, err := r.Resolve(context.Background(), "Richard")
	require.NoError(t, err)
	assert.NotNil(t, res.Resolved)
}

func TestResolve_AllContactsCached(t *testing.T) {
	dir := &fakeDirectory{contacts: []Contact{{Name: "Jane Doe"}}}
	r := NewResolver(dir, nil, nil)

	_, _ = r.Resolve(context.Background(), "Janet")
	_, _ = r.Resolve(context.Background(), "Janet")

	assert.Equal(t, 1, dir.allCalls)
}

func TestResolve_EmptyName(t *testing.T) {
	r := NewResolver(richardDir(), nil, nil)

	_, err := r.Resolve(context.Background(), "   ")
	assert.Error(t, err)
}
