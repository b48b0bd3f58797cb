package prepop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"formkit/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	calls atomic.Int32
	subs  map[string]*model.Submission // keyed by match value
	err   error
}

func (l *fakeLookup) Latest(_ context.Context, formID string, m Match) (*model.Submission, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	sub, ok := l.subs[string(m.By)+":"+m.Value]
	if !ok {
		return nil, ErrNotFound
	}
	return sub, nil
}

func previousField(id string, cfg model.PreviousConfig) model.Field {
	return model.Field{ID: id, Type: model.FieldText, Prepopulation: &model.Prepopulation{Enabled: true, Config: cfg}}
}

func TestPreviousResolver_ByEmail(t *testing.T) {
	lookup := &fakeLookup{subs: map[string]*model.Submission{
		"email:ada@example.com": {ID: "s1", Data: map[string]any{"city": "London", "old_phone": "123"}},
	}}
	r := &PreviousResolver{Lookup: lookup}
	rc := ResolveContext{FormID: "f", Email: "ada@example.com"}

	v, err := r.Resolve(context.Background(), previousField("city", model.PreviousConfig{MatchBy: model.MatchEmail}), rc)
	require.NoError(t, err)
	assert.Equal(t, "London", v)

	v, err = r.Resolve(context.Background(), previousField("phone", model.PreviousConfig{MatchBy: model.MatchEmail, SourceField: "old_phone"}), rc)
	require.NoError(t, err)
	assert.Equal(t, "123", v)
}

func TestPreviousResolver_EmailFromFormData(t *testing.T) {
	lookup := &fakeLookup{subs: map[string]*model.Submission{
		"email:bob@example.com": {Data: map[string]any{"city": "Paris"}},
	}}
	r := &PreviousResolver{Lookup: lookup}
	v, err := r.Resolve(context.Background(), previousField("city", model.PreviousConfig{}), ResolveContext{
		Current: map[string]any{"email": "bob@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris", v)
}

func TestPreviousResolver_ByIPAndCustom(t *testing.T) {
	lookup := &fakeLookup{subs: map[string]*model.Submission{
		"ip:10.0.0.1": {Data: map[string]any{"team": "red"}},
		"custom:A-42": {Data: map[string]any{"team": "blue"}},
	}}
	r := &PreviousResolver{Lookup: lookup}

	v, err := r.Resolve(context.Background(), previousField("team", model.PreviousConfig{MatchBy: model.MatchIP}), ResolveContext{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "red", v)

	v, err = r.Resolve(context.Background(), previousField("team", model.PreviousConfig{MatchBy: model.MatchCustom, MatchField: "member"}),
		ResolveContext{Current: map[string]any{"member": "A-42"}})
	require.NoError(t, err)
	assert.Equal(t, "blue", v)
}

func TestPreviousResolver_NoMatch(t *testing.T) {
	lookup := &fakeLookup{}
	r := &PreviousResolver{Lookup: lookup}

	_, err := r.Resolve(context.Background(), previousField("x", model.PreviousConfig{MatchBy: model.MatchEmail}), ResolveContext{})
	assert.ErrorIs(t, err, ErrNoValue)
	assert.EqualValues(t, 0, lookup.calls.Load(), "no identity means no lookup")

	_, err = r.Resolve(context.Background(), previousField("x", model.PreviousConfig{MatchBy: model.MatchEmail}), ResolveContext{Email: "nobody@example.com"})
	assert.ErrorIs(t, err, ErrNoValue)

	lookup.err = errors.New("db down")
	_, err = r.Resolve(context.Background(), previousField("x", model.PreviousConfig{MatchBy: model.MatchEmail}), ResolveContext{Email: "a@b.co"})
	assert.EqualError(t, err, "db down")
}

func TestProfileResolver(t *testing.T) {
	provider := ProfileFunc(func(context.Context) (Profile, error) {
		return Profile{Name: "Ada", Email: "ada@example.com", Custom: map[string]any{"dept": "R&D"}}, nil
	})
	r := ProfileResolver{Provider: provider}

	field := func(pf model.ProfileField, key string) model.Field {
		return model.Field{ID: "f", Type: model.FieldText, Prepopulation: &model.Prepopulation{
			Enabled: true,
			Config:  model.ProfileConfig{Field: pf, CustomKey: key},
		}}
	}

	v, err := r.Resolve(context.Background(), field(model.ProfileName, ""), ResolveContext{})
	require.NoError(t, err)
	assert.Equal(t, "Ada", v)

	v, err = r.Resolve(context.Background(), field(model.ProfileCustom, "dept"), ResolveContext{})
	require.NoError(t, err)
	assert.Equal(t, "R&D", v)

	_, err = r.Resolve(context.Background(), field(model.ProfilePhone, ""), ResolveContext{})
	assert.ErrorIs(t, err, ErrNoValue)

	_, err = ProfileResolver{}.Resolve(context.Background(), field(model.ProfileName, ""), ResolveContext{})
	assert.ErrorIs(t, err, ErrNoValue)
}
