package prepop

import (
	"context"
	"fmt"

	"formkit/internal/model"
)

// Profile is what the host knows about the signed-in user
type Profile struct {
	Name    string         `json:"name,omitempty"`
	Email   string         `json:"email,omitempty"`
	Phone   string         `json:"phone,omitempty"`
	Address string         `json:"address,omitempty"`
	Custom  map[string]any `json:"custom,omitempty"`
}

// ProfileProvider returns the current user's profile. Identity is resolved by the host.
type ProfileProvider interface {
	CurrentProfile(ctx context.Context) (Profile, error)
}

// ProfileFunc adapts a function to ProfileProvider
type ProfileFunc func(ctx context.Context) (Profile, error)

func (f ProfileFunc) CurrentProfile(ctx context.Context) (Profile, error) { return f(ctx) }

// ProfileResolver maps a logical profile attribute onto a field
type ProfileResolver struct {
	Provider ProfileProvider
}

func (ProfileResolver) Source() model.Source { return model.SourceProfile }

func (r ProfileResolver) Resolve(ctx context.Context, f model.Field, _ ResolveContext) (any, error) {
	cfg, ok := f.Prepopulation.Config.(model.ProfileConfig)
	if !ok {
		return nil, fmt.Errorf("prepop: field %q: %w", f.ID, model.ErrConfigMismatch)
	}
	if r.Provider == nil {
		return nil, ErrNoValue
	}
	p, err := r.Provider.CurrentProfile(ctx)
	if err != nil {
		return nil, err
	}

	var v any
	switch cfg.Field {
	case model.ProfileName:
		v = p.Name
	case model.ProfileEmail:
		v = p.Email
	case model.ProfilePhone:
		v = p.Phone
	case model.ProfileAddress:
		v = p.Address
	case model.ProfileCustom:
		key := cfg.CustomKey
		if key == "" {
			key = f.ID
		}
		v = p.Custom[key]
	default:
		return nil, fmt.Errorf("prepop: unknown profile field %q", cfg.Field)
	}
	if model.IsEmpty(v) {
		return nil, ErrNoValue
	}
	return v, nil
}
