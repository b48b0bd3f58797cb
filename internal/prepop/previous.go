package prepop

import (
	"context"
	"errors"
	"fmt"

	"formkit/internal/model"

	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned by lookups when no submission matches
var ErrNotFound = errors.New("prepop: no matching submission")

// Match selects the respondent's earlier submissions
type Match struct {
	By    model.MatchCriterion
	Field string // data key compared for custom matches
	Value string
}

// SubmissionLookup finds the most recent submission of a form that matches
type SubmissionLookup interface {
	Latest(ctx context.Context, formID string, m Match) (*model.Submission, error)
}

// PreviousResolver lifts values forward from the respondent's latest submission
type PreviousResolver struct {
	Lookup SubmissionLookup
	group  singleflight.Group
}

func (*PreviousResolver) Source() model.Source { return model.SourcePrevious }

func (r *PreviousResolver) Resolve(ctx context.Context, f model.Field, rc ResolveContext) (any, error) {
	cfg, ok := f.Prepopulation.Config.(model.PreviousConfig)
	if !ok {
		return nil, fmt.Errorf("prepop: field %q: %w", f.ID, model.ErrConfigMismatch)
	}
	if r.Lookup == nil {
		return nil, ErrNoValue
	}

	m, ok := matchFor(cfg, rc)
	if !ok {
		return nil, ErrNoValue
	}

	// sibling fields usually share a match, so collapse their lookups
	key := rc.FormID + "\x00" + string(m.By) + "\x00" + m.Field + "\x00" + m.Value
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.Lookup.Latest(ctx, rc.FormID, m)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoValue
		}
		return nil, err
	}
	sub, _ := v.(*model.Submission)
	if sub == nil {
		return nil, ErrNoValue
	}

	src := cfg.SourceField
	if src == "" {
		src = f.ID
	}
	val, ok := sub.Data[src]
	if !ok || model.IsEmpty(val) {
		return nil, ErrNoValue
	}
	return val, nil
}

func matchFor(cfg model.PreviousConfig, rc ResolveContext) (Match, bool) {
	m := Match{By: cfg.MatchBy}
	switch cfg.MatchBy {
	case model.MatchIP:
		m.Value = rc.IP
	case model.MatchCustom:
		if cfg.MatchField == "" {
			return m, false
		}
		m.Field = cfg.MatchField
		m.Value, _ = rc.lookup(cfg.MatchField)
	default:
		m.By = model.MatchEmail
		m.Value = rc.Email
		if m.Value == "" {
			m.Value, _ = rc.lookup("email")
		}
	}
	return m, m.Value != ""
}
