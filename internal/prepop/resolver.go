// Package prepop resolves the dynamic initial values of form fields from URL parameters,
// external APIs, the signed-in user's profile and previous submissions.
package prepop

import (
	"context"
	"errors"
	"net/url"

	"formkit/internal/model"
)

// ErrNoValue means the source had nothing for the field; the coordinator applies the fallback
var ErrNoValue = errors.New("prepop: no value")

// ResolveContext is what resolvers know about the current render
type ResolveContext struct {
	FormID string
	// Query holds the parameters of the page the form is rendered on
	Query url.Values
	// Current is the form data at the time resolution starts
	Current map[string]any
	// Email and IP identify the respondent for previous-submission matching
	Email string
	IP    string
}

// lookup finds name in the current form data first, then in the query string
func (rc ResolveContext) lookup(name string) (string, bool) {
	if v, ok := rc.Current[name]; ok && !model.IsEmpty(v) {
		return model.Stringify(v), true
	}
	if rc.Query != nil && rc.Query.Has(name) {
		return rc.Query.Get(name), true
	}
	return "", false
}

// Resolver produces the value of one field from one source
type Resolver interface {
	Source() model.Source
	Resolve(ctx context.Context, f model.Field, rc ResolveContext) (any, error)
}
