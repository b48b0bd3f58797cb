package schema

import (
	"strings"

	js "github.com/santhosh-tekuri/jsonschema/v5"
)

// Error lists every structural problem found in a form document
type Error struct {
	Causes []string
}

func (e *Error) Error() string {
	return ErrInvalid.Error() + ": " + strings.Join(e.Causes, "; ")
}

func (e *Error) Unwrap() error { return ErrInvalid }

func leafMessages(verr *js.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := verr.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + verr.Message}
	}
	var out []string
	for _, c := range verr.Causes {
		out = append(out, leafMessages(c)...)
	}
	return out
}
