package submission

import (
	"context"
	"time"
)

// Decision is what the rate limiter / duplicate-prevention service answers
type Decision struct {
	Allowed           bool
	Message           string
	TimeRemaining     time.Duration
	AttemptsRemaining *int
}

// Guard is consulted before a submission is stored. Enforcement lives outside formkit;
// key identifies the respondent (IP, email or a client fingerprint).
type Guard interface {
	Check(ctx context.Context, formID, key string) (Decision, error)
}

// GuardFunc adapts a function to Guard
type GuardFunc func(ctx context.Context, formID, key string) (Decision, error)

func (f GuardFunc) Check(ctx context.Context, formID, key string) (Decision, error) {
	return f(ctx, formID, key)
}

// AllowAll accepts every submission
type AllowAll struct{}

func (AllowAll) Check(context.Context, string, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
