package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"formkit/internal/logic"
	"formkit/internal/quiz"
	"formkit/internal/validation"
)

// Status is the phase the machine is in
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusStepping     Status = "stepping"
	StatusValidating   Status = "validating"
	StatusSubmitting   Status = "submitting"
	StatusSubmitted    Status = "submitted"
)

// Outcome is the result of Advance and Submit
type Outcome string

const (
	// OutcomeInvalid means validation failed; errors are in the state
	OutcomeInvalid   Outcome = "invalid"
	OutcomeAdvanced  Outcome = "advanced"
	OutcomeSubmitted Outcome = "submitted"
	// OutcomeDuplicate means the submission was rejected as a duplicate; see State.Duplicate
	OutcomeDuplicate Outcome = "duplicate-rejected"
	// OutcomeFailed means the submission failed and may be retried; see State.SubmitError
	OutcomeFailed Outcome = "submit-failed"
)

var (
	ErrUnknownField       = errors.New("runtime: unknown field")
	ErrSubmitted          = errors.New("runtime: form already submitted")
	ErrNotReady           = errors.New("runtime: form is not ready")
	ErrAlreadyInitialized = errors.New("runtime: already initialized")
)

// Submitter sends a completed form to the submission API
type Submitter interface {
	Submit(ctx context.Context, formID string, data map[string]any) (id string, err error)
}

// SubmitterFunc adapts a function to Submitter
type SubmitterFunc func(ctx context.Context, formID string, data map[string]any) (string, error)

func (f SubmitterFunc) Submit(ctx context.Context, formID string, data map[string]any) (string, error) {
	return f(ctx, formID, data)
}

// DuplicateError is the distinguished rejection of a submission that was already made
type DuplicateError struct {
	Message           string
	TimeRemaining     time.Duration
	AttemptsRemaining *int
}

func (e *DuplicateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "duplicate submission detected"
}

// Cooldown renders the retry hint shown next to the rejection
func (e *DuplicateError) Cooldown() string {
	switch {
	case e.TimeRemaining > 0 && e.AttemptsRemaining != nil:
		return fmt.Sprintf("try again in %s (%d attempts left)", e.TimeRemaining.Round(time.Second), *e.AttemptsRemaining)
	case e.TimeRemaining > 0:
		return fmt.Sprintf("try again in %s", e.TimeRemaining.Round(time.Second))
	case e.AttemptsRemaining != nil:
		return fmt.Sprintf("%d attempts left", *e.AttemptsRemaining)
	}
	return ""
}

// State is a copy of the machine's data at one point in time
type State struct {
	Status       Status                      `json:"status"`
	CurrentStep  int                         `json:"currentStep"`
	StepCount    int                         `json:"stepCount"`
	FormData     map[string]any              `json:"formData"`
	Errors       validation.Errors           `json:"errors"`
	Visibility   map[string]logic.FieldState `json:"visibility"`
	Messages     []string                    `json:"messages,omitempty"`
	Duplicate    *DuplicateError             `json:"-"`
	SubmitError  string                      `json:"submitError,omitempty"`
	SubmissionID string                      `json:"submissionId,omitempty"`
	RedirectURL  string                      `json:"redirectUrl,omitempty"`
	Quiz         *quiz.Result                `json:"quiz,omitempty"`
}

// FieldState returns visibility and enablement of a field; untargeted fields are visible
func (s State) FieldState(id string) logic.FieldState {
	if st, ok := s.Visibility[id]; ok {
		return st
	}
	return logic.FieldState{Visible: true}
}

// IsLastStep reports whether advancing would submit
func (s State) IsLastStep() bool {
	return s.CurrentStep >= s.StepCount-1
}
