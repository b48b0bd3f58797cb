package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"formkit/internal/db"
	"formkit/internal/prepop"
	"formkit/internal/schema"
	"formkit/internal/submission"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quizForm = `{
  "id": "capitals",
  "fields": [
    {"id": "email", "type": "email", "required": true,
     "prepopulation": {"enabled": true, "source": "url", "config": {"urlParam": "email"}}},
    {"id": "fr", "type": "text", "required": true,
     "settings": {"isQuizField": true, "correctAnswer": "Paris", "points": 2}},
    {"id": "why", "type": "textarea", "required": true},
    {"id": "de", "type": "select", "options": ["Berlin", "Bonn"],
     "settings": {"isQuizField": true, "correctAnswer": "Berlin"}}
  ],
  "settings": {"quiz": {"enabled": true}},
  "logic": [
    {"target": "why", "type": "show", "condition": {"field": "fr", "operator": "not_equals", "value": "Paris"}},
    {"target": "de", "type": "set_value", "value": "Berlin", "condition": {"field": "fr", "operator": "equals", "value": "Paris"}}
  ]
}`

// MockEventBus implements EventBus for testing
type MockEventBus struct {
	events []map[string]interface{}
}

func (m *MockEventBus) PublishSubmission(_ context.Context, formID, submissionID string, extra map[string]interface{}) error {
	ev := map[string]interface{}{"form_id": formID, "submission_id": submissionID}
	for k, v := range extra {
		ev[k] = v
	}
	m.events = append(m.events, ev)
	return nil
}

type mockEnqueuer struct {
	forms []string
	err   error
}

func (m *mockEnqueuer) EnqueueQuizStats(_ context.Context, formID string) error {
	m.forms = append(m.forms, formID)
	return m.err
}

func newService(t *testing.T) (*FormService, *MockEventBus, *mockEnqueuer) {
	t.Helper()
	bus := &MockEventBus{}
	enq := &mockEnqueuer{}
	svc := NewFormService(db.NewMemory(nil), schema.NewCompilerWithCache(16, time.Minute), bus, nil)
	svc.SetJobClient(enq)
	_, err := svc.PutForm(context.Background(), "capitals", []byte(quizForm))
	require.NoError(t, err)
	return svc, bus, enq
}

func TestFormService_PutForm(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.PutForm(ctx, "other", []byte(quizForm))
	assert.ErrorIs(t, err, ErrFormIDMismatch)

	_, err = svc.PutForm(ctx, "broken", []byte(`{"id":"broken","fields":[{"id":"a","type":"nope"}]}`))
	assert.ErrorIs(t, err, schema.ErrInvalid)

	_, err = svc.GetForm(ctx, "missing")
	assert.ErrorIs(t, err, ErrFormNotFound)

	fs, err := svc.GetForm(ctx, "capitals")
	require.NoError(t, err)
	assert.Equal(t, 1, fs.StepCount())
}

// richForm uses every key the form contract declares, in the shape the model writes back
const richForm = `{
  "id": "rich",
  "title": "Everything",
  "fields": [
    {"id": "name", "type": "text", "label": "Name", "placeholder": "Ada", "helpText": "Full name",
     "required": true,
     "validation": {"minLength": 2, "maxLength": 40, "pattern": "^[A-Z]", "message": "Capitalised please"},
     "prepopulation": {"enabled": true, "source": "url", "config": {"urlParam": "n", "fallbackValue": "Guest"}},
     "settings": {}},
    {"id": "mood", "type": "slider",
     "settings": {"defaultValue": 5, "min": 0, "max": 10, "step": 1}},
    {"id": "cv", "type": "file", "settings": {"accept": [".pdf", "image/*"], "maxFileMB": 2}},
    {"id": "capital", "type": "radio", "options": ["Paris", "Lyon"],
     "settings": {"isQuizField": true, "correctAnswer": "Paris", "points": 3, "explanation": "Since 987"}}
  ],
  "settings": {
    "multiStep": true,
    "showProgressBar": true,
    "redirectUrl": "https://example.com/thanks",
    "quiz": {"enabled": true, "passingScore": 60, "showResults": true},
    "rateLimit": {"policyId": "rl-1"},
    "duplicatePrevention": {"policyId": "dp-1"},
    "progress": {"enabled": true, "retentionDays": 3}
  },
  "logic": [
    {"id": "l1", "target": "cv", "type": "hide",
     "condition": {"any": [{"field": "name", "operator": "is_empty"}, {"field": "mood", "operator": "less_than", "value": 3}]}},
    {"target": "capital", "type": "set_value", "value": "Paris",
     "condition": {"field": "name", "operator": "equals", "value": "Ada"}}
  ]
}`

func TestFormService_PutGetKeepsDocument(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.PutForm(ctx, "rich", []byte(richForm))
	require.NoError(t, err)
	fs, err := svc.GetForm(ctx, "rich")
	require.NoError(t, err)

	raw, err := json.Marshal(fs)
	require.NoError(t, err)
	var got, want map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	require.NoError(t, json.Unmarshal([]byte(richForm), &want))

	for _, key := range []string{"id", "title", "fields", "settings", "logic"} {
		if diff := cmp.Diff(want[key], got[key]); diff != "" {
			t.Errorf("%s changed across save/load (-want +got):\n%s", key, diff)
		}
	}
}

func TestFormService_PutFormRejectsUndeclaredKeys(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.PutForm(ctx, "f", []byte(`{"id":"f","fields":[{"id":"r","type":"rating","settings":{"starCount":5}}],"settings":{"theme":"dark"}}`))
	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Error(), "starCount")
	assert.Contains(t, serr.Error(), "theme")

	_, err = svc.GetForm(ctx, "f")
	assert.ErrorIs(t, err, ErrFormNotFound, "a rejected document is not stored")
}

func TestFormService_Prefill(t *testing.T) {
	svc, _, _ := newService(t)
	svc.SetCoordinator(prepop.NewCoordinator(nil, prepop.URLResolver{}))

	data, err := svc.Prefill(context.Background(), "capitals", prepop.ResolveContext{
		Query: url.Values{"email": {"ada@example.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", data["email"])
	assert.Equal(t, "", data["fr"])
}

func TestFormService_EvaluateLogic(t *testing.T) {
	svc, _, _ := newService(t)

	out, err := svc.EvaluateLogic(context.Background(), "capitals", map[string]any{"fr": "Paris", "bogus": 1})
	require.NoError(t, err)
	assert.Equal(t, "Berlin", out.Data["de"])
	assert.NotContains(t, out.Data, "bogus")
	assert.False(t, out.Result.State("why").Visible)
}

func TestFormService_Submit(t *testing.T) {
	svc, bus, enq := newService(t)
	ctx := context.Background()

	res, err := svc.Submit(ctx, SubmitInput{FormID: "capitals", IP: "10.0.0.1",
		Data: map[string]any{"email": "ada@example.com", "fr": "Paris"}})
	require.NoError(t, err)
	require.NotNil(t, res.Quiz)
	assert.Equal(t, 3, res.Quiz.Score, "set_value filled de")
	assert.True(t, res.Quiz.Passed)
	assert.Equal(t, "ada@example.com", res.Submission.Email)

	require.Len(t, bus.events, 1)
	assert.Equal(t, res.Submission.ID, bus.events[0]["submission_id"])
	assert.Equal(t, true, bus.events[0]["passed"])
	assert.Equal(t, []string{"capitals"}, enq.forms)

	again, err := svc.Result(ctx, "capitals", res.Submission.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Quiz.Percentage, again.Percentage)

	_, err = svc.Result(ctx, "capitals", "nope")
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestFormService_SubmitValidation(t *testing.T) {
	svc, bus, _ := newService(t)

	_, err := svc.Submit(context.Background(), SubmitInput{FormID: "capitals",
		Data: map[string]any{"email": "not-an-email", "fr": "Lyon"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "email")
	assert.Contains(t, verr.Errors, "why", "visible once fr is wrong")
	assert.Empty(t, bus.events)
}

func TestFormService_SubmitRejectedByGuard(t *testing.T) {
	svc, _, _ := newService(t)
	n := 0
	var gotKey string
	svc.SetGuard(submission.GuardFunc(func(_ context.Context, formID, key string) (submission.Decision, error) {
		gotKey = key
		return submission.Decision{Message: "Already submitted", TimeRemaining: time.Minute, AttemptsRemaining: &n}, nil
	}))

	_, err := svc.Submit(context.Background(), SubmitInput{FormID: "capitals", IP: "10.0.0.1",
		Data: map[string]any{"email": "ada@example.com", "fr": "Paris"}})
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "Already submitted", rej.Decision.Message)
	assert.Equal(t, "ada@example.com", gotKey)

	svc.SetGuard(submission.GuardFunc(func(context.Context, string, string) (submission.Decision, error) {
		return submission.Decision{}, errors.New("policy service down")
	}))
	_, err = svc.Submit(context.Background(), SubmitInput{FormID: "capitals", Data: map[string]any{"fr": "Paris"}})
	assert.ErrorContains(t, err, "policy service down")
}

func TestFormService_ResultNotQuiz(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.PutForm(context.Background(), "plain", []byte(`{"id":"plain","fields":[{"id":"a","type":"text"}]}`))
	require.NoError(t, err)
	_, err = svc.Result(context.Background(), "plain", "x")
	assert.ErrorIs(t, err, ErrNotQuiz)
}
