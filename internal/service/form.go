package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"formkit/internal/db"
	"formkit/internal/jobs"
	"formkit/internal/logic"
	"formkit/internal/model"
	"formkit/internal/prepop"
	"formkit/internal/quiz"
	"formkit/internal/schema"
	"formkit/internal/submission"
	"formkit/internal/validation"

	"go.uber.org/zap"
)

var (
	ErrFormNotFound       = errors.New("service: form not found")
	ErrFormIDMismatch     = errors.New("service: form id does not match the document")
	ErrSubmissionNotFound = errors.New("service: submission not found")
	ErrNotQuiz            = errors.New("service: form is not a quiz")
)

// ValidationError carries the per-field messages of a rejected submission
type ValidationError struct {
	Errors validation.Errors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("service: %d invalid fields", len(e.Errors))
}

// RejectedError is returned when the guard turns a submission away
type RejectedError struct {
	Decision submission.Decision
}

func (e *RejectedError) Error() string {
	return "service: " + submission.DuplicateErrorText
}

// Store is the persistence the form service needs
type Store interface {
	PutForm(ctx context.Context, id string, schema []byte) error
	GetForm(ctx context.Context, id string) ([]byte, error)
	InsertSubmission(ctx context.Context, sub model.Submission) (model.Submission, error)
	GetSubmission(ctx context.Context, formID, id string) (model.Submission, error)
	ListSubmissions(ctx context.Context, formID string) ([]model.Submission, error)
}

type EventBus interface {
	PublishSubmission(ctx context.Context, formID, submissionID string, extra map[string]interface{}) error
}

type FormService struct {
	store      Store
	schemaComp *schema.Compiler
	bus        EventBus
	jobClient  jobs.Enqueuer
	guard      submission.Guard
	coord      *prepop.Coordinator
	log        *zap.Logger
}

func NewFormService(store Store, schemaComp *schema.Compiler, bus EventBus, log *zap.Logger) *FormService {
	if log == nil {
		log = zap.NewNop()
	}
	return &FormService{
		store:      store,
		schemaComp: schemaComp,
		bus:        bus,
		guard:      submission.AllowAll{},
		coord:      prepop.NewCoordinator(log),
		log:        log,
	}
}

// SetJobClient sets the job client for scheduling background jobs
func (s *FormService) SetJobClient(client jobs.Enqueuer) {
	s.jobClient = client
}

// SetGuard installs the rate-limit and duplicate-prevention consult point
func (s *FormService) SetGuard(g submission.Guard) {
	s.guard = g
}

// SetCoordinator sets the prepopulation coordinator used by Prefill
func (s *FormService) SetCoordinator(c *prepop.Coordinator) {
	s.coord = c
}

// PutForm validates and normalizes a form document and stores it under id
func (s *FormService) PutForm(ctx context.Context, id string, raw []byte) (*model.FormSchema, error) {
	fs, err := s.schemaComp.Parse(ctx, raw)
	if err != nil {
		return nil, err
	}
	if fs.ID != id {
		return nil, fmt.Errorf("%w: %q", ErrFormIDMismatch, fs.ID)
	}
	normalized, err := json.Marshal(fs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}
	if err := s.store.PutForm(ctx, id, normalized); err != nil {
		return nil, fmt.Errorf("failed to store form: %w", err)
	}
	s.log.Info("Form stored", zap.String("form_id", id), zap.Int("fields", len(fs.Fields)), zap.Int("steps", fs.StepCount()))
	return fs, nil
}

func (s *FormService) GetForm(ctx context.Context, id string) (*model.FormSchema, error) {
	raw, err := s.store.GetForm(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrFormNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load form: %w", err)
	}
	return s.schemaComp.Parse(ctx, raw)
}

// Prefill resolves the initial values of a form: defaults overlaid with whatever the
// prepopulation sources produce for this respondent
func (s *FormService) Prefill(ctx context.Context, formID string, rc prepop.ResolveContext) (map[string]any, error) {
	fs, err := s.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	data := model.Defaults(fs.Fields)
	rc.FormID = formID
	rc.Current = model.Clone(data)
	for id, v := range s.coord.ResolveAll(ctx, fs.Fields, rc) {
		data[id] = v
	}
	return data, nil
}

// LogicResult is the evaluated logic of a form together with the data it settled on
type LogicResult struct {
	Data   map[string]any `json:"data"`
	Result logic.Result   `json:"result"`
}

// EvaluateLogic runs the form's logic over posted data, applying set_value overrides
func (s *FormService) EvaluateLogic(ctx context.Context, formID string, data map[string]any) (*LogicResult, error) {
	fs, err := s.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	full, res := s.settle(fs, data)
	return &LogicResult{Data: full, Result: res}, nil
}

// settle fills missing fields with defaults, drops unknown keys and applies the logic
func (s *FormService) settle(fs *model.FormSchema, data map[string]any) (map[string]any, logic.Result) {
	full := model.Defaults(fs.Fields)
	for id, v := range data {
		if _, ok := full[id]; ok {
			full[id] = v
		}
	}
	res, settled := logic.Settle(fs.Logic, full, func(id string, v any) bool {
		if _, ok := full[id]; !ok {
			return false
		}
		full[id] = v
		return true
	})
	if !settled {
		s.log.Warn("Logic did not settle", zap.String("form_id", fs.ID), zap.Int("passes", logic.MaxPasses))
	}
	return full, res
}

type SubmitInput struct {
	FormID string
	Data   map[string]any
	Email  string
	IP     string
}

type SubmitResult struct {
	Submission model.Submission
	Quiz       *quiz.Result
}

// Submit consults the guard, validates every active field, stores the submission and
// announces it
func (s *FormService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	fs, err := s.GetForm(ctx, in.FormID)
	if err != nil {
		return nil, err
	}

	data, res := s.settle(fs, in.Data)
	email := in.Email
	if email == "" {
		if v, ok := data["email"].(string); ok {
			email = v
		}
	}

	key := in.IP
	if email != "" {
		key = email
	}
	decision, err := s.guard.Check(ctx, in.FormID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to consult guard: %w", err)
	}
	if !decision.Allowed {
		s.log.Info("Submission rejected by guard", zap.String("form_id", in.FormID), zap.String("message", decision.Message))
		return nil, &RejectedError{Decision: decision}
	}

	if errs := validation.Fields(fs.Fields, data, res.Active); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	sub, err := s.store.InsertSubmission(ctx, model.Submission{FormID: in.FormID, Data: data, Email: email, IP: in.IP})
	if err != nil {
		return nil, fmt.Errorf("failed to store submission: %w", err)
	}
	out := &SubmitResult{Submission: sub}

	extra := map[string]interface{}{}
	if fs.QuizEnabled() {
		r := quiz.Score(fs, data)
		out.Quiz = &r
		extra["score"] = r.Score
		extra["percentage"] = r.Percentage
		extra["passed"] = r.Passed
	}

	if s.bus != nil {
		if err := s.bus.PublishSubmission(ctx, in.FormID, sub.ID, extra); err != nil {
			s.log.Warn("Failed to publish submission", zap.String("form_id", in.FormID), zap.String("submission_id", sub.ID), zap.Error(err))
		}
	}
	if s.jobClient != nil && fs.QuizEnabled() {
		if err := s.jobClient.EnqueueQuizStats(ctx, in.FormID); err != nil {
			s.log.Warn("Failed to enqueue quiz stats", zap.String("form_id", in.FormID), zap.Error(err))
		}
	}

	s.log.Info("Submission accepted", zap.String("form_id", in.FormID), zap.String("submission_id", sub.ID))
	return out, nil
}

// Result recomputes the quiz result of a stored submission
func (s *FormService) Result(ctx context.Context, formID, submissionID string) (*quiz.Result, error) {
	fs, err := s.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	if !fs.QuizEnabled() {
		return nil, ErrNotQuiz
	}
	sub, err := s.store.GetSubmission(ctx, formID, submissionID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	r := quiz.Score(fs, sub.Data)
	return &r, nil
}
