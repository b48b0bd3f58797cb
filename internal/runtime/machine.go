// Package runtime drives one respondent through a form: seeding initial values, applying
// conditional logic on every change, gating step transitions on validation and submitting.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"formkit/internal/logic"
	"formkit/internal/model"
	"formkit/internal/prepop"
	"formkit/internal/progress"
	"formkit/internal/quiz"
	"formkit/internal/validation"

	"go.uber.org/zap"
)

type origin int

const (
	originDefault origin = iota
	originPrepop
	originProgress
	originLogic
	originUser
)

// Config wires the machine to its collaborators. Coordinator and Progress are optional.
type Config struct {
	Schema      *model.FormSchema
	Submitter   Submitter
	Coordinator *prepop.Coordinator
	Progress    *progress.Store
	Log         *zap.Logger
}

// Machine is the state machine of one form instance. It is safe for concurrent use;
// seed results arrive on their own goroutines.
type Machine struct {
	schema    *model.FormSchema
	fields    map[string]model.Field
	submitter Submitter
	coord     *prepop.Coordinator
	store     *progress.Store
	log       *zap.Logger

	mu           sync.Mutex
	seeds        sync.WaitGroup
	status       Status
	step         int
	data         map[string]any
	origins      map[string]origin
	errs         validation.Errors
	eval         logic.Result
	duplicate    *DuplicateError
	submitErr    string
	submissionID string
	quizResult   *quiz.Result
	cleared      bool
}

// New validates the schema and returns a machine in the initializing state
func New(cfg Config) (*Machine, error) {
	if cfg.Schema == nil {
		return nil, errors.New("runtime: schema is required")
	}
	if cfg.Submitter == nil {
		return nil, errors.New("runtime: submitter is required")
	}
	if err := cfg.Schema.Normalize(); err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	fields := make(map[string]model.Field, len(cfg.Schema.Fields))
	for _, f := range cfg.Schema.Fields {
		fields[f.ID] = f
	}
	return &Machine{
		schema:    cfg.Schema,
		fields:    fields,
		submitter: cfg.Submitter,
		coord:     cfg.Coordinator,
		store:     cfg.Progress,
		log:       log.With(zap.String("form_id", cfg.Schema.ID)),
		status:    StatusInitializing,
		origins:   make(map[string]origin, len(fields)),
		errs:      validation.Errors{},
	}, nil
}

// Initialize seeds defaults and becomes ready at once. Saved progress and prepopulation are
// then loaded in the background; Wait blocks until both are done.
func (m *Machine) Initialize(ctx context.Context, rc prepop.ResolveContext) error {
	m.mu.Lock()
	if m.status != StatusInitializing {
		m.mu.Unlock()
		return ErrAlreadyInitialized
	}
	m.data = model.Defaults(m.schema.Fields)
	m.evaluateLocked()
	m.status = StatusReady
	if rc.FormID == "" {
		rc.FormID = m.schema.ID
	}
	rc.Current = model.Clone(m.data)
	m.mu.Unlock()

	if m.store != nil {
		m.seeds.Add(1)
		go func() {
			defer m.seeds.Done()
			m.applyProgress(m.store.Load(ctx))
		}()
	}
	if m.coord != nil {
		m.seeds.Add(1)
		go func() {
			defer m.seeds.Done()
			m.coord.Stream(ctx, m.schema.Fields, rc, m.applyPrepopulated)
		}()
	}
	return nil
}

// Wait blocks until every seed source has reported
func (m *Machine) Wait() {
	m.seeds.Wait()
}

// applyProgress lands saved values on every field the user has not touched.
// Saved progress outranks prepopulated values whatever order they arrive in.
func (m *Machine) applyProgress(rec *progress.Record) {
	if rec == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusSubmitted {
		return
	}

	applied := 0
	for id, v := range rec.FormData {
		f, ok := m.fields[id]
		if !ok || model.IsDefault(f, v) {
			continue
		}
		if m.origins[id] == originUser {
			continue
		}
		m.data[id] = v
		m.origins[id] = originProgress
		applied++
	}
	if m.step == 0 && !m.anyTouchedLocked() {
		m.step = clamp(rec.CurrentStep, 0, m.schema.StepCount()-1)
	}
	m.evaluateLocked()
	m.log.Debug("Progress restored", zap.Int("fields", applied), zap.Int("step", m.step))
}

func (m *Machine) applyPrepopulated(b prepop.Batch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusSubmitted {
		return
	}

	for id, v := range b.Values {
		f, ok := m.fields[id]
		if !ok {
			continue
		}
		switch m.origins[id] {
		case originUser, originProgress:
			continue
		}
		if !prepop.CanApply(f, m.data[id]) {
			continue
		}
		m.data[id] = v
		m.origins[id] = originPrepop
	}
	m.evaluateLocked()
}

// SetField assigns a value typed by the user. Once set, no seed source may replace it.
// Edits are refused with ErrNotReady while a submission is in flight, so the submitted
// state always shows the data that was sent.
func (m *Machine) SetField(id string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.readyLocked(); err != nil {
		return err
	}
	if _, ok := m.fields[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, id)
	}

	m.data[id] = value
	m.origins[id] = originUser
	delete(m.errs, id)
	m.evaluateLocked()
	m.saveLocked()
	return nil
}

// Advance validates the visible and enabled fields of the current step, then moves to the
// next step, or submits when the current step is the last.
func (m *Machine) Advance(ctx context.Context) (Outcome, error) {
	m.mu.Lock()
	if err := m.readyLocked(); err != nil {
		m.mu.Unlock()
		return "", err
	}

	m.status = StatusValidating
	stepFields := m.schema.StepFields(m.step)
	errs := validation.Fields(stepFields, m.data, m.eval.Active)
	for _, f := range stepFields {
		delete(m.errs, f.ID)
	}
	if len(errs) > 0 {
		for id, msg := range errs {
			m.errs[id] = msg
		}
		m.status = StatusReady
		m.mu.Unlock()
		return OutcomeInvalid, nil
	}

	if m.step < m.schema.StepCount()-1 {
		m.status = StatusStepping
		m.step++
		m.status = StatusReady
		m.saveLocked()
		m.mu.Unlock()
		return OutcomeAdvanced, nil
	}
	m.status = StatusReady
	m.mu.Unlock()
	return m.Submit(ctx)
}

// Retreat goes back one step without validating
func (m *Machine) Retreat() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readyLocked(); err != nil {
		return err
	}
	if m.step > 0 {
		m.step--
		m.saveLocked()
	}
	return nil
}

// Submit re-validates every visible field on every step, since conditional skips can leave
// steps unvisited, and sends the data. Duplicates and failures leave the form ready for
// another attempt with its data untouched.
func (m *Machine) Submit(ctx context.Context) (Outcome, error) {
	m.mu.Lock()
	if err := m.readyLocked(); err != nil {
		m.mu.Unlock()
		return "", err
	}

	m.status = StatusValidating
	errs := validation.Fields(m.schema.Fields, m.data, m.eval.Active)
	if len(errs) > 0 {
		m.errs = errs
		m.step = m.firstStepWithError(errs)
		m.status = StatusReady
		m.mu.Unlock()
		return OutcomeInvalid, nil
	}

	m.status = StatusSubmitting
	m.errs = validation.Errors{}
	m.duplicate = nil
	m.submitErr = ""
	payload := model.Clone(m.data)
	m.mu.Unlock()

	id, err := m.submitter.Submit(ctx, m.schema.ID, payload)

	m.mu.Lock()
	if err != nil {
		m.status = StatusReady
		var dup *DuplicateError
		if errors.As(err, &dup) {
			m.duplicate = dup
			m.mu.Unlock()
			m.log.Info("Submission rejected as duplicate", zap.String("message", dup.Message))
			return OutcomeDuplicate, nil
		}
		m.submitErr = err.Error()
		m.mu.Unlock()
		m.log.Warn("Submission failed", zap.Error(err))
		return OutcomeFailed, nil
	}

	m.status = StatusSubmitted
	m.submissionID = id
	if m.schema.QuizEnabled() {
		res := quiz.Score(m.schema, payload)
		m.quizResult = &res
	}
	clearProgress := !m.cleared && m.store != nil
	m.cleared = true
	m.mu.Unlock()

	if clearProgress {
		m.store.Clear(ctx)
	}
	m.log.Info("Form submitted", zap.String("submission_id", id))
	return OutcomeSubmitted, nil
}

// Snapshot copies the current state
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	errs := make(validation.Errors, len(m.errs))
	for k, v := range m.errs {
		errs[k] = v
	}
	vis := make(map[string]logic.FieldState, len(m.eval.Visibility))
	for k, v := range m.eval.Visibility {
		vis[k] = v
	}
	st := State{
		Status:       m.status,
		CurrentStep:  m.step,
		StepCount:    m.schema.StepCount(),
		FormData:     model.Clone(m.data),
		Errors:       errs,
		Visibility:   vis,
		Messages:     append([]string(nil), m.eval.Messages...),
		Duplicate:    m.duplicate,
		SubmitError:  m.submitErr,
		SubmissionID: m.submissionID,
		Quiz:         m.quizResult,
	}
	if m.status == StatusSubmitted {
		st.RedirectURL = m.schema.Settings.RedirectURL
	}
	return st
}

// Schema returns the normalized schema the machine runs
func (m *Machine) Schema() *model.FormSchema {
	return m.schema
}

func (m *Machine) readyLocked() error {
	switch m.status {
	case StatusSubmitted:
		return ErrSubmitted
	case StatusReady:
		return nil
	}
	return ErrNotReady
}

// evaluateLocked runs the logic and applies set_value overrides until the data settles
func (m *Machine) evaluateLocked() {
	eval, settled := logic.Settle(m.schema.Logic, m.data, func(id string, v any) bool {
		if _, ok := m.fields[id]; !ok {
			return false
		}
		m.data[id] = v
		if m.origins[id] != originUser {
			m.origins[id] = originLogic
		}
		return true
	})
	m.eval = eval
	if !settled {
		m.log.Warn("Logic did not settle", zap.Int("passes", logic.MaxPasses))
	}
}

func (m *Machine) saveLocked() {
	if m.store == nil || !m.schema.ProgressEnabled() {
		return
	}
	m.store.Save(m.data, m.step)
}

func (m *Machine) anyTouchedLocked() bool {
	for _, o := range m.origins {
		if o == originUser {
			return true
		}
	}
	return false
}

func (m *Machine) firstStepWithError(errs validation.Errors) int {
	first := m.step
	found := false
	for id := range errs {
		if s := m.schema.StepOf(id); s >= 0 && (!found || s < first) {
			first, found = s, true
		}
	}
	return first
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
