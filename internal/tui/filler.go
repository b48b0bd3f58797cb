package tui

import (
	"context"
	"fmt"

	"formkit/internal/model"
	"formkit/internal/runtime"

	"go.uber.org/zap"
)

const (
	choiceNext   = "Continue"
	choiceSubmit = "Submit"
	choiceBack   = "Back"
)

// Filler walks a user through an initialized machine step by step until the form is
// submitted
type Filler struct {
	Driver PromptDriver
	Log    *zap.Logger
}

func (f *Filler) logger() *zap.Logger {
	if f.Log == nil {
		return zap.NewNop()
	}
	return f.Log
}

// Run prompts until the machine reaches submitted. It returns ErrGaveUp when the user
// stops retrying a rejected submission and ErrAborted on Ctrl+C.
func (f *Filler) Run(ctx context.Context, m *runtime.Machine) (runtime.State, error) {
	fs := m.Schema()
	for {
		st := m.Snapshot()
		if st.Status == runtime.StatusSubmitted {
			return st, f.summary(ctx, fs, st)
		}

		if err := f.header(ctx, fs, st); err != nil {
			return st, err
		}
		if err := f.fillStep(ctx, m, st.CurrentStep); err != nil {
			return m.Snapshot(), err
		}

		st = m.Snapshot()
		if st.CurrentStep > 0 {
			next := choiceNext
			if st.IsLastStep() {
				next = choiceSubmit
			}
			options := []string{next, choiceBack}
			idx, err := f.Driver.Select(ctx, SelectConfig{Message: "What next?", Options: options})
			if err != nil {
				return st, err
			}
			if idx >= 0 && options[idx] == choiceBack {
				if err := m.Retreat(); err != nil {
					return st, err
				}
				continue
			}
		}

		out, err := m.Advance(ctx)
		if err != nil {
			return m.Snapshot(), err
		}
		for out == runtime.OutcomeDuplicate || out == runtime.OutcomeFailed {
			st = m.Snapshot()
			if err := f.Driver.Info(ctx, rejection(st)); err != nil {
				return st, err
			}
			again, err := f.Driver.Confirm(ctx, ConfirmConfig{Message: "Try submitting again?", Default: true})
			if err != nil {
				return st, err
			}
			if !again {
				return st, ErrGaveUp
			}
			if out, err = m.Submit(ctx); err != nil {
				return m.Snapshot(), err
			}
		}
		if out == runtime.OutcomeInvalid {
			f.logger().Debug("Step has errors", zap.Int("step", m.Snapshot().CurrentStep))
		}
	}
}

func (f *Filler) header(ctx context.Context, fs *model.FormSchema, st runtime.State) error {
	block := fs.Blocks[st.CurrentStep]
	title := block.Title
	if title == "" {
		title = fs.Title
	}
	lines := []string{}
	if st.StepCount > 1 {
		lines = append(lines, fmt.Sprintf("Step %d of %d: %s", st.CurrentStep+1, st.StepCount, title))
	} else if title != "" {
		lines = append(lines, title)
	}
	if block.Description != "" {
		lines = append(lines, block.Description)
	}
	for _, msg := range st.Messages {
		lines = append(lines, "! "+msg)
	}
	for _, l := range lines {
		if err := f.Driver.Info(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

// fillStep prompts for each visible field of the step. The snapshot is refreshed per field
// because answers can change the visibility of later fields.
func (f *Filler) fillStep(ctx context.Context, m *runtime.Machine, step int) error {
	for _, fld := range m.Schema().StepFields(step) {
		if fld.Type == model.FieldHidden {
			continue
		}
		st := m.Snapshot()
		state := st.FieldState(fld.ID)
		if !state.Visible {
			continue
		}
		if state.Disabled {
			if err := f.Driver.Info(ctx, fmt.Sprintf("%s: %s (locked)", labelOf(fld), model.Stringify(st.FormData[fld.ID]))); err != nil {
				return err
			}
			continue
		}
		if msg, ok := st.Errors[fld.ID]; ok {
			if err := f.Driver.Info(ctx, "error: "+msg); err != nil {
				return err
			}
		}

		v, err := f.ask(ctx, fld, st.FormData[fld.ID])
		if err != nil {
			return err
		}
		if err := m.SetField(fld.ID, v); err != nil {
			return err
		}
	}
	return nil
}

func (f *Filler) summary(ctx context.Context, fs *model.FormSchema, st runtime.State) error {
	lines := []string{fmt.Sprintf("Submitted (id %s)", st.SubmissionID)}
	if q := st.Quiz; q != nil {
		verdict := "failed"
		if q.Passed {
			verdict = "passed"
		}
		lines = append(lines, fmt.Sprintf("Score: %d/%d (%d%%), %s", q.Score, q.TotalPossible, q.Percentage, verdict))
		if fs.Settings.Quiz != nil && fs.Settings.Quiz.ShowResults {
			for _, fr := range q.FieldResults {
				mark := "wrong"
				if fr.IsCorrect {
					mark = "correct"
				}
				line := fmt.Sprintf("  %s: %s", labelOr(fr.Label, fr.FieldID), mark)
				if fr.Explanation != "" {
					line += " - " + fr.Explanation
				}
				lines = append(lines, line)
			}
		}
	}
	if st.RedirectURL != "" {
		lines = append(lines, "Continue at "+st.RedirectURL)
	}
	for _, l := range lines {
		if err := f.Driver.Info(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func rejection(st runtime.State) string {
	if d := st.Duplicate; d != nil {
		msg := "Rejected: " + d.Error()
		if cd := d.Cooldown(); cd != "" {
			msg += ", " + cd
		}
		return msg
	}
	return "Submission failed: " + st.SubmitError
}

func labelOf(f model.Field) string {
	return labelOr(f.Label, f.ID)
}

func labelOr(label, id string) string {
	if label != "" {
		return label
	}
	return id
}
