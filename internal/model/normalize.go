package model

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyFieldID     = errors.New("model: field id is empty")
	ErrDuplicateFieldID = errors.New("model: duplicate field id")
	ErrUnknownFieldType = errors.New("model: unknown field type")
)

// Normalize makes the flat field list and the blocks agree.
// Fields referenced only by a block are appended to the flat list, block entries are
// replaced by the canonical flat definition, and a schema without blocks gets a single
// block holding every field.
func (s *FormSchema) Normalize() error {
	seen := make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		if err := checkField(f); err != nil {
			return err
		}
		if _, dup := seen[f.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateFieldID, f.ID)
		}
		seen[f.ID] = i
	}

	for bi := range s.Blocks {
		inBlock := make(map[string]bool, len(s.Blocks[bi].Fields))
		for fi, f := range s.Blocks[bi].Fields {
			if err := checkField(f); err != nil {
				return fmt.Errorf("block %q: %w", s.Blocks[bi].ID, err)
			}
			if inBlock[f.ID] {
				return fmt.Errorf("%w: %q in block %q", ErrDuplicateFieldID, f.ID, s.Blocks[bi].ID)
			}
			inBlock[f.ID] = true

			idx, ok := seen[f.ID]
			if !ok {
				s.Fields = append(s.Fields, f)
				idx = len(s.Fields) - 1
				seen[f.ID] = idx
			}
			s.Blocks[bi].Fields[fi] = s.Fields[idx]
		}
	}

	if len(s.Blocks) == 0 {
		fields := make([]Field, len(s.Fields))
		copy(fields, s.Fields)
		s.Blocks = []Block{{ID: "step-1", Title: s.Title, Fields: fields}}
	}
	return nil
}

func checkField(f Field) error {
	if f.ID == "" {
		return ErrEmptyFieldID
	}
	if !f.Type.Valid() {
		return fmt.Errorf("%w: %q on field %q", ErrUnknownFieldType, f.Type, f.ID)
	}
	return nil
}

// StepCount is the number of steps the form renders
func (s *FormSchema) StepCount() int {
	return len(s.Blocks)
}

// StepFields returns the fields of step i, or nil when i is out of range
func (s *FormSchema) StepFields(i int) []Field {
	if i < 0 || i >= len(s.Blocks) {
		return nil
	}
	return s.Blocks[i].Fields
}

// FieldByID looks up a field in the flat list
func (s *FormSchema) FieldByID(id string) (Field, bool) {
	for _, f := range s.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// StepOf returns the index of the step holding the field, or -1
func (s *FormSchema) StepOf(id string) int {
	for i, b := range s.Blocks {
		for _, f := range b.Fields {
			if f.ID == id {
				return i
			}
		}
	}
	return -1
}

// QuizEnabled reports whether submissions of this form are scored
func (s *FormSchema) QuizEnabled() bool {
	return s.Settings.Quiz != nil && s.Settings.Quiz.Enabled
}

// ProgressEnabled reports whether partial progress should be persisted.
// Progress is on unless the form switches it off explicitly.
func (s *FormSchema) ProgressEnabled() bool {
	return s.Settings.Progress == nil || s.Settings.Progress.Enabled
}
