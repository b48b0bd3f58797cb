package db

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"formkit/internal/model"
	"formkit/internal/prepop"

	"github.com/oklog/ulid/v2"
)

// Memory keeps forms and submissions in process. It backs the API when no database is
// configured and stands in for Postgres in tests.
type Memory struct {
	mu          sync.RWMutex
	now         func() time.Time
	forms       map[string][]byte
	submissions map[string][]model.Submission // form id -> oldest first
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:         now,
		forms:       make(map[string][]byte),
		submissions: make(map[string][]model.Submission),
	}
}

func (m *Memory) PutForm(_ context.Context, id string, schema []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forms[id] = append([]byte(nil), schema...)
	return nil
}

func (m *Memory) GetForm(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.forms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (m *Memory) InsertSubmission(_ context.Context, sub model.Submission) (model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.forms[sub.FormID]; !ok {
		return model.Submission{}, fmt.Errorf("db: form %q: %w", sub.FormID, ErrNotFound)
	}
	now := m.now()
	sub.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	sub.Email = strings.ToLower(sub.Email)
	sub.Data = model.Clone(sub.Data)
	if sub.Data == nil {
		sub.Data = map[string]any{}
	}
	sub.CreatedAt = now.UTC().Format(time.RFC3339Nano)
	m.submissions[sub.FormID] = append(m.submissions[sub.FormID], sub)
	return sub, nil
}

func (m *Memory) GetSubmission(_ context.Context, formID, id string) (model.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.submissions[formID] {
		if s.ID == id {
			return s, nil
		}
	}
	return model.Submission{}, ErrNotFound
}

func (m *Memory) ListSubmissions(_ context.Context, formID string) ([]model.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Submission(nil), m.submissions[formID]...), nil
}

var _ prepop.SubmissionLookup = (*Memory)(nil)

func (m *Memory) Latest(_ context.Context, formID string, match prepop.Match) (*model.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subs := m.submissions[formID]
	for i := len(subs) - 1; i >= 0; i-- {
		s := subs[i]
		var hit bool
		switch match.By {
		case model.MatchEmail:
			hit = strings.EqualFold(s.Email, match.Value)
		case model.MatchIP:
			hit = s.IP == match.Value
		case model.MatchCustom:
			v, ok := s.Data[match.Field]
			hit = ok && model.Stringify(v) == match.Value
		default:
			return nil, fmt.Errorf("db: unsupported match %q", match.By)
		}
		if hit {
			return &s, nil
		}
	}
	return nil, prepop.ErrNotFound
}
