// Package progress saves partially filled forms so respondents can resume later.
// Saving is best effort: failures are logged and never reach the caller.
package progress

import (
	"context"
	"sync"
	"time"

	"formkit/internal/model"
	"formkit/internal/scheduler"

	"go.uber.org/zap"
)

const (
	DefaultDebounce  = 3 * time.Second
	DefaultRetention = 7 * 24 * time.Hour

	writeTimeout = 5 * time.Second
)

// Record is the persisted progress of one form
type Record struct {
	FormData    map[string]any `json:"formData"`
	CurrentStep int            `json:"currentStep"`
	SavedAt     time.Time      `json:"savedAt"`
}

// KV is the client-local key-value store records are kept in.
// Get returns nil, nil for a missing key.
type KV interface {
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
}

// Options tune the store; zero values fall back to the defaults
type Options struct {
	Debounce  time.Duration
	Retention time.Duration
	Scheduler scheduler.Scheduler
	// Owner separates the records of several respondents sharing one KV
	Owner string
}

// RetentionDays converts a form's retention setting, 0 meaning the default
func RetentionDays(days int) time.Duration {
	if days <= 0 {
		return DefaultRetention
	}
	return time.Duration(days) * 24 * time.Hour
}

// Store debounces saves of one form instance
type Store struct {
	key    string
	fields []model.Field
	kv     KV
	opts   Options
	log    *zap.Logger

	mu      sync.Mutex
	ioMu    sync.Mutex
	gen     uint64
	pending scheduler.Task
	next    *Record
}

// NewStore creates the store for formID. fields decide what counts as a default value.
func NewStore(formID string, fields []model.Field, kv KV, opts Options, log *zap.Logger) *Store {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.Real{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	key := Key(formID)
	if opts.Owner != "" {
		key += ":" + opts.Owner
	}
	return &Store{
		key:    key,
		fields: fields,
		kv:     kv,
		opts:   opts,
		log:    log.With(zap.String("form_id", formID)),
	}
}

// Key is the KV key progress of formID is stored under
func Key(formID string) string {
	return "formkit:progress:" + formID
}

// Save schedules a write after the quiet period, replacing any write still pending.
// A form holding only default values is not saved.
func (s *Store) Save(data map[string]any, step int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	if !model.AnyNonDefault(s.fields, data) {
		s.next = nil
		return
	}

	s.next = &Record{FormData: model.Clone(data), CurrentStep: step}
	gen := s.gen
	s.pending = s.opts.Scheduler.AfterFunc(s.opts.Debounce, func() { s.fire(gen) })
}

// Flush writes a pending save immediately
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.write(ctx)
}

func (s *Store) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	s.write(ctx)
}

// write is called with s.mu held and releases it
func (s *Store) write(ctx context.Context) {
	rec := s.next
	s.next = nil
	if rec == nil {
		s.mu.Unlock()
		return
	}
	s.ioMu.Lock()
	s.mu.Unlock()
	defer s.ioMu.Unlock()

	rec.SavedAt = s.opts.Scheduler.Now()
	if err := s.kv.Set(ctx, s.key, *rec); err != nil {
		s.log.Warn("Failed to save progress", zap.Error(err))
		return
	}
	s.log.Debug("Progress saved", zap.Int("step", rec.CurrentStep))
}

// Load returns the saved record, or nil when there is none or it has expired
func (s *Store) Load(ctx context.Context) *Record {
	rec, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.log.Warn("Failed to load progress", zap.Error(err))
		return nil
	}
	if rec == nil {
		return nil
	}
	if s.opts.Scheduler.Now().Sub(rec.SavedAt) > s.opts.Retention {
		if err := s.kv.Delete(ctx, s.key); err != nil {
			s.log.Warn("Failed to delete expired progress", zap.Error(err))
		}
		return nil
	}
	return rec
}

// Clear drops any pending write and deletes the saved record
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.next = nil
	s.ioMu.Lock()
	s.mu.Unlock()
	defer s.ioMu.Unlock()

	if err := s.kv.Delete(ctx, s.key); err != nil {
		s.log.Warn("Failed to clear progress", zap.Error(err))
	}
}
