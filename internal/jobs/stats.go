package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"formkit/internal/model"
	"formkit/internal/quiz"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FormSource is the read side of form and submission storage
type FormSource interface {
	GetForm(ctx context.Context, id string) ([]byte, error)
	ListSubmissions(ctx context.Context, formID string) ([]model.Submission, error)
}

// SchemaParser turns a stored form document into a schema
type SchemaParser interface {
	Parse(ctx context.Context, raw []byte) (*model.FormSchema, error)
}

// StatsCache keeps computed quiz statistics in Redis
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatsCache(rdb *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: ttl}
}

func statsKey(formID string) string { return "formkit:quiz-stats:" + formID }

// Get returns nil without error on a miss
func (c *StatsCache) Get(ctx context.Context, formID string) (*quiz.Stats, error) {
	raw, err := c.rdb.Get(ctx, statsKey(formID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st quiz.Stats
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("jobs: decode cached stats: %w", err)
	}
	return &st, nil
}

func (c *StatsCache) Set(ctx context.Context, formID string, st quiz.Stats) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statsKey(formID), raw, c.ttl).Err()
}

// Stats computes quiz statistics from stored submissions, going through the cache when
// one is configured
type Stats struct {
	Forms  FormSource
	Parser SchemaParser
	Cache  *StatsCache
	Log    *zap.Logger
}

// Compute recomputes statistics and refreshes the cache
func (s *Stats) Compute(ctx context.Context, formID string) (quiz.Stats, error) {
	raw, err := s.Forms.GetForm(ctx, formID)
	if err != nil {
		return quiz.Stats{}, fmt.Errorf("failed to get form: %w", err)
	}
	schema, err := s.Parser.Parse(ctx, raw)
	if err != nil {
		return quiz.Stats{}, err
	}
	subs, err := s.Forms.ListSubmissions(ctx, formID)
	if err != nil {
		return quiz.Stats{}, fmt.Errorf("failed to list submissions: %w", err)
	}
	data := make([]map[string]any, len(subs))
	for i, sub := range subs {
		data[i] = sub.Data
	}
	st := quiz.Aggregate(schema, data)

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, formID, st); err != nil {
			s.logger().Warn("Failed to cache quiz stats", zap.String("form_id", formID), zap.Error(err))
		}
	}
	return st, nil
}

// Get serves cached statistics and computes them on a miss
func (s *Stats) Get(ctx context.Context, formID string) (quiz.Stats, error) {
	if s.Cache != nil {
		st, err := s.Cache.Get(ctx, formID)
		if err != nil {
			s.logger().Warn("Failed to read cached quiz stats", zap.String("form_id", formID), zap.Error(err))
		}
		if st != nil {
			return *st, nil
		}
	}
	return s.Compute(ctx, formID)
}

func (s *Stats) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
