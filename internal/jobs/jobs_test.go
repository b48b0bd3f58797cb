package jobs

import (
	"context"
	"testing"
	"time"

	"formkit/internal/db"
	"formkit/internal/model"
	"formkit/internal/schema"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const capitalsQuiz = `{
  "id": "capitals",
  "fields": [
    {"id": "fr", "type": "text", "settings": {"isQuizField": true, "correctAnswer": "Paris"}},
    {"id": "de", "type": "text", "settings": {"isQuizField": true, "correctAnswer": "Berlin"}}
  ],
  "settings": {"quiz": {"enabled": true, "passingScore": 50}}
}`

func newStats(t *testing.T) (*Stats, *db.Memory, *miniredis.Miniredis) {
	t.Helper()
	ctx := context.Background()
	mem := db.NewMemory(nil)
	require.NoError(t, mem.PutForm(ctx, "capitals", []byte(capitalsQuiz)))
	for _, data := range []map[string]any{
		{"fr": "Paris", "de": "Berlin"},
		{"fr": "paris", "de": "Bonn"},
		{"fr": "Lyon"},
	} {
		_, err := mem.InsertSubmission(ctx, model.Submission{FormID: "capitals", Data: data})
		require.NoError(t, err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return &Stats{
		Forms:  mem,
		Parser: schema.NewCompilerWithCache(8, time.Minute),
		Cache:  NewStatsCache(rdb, time.Minute),
	}, mem, mr
}

func TestStats_ComputeCaches(t *testing.T) {
	ctx := context.Background()
	stats, mem, mr := newStats(t)

	st, err := stats.Compute(ctx, "capitals")
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalSubmissions)
	assert.InDelta(t, 66.67, st.PassRate, 0.01)
	assert.True(t, mr.Exists(statsKey("capitals")))

	// a new submission is not visible until the next recompute
	_, err = mem.InsertSubmission(ctx, model.Submission{FormID: "capitals", Data: map[string]any{"fr": "Paris"}})
	require.NoError(t, err)
	cached, err := stats.Get(ctx, "capitals")
	require.NoError(t, err)
	assert.Equal(t, 3, cached.TotalSubmissions)

	mr.FastForward(2 * time.Minute)
	fresh, err := stats.Get(ctx, "capitals")
	require.NoError(t, err)
	assert.Equal(t, 4, fresh.TotalSubmissions)
}

func TestStats_UnknownForm(t *testing.T) {
	stats, _, _ := newStats(t)
	_, err := stats.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestStats_WithoutCache(t *testing.T) {
	stats, _, _ := newStats(t)
	stats.Cache = nil
	st, err := stats.Get(context.Background(), "capitals")
	require.NoError(t, err)
	require.Len(t, st.Questions, 2)
	assert.Equal(t, "fr", st.Questions[0].FieldID)
	assert.Equal(t, 2, st.Questions[0].Correct)
}

func TestHandleQuizStats(t *testing.T) {
	stats, _, mr := newStats(t)
	js := &JobServer{stats: stats, log: zap.NewNop()}

	require.NoError(t, js.handleQuizStats(context.Background(), asynq.NewTask(TypeQuizStats, []byte("capitals"))))
	assert.True(t, mr.Exists(statsKey("capitals")))

	assert.Error(t, js.handleQuizStats(context.Background(), asynq.NewTask(TypeQuizStats, []byte("missing"))))
}
