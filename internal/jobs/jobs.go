// Package jobs runs background work on asynq: quiz statistics are recomputed after
// submissions arrive.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TypeQuizStats recomputes the quiz statistics of the form named in the payload
const TypeQuizStats = "quiz:stats"

// statsDebounce gives a burst of submissions time to land before one recompute
const statsDebounce = 2 * time.Second

type JobServer struct {
	server *asynq.Server
	client *asynq.Client
	stats  *Stats
	log    *zap.Logger
}

func NewJobServer(redisOpt asynq.RedisConnOpt, concurrency int, stats *Stats, log *zap.Logger) (*JobServer, *asynq.Client) {
	if log == nil {
		log = zap.NewNop()
	}
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 3,
				"low":     1,
			},
			Logger: log.Sugar(),
		},
	)

	client := asynq.NewClient(redisOpt)

	return &JobServer{
		server: server,
		client: client,
		stats:  stats,
		log:    log,
	}, client
}

func (js *JobServer) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeQuizStats, js.handleQuizStats)
	return js.server.Start(mux)
}

func (js *JobServer) Stop() {
	js.server.Shutdown()
	js.client.Close()
}

func (js *JobServer) handleQuizStats(ctx context.Context, t *asynq.Task) error {
	formID := string(t.Payload())
	st, err := js.stats.Compute(ctx, formID)
	if err != nil {
		return err
	}
	js.log.Info("Quiz stats recomputed",
		zap.String("form_id", formID),
		zap.Int("submissions", st.TotalSubmissions),
		zap.Float64("pass_rate", st.PassRate),
	)
	return nil
}

// Enqueuer schedules background work
type Enqueuer interface {
	EnqueueQuizStats(ctx context.Context, formID string) error
}

// AsynqEnqueuer implements Enqueuer using asynq
type AsynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client}
}

// EnqueueQuizStats schedules a recompute; one already waiting for the form absorbs the call
func (e *AsynqEnqueuer) EnqueueQuizStats(ctx context.Context, formID string) error {
	task := asynq.NewTask(TypeQuizStats, []byte(formID))
	_, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue("low"),
		asynq.ProcessIn(statsDebounce),
		asynq.Unique(statsDebounce),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}
