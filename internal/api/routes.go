package api

import (
	"context"
	"net/http"

	"formkit/internal/auth"
	"formkit/internal/progress"
	"formkit/internal/pubsub"
	"formkit/internal/quiz"
	"formkit/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// QuizStats serves aggregate quiz statistics of a form
type QuizStats interface {
	Get(ctx context.Context, formID string) (quiz.Stats, error)
}

// EventReplayer reads back the events published on a channel
type EventReplayer interface {
	ReplayEvents(ctx context.Context, channel string, sinceSeq int64, limit int) ([]pubsub.StreamEvent, error)
}

type Dependencies struct {
	Forms    *service.FormService
	Stats    QuizStats
	Events   EventReplayer
	Progress progress.KV
	JWT      *auth.JWTConfig
	Log      *zap.Logger
}

func Routes(d Dependencies) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	jwtConfig := d.JWT
	if jwtConfig == nil {
		jwtConfig = auth.NewJWTConfig("")
	}
	if jwtConfig.OnError == nil {
		jwtConfig.OnError = func(w http.ResponseWriter, _ *http.Request, msg string) {
			WriteError(w, http.StatusUnauthorized, "unauthorized", msg, d.Log)
		}
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(d.Log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		// Anonymous access is allowed; a bearer token adds the respondent's profile
		r.Use(jwtConfig.Middleware)

		r.Route("/forms/{id}", func(r chi.Router) {
			r.Put("/", d.putForm)
			r.Get("/", d.getForm)
			r.Get("/prefill", d.prefill)
			r.Post("/logic", d.evaluateLogic)

			r.Post("/submissions", d.submit)
			r.Get("/submissions/{sid}/result", d.submissionResult)
			r.Get("/quiz/stats", d.quizStats)
			r.Get("/events", d.events)

			r.Get("/progress", d.getProgress)
			r.Put("/progress", d.putProgress)
			r.Delete("/progress", d.deleteProgress)
		})
	})

	return r
}
