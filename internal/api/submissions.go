package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"formkit/internal/auth"
	"formkit/internal/pubsub"
	"formkit/internal/service"
	"formkit/internal/submission"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) submit(w http.ResponseWriter, r *http.Request) {
	var req submission.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	res, err := d.Forms.Submit(r.Context(), service.SubmitInput{
		FormID: chi.URLParam(r, "id"),
		Data:   req.Data,
		Email:  auth.GetProfile(r.Context()).Email,
		IP:     clientIP(r),
	})

	var (
		rejected *service.RejectedError
		invalid  *service.ValidationError
	)
	switch {
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusTooManyRequests, submission.DuplicateResponse(rejected.Decision))
		return
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusUnprocessableEntity, submission.Response{
			Error:   "validation_failed",
			Message: "Some fields are invalid",
			Errors:  invalid.Errors,
		})
		return
	case err != nil:
		d.formError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submission.Response{
		Success: true,
		ID:      res.Submission.ID,
		Quiz:    res.Quiz,
	})
}

func (d Dependencies) submissionResult(w http.ResponseWriter, r *http.Request) {
	res, err := d.Forms.Result(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid"))
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "Submission not found", d.Log)
		return
	case errors.Is(err, service.ErrNotQuiz):
		WriteError(w, http.StatusConflict, "not_quiz", "Form is not a quiz", d.Log)
		return
	case err != nil:
		d.formError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (d Dependencies) quizStats(w http.ResponseWriter, r *http.Request) {
	if d.Stats == nil {
		WriteError(w, http.StatusServiceUnavailable, "unavailable", "Quiz statistics are not configured", d.Log)
		return
	}
	id := chi.URLParam(r, "id")
	fs, err := d.Forms.GetForm(r.Context(), id)
	if err != nil {
		d.formError(w, err)
		return
	}
	if !fs.QuizEnabled() {
		WriteError(w, http.StatusConflict, "not_quiz", "Form is not a quiz", d.Log)
		return
	}
	st, err := d.Stats.Get(r.Context(), id)
	if err != nil {
		d.formError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (d Dependencies) events(w http.ResponseWriter, r *http.Request) {
	if d.Events == nil {
		WriteError(w, http.StatusServiceUnavailable, "unavailable", "Event replay is not configured", d.Log)
		return
	}
	since, err := queryInt(r, "since", 0)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "since must be an integer", d.Log)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit <= 0 {
		WriteError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer", d.Log)
		return
	}

	events, err := d.Events.ReplayEvents(r.Context(), pubsub.FormChannel(chi.URLParam(r, "id")), int64(since), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "replay_failed", err.Error(), d.Log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
