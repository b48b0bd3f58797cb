package api

import (
	"encoding/json"
	"io"
	"net/http"

	"formkit/internal/auth"
	"formkit/internal/progress"

	"github.com/go-chi/chi/v5"
)

type progressRequest struct {
	FormData    map[string]any `json:"formData"`
	CurrentStep int            `json:"currentStep"`
}

// progressStore opens the signed-in respondent's progress of the form in the URL.
// It writes the error response itself and returns nil when the request cannot proceed.
func (d Dependencies) progressStore(w http.ResponseWriter, r *http.Request) *progress.Store {
	if d.Progress == nil {
		WriteError(w, http.StatusServiceUnavailable, "unavailable", "Progress storage is not configured", d.Log)
		return nil
	}
	owner := auth.GetUserID(r.Context())
	if owner == "" {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "Saving progress requires a signed-in user", d.Log)
		return nil
	}
	fs, err := d.Forms.GetForm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.formError(w, err)
		return nil
	}
	if !fs.ProgressEnabled() {
		WriteError(w, http.StatusConflict, "progress_disabled", "Form does not save progress", d.Log)
		return nil
	}

	opts := progress.Options{Owner: owner}
	if fs.Settings.Progress != nil {
		opts.Retention = progress.RetentionDays(fs.Settings.Progress.RetentionDays)
	}
	return progress.NewStore(fs.ID, fs.Fields, d.Progress, opts, d.Log)
}

func (d Dependencies) getProgress(w http.ResponseWriter, r *http.Request) {
	store := d.progressStore(w, r)
	if store == nil {
		return
	}
	rec := store.Load(r.Context())
	if rec == nil {
		WriteError(w, http.StatusNotFound, "not_found", "No saved progress", d.Log)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (d Dependencies) putProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}
	store := d.progressStore(w, r)
	if store == nil {
		return
	}
	store.Save(req.FormData, req.CurrentStep)
	store.Flush(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (d Dependencies) deleteProgress(w http.ResponseWriter, r *http.Request) {
	store := d.progressStore(w, r)
	if store == nil {
		return
	}
	store.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
