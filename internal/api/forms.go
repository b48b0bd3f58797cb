package api

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"formkit/internal/auth"
	"formkit/internal/prepop"
	"formkit/internal/schema"
	"formkit/internal/service"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

func (d Dependencies) putForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	fs, err := d.Forms.PutForm(r.Context(), id, raw)
	switch {
	case errors.Is(err, schema.ErrInvalid):
		WriteError(w, http.StatusUnprocessableEntity, "invalid_schema", err.Error(), d.Log)
		return
	case errors.Is(err, service.ErrFormIDMismatch):
		WriteError(w, http.StatusBadRequest, "id_mismatch", err.Error(), d.Log)
		return
	case err != nil:
		WriteError(w, http.StatusInternalServerError, "store_failed", err.Error(), d.Log)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}

func (d Dependencies) getForm(w http.ResponseWriter, r *http.Request) {
	fs, err := d.Forms.GetForm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.formError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}

func (d Dependencies) prefill(w http.ResponseWriter, r *http.Request) {
	rc := prepop.ResolveContext{
		Query: r.URL.Query(),
		Email: auth.GetProfile(r.Context()).Email,
		IP:    clientIP(r),
	}
	data, err := d.Forms.Prefill(r.Context(), chi.URLParam(r, "id"), rc)
	if err != nil {
		d.formError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

type logicRequest struct {
	Data map[string]any `json:"data"`
}

func (d Dependencies) evaluateLogic(w http.ResponseWriter, r *http.Request) {
	var req logicRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}
	out, err := d.Forms.EvaluateLogic(r.Context(), chi.URLParam(r, "id"), req.Data)
	if err != nil {
		d.formError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// formError maps the errors shared by every form lookup
func (d Dependencies) formError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrFormNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "Form not found", d.Log)
	case errors.Is(err, schema.ErrInvalid):
		WriteError(w, http.StatusInternalServerError, "invalid_schema", err.Error(), d.Log)
	default:
		WriteError(w, http.StatusInternalServerError, "internal", err.Error(), d.Log)
	}
}

// clientIP reads the address chi's RealIP middleware left in RemoteAddr
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
