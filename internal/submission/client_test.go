package submission

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"formkit/internal/runtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forms/signup/submissions", r.URL.Path)
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Ada", req.Data["name"])
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Response{Success: true, ID: "01HX"})
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL+"/", nil, nil).Submit(context.Background(), "signup", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "01HX", id)
}

func TestClient_Duplicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"Duplicate submission detected","message":"You already answered","timeRemaining":42,"attemptsRemaining":1}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil, nil).Submit(context.Background(), "f", nil)
	var dup *runtime.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "You already answered", dup.Message)
	assert.Equal(t, 42*time.Second, dup.TimeRemaining)
	require.NotNil(t, dup.AttemptsRemaining)
	assert.Equal(t, 1, *dup.AttemptsRemaining)
}

func TestClient_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"insert_failed","message":"database unavailable"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil, nil).Submit(context.Background(), "f", nil)
	require.EqualError(t, err, "submission: database unavailable")
	var dup *runtime.DuplicateError
	assert.False(t, errors.As(err, &dup))
}

func TestClient_NonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil, nil).Submit(context.Background(), "f", nil)
	assert.EqualError(t, err, "submission: server returned 502: bad gateway")
}

func TestDuplicateResponse_RoundTrip(t *testing.T) {
	n := 3
	resp := DuplicateResponse(Decision{Message: "slow down", TimeRemaining: 1500 * time.Millisecond, AttemptsRemaining: &n})
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var back Response
	require.NoError(t, json.Unmarshal(raw, &back))
	var dup *runtime.DuplicateError
	require.ErrorAs(t, back.Err(), &dup)
	assert.Equal(t, 1500*time.Millisecond, dup.TimeRemaining)
	assert.Equal(t, 3, *dup.AttemptsRemaining)
}

func TestAllowAll(t *testing.T) {
	d, err := AllowAll{}.Check(context.Background(), "f", "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
