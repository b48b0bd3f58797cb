package prepop

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"formkit/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiField(id string, cfg model.APIConfig) model.Field {
	return model.Field{
		ID:            id,
		Type:          model.FieldText,
		Prepopulation: &model.Prepopulation{Enabled: true, Config: cfg},
	}
}

func fastOptions(clock *fakeClock) APIOptions {
	opts := APIOptions{BaseDelay: time.Millisecond, Timeout: time.Second}
	if clock != nil {
		opts.Now = clock.Now
	}
	return opts
}

func TestAPIResolver_ExtractsJSONPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ada@example.com", r.URL.Query().Get("email"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		io.WriteString(w, `{"company":{"name":"Analytical Engines"}}`)
	}))
	defer srv.Close()

	r := NewAPIResolver(srv.Client(), fastOptions(nil), nil)
	f := apiField("company", model.APIConfig{
		Endpoint: srv.URL + "/lookup?email={{email}}",
		Headers:  map[string]string{"X-Api-Key": "secret"},
		JSONPath: "$.company.name",
	})

	v, err := r.Resolve(context.Background(), f, ResolveContext{Current: map[string]any{"email": "ada@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, "Analytical Engines", v)
}

func TestAPIResolver_CacheTTL(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"v":"x"}`)
	}))
	defer srv.Close()

	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewAPIResolver(srv.Client(), fastOptions(clock), nil)
	f := apiField("f", model.APIConfig{Endpoint: srv.URL, JSONPath: "$.v", CacheTTL: 60})
	ctx := context.Background()

	_, err := r.Resolve(ctx, f, ResolveContext{})
	require.NoError(t, err)
	clock.Advance(59 * time.Second)
	_, err = r.Resolve(ctx, f, ResolveContext{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	clock.Advance(2 * time.Second)
	_, err = r.Resolve(ctx, f, ResolveContext{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestAPIResolver_CachedValuesAreCopies(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"address":{"city":"London","lines":["12 St James's Sq"]}}`)
	}))
	defer srv.Close()

	r := NewAPIResolver(srv.Client(), fastOptions(nil), nil)
	f := apiField("address", model.APIConfig{Endpoint: srv.URL, JSONPath: "$.address", CacheTTL: 60})
	ctx := context.Background()

	v, err := r.Resolve(ctx, f, ResolveContext{})
	require.NoError(t, err)
	first := v.(map[string]any)
	first["city"] = "Paris"
	first["lines"].([]any)[0] = "edited"

	v, err = r.Resolve(ctx, f, ResolveContext{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, map[string]any{"city": "London", "lines": []any{"12 St James's Sq"}}, v)
}

func TestAPIResolver_DefaultTTL(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, `"plain"`)
	}))
	defer srv.Close()

	clock := &fakeClock{now: time.Unix(0, 0)}
	r := NewAPIResolver(srv.Client(), fastOptions(clock), nil)
	f := apiField("f", model.APIConfig{Endpoint: srv.URL})

	for i := 0; i < 3; i++ {
		v, err := r.Resolve(context.Background(), f, ResolveContext{})
		require.NoError(t, err)
		assert.Equal(t, "plain", v)
		clock.Advance(time.Minute)
	}
	assert.EqualValues(t, 1, calls.Load())

	clock.Advance(DefaultCacheTTL)
	_, err := r.Resolve(context.Background(), f, ResolveContext{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestAPIResolver_DistinctFingerprints(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte(`{"echo":` + string(body) + `}`))
	}))
	defer srv.Close()

	r := NewAPIResolver(srv.Client(), fastOptions(nil), nil)
	f := apiField("f", model.APIConfig{
		Endpoint: srv.URL,
		Method:   "post",
		Body:     `{"id":"{{id}}"}`,
		JSONPath: "$.echo.id",
	})

	v1, err := r.Resolve(context.Background(), f, ResolveContext{Query: map[string][]string{"id": {"1"}}})
	require.NoError(t, err)
	v2, err := r.Resolve(context.Background(), f, ResolveContext{Query: map[string][]string{"id": {"2"}}})
	require.NoError(t, err)

	assert.Equal(t, "1", v1)
	assert.Equal(t, "2", v2)
	assert.EqualValues(t, 2, calls.Load())
}

func TestAPIResolver_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	r := NewAPIResolver(srv.Client(), fastOptions(nil), nil)
	v, err := r.Resolve(context.Background(), apiField("f", model.APIConfig{Endpoint: srv.URL, JSONPath: "$.ok"}), ResolveContext{})
	require.NoError(t, err)
	assert.Equal(t, true, v)
	assert.EqualValues(t, 3, calls.Load())
}

func TestAPIResolver_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewAPIResolver(srv.Client(), fastOptions(nil), nil)
	_, err := r.Resolve(context.Background(), apiField("f", model.APIConfig{Endpoint: srv.URL, RetryAttempts: 2}), ResolveContext{})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 0, r.Cache().Len())
}

func TestAPIResolver_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewAPIResolver(srv.Client(), fastOptions(nil), nil)
	_, err := r.Resolve(context.Background(), apiField("f", model.APIConfig{Endpoint: srv.URL}), ResolveContext{})
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestAPIResolver_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	opts := fastOptions(nil)
	opts.Timeout = 20 * time.Millisecond
	r := NewAPIResolver(srv.Client(), opts, nil)

	start := time.Now()
	_, err := r.Resolve(context.Background(), apiField("f", model.APIConfig{Endpoint: srv.URL, RetryAttempts: 1}), ResolveContext{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAPIResolver_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{not json`)
	}))
	defer srv.Close()

	r := NewAPIResolver(srv.Client(), fastOptions(nil), nil)
	_, err := r.Resolve(context.Background(), apiField("f", model.APIConfig{Endpoint: srv.URL}), ResolveContext{})
	assert.ErrorIs(t, err, errDecode)
}

func TestAPIResolver_BadPathFailsBeforeRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	r := NewAPIResolver(srv.Client(), fastOptions(nil), nil)
	_, err := r.Resolve(context.Background(), apiField("f", model.APIConfig{Endpoint: srv.URL, JSONPath: "$.a[*].b[*]"}), ResolveContext{})
	assert.ErrorIs(t, err, ErrPathSyntax)
	assert.EqualValues(t, 0, calls.Load())
}
