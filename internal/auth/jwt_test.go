package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func serve(cfg *JWTConfig, header string) (*httptest.ResponseRecorder, context.Context) {
	var got context.Context
	h := cfg.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Context()
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func TestMiddleware_ProfileFromClaims(t *testing.T) {
	cfg := NewJWTConfig("s3cret")
	token := sign(t, "s3cret", jwt.MapClaims{
		"sub":          "user-1",
		"name":         "Ada Lovelace",
		"email":        "ada@example.com",
		"phone_number": "+44 20 7946 0000",
		"address":      map[string]interface{}{"formatted": "12 St James's Square, London"},
		"custom":       map[string]interface{}{"company": "Analytical Engines"},
	})

	rec, ctx := serve(cfg, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ctx)
	assert.Equal(t, "user-1", GetUserID(ctx))

	p, err := ContextProfiles{}.CurrentProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", p.Name)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.Equal(t, "+44 20 7946 0000", p.Phone)
	assert.Equal(t, "12 St James's Square, London", p.Address)
	assert.Equal(t, "Analytical Engines", p.Custom["company"])
}

func TestMiddleware_Anonymous(t *testing.T) {
	rec, ctx := serve(NewJWTConfig(""), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, GetUserID(ctx))
	assert.Empty(t, GetProfile(ctx).Email)
}

func TestMiddleware_Rejects(t *testing.T) {
	cfg := NewJWTConfig("s3cret")

	rec, _ := serve(cfg, "Token abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = serve(cfg, "Bearer "+sign(t, "other", jwt.MapClaims{"sub": "x"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	rec, _ = serve(cfg, "Bearer "+none)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_CustomRejection(t *testing.T) {
	cfg := NewJWTConfig("s3cret")
	cfg.OnError = func(w http.ResponseWriter, _ *http.Request, msg string) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(msg))
	}
	rec, _ := serve(cfg, "Bearer nope")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "Invalid token", rec.Body.String())
}
