package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"formkit/internal/prepop"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	userIDKey  contextKey = "userID"
	profileKey contextKey = "profile"
)

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey string
	// OnError writes the rejection; defaults to http.Error
	OnError func(w http.ResponseWriter, r *http.Request, msg string)
}

// NewJWTConfig creates a new JWT config
func NewJWTConfig(secretKey string) *JWTConfig {
	if secretKey == "" {
		secretKey = "default-secret-key-change-in-production" // Default for development
	}
	return &JWTConfig{SecretKey: secretKey}
}

// Middleware reads the respondent's profile from a bearer token.
// Requests without a token pass through anonymously.
func (c *JWTConfig) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.reject(w, r, "Invalid authorization header")
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(c.SecretKey), nil
		})
		if err != nil || !token.Valid {
			c.reject(w, r, "Invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.reject(w, r, "Invalid token claims")
			return
		}
		ctx := r.Context()
		if sub, _ := claims["sub"].(string); sub != "" {
			ctx = context.WithValue(ctx, userIDKey, sub)
		}
		ctx = WithProfile(ctx, profileFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c *JWTConfig) reject(w http.ResponseWriter, r *http.Request, msg string) {
	if c.OnError != nil {
		c.OnError(w, r, msg)
		return
	}
	http.Error(w, msg, http.StatusUnauthorized)
}

func profileFromClaims(claims jwt.MapClaims) prepop.Profile {
	var p prepop.Profile
	p.Name, _ = claims["name"].(string)
	p.Email, _ = claims["email"].(string)
	p.Phone, _ = claims["phone_number"].(string)
	if p.Phone == "" {
		p.Phone, _ = claims["phone"].(string)
	}
	switch addr := claims["address"].(type) {
	case string:
		p.Address = addr
	case map[string]interface{}:
		// OIDC address claim
		p.Address, _ = addr["formatted"].(string)
	}
	if custom, ok := claims["custom"].(map[string]interface{}); ok {
		p.Custom = custom
	}
	return p
}

// WithProfile stores a profile in the context
func WithProfile(ctx context.Context, p prepop.Profile) context.Context {
	return context.WithValue(ctx, profileKey, p)
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetProfile extracts the profile from context; anonymous requests get an empty profile
func GetProfile(ctx context.Context) prepop.Profile {
	p, _ := ctx.Value(profileKey).(prepop.Profile)
	return p
}

// ContextProfiles serves profiles stored in the request context by Middleware
type ContextProfiles struct{}

var _ prepop.ProfileProvider = ContextProfiles{}

func (ContextProfiles) CurrentProfile(ctx context.Context) (prepop.Profile, error) {
	return GetProfile(ctx), nil
}
