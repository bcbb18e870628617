package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ActorClaims carries the identity asserted by a validated bearer
// token. Roles feed the policy engine; the token itself never reaches
// domain code.
type ActorClaims struct {
	Actor string
	Roles []string
}

type contextKeyActor struct{}

var ContextKeyActor = contextKeyActor{}

// GetActor retrieves the authenticated actor from the context.
func GetActor(ctx context.Context) (ActorClaims, bool) {
	claims, ok := ctx.Value(ContextKeyActor).(ActorClaims)
	return claims, ok
}

// WithActor injects actor claims into the context. Exported for tests
// that exercise handlers without the middleware.
func WithActor(ctx context.Context, claims ActorClaims) context.Context {
	return context.WithValue(ctx, ContextKeyActor, claims)
}

// JWTValidator validates bearer tokens and extracts actor claims.
type JWTValidator interface {
	ValidateToken(tokenString string) (ActorClaims, error)
}

// HMACValidator validates HS256 tokens signed with a shared key.
type HMACValidator struct {
	signingKey []byte
}

func NewHMACValidator(signingKey string) *HMACValidator {
	return &HMACValidator{signingKey: []byte(signingKey)}
}

func (v *HMACValidator) ValidateToken(tokenString string) (ActorClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return ActorClaims{}, fmt.Errorf("parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ActorClaims{}, fmt.Errorf("invalid token claims")
	}

	sub, _ := mapClaims["sub"].(string)
	if sub == "" {
		return ActorClaims{}, fmt.Errorf("token missing subject")
	}

	var roles []string
	if rawRoles, ok := mapClaims["roles"].([]any); ok {
		for _, raw := range rawRoles {
			if role, ok := raw.(string); ok {
				roles = append(roles, role)
			}
		}
	}

	return ActorClaims{Actor: sub, Roles: roles}, nil
}

// RequireAuth rejects requests without a valid bearer token and places
// the actor claims in the request context for handlers.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				writeAuthError(w, "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized request",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				writeAuthError(w, "invalid token")
				return
			}

			ctx := WithActor(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, `{"error":"unauthorized","error_description":"%s"}`, desc)
}
