package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key"

func signToken(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func TestHMACValidator(t *testing.T) {
	validator := NewHMACValidator(testSigningKey)

	t.Run("valid token yields actor and roles", func(t *testing.T) {
		token := signToken(t, testSigningKey, jwt.MapClaims{
			"sub":   "qa-bot",
			"roles": []any{"provisioner", "viewer"},
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		claims, err := validator.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "qa-bot", claims.Actor)
		assert.Equal(t, []string{"provisioner", "viewer"}, claims.Roles)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		token := signToken(t, "other-key", jwt.MapClaims{"sub": "qa-bot"})
		_, err := validator.ValidateToken(token)
		require.Error(t, err)
	})

	t.Run("missing subject rejected", func(t *testing.T) {
		token := signToken(t, testSigningKey, jwt.MapClaims{"roles": []any{"viewer"}})
		_, err := validator.ValidateToken(token)
		require.Error(t, err)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token := signToken(t, testSigningKey, jwt.MapClaims{
			"sub": "qa-bot",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := validator.ValidateToken(token)
		require.Error(t, err)
	})
}

func TestRequireAuth(t *testing.T) {
	validator := NewHMACValidator(testSigningKey)
	logger := slog.New(slog.DiscardHandler)

	var gotClaims ActorClaims
	handler := RequireAuth(validator, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = GetActor(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token passes claims through", func(t *testing.T) {
		token := signToken(t, testSigningKey, jwt.MapClaims{
			"sub":   "qa-bot",
			"roles": []any{"provisioner"},
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "qa-bot", gotClaims.Actor)
		assert.Equal(t, []string{"provisioner"}, gotClaims.Roles)
	})
}
