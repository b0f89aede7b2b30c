package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func medicClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"user_id": "medic-1",
		"email":   "medic@example.com",
		"role":    RoleMedic,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
}

func protected(handler http.Handler) http.Handler {
	return Auth(testSecret)(handler)
}

func TestAuthAddsClaimsToContext(t *testing.T) {
	var got UserClaims
	h := protected(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetUserFromContext(r)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/tracking/samples", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, medicClaims()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "medic-1", got.UserID)
	assert.Equal(t, RoleMedic, got.Role)
}

func TestAuthRejects(t *testing.T) {
	expired := medicClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	noRole := medicClaims()
	delete(noRole, "role")

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Token abc",
		"wrong secret":   "Bearer " + signToken(t, "other-secret", medicClaims()),
		"expired":        "Bearer " + signToken(t, testSecret, expired),
		"missing role":   "Bearer " + signToken(t, testSecret, noRole),
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			h := protected(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := protected(RequireRole(RoleSupervisor)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, medicClaims()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	supervisor := medicClaims()
	supervisor["role"] = RoleSupervisor
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, supervisor))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseTokenRejectsNonHMAC(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, medicClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken(testSecret, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
