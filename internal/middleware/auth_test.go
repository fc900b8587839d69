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

const testSecret = "0123456789abcdef0123456789abcdef"

func TestRequireAuth(t *testing.T) {
	valid, err := IssueToken(testSecret, "ops@example.com", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, "ops@example.com", -time.Minute)
	require.NoError(t, err)
	otherKey, err := IssueToken("another-secret-another-secret-xx", "ops@example.com", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "auth_required"},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "auth_invalid_scheme"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "auth_invalid"},
		{"wrong key", "Bearer " + otherKey, http.StatusUnauthorized, "auth_invalid"},
		{"alg none", "Bearer " + none, http.StatusUnauthorized, "auth_invalid"},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized, "auth_invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var subject string
			h := RequireAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				subject, _ = GetSubject(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantErr != "" {
				assert.Contains(t, w.Body.String(), tt.wantErr)
				return
			}
			assert.Equal(t, "ops@example.com", subject)
		})
	}
}
