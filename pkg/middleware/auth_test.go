package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bulldog-Master/xxvpn-sub001/pkg/logger"
)

func staticValidator(claims *Claims, err error) TokenValidator {
	return func(_ context.Context, token string) (*Claims, error) {
		if token != "good-token" {
			return nil, errors.New("bad token")
		}
		return claims, err
	}
}

func TestAuth(t *testing.T) {
	claims := &Claims{UserID: "u-1", Email: "a@b.io", SessionID: "s-1", TwoFactorVerified: true}

	tests := []struct {
		name       string
		header     string
		validator  TokenValidator
		wantStatus int
	}{
		{"missing header", "", staticValidator(claims, nil), http.StatusUnauthorized},
		{"wrong scheme", "Basic good-token", staticValidator(claims, nil), http.StatusUnauthorized},
		{"empty token", "Bearer   ", staticValidator(claims, nil), http.StatusUnauthorized},
		{"invalid token", "Bearer bad", staticValidator(claims, nil), http.StatusUnauthorized},
		{"claims without user", "Bearer good-token", staticValidator(&Claims{}, nil), http.StatusUnauthorized},
		{"valid", "Bearer good-token", staticValidator(claims, nil), http.StatusOK},
		{"case-insensitive scheme", "bearer good-token", staticValidator(claims, nil), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Claims
			var logUser, logSession string
			h := Auth(tt.validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClaimsFromContext(r.Context())
				logUser = logger.UserIDFromContext(r.Context())
				logSession = logger.SessionIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, got)
				assert.Equal(t, "u-1", got.UserID)
				assert.Equal(t, "u-1", logUser)
				assert.Equal(t, "s-1", logSession)
			} else {
				assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)
			}
		})
	}
}

func TestContextAccessors_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, ClaimsFromContext(req.Context()))
	assert.Empty(t, UserIDFromContext(req.Context()))
	assert.Empty(t, SessionIDFromContext(req.Context()))

	ctx := WithClaims(req.Context(), &Claims{UserID: "u", SessionID: "s"})
	assert.Equal(t, "u", UserIDFromContext(ctx))
	assert.Equal(t, "s", SessionIDFromContext(ctx))
}
