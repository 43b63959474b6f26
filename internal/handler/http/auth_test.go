package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/twofactor"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
)

const (
	handlerPassword = "Passw0rdOK"
	handlerSecret   = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
)

func (e *testEnv) givenUser(t *testing.T, withTOTP bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(handlerPassword), bcrypt.MinCost)
	require.NoError(t, err)
	user := &domain.User{ID: "user-1", Email: "ada@example.com", PasswordHash: string(hash), IsActive: true}
	e.users.On("GetByEmail", mock.Anything, "ada@example.com").Return(user, nil)
	e.users.On("GetByID", mock.Anything, "user-1").Return(user, nil)

	if !withTOTP {
		e.totp.On("Get", mock.Anything, "user-1").Return(nil, apperrors.NotFound("totp credential", "user-1"))
		return
	}
	sealed, err := e.box.Seal(handlerSecret)
	require.NoError(t, err)
	e.totp.On("Get", mock.Anything, "user-1").Return(&domain.TOTPCredential{UserID: "user-1", SecretCiphertext: sealed, Enabled: true}, nil)
}

func currentCode(t *testing.T) string {
	t.Helper()
	code, err := twofactor.NewVerifier().Generate(handlerSecret, time.Now())
	require.NoError(t, err)
	return code
}

func TestLoginHandler_WithoutTOTPReturnsTokens(t *testing.T) {
	env := newTestEnv(t)
	env.givenUser(t, false)
	env.sessions.On("Create", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ada@example.com", "password": handlerPassword,
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, false, data["requires_two_factor"])
	tokens := data["tokens"].(map[string]any)
	assert.NotEmpty(t, tokens["access_token"])
}

func TestLoginHandler_BadPasswordIsGeneric(t *testing.T) {
	env := newTestEnv(t)
	env.givenUser(t, false)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ada@example.com", "password": "Wrong1234",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	errObj := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "invalid email or password", errObj["message"])
}

func TestLoginHandler_ValidationError(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "not-an-email"}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
	env.users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestTwoFactorFlow_ChallengeThenVerify(t *testing.T) {
	env := newTestEnv(t)
	env.givenUser(t, true)
	env.sessions.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.Session) bool {
		return s.TwoFactorVerified
	})).Return(nil).Once()
	env.events.On("PublishTwoFactorVerified", mock.Anything, "user-1", mock.Anything, mock.Anything).Return(nil)

	login := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ada@example.com", "password": handlerPassword,
	}, nil)
	require.Equal(t, http.StatusOK, login.Code, login.Body.String())
	data := decodeBody(t, login)["data"].(map[string]any)
	require.Equal(t, true, data["requires_two_factor"])
	assert.Nil(t, data["tokens"])
	challengeID := data["challenge_id"].(string)

	verify := env.do(t, http.MethodPost, "/api/v1/auth/2fa/verify", map[string]string{
		"challenge_id": challengeID,
		"email":        "ada@example.com",
		"password":     handlerPassword,
		"code":         currentCode(t),
	}, nil)
	require.Equal(t, http.StatusOK, verify.Code, verify.Body.String())

	tokens := decodeBody(t, verify)["data"].(map[string]any)["tokens"].(map[string]any)
	claims, err := env.jwt.ValidateAccessToken(tokens["access_token"].(string))
	require.NoError(t, err)
	assert.True(t, claims.TwoFactorVerified)

	// The challenge is single use.
	replay := env.do(t, http.MethodPost, "/api/v1/auth/2fa/verify", map[string]string{
		"challenge_id": challengeID,
		"email":        "ada@example.com",
		"password":     handlerPassword,
		"code":         currentCode(t),
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
	env.sessions.AssertNumberOfCalls(t, "Create", 1)
}

func TestTwoFactorVerify_WrongCodeIsGeneric(t *testing.T) {
	env := newTestEnv(t)
	env.givenUser(t, true)

	login := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ada@example.com", "password": handlerPassword,
	}, nil)
	require.Equal(t, http.StatusOK, login.Code)
	challengeID := decodeBody(t, login)["data"].(map[string]any)["challenge_id"].(string)

	code, err := twofactor.NewVerifier().Generate(handlerSecret, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	rec := env.do(t, http.MethodPost, "/api/v1/auth/2fa/verify", map[string]string{
		"challenge_id": challengeID,
		"email":        "ada@example.com",
		"password":     handlerPassword,
		"code":         code,
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	errObj := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "invalid verification code", errObj["message"])
	env.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.False(t, env.redis.Exists("twofa:challenge:"+challengeID))
}

func TestLogoutHandler(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.On("Revoke", mock.Anything, "sess-1", mock.AnythingOfType("time.Time")).Return(nil)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/logout", struct{}{}, authHeader(env.bearer(t, false)))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	env.sessions.AssertExpectations(t)
}

func TestLogoutHandler_AccessTokenRefusedAfterwards(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.On("Revoke", mock.Anything, "sess-1", mock.AnythingOfType("time.Time")).Return(nil)
	hdr := authHeader(env.bearer(t, false))

	before := env.do(t, http.MethodPost, "/functions/v1/encrypt-totp-secret", map[string]string{"action": "encrypt", "secret": handlerSecret}, hdr)
	require.Equal(t, http.StatusOK, before.Code, before.Body.String())

	out := env.do(t, http.MethodPost, "/api/v1/auth/logout", struct{}{}, hdr)
	require.Equal(t, http.StatusNoContent, out.Code)
	assert.True(t, env.redis.Exists("session:revoked:sess-1"))

	routes := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/functions/v1/encrypt-totp-secret", map[string]string{"action": "encrypt", "secret": handlerSecret}},
		{http.MethodPost, "/functions/v1/validate-dao-vote", map[string]string{}},
		{http.MethodGet, "/api/v1/mixnet/status", nil},
		{http.MethodPost, "/api/v1/auth/logout", struct{}{}},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := env.do(t, rt.method, rt.path, rt.body, hdr)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
		})
	}
	env.sessions.AssertNumberOfCalls(t, "Revoke", 1)
}

func TestBearerRoutes_RefusedWhenRevocationStateUnreadable(t *testing.T) {
	env := newTestEnv(t)
	hdr := authHeader(env.bearer(t, false))
	env.redis.SetError("LOADING")

	rec := env.do(t, http.MethodGet, "/api/v1/mixnet/status", nil, hdr)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSetupTOTPHandler_ReturnsSecretOnce(t *testing.T) {
	env := newTestEnv(t)
	env.givenUser(t, false)
	env.totp.On("SavePending", mock.Anything, mock.AnythingOfType("*domain.TOTPCredential")).Return(nil)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/2fa/setup", struct{}{}, authHeader(env.bearer(t, false)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.NotEmpty(t, data["secret"])
	assert.Contains(t, data["otpauth_url"], "otpauth://totp/")
}

func TestProfileHandler_RequiresTwoFactor(t *testing.T) {
	env := newTestEnv(t)
	env.givenUser(t, true)
	env.sessions.On("GetByID", mock.Anything, "sess-1").Return(&domain.Session{ID: "sess-1", UserID: "user-1"}, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/users/me", nil, authHeader(env.bearer(t, false)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["two_factor_enabled"])
	assert.Equal(t, true, data["requires_two_factor"])
	user := data["user"].(map[string]any)
	assert.NotContains(t, user, "password_hash")
}
