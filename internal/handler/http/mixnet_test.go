package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMixnet_ConnectBeforeInitialize(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/mixnet/connect", struct{}{}, authHeader(env.bearer(t, false)))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOT_INITIALIZED", errorCode(t, rec))
}

func TestMixnet_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	hdr := authHeader(env.bearer(t, false))

	initRec := env.do(t, http.MethodPost, "/api/v1/mixnet/initialize", map[string]string{"password": "keystore-pass"}, hdr)
	require.Equal(t, http.StatusOK, initRec.Code, initRec.Body.String())
	data := decodeBody(t, initRec)["data"].(map[string]any)
	assert.Equal(t, "mock", data["mode"])
	assert.Equal(t, true, data["initialized"])
	assert.Equal(t, false, data["connected"])
	assert.NotEmpty(t, data["reception_id"])

	conn := env.do(t, http.MethodPost, "/api/v1/mixnet/connect", struct{}{}, hdr)
	require.Equal(t, http.StatusOK, conn.Code, conn.Body.String())
	assert.Equal(t, true, decodeBody(t, conn)["data"].(map[string]any)["connected"])

	status := env.do(t, http.MethodGet, "/api/v1/mixnet/status", nil, hdr)
	require.Equal(t, http.StatusOK, status.Code)
	assert.Equal(t, "no-store", status.Header().Get("Cache-Control"))
	statusData := decodeBody(t, status)["data"].(map[string]any)
	assert.Equal(t, true, statusData["connected"])
	network := statusData["network"].(map[string]any)
	assert.Equal(t, "degraded", network["status"])

	disc := env.do(t, http.MethodPost, "/api/v1/mixnet/disconnect", struct{}{}, hdr)
	require.Equal(t, http.StatusOK, disc.Code)
	assert.Equal(t, false, decodeBody(t, disc)["data"].(map[string]any)["connected"])
}

func TestMixnet_WrongKeystorePassword(t *testing.T) {
	env := newTestEnv(t)
	hdr := authHeader(env.bearer(t, false))

	first := env.do(t, http.MethodPost, "/api/v1/mixnet/initialize", map[string]string{"password": "keystore-pass"}, hdr)
	require.Equal(t, http.StatusOK, first.Code)

	second := env.do(t, http.MethodPost, "/api/v1/mixnet/initialize", map[string]string{"password": "another-pass"}, hdr)
	assert.Equal(t, http.StatusUnauthorized, second.Code)
	assert.Equal(t, "KEYSTORE_LOCKED", errorCode(t, second))
}

func TestMixnet_ShortPasswordRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/mixnet/initialize", map[string]string{"password": "short"}, authHeader(env.bearer(t, false)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}
