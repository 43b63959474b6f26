package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/logger"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, map[string]string{"status": "queued"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"queued"}`, rec.Body.String())
}

func TestWriteData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusOK, map[string]int{"n": 1})
	assert.JSONEq(t, `{"data":{"n":1}}`, rec.Body.String())
}

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/validate-dao-vote", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "corr-1"))

	WriteError(rec, req, apperrors.Conflict("already voted"), testLogger())

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
	assert.Equal(t, "already voted", resp.Error.Message)
	assert.Equal(t, "corr-1", resp.Error.RequestID)
}

func TestWriteError_WrappedSentinels(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("get: %w", apperrors.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("insert: %w", apperrors.ErrAlreadyExists), http.StatusConflict, "ALREADY_EXISTS"},
		{apperrors.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{apperrors.ErrTooManyRequests, http.StatusTooManyRequests, "RATE_LIMITED"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, testLogger())
		assert.Equal(t, tt.status, rec.Code)
		assert.Equal(t, tt.code, decode(t, rec).Error.Code)
	}
}

func TestWriteError_InternalDoesNotLeak(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteError(rec, req, errors.New("pq: password authentication failed for user xxvpn"), testLogger())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password authentication")
	assert.Equal(t, "an internal error occurred", decode(t, rec).Error.Message)
}

func TestWriteError_PrefersRequestLogger(t *testing.T) {
	var buf strings.Builder
	reqLogger := slog.New(slog.NewTextHandler(&buf, nil))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(logger.NewContext(context.Background(), reqLogger))

	WriteError(httptest.NewRecorder(), req, errors.New("boom"), testLogger())

	assert.Contains(t, buf.String(), "request failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestWriteErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/functions/v1/fetch-ndf", nil)

	WriteErrorDetails(rec, req, http.StatusInternalServerError, "NDF_UNAVAILABLE", "all mirrors failed",
		[]string{"mirror-a: timeout", "mirror-b: 503"})

	resp := decode(t, rec)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{"mirror-a: timeout", "mirror-b: 503"}, resp.Error.Details)
}

func TestWriteValidationError(t *testing.T) {
	type body struct {
		Tier string `json:"tier" validate:"required"`
	}
	rec := httptest.NewRecorder()
	WriteValidationError(rec, validator.Validate(body{}))

	resp := decode(t, rec)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, "is required", resp.Error.Fields["tier"])

	rec = httptest.NewRecorder()
	WriteValidationError(rec, errors.New("decode request body: unexpected EOF"))
	resp = decode(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "EOF")

	rec = httptest.NewRecorder()
	WriteValidationError(rec, fmt.Errorf("decode: %w", &http.MaxBytesError{Limit: 1}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestNewPaginatedResponse(t *testing.T) {
	page := NewPaginatedResponse([]string{"a", "b"}, 21, 2, 10)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNext)

	last := NewPaginatedResponse[string](nil, 20, 2, 10)
	assert.Equal(t, 2, last.TotalPages)
	assert.False(t, last.HasNext)
	assert.NotNil(t, last.Data)
}

func TestParseUUID(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := ParseUUID(rec, "not-a-uuid")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id, ok := ParseUUID(httptest.NewRecorder(), "3f1c2b8e-9d4a-4c1e-8f7a-2b6d5e4c3a21")
	assert.True(t, ok)
	assert.Equal(t, "3f1c2b8e-9d4a-4c1e-8f7a-2b6d5e4c3a21", id.String())
}
