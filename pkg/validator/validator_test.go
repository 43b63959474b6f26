package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type voteRequest struct {
	ProposalID string `json:"proposalId" validate:"required,uuid"`
	Support    string `json:"support" validate:"required,oneof=for against abstain"`
}

type codeRequest struct {
	Code  string `json:"code" validate:"required,len=6,numeric"`
	Email string `json:"email" validate:"required,email"`
}

func TestValidate_Success(t *testing.T) {
	err := Validate(voteRequest{ProposalID: "3f1c2b8e-9d4a-4c1e-8f7a-2b6d5e4c3a21", Support: "for"})
	assert.NoError(t, err)
}

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	err := Validate(voteRequest{Support: "maybe"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["proposalId"])
	assert.Equal(t, "must be one of: for against abstain", fields["support"])
}

func TestValidate_Messages(t *testing.T) {
	err := Validate(codeRequest{Code: "12a", Email: "nope"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be exactly 6 characters", valErr.Fields()["code"])
	assert.Equal(t, "must be a valid email address", valErr.Fields()["email"])
	assert.Contains(t, valErr.Error(), "field 'code'")
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		empty   bool
	}{
		{"valid", `{"code":"123456","email":"a@b.io"}`, false, false},
		{"malformed", `{"code":`, true, false},
		{"empty", ``, true, true},
		{"invalid", `{"code":"12","email":"a@b.io"}`, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var dst codeRequest
			err := DecodeAndValidate(rec, req, &dst)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "123456", dst.Code)
				return
			}
			require.Error(t, err)
			if tt.empty {
				assert.ErrorIs(t, err, ErrEmptyBody)
			}
		})
	}
}

func TestDecodeAndValidate_BodyTooLarge(t *testing.T) {
	big := `{"code":"` + strings.Repeat("1", MaxBodyBytes+1) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))

	var dst codeRequest
	err := DecodeAndValidate(httptest.NewRecorder(), req, &dst)
	require.Error(t, err)
}
