package http

import (
	"errors"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
)

const handlerNDF = `{"Timestamp":"2026-10-01T12:00:00Z","Nodes":[{"Id":"a","Status":0},{"Id":"b","Status":0},{"Id":"c","Status":0}]}`

// ============================================================================
// encrypt-totp-secret
// ============================================================================

func TestEncryptTOTPSecret_RoundTripThenRateLimited(t *testing.T) {
	env := newTestEnv(t)
	hdr := authHeader(env.bearer(t, true))

	enc := env.do(t, http.MethodPost, "/functions/v1/encrypt-totp-secret", map[string]string{
		"action": "encrypt", "secret": handlerSecret,
	}, hdr)
	require.Equal(t, http.StatusOK, enc.Code, enc.Body.String())
	assert.Equal(t, "no-store", enc.Header().Get("Cache-Control"))
	encrypted := decodeBody(t, enc)["encrypted"].(string)
	assert.NotEqual(t, handlerSecret, encrypted)

	dec := env.do(t, http.MethodPost, "/functions/v1/encrypt-totp-secret", map[string]string{
		"action": "decrypt", "secret": encrypted,
	}, hdr)
	require.Equal(t, http.StatusOK, dec.Code, dec.Body.String())
	assert.Equal(t, handlerSecret, decodeBody(t, dec)["decrypted"])
	assert.Equal(t, "0", dec.Header().Get("X-RateLimit-Remaining"))

	limited := env.do(t, http.MethodPost, "/functions/v1/encrypt-totp-secret", map[string]string{
		"action": "encrypt", "secret": handlerSecret,
	}, hdr)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, limited))
	retry, err := strconv.Atoi(limited.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retry, 0)
}

func TestEncryptTOTPSecret_Failures(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]string
		message string
	}{
		{"invalid action", map[string]string{"action": "rotate", "secret": "x"}, "action must be encrypt or decrypt"},
		{"tampered ciphertext", map[string]string{"action": "decrypt", "secret": "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}, "secret could not be processed"},
		{"empty secret", map[string]string{"action": "encrypt", "secret": ""}, "secret could not be processed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(t, http.MethodPost, "/functions/v1/encrypt-totp-secret", tt.body, authHeader(env.bearer(t, true)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			errObj := decodeBody(t, rec)["error"].(map[string]any)
			assert.Equal(t, tt.message, errObj["message"])
		})
	}
}

// ============================================================================
// fetch-ndf / xx-network-health
// ============================================================================

func TestFetchNDF_AllMirrorsFail(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/functions/v1/fetch-ndf", nil, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	errObj := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "NDF_UNAVAILABLE", errObj["code"])
	details := errObj["details"].([]any)
	assert.Len(t, details, 1)
}

func TestFetchNDF_Success(t *testing.T) {
	env := newTestEnv(t)
	env.ndf.set(http.StatusOK, handlerNDF)

	rec := env.do(t, http.MethodGet, "/functions/v1/fetch-ndf", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Contains(t, body["ndf"], `"Nodes"`)
	assert.NotEmpty(t, body["source"])
	assert.Contains(t, body, "signature")
	assert.Contains(t, body, "timestamp")
}

func TestNetworkHealth_HealthyAndCacheable(t *testing.T) {
	env := newTestEnv(t)
	env.ndf.set(http.StatusOK, handlerNDF)

	rec := env.do(t, http.MethodGet, "/functions/v1/xx-network-health", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(3), body["totalNodes"])
	assert.Equal(t, float64(3), body["activeNodes"])
}

func TestNetworkHealth_DegradedNeverFails(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/functions/v1/xx-network-health", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, float64(0), body["totalNodes"])
	assert.Equal(t, float64(0), body["activeNodes"])
}

// ============================================================================
// xx-webhook
// ============================================================================

const webhookBody = `{"wallet_address":"xx1wallet","tier":"ultimate","status":"active","tx_hash":"0xfeed"}`

func TestWebhook_SignedPaymentApplied(t *testing.T) {
	env := newTestEnv(t)
	sub := &domain.Subscription{UserID: "user-1", Tier: domain.TierUltimate, Status: domain.SubscriptionActive, WalletAddress: "xx1wallet"}
	env.subs.On("ApplyPayment", mock.Anything, mock.MatchedBy(func(n *domain.PaymentNotice) bool {
		return n.WalletAddress == "xx1wallet" && n.Tier == domain.TierUltimate && n.TxHash == "0xfeed"
	}), mock.Anything).Return(sub, nil)
	env.events.On("PublishSubscriptionUpdated", mock.Anything, sub, "payment_confirmed").Return(nil)

	rec := env.do(t, http.MethodPost, "/functions/v1/xx-webhook", webhookBody, http.Header{
		"X-Webhook-Signature": []string{env.webhook.Sign([]byte(webhookBody))},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["success"])
}

func TestWebhook_BadSignature(t *testing.T) {
	env := newTestEnv(t)

	for _, sig := range []string{"", "00", env.webhook.Sign([]byte(webhookBody + "x"))} {
		rec := env.do(t, http.MethodPost, "/functions/v1/xx-webhook", webhookBody, http.Header{
			"X-Webhook-Signature": []string{sig},
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	env.subs.AssertNotCalled(t, "ApplyPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhook_UnknownWallet(t *testing.T) {
	env := newTestEnv(t)
	env.subs.On("ApplyPayment", mock.Anything, mock.Anything, mock.Anything).Return(nil, apperrors.NotFound("subscription", "xx1wallet"))

	rec := env.do(t, http.MethodPost, "/functions/v1/xx-webhook", webhookBody, http.Header{
		"X-Webhook-Signature": []string{env.webhook.Sign([]byte(webhookBody))},
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================================================
// manage-subscription
// ============================================================================

func TestManageSubscription_StartTrial(t *testing.T) {
	env := newTestEnv(t)
	sub := &domain.Subscription{UserID: "user-1", Tier: domain.TierPremium, Status: domain.SubscriptionTrialing}
	env.subs.On("StartTrial", mock.Anything, "user-1", mock.Anything).Return(sub, true, nil)
	env.events.On("PublishSubscriptionUpdated", mock.Anything, sub, "trial_started").Return(nil)

	rec := env.do(t, http.MethodPost, "/functions/v1/manage-subscription", map[string]string{"action": "start-trial"}, authHeader(env.bearer(t, false)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody(t, rec)["subscription"].(map[string]any)
	assert.Equal(t, "premium", got["tier"])
	assert.Equal(t, "trialing", got["status"])
}

func TestManageSubscription_InvalidTier(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/functions/v1/manage-subscription", map[string]string{
		"action": "update-tier", "tier": "gold",
	}, authHeader(env.bearer(t, false)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env.subs.AssertNotCalled(t, "UpdateTier", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// ============================================================================
// validate-dao-vote
// ============================================================================

const proposalID = "6f1c1d2e-8a4b-4a55-9a7e-1b2c3d4e5f60"

func TestValidateDAOVote(t *testing.T) {
	tests := []struct {
		name     string
		repoErr  error
		wantCode int
	}{
		{"recorded", nil, http.StatusOK},
		{"already voted", apperrors.AlreadyExists("vote", "proposal", proposalID), http.StatusConflict},
		{"insufficient balance", apperrors.InvalidInput("insufficient balance"), http.StatusBadRequest},
		{"unknown proposal", apperrors.NotFound("proposal", proposalID), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.repoErr != nil {
				env.proposals.On("CastVote", mock.Anything, proposalID, "user-1", domain.SupportAgainst, mock.Anything).Return(nil, tt.repoErr)
			} else {
				vote := &domain.Vote{ProposalID: proposalID, VoterID: "user-1", Support: domain.SupportAgainst, VotingPower: 40}
				env.proposals.On("CastVote", mock.Anything, proposalID, "user-1", domain.SupportAgainst, mock.Anything).Return(&domain.VoteResult{
					Success: true, Vote: vote, Proposal: &domain.Proposal{ID: proposalID, VotesAgainst: 40}, VotingPower: 40,
				}, nil)
				env.events.On("PublishVoteCast", mock.Anything, vote).Return(errors.New("kafka down"))
			}

			rec := env.do(t, http.MethodPost, "/functions/v1/validate-dao-vote", map[string]string{
				"proposalId": proposalID, "support": "against",
			}, authHeader(env.bearer(t, false)))

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.repoErr == nil {
				body := decodeBody(t, rec)
				assert.Equal(t, true, body["success"])
				assert.Equal(t, float64(40), body["voting_power"])
			}
		})
	}
}

func TestValidateDAOVote_BadSupport(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/functions/v1/validate-dao-vote", map[string]string{
		"proposalId": proposalID, "support": "maybe",
	}, authHeader(env.bearer(t, false)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

// ============================================================================
// send-beta-confirmation
// ============================================================================

func TestSendBetaConfirmation(t *testing.T) {
	env := newTestEnv(t)
	env.events.On("PublishBetaSignupRequested", mock.Anything, mock.MatchedBy(func(s *domain.BetaSignup) bool {
		return s.Name == "Ada" && s.Email == "ada@example.com"
	})).Return(nil)

	rec := env.do(t, http.MethodPost, "/functions/v1/send-beta-confirmation", map[string]string{
		"name": "Ada", "email": "ada@example.com",
	}, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	env.events.AssertExpectations(t)
}

func TestSendBetaConfirmation_QueueDown(t *testing.T) {
	env := newTestEnv(t)
	env.events.On("PublishBetaSignupRequested", mock.Anything, mock.Anything).Return(errors.New("no brokers"))

	rec := env.do(t, http.MethodPost, "/functions/v1/send-beta-confirmation", map[string]string{
		"name": "Ada", "email": "ada@example.com",
	}, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
