package http

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/ndf"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/service"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/httputil"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/validator"
)

// webhookMaxBody bounds the raw webhook body read before signature checks.
const webhookMaxBody = 64 << 10

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "x-webhook-signature"

// FunctionsDependencies groups the services behind the /functions/v1 routes.
type FunctionsDependencies struct {
	Secrets       *service.SecretService
	Subscriptions *service.SubscriptionService
	DAO           *service.DAOService
	Beta          *service.BetaService
	Webhook       *service.WebhookService
	NDF           *ndf.Fetcher
}

// FunctionsHandler serves the fixed-contract function routes. Successful
// responses are bare JSON objects, not wrapped in a data envelope.
type FunctionsHandler struct {
	deps   FunctionsDependencies
	logger *slog.Logger
}

func NewFunctionsHandler(deps FunctionsDependencies, logger *slog.Logger) *FunctionsHandler {
	return &FunctionsHandler{deps: deps, logger: logger}
}

// --- Request DTOs ---

type SecretRequest struct {
	Action string `json:"action" validate:"required"`
	Secret string `json:"secret"`
}

type ManageSubscriptionRequest struct {
	Action string `json:"action" validate:"required"`
	Tier   string `json:"tier" validate:"omitempty,max=32"`
}

type DAOVoteRequest struct {
	ProposalID string `json:"proposalId" validate:"required,uuid"`
	Support    string `json:"support" validate:"required,oneof=for against abstain"`
}

type BetaConfirmationRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
}

// --- Handlers ---

// EncryptTOTPSecret handles POST /functions/v1/encrypt-totp-secret
func (h *FunctionsHandler) EncryptTOTPSecret(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req SecretRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.deps.Secrets.Process(r.Context(), userID, service.SecretAction(req.Action), req.Secret)
	if err != nil {
		var rl *service.RateLimitedError
		if errors.As(err, &rl) {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	key := "encrypted"
	if result.Action == service.ActionDecrypt {
		key = "decrypted"
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{key: result.Value})
}

// FetchNDF handles GET /functions/v1/fetch-ndf
func (h *FunctionsHandler) FetchNDF(w http.ResponseWriter, r *http.Request) {
	doc, err := h.deps.NDF.Fetch(r.Context())
	if err != nil {
		var fetchErr *ndf.FetchError
		if errors.As(err, &fetchErr) {
			h.logger.ErrorContext(r.Context(), "all ndf mirrors failed",
				slog.Int("attempts", len(fetchErr.Attempts)),
			)
			httputil.WriteErrorDetails(w, r, http.StatusInternalServerError,
				"NDF_UNAVAILABLE", "failed to fetch NDF from all sources", fetchErr.Details())
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, doc)
}

// NetworkHealth handles GET /functions/v1/xx-network-health. It always
// answers 200; an unreachable network is reported as degraded.
func (h *FunctionsHandler) NetworkHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.deps.NDF.Health(r.Context()))
}

// Webhook handles POST /functions/v1/xx-webhook. The signature covers the
// raw body, so it is read in full before anything is decoded.
func (h *FunctionsHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, webhookMaxBody))
	if err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sub, err := h.deps.Webhook.Handle(r.Context(), r.Header.Get(SignatureHeader), body)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "subscription": sub})
}

// ManageSubscription handles POST /functions/v1/manage-subscription
func (h *FunctionsHandler) ManageSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req ManageSubscriptionRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.deps.Subscriptions.Manage(r.Context(), userID, service.ManageSubscriptionInput{
		Action: service.SubscriptionAction(req.Action),
		Tier:   domain.Tier(req.Tier),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// ValidateDAOVote handles POST /functions/v1/validate-dao-vote
func (h *FunctionsHandler) ValidateDAOVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req DAOVoteRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.deps.DAO.CastVote(r.Context(), userID, service.CastVoteInput{
		ProposalID: req.ProposalID,
		Support:    domain.VoteSupport(req.Support),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// SendBetaConfirmation handles POST /functions/v1/send-beta-confirmation.
// The email goes out asynchronously, so success is 202.
func (h *FunctionsHandler) SendBetaConfirmation(w http.ResponseWriter, r *http.Request) {
	var req BetaConfirmationRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.deps.Beta.RequestConfirmation(r.Context(), req.Name, req.Email); err != nil {
		if errors.Is(err, apperrors.ErrServiceUnavail) {
			h.logger.WarnContext(r.Context(), "beta confirmation not queued", slog.String("error", err.Error()))
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]any{"success": true, "message": "confirmation email queued"})
}
