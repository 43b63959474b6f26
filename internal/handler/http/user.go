package http

import (
	"log/slog"
	"net/http"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/service"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/httputil"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/middleware"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/validator"
)

// UserHandler handles the signed-in user's profile and subscription.
type UserHandler struct {
	auth          *service.AuthService
	subscriptions *service.SubscriptionService
	logger        *slog.Logger
}

func NewUserHandler(auth *service.AuthService, subscriptions *service.SubscriptionService, logger *slog.Logger) *UserHandler {
	return &UserHandler{auth: auth, subscriptions: subscriptions, logger: logger}
}

type BindWalletRequest struct {
	WalletAddress string `json:"wallet_address" validate:"required,max=128"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=100"`
}

// GetProfile handles GET /api/v1/users/me
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	profile, err := h.auth.Profile(r.Context(), userID, middleware.SessionIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, profile)
}

// UpdateProfile handles PUT /api/v1/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), userID, service.UpdateProfileInput{DisplayName: req.DisplayName})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, user)
}

// GetSubscription handles GET /api/v1/subscription
func (h *UserHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	sub, err := h.subscriptions.Get(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, sub)
}

// BindWallet handles PUT /api/v1/subscription/wallet
func (h *UserHandler) BindWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req BindWalletRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sub, err := h.subscriptions.BindWallet(r.Context(), userID, req.WalletAddress)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, sub)
}
