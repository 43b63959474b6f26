package http

import (
	"log/slog"
	"net/http"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/mixnet"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/httputil"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/validator"
)

// MixnetHandler drives the signed-in user's mixnet client.
type MixnetHandler struct {
	manager *mixnet.Manager
	logger  *slog.Logger
}

func NewMixnetHandler(manager *mixnet.Manager, logger *slog.Logger) *MixnetHandler {
	return &MixnetHandler{manager: manager, logger: logger}
}

// InitializeRequest carries the keystore password. It is never logged.
type InitializeRequest struct {
	Password string `json:"password" validate:"required,min=8,max=256"`
}

// Initialize handles POST /api/v1/mixnet/initialize
func (h *MixnetHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req InitializeRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	status, err := h.manager.Initialize(r.Context(), userID, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, status)
}

// Connect handles POST /api/v1/mixnet/connect
func (h *MixnetHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	status, err := h.manager.Connect(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, status)
}

// Disconnect handles POST /api/v1/mixnet/disconnect
func (h *MixnetHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	status, err := h.manager.Disconnect(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, status)
}

// Status handles GET /api/v1/mixnet/status
func (h *MixnetHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	httputil.WriteData(w, http.StatusOK, h.manager.Status(r.Context(), userID))
}
