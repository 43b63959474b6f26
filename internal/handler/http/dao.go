package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/service"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/httputil"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/pagination"
)

// DAOHandler serves the proposal listing routes.
type DAOHandler struct {
	service *service.DAOService
	logger  *slog.Logger
}

func NewDAOHandler(svc *service.DAOService, logger *slog.Logger) *DAOHandler {
	return &DAOHandler{service: svc, logger: logger}
}

// ListProposals handles GET /api/v1/dao/proposals
func (h *DAOHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	page := pagination.FromRequest(r)

	proposals, total, err := h.service.ListProposals(r.Context(), page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(proposals, total, page.Page, page.PerPage))
}

// GetProposal handles GET /api/v1/dao/proposals/{id}
func (h *DAOHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	proposal, err := h.service.GetProposal(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, proposal)
}
