package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/juggajay/siteproof-v2-sub005/internal/ncr"
	"github.com/juggajay/siteproof-v2-sub005/internal/service"
	"github.com/juggajay/siteproof-v2-sub005/pkg/apierror"
	"github.com/juggajay/siteproof-v2-sub005/pkg/response"
)

// NCRHandler handles non-conformance report requests.
type NCRHandler struct {
	ncrService *service.NCRService
}

// NewNCRHandler creates a new NCR handler.
func NewNCRHandler(ncrService *service.NCRService) *NCRHandler {
	return &NCRHandler{ncrService: ncrService}
}

// Create handles POST /api/v1/ncrs
func (h *NCRHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var in service.CreateNCRInput
	if err := decodeBody(r, &in); err != nil {
		response.Error(w, err)
		return
	}

	n, err := h.ncrService.Create(r.Context(), caller, in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, n)
}

// Get handles GET /api/v1/ncrs/{ncr_id}
func (h *NCRHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.ncrService.Get(r.Context(), chi.URLParam(r, "ncr_id"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, n)
}

// Transitions handles GET /api/v1/ncrs/{ncr_id}/transitions
func (h *NCRHandler) Transitions(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	opts, err := h.ncrService.Allowed(r.Context(), caller, chi.URLParam(r, "ncr_id"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, opts)
}

// Transition handles POST /api/v1/ncrs/{ncr_id}/transition
func (h *NCRHandler) Transition(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var in service.TransitionInput
	if err := decodeBody(r, &in); err != nil {
		response.Error(w, err)
		return
	}

	n, err := h.ncrService.Transition(r.Context(), caller, chi.URLParam(r, "ncr_id"), in)
	if err != nil {
		if te, ok := ncr.AsTransitionError(err); ok {
			response.Error(w, transitionAPIError(te.Result))
			return
		}
		response.Error(w, err)
		return
	}
	response.OK(w, n)
}

// History handles GET /api/v1/ncrs/{ncr_id}/history
func (h *NCRHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.ncrService.History(r.Context(), chi.URLParam(r, "ncr_id"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, history)
}

// transitionAPIError maps a rejected transition to 403 for role failures and 422
// otherwise, echoing what the caller lacked.
func transitionAPIError(res ncr.Result) *apierror.Error {
	switch res.Code {
	case ncr.CodeInsufficientRole:
		return apierror.Forbidden(res.Message).
			WithCode(string(res.Code)).
			WithMeta("required_roles", res.RequiredRoles)
	case ncr.CodeMissingFields:
		return apierror.Unprocessable(res.Message).
			WithCode(string(res.Code)).
			WithMeta("missing_fields", res.MissingFields)
	default:
		return apierror.Unprocessable(res.Message).WithCode(string(res.Code))
	}
}
