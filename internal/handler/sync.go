package handler

import (
	"net/http"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/internal/service"
	"github.com/juggajay/siteproof-v2-sub005/pkg/response"
)

// HeaderIdempotentReplay marks a sync response served from the idempotency cache.
const HeaderIdempotentReplay = "Idempotent-Replayed"

// SyncHandler handles device synchronization requests.
type SyncHandler struct {
	syncService *service.SyncService
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(syncService *service.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// Sync handles POST /api/v1/sync
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	body, err := readBody(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	out, err := h.syncService.Sync(r.Context(), caller, body)
	if err != nil {
		response.Error(w, err)
		return
	}

	if out.Replayed {
		w.Header().Set(HeaderIdempotentReplay, "true")
	}
	response.OK(w, out.Response)
}

// BulkDownload handles POST /api/v1/sync/download
func (h *SyncHandler) BulkDownload(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req model.BulkDownloadRequest
	if err := decodeBody(r, &req); err != nil {
		response.Error(w, err)
		return
	}

	resp, err := h.syncService.BulkDownload(r.Context(), caller, &req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, resp)
}

// Resolve handles POST /api/v1/sync/resolve
func (h *SyncHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req model.ResolveRequest
	if err := decodeBody(r, &req); err != nil {
		response.Error(w, err)
		return
	}

	resp, err := h.syncService.ResolveConflict(r.Context(), caller, &req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, resp)
}
