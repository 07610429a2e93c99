package statusquery

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/lotsync/internal/httpserver"
	"github.com/wisbric/lotsync/pkg/tenant"
)

// Handler provides HTTP handlers for the read-side status projection.
type Handler struct {
	svc *Service
}

// NewHandler creates a statusquery Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes returns a chi.Router with all status query routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/{id}/sync-status", h.handleGetSyncStatus)
	return r
}

func (h *Handler) handleGetSyncStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid item id")
		return
	}

	t := tenant.FromContext(r.Context())
	status, err := h.svc.GetItemSyncStatus(r.Context(), t.ID, id)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to load sync status")
		return
	}

	httpserver.Respond(w, http.StatusOK, status)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	cursor, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	t := tenant.FromContext(r.Context())
	q := ListItemsQuery{
		TenantID:   t.ID,
		PartNumber: r.URL.Query().Get("partNumber"),
		FileID:     r.URL.Query().Get("fileId"),
		Cursor:     cursor,
	}

	if v := r.URL.Query().Get("archived"); v != "" {
		archived := v == "true"
		q.Archived = &archived
	}

	page, err := h.svc.ListItems(r.Context(), q)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list items")
		return
	}

	httpserver.Respond(w, http.StatusOK, page)
}
