package editapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/lotsync/internal/httpserver"
	"github.com/wisbric/lotsync/pkg/inventory"
	"github.com/wisbric/lotsync/pkg/tenant"
)

// Handler provides HTTP handlers for the item mutation API. Authentication
// and RBAC are out of scope for this service — the caller is trusted to
// have already authorized the request upstream and supplies the actor as
// the X-Actor-ID header.
type Handler struct {
	svc *Service
}

// NewHandler creates an editapi Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes returns a chi.Router with all item mutation routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Post("/adjust", h.handleAdjust)
		r.Post("/file", h.handleAddToFile)
		r.Delete("/file", h.handleRemoveFromFile)
	})
	return r
}

func actorID(r *http.Request) uuid.UUID {
	id, _ := uuid.Parse(r.Header.Get("X-Actor-ID"))
	return id
}

func itemID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

type createRequest struct {
	PartNumber        string              `json:"partNumber" validate:"required"`
	ColorID           string              `json:"colorId"`
	Location          string              `json:"location"`
	FileID            string              `json:"fileId"`
	Condition         inventory.Condition `json:"condition" validate:"required"`
	QuantityAvailable int                 `json:"quantityAvailable" validate:"gte=0"`
	QuantityReserved  int                 `json:"quantityReserved" validate:"gte=0"`
	PriceCents        *int64              `json:"priceCents"`
	Notes             string              `json:"notes"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t := tenant.FromContext(r.Context())
	id, err := h.svc.CreateItem(r.Context(), t.ID, actorID(r), CreateFields{
		PartNumber:        req.PartNumber,
		ColorID:           req.ColorID,
		Location:          req.Location,
		FileID:            req.FileID,
		Condition:         req.Condition,
		QuantityAvailable: req.QuantityAvailable,
		QuantityReserved:  req.QuantityReserved,
		PriceCents:        req.PriceCents,
		Notes:             req.Notes,
	})
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create item")
		return
	}

	httpserver.Respond(w, http.StatusCreated, map[string]string{"itemId": id.String()})
}

type updateRequest struct {
	Location          *string              `json:"location"`
	FileID            *string              `json:"fileId"`
	Condition         *inventory.Condition `json:"condition"`
	QuantityAvailable *int                 `json:"quantityAvailable" validate:"omitempty,gte=0"`
	Notes             *string              `json:"notes"`
	PriceCents        **int64              `json:"priceCents"`
	Reason            string               `json:"reason"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid item id")
		return
	}

	var req updateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t := tenant.FromContext(r.Context())
	if err := h.svc.UpdateItem(r.Context(), t.ID, actorID(r), id, UpdatePatch{
		Location:          req.Location,
		FileID:            req.FileID,
		Condition:         req.Condition,
		QuantityAvailable: req.QuantityAvailable,
		Notes:             req.Notes,
		PriceCents:        req.PriceCents,
	}, req.Reason); err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update item")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "updated"})
}

type adjustRequest struct {
	DeltaAvailable int    `json:"deltaAvailable" validate:"required"`
	Reason         string `json:"reason"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid item id")
		return
	}

	var req adjustRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t := tenant.FromContext(r.Context())
	if err := h.svc.AdjustQuantity(r.Context(), t.ID, actorID(r), id, req.DeltaAvailable, req.Reason); err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to adjust item quantity")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "adjusted"})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid item id")
		return
	}

	t := tenant.FromContext(r.Context())
	if err := h.svc.DeleteItem(r.Context(), t.ID, actorID(r), id, ""); err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete item")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type fileRequest struct {
	FileID string `json:"fileId" validate:"required"`
}

func (h *Handler) handleAddToFile(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid item id")
		return
	}

	var req fileRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t := tenant.FromContext(r.Context())
	if err := h.svc.AddItemToFile(r.Context(), t.ID, id, req.FileID); err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to add item to file")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "added"})
}

func (h *Handler) handleRemoveFromFile(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid item id")
		return
	}

	t := tenant.FromContext(r.Context())
	if err := h.svc.RemoveItemFromFile(r.Context(), t.ID, id); err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to remove item from file")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "removed"})
}
