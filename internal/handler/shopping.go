package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MariuszDW/BuyBuy-sub001/internal/model"
	"github.com/MariuszDW/BuyBuy-sub001/internal/store"
	"github.com/shopspring/decimal"
)

type ShoppingHandler struct {
	store     *store.ShoppingStore
	retention time.Duration
	logger    *slog.Logger
}

func NewShoppingHandler(s *store.ShoppingStore, retention time.Duration, logger *slog.Logger) *ShoppingHandler {
	return &ShoppingHandler{store: s, retention: retention, logger: logger}
}

type listRequest struct {
	Name      string  `json:"name"`
	Note      *string `json:"note"`
	SortOrder int     `json:"sort_order"`
	Color     string  `json:"color"`
}

func (r listRequest) list(id string) model.ShoppingList {
	return model.ShoppingList{
		ID:        id,
		Name:      r.Name,
		Note:      r.Note,
		SortOrder: r.SortOrder,
		Color:     model.ParseListColor(r.Color),
	}
}

type itemRequest struct {
	ListID    *string          `json:"list_id"`
	Name      string           `json:"name"`
	Note      string           `json:"note"`
	Status    string           `json:"status"`
	Quantity  *decimal.Decimal `json:"quantity"`
	Unit      string           `json:"unit"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	SortOrder int              `json:"sort_order"`
	ImageIDs  []string         `json:"image_ids"`
}

func (r itemRequest) item(id string) (model.ShoppingItem, error) {
	item := model.ShoppingItem{
		ID:        id,
		ListID:    r.ListID,
		Name:      r.Name,
		Note:      r.Note,
		Status:    model.ItemStatus(r.Status),
		Quantity:  r.Quantity,
		UnitPrice: r.UnitPrice,
		SortOrder: r.SortOrder,
		ImageIDs:  r.ImageIDs,
	}
	if r.Unit != "" {
		unit, err := model.ParseUnit(r.Unit)
		if err != nil {
			return item, model.Invalid("unit", err.Error())
		}
		item.Unit = &unit
	}
	return item, nil
}

func (h *ShoppingHandler) ListLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.store.FetchAllLists(r.Context())
	if err != nil {
		h.fail(w, "fetch lists", err)
		return
	}
	if lists == nil {
		lists = []model.ShoppingList{}
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *ShoppingHandler) GetList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.FetchList(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "fetch list", err)
		return
	}
	if list == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "list not found"})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ShoppingHandler) CreateList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	list, err := h.store.AddList(r.Context(), req.list(""))
	if err != nil {
		h.fail(w, "add list", err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (h *ShoppingHandler) UpdateList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	list, err := h.store.UpdateList(r.Context(), req.list(r.PathValue("id")))
	if err != nil {
		h.fail(w, "update list", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// DeleteList trashes the list's items unless ?items=delete is given.
func (h *ShoppingHandler) DeleteList(w http.ResponseWriter, r *http.Request) {
	policy := store.SoftDeleteItems
	if r.URL.Query().Get("items") == "delete" {
		policy = store.CascadeItems
	}
	if err := h.store.DeleteList(r.Context(), r.PathValue("id"), policy); err != nil {
		h.fail(w, "delete list", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShoppingHandler) ReorderLists(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.store.ReorderLists(r.Context(), ids); err != nil {
		h.fail(w, "reorder lists", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShoppingHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.FetchItems(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "fetch items", err)
		return
	}
	if items == nil {
		items = []model.ShoppingItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ShoppingHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.store.FetchItem(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "fetch item", err)
		return
	}
	if item == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ShoppingHandler) ReorderItems(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.store.ReorderItems(r.Context(), r.PathValue("id"), ids); err != nil {
		h.fail(w, "reorder items", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShoppingHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	listID := r.PathValue("id")
	req.ListID = &listID

	item, err := req.item("")
	if err != nil {
		h.fail(w, "add item", err)
		return
	}
	added, err := h.store.AddItem(r.Context(), item)
	if err != nil {
		h.fail(w, "add item", err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *ShoppingHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	item, err := req.item(r.PathValue("id"))
	if err != nil {
		h.fail(w, "update item", err)
		return
	}
	updated, err := h.store.UpdateItem(r.Context(), item)
	if err != nil {
		h.fail(w, "update item", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ShoppingHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShoppingHandler) TrashItem(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SoftDeleteItem(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "trash item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShoppingHandler) RestoreItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListID string `json:"list_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.store.RestoreItem(r.Context(), r.PathValue("id"), req.ListID); err != nil {
		h.fail(w, "restore item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShoppingHandler) ListTrash(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.FetchDeletedItems(r.Context())
	if err != nil {
		h.fail(w, "fetch trash", err)
		return
	}
	if items == nil {
		items = []model.ShoppingItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// CleanTrash purges trashed items older than the configured retention, or
// all of them with ?all=true.
func (h *ShoppingHandler) CleanTrash(w http.ResponseWriter, r *http.Request) {
	retention := h.retention
	if r.URL.Query().Get("all") == "true" {
		retention = 0
	}
	res, err := h.store.CleanOrphanedItems(r.Context(), retention)
	if err != nil {
		h.fail(w, "clean trash", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": res.Removed, "image_ids": res.ImageIDs})
}

func (h *ShoppingHandler) fail(w http.ResponseWriter, op string, err error) {
	var (
		ve *model.ValidationError
		nf *model.NotFoundError
		wc *model.WriteConflictError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error(), "field": ve.Field})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nf.Error()})
	case errors.As(err, &wc):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "store is busy, retry"})
	case errors.Is(err, store.ErrSerializerClosed):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to " + op})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
