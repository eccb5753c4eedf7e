package httpx

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/thalir/agrimarket/internal/store"
)

type CartHandler struct {
	DB *sql.DB
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())

	cart, err := store.GetOrCreateCart(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID <= 0 || req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "product_id and a positive quantity are required")
		return
	}

	user := UserFrom(r.Context())
	cart, err := store.AddCartItem(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID, req.ProductID, req.Quantity)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

// UpdateItem sets a line's quantity; zero or less removes the line.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := idParam(r, "itemID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid cart item ID")
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user := UserFrom(r.Context())
	cart, err := store.UpdateCartItem(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID, itemID, req.Quantity)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := idParam(r, "itemID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid cart item ID")
		return
	}

	user := UserFrom(r.Context())
	cart, err := store.RemoveCartItem(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID, itemID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())

	if err := store.ClearCart(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID); err != nil {
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
