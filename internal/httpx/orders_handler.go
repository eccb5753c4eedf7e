package httpx

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"github.com/thalir/agrimarket/internal/cache"
	"github.com/thalir/agrimarket/internal/models"
	"github.com/thalir/agrimarket/internal/store"
)

type OrdersHandler struct {
	DB    *sql.DB
	Cache *cache.ProductCache
}

func (h *OrdersHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeliveryAddress string `json:"delivery_address"`
		DeliveryPhone   string `json:"delivery_phone"`
		Notes           string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeliveryAddress == "" {
		respondError(w, http.StatusBadRequest, "delivery address is required")
		return
	}

	user := UserFrom(r.Context())
	order, err := store.Checkout(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID, store.CheckoutRequest{
		DeliveryAddress: req.DeliveryAddress,
		DeliveryPhone:   req.DeliveryPhone,
		Notes:           req.Notes,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.invalidateProducts(r, order)
	respondJSON(w, http.StatusCreated, order)
}

// My lists the buyer's own orders, newest first. A cursor query parameter
// switches to keyset paging; otherwise page/page_size offset paging applies.
func (h *OrdersHandler) My(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())
	mkt := MarketplaceFrom(r.Context())

	if r.URL.Query().Has("cursor") {
		_, pageSize := pageParams(r)
		result, err := store.ListOrdersForBuyerCursor(r.Context(), h.DB, mkt, user.ID, r.URL.Query().Get("cursor"), pageSize)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
		return
	}

	page, pageSize := pageParams(r)
	result, err := store.ListOrdersForBuyer(r.Context(), h.DB, mkt, user.ID, page, pageSize)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *OrdersHandler) MyOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(r, "orderID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	user := UserFrom(r.Context())
	order, err := store.GetOrderForBuyer(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID, orderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(r, "orderID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	user := UserFrom(r.Context())
	order, err := store.CancelOrder(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID, orderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.invalidateProducts(r, order)
	respondJSON(w, http.StatusOK, order)
}

// Received lists the orders a seller has to fulfil.
func (h *OrdersHandler) Received(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())
	page, pageSize := pageParams(r)

	result, err := store.ListOrdersForSeller(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID, page, pageSize)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(r, "orderID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	newStatus, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user := UserFrom(r.Context())
	order, err := store.UpdateOrderStatus(r.Context(), h.DB, MarketplaceFrom(r.Context()), user, orderID, newStatus)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// All is the admin view of a marketplace's orders.
func (h *OrdersHandler) All(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := store.ListAllOrders(r.Context(), h.DB, MarketplaceFrom(r.Context()), page, pageSize)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *OrdersHandler) invalidateProducts(r *http.Request, order *models.Order) {
	ids := make([]int64, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}

	if err := h.Cache.Invalidate(r.Context(), order.Marketplace, ids...); err != nil {
		log.Printf("Product cache invalidate: %v", err)
	}
}
