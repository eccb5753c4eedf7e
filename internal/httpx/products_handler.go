package httpx

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/thalir/agrimarket/internal/cache"
	"github.com/thalir/agrimarket/internal/store"
)

type ProductsHandler struct {
	DB    *sql.DB
	Cache *cache.ProductCache
}

type productRequest struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Brand         string  `json:"brand"`
	Category      string  `json:"category"`
	Unit          string  `json:"unit"`
	ImageURL      string  `json:"image_url"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stock_quantity"`
}

func (req *productRequest) toInput() (store.ProductInput, string) {
	switch {
	case req.Name == "":
		return store.ProductInput{}, "name is required"
	case req.Category == "":
		return store.ProductInput{}, "category is required"
	case req.Price < 0:
		return store.ProductInput{}, "price must not be negative"
	case req.StockQuantity < 0:
		return store.ProductInput{}, "stock quantity must not be negative"
	}

	return store.ProductInput{
		Name:          req.Name,
		Description:   req.Description,
		Brand:         req.Brand,
		Category:      req.Category,
		Unit:          req.Unit,
		ImageURL:      req.ImageURL,
		Price:         decimal.NewFromFloat(req.Price),
		StockQuantity: req.StockQuantity,
	}, ""
}

func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	sortBy := r.URL.Query().Get("sort")

	result, err := store.ListActiveProducts(r.Context(), h.DB, MarketplaceFrom(r.Context()), page, pageSize, sortBy)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *ProductsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	if product, err := h.Cache.Get(r.Context(), MarketplaceFrom(r.Context()), id); err == nil {
		respondJSON(w, http.StatusOK, product)
		return
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("Product cache read: %v", err)
	}

	product, err := store.GetActiveProduct(r.Context(), h.DB, MarketplaceFrom(r.Context()), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if err := h.Cache.Set(r.Context(), product); err != nil {
		log.Printf("Product cache write: %v", err)
	}

	respondJSON(w, http.StatusOK, product)
}

func (h *ProductsHandler) Search(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("q")
	if keyword == "" {
		respondError(w, http.StatusBadRequest, "missing search keyword")
		return
	}

	page, pageSize := pageParams(r)
	result, err := store.SearchProducts(r.Context(), h.DB, MarketplaceFrom(r.Context()), keyword, page, pageSize)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *ProductsHandler) ByCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	page, pageSize := pageParams(r)

	result, err := store.ListProductsByCategory(r.Context(), h.DB, MarketplaceFrom(r.Context()), category, page, pageSize)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *ProductsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())

	products, err := store.ListSellerProducts(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, products)
}

func (h *ProductsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input, problem := req.toInput()
	if problem != "" {
		respondError(w, http.StatusBadRequest, problem)
		return
	}

	user := UserFrom(r.Context())
	product, err := store.CreateProduct(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID, input)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (h *ProductsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input, problem := req.toInput()
	if problem != "" {
		respondError(w, http.StatusBadRequest, problem)
		return
	}

	user := UserFrom(r.Context())
	product, err := store.UpdateProduct(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID, id, input)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.invalidate(r, id)
	respondJSON(w, http.StatusOK, product)
}

func (h *ProductsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	user := UserFrom(r.Context())
	if err := store.DeactivateProduct(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID, id); err != nil {
		respondDomainError(w, err)
		return
	}

	h.invalidate(r, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "productID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	user := UserFrom(r.Context())
	if err := store.DeleteProduct(r.Context(), h.DB, MarketplaceFrom(r.Context()), user.ID, id); err != nil {
		respondDomainError(w, err)
		return
	}

	h.invalidate(r, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) invalidate(r *http.Request, ids ...int64) {
	if err := h.Cache.Invalidate(r.Context(), MarketplaceFrom(r.Context()), ids...); err != nil {
		log.Printf("Product cache invalidate: %v", err)
	}
}
