package httpx

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/thalir/agrimarket/internal/cache"
)

// NewRouter wires the full route surface. Both marketplaces share every
// handler; the {marketplace} segment picks which catalog, carts and orders a
// request operates on, and buyer/seller role gates differ accordingly.
func NewRouter(db *sql.DB, productCache *cache.ProductCache) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	uh := &UsersHandler{DB: db}
	ph := &ProductsHandler{DB: db, Cache: productCache}
	ch := &CartHandler{DB: db}
	oh := &OrdersHandler{DB: db, Cache: productCache}

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Use(Identity(db), RequireAdmin)
			r.Post("/", uh.Create)
			r.Get("/", uh.List)
			r.Get("/{userID}", uh.Get)
		})

		r.Route("/{marketplace}", func(r chi.Router) {
			r.Use(MarketplaceCtx)

			// Public catalog reads.
			r.Get("/products", ph.List)
			r.Get("/products/search", ph.Search)
			r.Get("/products/category/{category}", ph.ByCategory)
			r.Get("/products/{productID}", ph.Get)

			// Seller catalog management.
			r.Group(func(r chi.Router) {
				r.Use(Identity(db), RequireSeller)
				r.Get("/products/mine", ph.Mine)
				r.Post("/products", ph.Create)
				r.Put("/products/{productID}", ph.Update)
				r.Patch("/products/{productID}/deactivate", ph.Deactivate)
				r.Delete("/products/{productID}", ph.Delete)
			})

			r.Route("/cart", func(r chi.Router) {
				r.Use(Identity(db), RequireBuyer)
				r.Get("/", ch.Get)
				r.Post("/items", ch.AddItem)
				r.Put("/items/{itemID}", ch.UpdateItem)
				r.Delete("/items/{itemID}", ch.RemoveItem)
				r.Delete("/", ch.Clear)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Use(Identity(db))

				r.Group(func(r chi.Router) {
					r.Use(RequireBuyer)
					r.Post("/checkout", oh.Checkout)
					r.Get("/my", oh.My)
					r.Get("/my/{orderID}", oh.MyOrder)
					r.Patch("/my/{orderID}/cancel", oh.Cancel)
				})

				r.With(RequireSeller).Get("/received", oh.Received)
				r.With(RequireSeller).Patch("/{orderID}/status", oh.UpdateStatus)
				r.With(RequireAdmin).Get("/", oh.All)
			})
		})
	})

	return r
}
