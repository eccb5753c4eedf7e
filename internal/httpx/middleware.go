package httpx

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/thalir/agrimarket/internal/models"
	"github.com/thalir/agrimarket/internal/store"
)

type contextKey int

const (
	userContextKey contextKey = iota
	marketplaceContextKey
)

// MarketplaceCtx resolves the {marketplace} URL segment; unknown marketplaces
// are a 404, not a 400, because the whole subtree does not exist.
func MarketplaceCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mkt, err := models.ParseMarketplace(chi.URLParam(r, "marketplace"))
		if err != nil {
			respondError(w, http.StatusNotFound, "unknown marketplace")
			return
		}

		ctx := context.WithValue(r.Context(), marketplaceContextKey, mkt)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Identity trusts the X-User-ID header set by the upstream gateway after
// authentication, and resolves it to a user row so role checks see current
// data. Authentication itself is out of scope for this service.
func Identity(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-User-ID")
			if raw == "" {
				respondError(w, http.StatusUnauthorized, "missing identity")
				return
			}

			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "invalid identity")
				return
			}

			user, err := store.GetUser(r.Context(), db, id)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unknown identity")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

func MarketplaceFrom(ctx context.Context) models.Marketplace {
	mkt, _ := ctx.Value(marketplaceContextKey).(models.Marketplace)
	return mkt
}

// RequireBuyer admits only the marketplace's buyer role (farmers buy
// fertilizer, consumers buy produce).
func RequireBuyer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFrom(r.Context())
		mkt := MarketplaceFrom(r.Context())
		if user == nil || user.Role != mkt.BuyerRole() {
			respondError(w, http.StatusForbidden, "access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSeller admits the marketplace's seller role and admins.
func RequireSeller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFrom(r.Context())
		mkt := MarketplaceFrom(r.Context())
		if user == nil || (user.Role != mkt.SellerRole() && user.Role != models.RoleAdmin) {
			respondError(w, http.StatusForbidden, "access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFrom(r.Context())
		if user == nil || user.Role != models.RoleAdmin {
			respondError(w, http.StatusForbidden, "access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}
