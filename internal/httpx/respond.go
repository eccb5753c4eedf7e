package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/thalir/agrimarket/internal/store"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError translates store errors into stable HTTP statuses:
// not-found 404, forbidden 403, everything the caller can fix 400, and an
// opaque 500 for unexpected failures.
func respondDomainError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		respondError(w, status, "internal server error")
		return
	}

	respondError(w, status, err.Error())
}

func errorStatus(err error) int {
	var (
		notFound    *store.NotFoundError
		forbidden   *store.ForbiddenError
		invalid     *store.InvalidStateError
		stock       *store.InsufficientStockError
		unavailable *store.ProductUnavailableError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &invalid),
		errors.As(err, &stock),
		errors.As(err, &unavailable),
		errors.Is(err, store.ErrEmptyCart):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
