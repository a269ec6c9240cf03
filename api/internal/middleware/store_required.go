package middleware

import (
	"net/http"

	"facility-compliance-system/shared/httpx"
)

// StoreRequiredMiddleware short-circuits API traffic while the configured store is
// unavailable, e.g. postgres was selected but the pool could not be created.
type StoreRequiredMiddleware struct {
	Available bool
	Store     string
	Skip      func(*http.Request) bool
}

func (m StoreRequiredMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		if !m.Available {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "store not available", map[string]any{"store": m.Store})
			return
		}
		next.ServeHTTP(w, r)
	})
}
