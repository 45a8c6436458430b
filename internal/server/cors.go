// Package server: CORS middleware for the verification endpoint.
package server

import (
	"net/http"
)

// corsMiddleware opens the verification endpoint to any origin, as the
// protocol requires: relying parties verify from arbitrary sites. Preflight
// OPTIONS requests are answered with the POST allowance.
func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-Id")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
