// Package server: the readiness check endpoint.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// readyHandler returns 200 OK when the service can serve verifications.
// With the postgres audit backend active, the database is pinged; the
// memory backend is always ready.
func (h *Handler) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if backed, ok := h.store.(interface{ DB() *sql.DB }); ok {
		if err := backed.DB().PingContext(ctx); err != nil {
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database not ready"})
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
