// Package server: this host's own support document endpoint.
package server

import (
	"encoding/json"
	"net/http"
)

// wellKnownHandler serves the Basic support document at
// /.well-known/browserid: the local IdP's public key plus the configured
// authentication and provisioning paths. Other verifiers discover this
// host's signing key here, which is what makes delegation to this host
// resolvable.
func (h *Handler) wellKnownHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if h.keys == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "this host has no identity provider configured"})
		return
	}

	pub := h.keys.PublicKey()
	rawKey, err := json.Marshal(pub)
	if err != nil {
		h.logger.Error("serialize local public key", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	doc := map[string]interface{}{
		"public-key":     json.RawMessage(rawKey),
		"authentication": h.cfg.AuthPath,
		"provisioning":   h.cfg.ProvPath,
	}
	w.Header().Set(headerCacheControl, cacheControlWellKnown)
	w.Header().Set(headerETag, `W/"`+fingerprintOf(pub)+`"`)
	h.writeJSON(w, http.StatusOK, doc)
}
