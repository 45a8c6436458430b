// Package server contains the HTTP surface of the verifier service: the
// verification endpoint consumed by relying parties, this host's own
// well-known support document, and the operational endpoints.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/persona-compat/browserid-go/internal/config"
	"github.com/persona-compat/browserid-go/internal/idp"
	"github.com/persona-compat/browserid-go/internal/key"
	"github.com/persona-compat/browserid-go/internal/model"
	"github.com/persona-compat/browserid-go/internal/storage"
	"github.com/persona-compat/browserid-go/internal/verify"
)

type contextKey string

const (
	contextKeyCorrelationID contextKey = "correlationId"

	headerContentType   = "Content-Type"
	headerCorrelationID = "X-Correlation-Id"
	headerCacheControl  = "Cache-Control"
	headerETag          = "ETag"

	contentTypeJSON       = "application/json"
	cacheControlWellKnown = "public, max-age=60"
)

// Handler wires HTTP endpoints using net/http.
type Handler struct {
	cfg      config.Config
	verifier *verify.Verifier
	keys     idp.KeyStore
	store    storage.AuditStore
	logger   *slog.Logger
	clock    func() time.Time
	router   *http.ServeMux
}

// New creates a Handler using the supplied dependencies. keys may be nil
// when the process has no local IdP identity; the well-known endpoint then
// answers 404.
func New(cfg config.Config, verifier *verify.Verifier, keys idp.KeyStore, store storage.AuditStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		cfg:      cfg,
		verifier: verifier,
		keys:     keys,
		store:    store,
		logger:   logger,
		clock:    time.Now,
		router:   http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// Router returns the mux with all routes registered.
func (h *Handler) Router() *http.ServeMux {
	return h.router
}

func (h *Handler) registerRoutes() {
	h.router.Handle("/health", h.loggingMiddleware(h.timeoutMiddleware(http.HandlerFunc(h.health))))
	h.router.Handle("/ready", h.loggingMiddleware(h.timeoutMiddleware(http.HandlerFunc(h.readyHandler))))
	h.router.Handle("/metrics", h.loggingMiddleware(h.timeoutMiddleware(http.HandlerFunc(h.metricsHandler))))

	h.router.Handle("/verify", h.loggingMiddleware(h.timeoutMiddleware(h.corsMiddleware(h.wrap(h.verifyHandler)))))
	// Deployed relying parties also POST to the root.
	h.router.Handle("/", h.loggingMiddleware(h.timeoutMiddleware(h.corsMiddleware(h.wrap(h.verifyHandler)))))
	h.router.Handle(idp.WellKnownPath, h.loggingMiddleware(h.timeoutMiddleware(h.wrap(h.wellKnownHandler))))
	h.router.Handle("/v1/verifications", h.loggingMiddleware(h.timeoutMiddleware(h.wrap(h.verificationsHandler))))
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// wrap applies correlation IDs and panic recovery around a handler.
func (h *Handler) wrap(next func(http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := h.ensureCorrelationID(w, r)
		ctx := context.WithValue(r.Context(), contextKeyCorrelationID, correlationID)
		r = r.WithContext(ctx)

		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered", "panic", rec, "correlationId", correlationID)
				w.Header().Set(headerContentType, contentTypeJSON)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write(mustJSON(model.VerifyResponseDTO{Status: "failure", Reason: "internal error"}))
			}
		}()

		next(w, r)
	})
}

func (h *Handler) ensureCorrelationID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(headerCorrelationID))
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(headerCorrelationID, id)
	return id
}

// verifyHandler is the relying-party endpoint: POST with form fields
// assertion and audience. Both outcomes answer 200 with a status field, the
// contract deployed RP libraries expect.
func (h *Handler) verifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeJSON(w, http.StatusMethodNotAllowed, model.VerifyResponseDTO{Status: "failure", Reason: "method not allowed"})
		return
	}
	if err := r.ParseForm(); err != nil {
		h.writeJSON(w, http.StatusOK, model.VerifyResponseDTO{Status: "failure", Reason: "could not parse request body"})
		return
	}
	assertion := r.PostFormValue("assertion")
	audience := r.PostFormValue("audience")
	if assertion == "" || audience == "" {
		h.writeJSON(w, http.StatusOK, model.VerifyResponseDTO{Status: "failure", Reason: "assertion and audience are required"})
		return
	}

	now := h.clock().UnixMilli()
	identity, verr := h.verifier.Verify(r.Context(), assertion, audience, now)
	correlationID := correlationIDFrom(r.Context())

	if verr != nil {
		verificationCount.WithLabelValues("failure", string(verr.Kind)).Inc()
		h.audit(r.Context(), model.AuditEntry{
			Audience: audience,
			Result:   "failure",
			Reason:   verr.Reason,
			At:       h.clock().UTC(),
		})
		logAttrs := []interface{}{
			"kind", string(verr.Kind),
			"reason", verr.Reason,
			"cause", verr.Unwrap(),
			"correlationId", correlationID,
		}
		// a chain failure caused by the resolver keeps its typed identity
		// in the logs even though the outward reason hides it
		if inner, ok := verify.ResolverKind(verr.Unwrap()); ok {
			logAttrs = append(logAttrs, "resolver", string(inner))
		}
		h.logger.Info("verification failed", logAttrs...)
		h.writeJSON(w, http.StatusOK, model.VerifyResponseDTO{Status: "failure", Reason: verr.Reason})
		return
	}

	verificationCount.WithLabelValues("okay", "").Inc()
	h.audit(r.Context(), model.AuditEntry{
		Email:    identity.Email,
		Audience: identity.Audience,
		Issuer:   identity.Issuer,
		Result:   "okay",
		At:       h.clock().UTC(),
	})
	h.logger.Info("verification succeeded",
		"email", identity.Email,
		"issuer", identity.Issuer,
		"correlationId", correlationID,
	)
	h.writeJSON(w, http.StatusOK, model.VerifyResponseDTO{
		Status:     "okay",
		Email:      identity.Email,
		Audience:   identity.Audience,
		ValidUntil: identity.ValidUntil,
		Issuer:     identity.Issuer,
	})
}

// verificationsHandler lists recent audit entries.
func (h *Handler) verificationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	entries, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Warn("list audit entries failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "audit lookup failed"})
		return
	}
	dtos := make([]model.AuditEntryDTO, 0, len(entries))
	for _, entry := range entries {
		dtos = append(dtos, model.AuditEntryDTO{
			Email:    entry.Email,
			Audience: entry.Audience,
			Issuer:   entry.Issuer,
			Result:   entry.Result,
			Reason:   entry.Reason,
			At:       entry.At.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"verifications": dtos})
}

func (h *Handler) audit(ctx context.Context, entry model.AuditEntry) {
	if h.store == nil {
		return
	}
	if err := h.store.Append(ctx, entry); err != nil {
		h.logger.Warn("append audit entry failed", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	if _, err := w.Write(mustJSON(v)); err != nil {
		h.logger.Warn("write response failed", "error", err)
	}
}

func mustJSON(v interface{}) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return payload
}

func correlationIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyCorrelationID).(string); ok {
		return v
	}
	return ""
}

// fingerprintOf labels a public key for logs and ETags.
func fingerprintOf(pk key.PublicKey) string {
	if pk == nil {
		return ""
	}
	return key.Fingerprint(pk)
}
