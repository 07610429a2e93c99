// Package webhook receives marketplace push notifications and turns them
// into a single-item catalog refresh trigger, deduplicated against
// redelivery and bounded by a poll-backstop loop in case delivery is lost
// entirely.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/lotsync/internal/clock"
	"github.com/wisbric/lotsync/internal/httpserver"
	"github.com/wisbric/lotsync/pkg/tenant"
)

// notification is the inbound wire payload lotsync expects from either
// marketplace's webhook delivery — both providers are normalized to this
// shape by a thin translation the provider integration owns upstream of
// this handler reaching production; here it is accepted directly since
// both marketplaces' event payloads map onto the same three fields.
type notification struct {
	EventType  string    `json:"eventType"`
	ResourceID string    `json:"resourceId"`
	EventTime  time.Time `json:"eventTime"`
}

// RefreshTrigger is called once per non-duplicate, non-stale notification
// to enqueue a high-priority catalog refresh for the event's resource.
type RefreshTrigger func(ctx context.Context, provider, resourceID string) error

// Handler serves POST /webhook/{provider}/{tenantToken}.
type Handler struct {
	lookup    tenant.Lookup
	dedup     *Dedup
	trigger   RefreshTrigger
	clock     clock.Clock
	logger    *slog.Logger
	keySecret string
	maxBody   int64
	maxAge    time.Duration
}

// NewHandler creates a webhook Handler.
func NewHandler(lookup tenant.Lookup, dedup *Dedup, trigger RefreshTrigger, clk clock.Clock, logger *slog.Logger, keySecret string, maxBody int64, maxAge time.Duration) *Handler {
	return &Handler{
		lookup:    lookup,
		dedup:     dedup,
		trigger:   trigger,
		clock:     clk,
		logger:    logger,
		keySecret: keySecret,
		maxBody:   maxBody,
		maxAge:    maxAge,
	}
}

// Mount registers the webhook route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/webhook/{provider}/{tenantToken}", h.ServeHTTP)
}

// tenantKey derives a per-tenant HMAC verification key from the deployment
// secret, the same construction pattern pkg/providerconfig uses to derive
// its encryption key from the same secret — one shared deployment secret,
// scoped per tenant by HMAC rather than reused directly.
func tenantKey(deploymentSecret, tenantToken string) []byte {
	mac := hmac.New(sha256.New, []byte(deploymentSecret))
	mac.Write([]byte(tenantToken))
	return mac.Sum(nil)
}

// verify checks the X-Lotsync-Signature header (hex-encoded HMAC-SHA256 of
// the raw body under the tenant's derived key) using a constant-time
// comparison. Verification is skipped when no deployment secret is
// configured (dev mode) — the same escape hatch pkg/slack's signing-secret
// check uses.
func verify(deploymentSecret, tenantToken string, body []byte, signatureHex string) bool {
	if deploymentSecret == "" {
		return true
	}
	mac := hmac.New(sha256.New, tenantKey(deploymentSecret, tenantToken))
	mac.Write(body)
	want := mac.Sum(nil)

	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return hmac.Equal(got, want) && subtle.ConstantTimeCompare(got, want) == 1
}

// ServeHTTP implements the webhook receiver. It always responds 200 except
// for a malformed tenant token (400), a non-POST method (405), or a body
// larger than the configured maximum (413) — a
// marketplace retries aggressively on anything else, and lotsync would
// rather absorb a bad delivery than trigger a redelivery storm.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpserver.RespondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is accepted")
		return
	}

	provider := chi.URLParam(r, "provider")
	tenantToken := chi.URLParam(r, "tenantToken")
	if provider == "" || tenantToken == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "malformed webhook path")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpserver.RespondError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "payload exceeds size limit")
		return
	}

	if !verify(h.keySecret, tenantToken, body, r.Header.Get("X-Lotsync-Signature")) {
		h.logger.Warn("webhook signature verification failed", "provider", provider, "tenant_token", tenantToken)
		httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	tenantID, _, err := h.lookup.LookupBySlug(r.Context(), tenantToken)
	if err != nil {
		h.logger.Warn("webhook tenant lookup failed", "provider", provider, "tenant_token", tenantToken, "error", err)
		httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		h.logger.Warn("webhook payload decode failed", "provider", provider, "error", err)
		httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if h.clock.Now().Sub(n.EventTime) > h.maxAge {
		h.logger.Info("webhook event too old, acknowledged without processing",
			"provider", provider, "event_type", n.EventType, "resource_id", n.ResourceID, "event_time", n.EventTime)
		httpserver.Respond(w, http.StatusOK, map[string]string{"status": "acknowledged"})
		return
	}

	h.handle(r.Context(), tenantID, provider, n)
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (h *Handler) handle(ctx context.Context, tenantID uuid.UUID, provider string, n notification) {
	event := Event{
		TenantID:   tenantID,
		Provider:   provider,
		EventType:  n.EventType,
		ResourceID: n.ResourceID,
		EventTime:  n.EventTime,
	}

	duplicate, err := h.dedup.CheckAndRecord(ctx, event)
	if err != nil {
		h.logger.Error("webhook dedup check failed", "provider", provider, "error", err)
		return
	}
	if duplicate {
		return
	}

	if err := h.trigger(ctx, provider, n.ResourceID); err != nil {
		h.logger.Error("webhook refresh trigger failed", "provider", provider, "resource_id", n.ResourceID, "error", err)
	}
}
