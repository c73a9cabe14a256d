package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gamemart/ledger/internal/provider"
)

// WebhookProcessor applies a signed gateway webhook.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error
}

// WebhookHandler handles payment gateway webhook callbacks.
type WebhookHandler struct {
	payments WebhookProcessor
	logger   *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(payments WebhookProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{payments: payments, logger: logger}
}

// HandleGatewayWebhook handles POST /webhooks/gateway.
// The signature covers the raw body, so it is read before any decoding.
func (h *WebhookHandler) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sigHeader := r.Header.Get(provider.SignatureHeader)
	if sigHeader == "" {
		h.logger.Warn("missing webhook signature header")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.payments.HandleWebhook(r.Context(), body, sigHeader); err != nil {
		h.logger.Error("process gateway webhook", "error", err)
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
