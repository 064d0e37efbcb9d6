package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/service"
)

const maxWebhookBody = 1 << 20

// WebhookProcessor is implemented by *service.WebhookService.
type WebhookProcessor interface {
	HandleNetworkEvent(ctx context.Context, payload []byte, signature string) (*service.WebhookResult, error)
}

// WebhookHandler handles payment network event deliveries.
type WebhookHandler struct {
	webhookSvc WebhookProcessor
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(webhookSvc WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// HandleNetworkWebhook handles POST /v1/webhooks/network.
// Any non-2xx answer makes the network redeliver the event.
func (h *WebhookHandler) HandleNetworkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		zap.L().Error("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		signature = r.Header.Get("X-Webhook-Signature")
	}

	resp, err := h.webhookSvc.HandleNetworkEvent(r.Context(), body, signature)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
		case errors.Is(err, service.ErrNetworkUnavailable):
			zap.L().Warn("webhook deferred, network unavailable", zap.Error(err))
			RespondError(w, r, http.StatusServiceUnavailable, "webhook/network-unavailable", "payment network unavailable")
		default:
			zap.L().Error("process network webhook failed", zap.Error(err))
			RespondError(w, r, http.StatusInternalServerError, "webhook/processing-failed", err.Error())
		}
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}
