package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cartfield/payments/internal/payments"
	"github.com/cartfield/payments/internal/platform/httpx"
	"github.com/cartfield/payments/internal/platform/requestctx"
	"github.com/cartfield/payments/internal/services"
	"go.uber.org/zap"
)

const (
	maxWebhookBodySize = 64 * 1024
	signatureHeader    = "Stripe-Signature"
)

// WebhookHandlers receives gateway webhook deliveries.
type WebhookHandlers struct {
	service services.PaymentService
}

// NewWebhookHandlers constructs webhook handlers backed by the payment service.
func NewWebhookHandlers(service services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{service: service}
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
}

type webhookResponse struct {
	Received bool   `json:"received"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Status   string `json:"status,omitempty"`
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}
	if len(body) > maxWebhookBodySize {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	event, err := h.service.ConstructWebhookEvent(ctx, body, r.Header.Get(signatureHeader))
	if err != nil {
		requestctx.Logger(ctx).Warn("webhook signature rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	resp := webhookResponse{Received: true, ID: event.ID, Type: event.Type}
	if strings.HasPrefix(event.Type, "payment_intent.") {
		var object struct {
			Status string `json:"status"`
		}
		if json.Unmarshal(event.Data, &object) == nil && object.Status != "" {
			resp.Status = string(payments.TranslateStatus(object.Status))
		}
	}

	writeJSONResponse(w, http.StatusOK, resp)
}
