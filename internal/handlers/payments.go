package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/cartfield/payments/internal/domain"
	"github.com/cartfield/payments/internal/payments"
	"github.com/cartfield/payments/internal/platform/httpx"
	"github.com/cartfield/payments/internal/services"
)

const maxPaymentBodySize = 256 * 1024

// PaymentHandlers exposes the payment session lifecycle over HTTP.
type PaymentHandlers struct {
	service services.PaymentService
}

// NewPaymentHandlers constructs handlers backed by the payment service.
func NewPaymentHandlers(service services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{service: service}
}

// Routes wires the /payments endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.initiate)
	r.Post("/{paymentId}", h.update)
	r.Get("/{paymentId}", h.retrieve)
	r.Get("/{paymentId}/status", h.status)
	r.Post("/{paymentId}/authorize", h.authorize)
	r.Post("/{paymentId}/capture", h.capture)
	r.Post("/{paymentId}/cancel", h.cancel)
	r.Post("/{paymentId}/refund", h.refund)
	r.Delete("/{paymentId}", h.remove)
}

type initiatePaymentRequest struct {
	Amount       int64            `json:"amount"`
	CurrencyCode string           `json:"currency_code"`
	Email        string           `json:"email"`
	ResourceID   string           `json:"resource_id"`
	Customer     *customerPayload `json:"customer,omitempty"`
	Description  string           `json:"description,omitempty"`
}

type updatePaymentRequest struct {
	Amount       int64            `json:"amount"`
	CurrencyCode string           `json:"currency_code"`
	Email        string           `json:"email"`
	Customer     *customerPayload `json:"customer,omitempty"`
	Cart         *cartPayload     `json:"cart"`
	Session      sessionPayload   `json:"session"`
}

type refundPaymentRequest struct {
	Amount  int64          `json:"amount"`
	Session sessionPayload `json:"session"`
}

type authorizePaymentRequest struct {
	Session sessionPayload `json:"session"`
}

type customerPayload struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	StripeID string         `json:"stripe_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type sessionPayload struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency,omitempty"`
	Status       string            `json:"status,omitempty"`
	Customer     string            `json:"customer,omitempty"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type cartPayload struct {
	ID              string                  `json:"id"`
	Email           string                  `json:"email,omitempty"`
	Items           []lineItemPayload       `json:"items"`
	Discounts       []discountPayload       `json:"discounts,omitempty"`
	Swaps           []swapPayload           `json:"swaps,omitempty"`
	Claims          []swapPayload           `json:"claims,omitempty"`
	Region          *regionPayload          `json:"region,omitempty"`
	ShippingAddress *addressPayload         `json:"shipping_address,omitempty"`
	ShippingMethods []shippingMethodPayload `json:"shipping_methods,omitempty"`
}

type lineItemPayload struct {
	ID             string              `json:"id"`
	Title          string              `json:"title"`
	UnitPrice      int64               `json:"unit_price"`
	Quantity       int64               `json:"quantity"`
	AllowDiscounts bool                `json:"allow_discounts"`
	IncludesTax    bool                `json:"includes_tax,omitempty"`
	Adjustments    []adjustmentPayload `json:"adjustments,omitempty"`
}

type adjustmentPayload struct {
	ID         string `json:"id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	Amount     int64  `json:"amount"`
	DiscountID string `json:"discount_id,omitempty"`
	Reason     string `json:"description,omitempty"`
}

type discountPayload struct {
	ID   string `json:"id"`
	Code string `json:"code,omitempty"`
	Rule struct {
		Type  string `json:"type"`
		Value int64  `json:"value,omitempty"`
	} `json:"rule"`
}

type swapPayload struct {
	ID              string            `json:"id"`
	AdditionalItems []lineItemPayload `json:"additional_items,omitempty"`
}

type regionPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	CurrencyCode string `json:"currency_code,omitempty"`
}

type addressPayload struct {
	Address1    string `json:"address_1,omitempty"`
	Address2    string `json:"address_2,omitempty"`
	City        string `json:"city,omitempty"`
	Province    string `json:"province,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

type shippingMethodPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Price int64  `json:"price"`
}

type sessionResponse struct {
	Session           sessionPayload `json:"session"`
	CreatedCustomerID string         `json:"created_customer_id,omitempty"`
}

type updateResponse struct {
	NoOp              bool            `json:"no_op"`
	Session           *sessionPayload `json:"session,omitempty"`
	CreatedCustomerID string          `json:"created_customer_id,omitempty"`
}

func (h *PaymentHandlers) initiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req initiatePaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}
	if req.Amount <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount must be positive", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.CurrencyCode) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "currency_code is required", http.StatusBadRequest))
		return
	}

	result, err := h.service.InitiatePayment(ctx, services.InitiatePaymentCommand{
		Amount:       req.Amount,
		CurrencyCode: req.CurrencyCode,
		Email:        req.Email,
		ResourceID:   req.ResourceID,
		Customer:     req.Customer.toDomain(),
		Description:  req.Description,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, sessionResponse{
		Session:           buildSessionPayload(result.Session),
		CreatedCustomerID: result.CreatedCustomerID,
	})
}

func (h *PaymentHandlers) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updatePaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}

	session := req.Session.toSnapshot()
	if session.ID == "" {
		session.ID = chi.URLParam(r, "paymentId")
	}

	directive, err := h.service.UpdatePayment(ctx, services.UpdatePaymentCommand{
		Amount:       req.Amount,
		CurrencyCode: req.CurrencyCode,
		Email:        req.Email,
		Customer:     req.Customer.toDomain(),
		Cart:         req.Cart.toDomain(),
		Session:      session,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	resp := updateResponse{
		NoOp:              directive.NoOp,
		CreatedCustomerID: directive.CreatedCustomerID,
	}
	if directive.Session != nil {
		payload := buildSessionPayload(*directive.Session)
		resp.Session = &payload
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *PaymentHandlers) retrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snapshot, err := h.service.RetrievePayment(ctx, chi.URLParam(r, "paymentId"))
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSessionPayload(snapshot))
}

func (h *PaymentHandlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.service.GetPaymentStatus(ctx, chi.URLParam(r, "paymentId"))
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *PaymentHandlers) authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session := payments.IntentSnapshot{ID: chi.URLParam(r, "paymentId")}
	if body, err := readLimitedBody(r, maxPaymentBodySize); err == nil {
		var req authorizePaymentRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
			return
		}
		if req.Session.ID != "" {
			session = req.Session.toSnapshot()
		}
	}

	result, err := h.service.AuthorizePayment(ctx, session)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":  string(result.Status),
		"session": buildSessionPayload(result.Session),
	})
}

func (h *PaymentHandlers) capture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snapshot, err := h.service.CapturePayment(ctx, chi.URLParam(r, "paymentId"))
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSessionPayload(snapshot))
}

func (h *PaymentHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snapshot, err := h.service.CancelPayment(ctx, chi.URLParam(r, "paymentId"))
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSessionPayload(snapshot))
}

func (h *PaymentHandlers) refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req refundPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}
	if req.Amount <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount must be positive", http.StatusBadRequest))
		return
	}

	session := req.Session.toSnapshot()
	if session.ID == "" {
		session.ID = chi.URLParam(r, "paymentId")
	}

	snapshot, err := h.service.RefundPayment(ctx, services.RefundPaymentCommand{
		Session: session,
		Amount:  req.Amount,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSessionPayload(snapshot))
}

func (h *PaymentHandlers) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snapshot, err := h.service.DeletePayment(ctx, chi.URLParam(r, "paymentId"))
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSessionPayload(snapshot))
}

func buildSessionPayload(snapshot payments.IntentSnapshot) sessionPayload {
	return sessionPayload{
		ID:           snapshot.ID,
		Amount:       snapshot.Amount,
		Currency:     snapshot.Currency,
		Status:       snapshot.Status,
		Customer:     snapshot.CustomerID,
		ClientSecret: snapshot.ClientSecret,
		Metadata:     snapshot.Metadata,
	}
}

func (p sessionPayload) toSnapshot() payments.IntentSnapshot {
	return payments.IntentSnapshot{
		ID:           p.ID,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Status:       p.Status,
		CustomerID:   p.Customer,
		ClientSecret: p.ClientSecret,
		Metadata:     p.Metadata,
	}
}

func (p *customerPayload) toDomain() *domain.Customer {
	if p == nil {
		return nil
	}
	return &domain.Customer{
		ID:       p.ID,
		Email:    p.Email,
		StripeID: p.StripeID,
		Metadata: p.Metadata,
	}
}

func (p *cartPayload) toDomain() *domain.Cart {
	if p == nil {
		return nil
	}
	cart := &domain.Cart{
		ID:        p.ID,
		Email:     p.Email,
		Items:     buildLineItems(p.Items),
		Discounts: make([]domain.Discount, 0, len(p.Discounts)),
	}
	for _, d := range p.Discounts {
		cart.Discounts = append(cart.Discounts, domain.Discount{
			ID:   d.ID,
			Code: d.Code,
			Rule: domain.DiscountRule{
				Type:  domain.DiscountRuleType(d.Rule.Type),
				Value: d.Rule.Value,
			},
		})
	}
	for _, s := range p.Swaps {
		cart.Swaps = append(cart.Swaps, domain.Swap{ID: s.ID, AdditionalItems: buildLineItems(s.AdditionalItems)})
	}
	for _, c := range p.Claims {
		cart.Claims = append(cart.Claims, domain.Claim{ID: c.ID, AdditionalItems: buildLineItems(c.AdditionalItems)})
	}
	if p.Region != nil {
		cart.Region = &domain.Region{
			ID:           p.Region.ID,
			Name:         p.Region.Name,
			CurrencyCode: p.Region.CurrencyCode,
		}
	}
	if p.ShippingAddress != nil {
		cart.ShippingAddress = &domain.Address{
			Line1:       p.ShippingAddress.Address1,
			Line2:       p.ShippingAddress.Address2,
			City:        p.ShippingAddress.City,
			Province:    p.ShippingAddress.Province,
			PostalCode:  p.ShippingAddress.PostalCode,
			CountryCode: p.ShippingAddress.CountryCode,
		}
	}
	for _, m := range p.ShippingMethods {
		cart.ShippingMethods = append(cart.ShippingMethods, domain.ShippingMethod{
			ID:    m.ID,
			Name:  m.Name,
			Price: m.Price,
		})
	}
	return cart
}

func buildLineItems(items []lineItemPayload) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		adjustments := make([]domain.Adjustment, 0, len(item.Adjustments))
		for _, adj := range item.Adjustments {
			adjustments = append(adjustments, domain.Adjustment{
				ID:         adj.ID,
				ItemID:     adj.ItemID,
				Amount:     adj.Amount,
				DiscountID: adj.DiscountID,
				Reason:     adj.Reason,
			})
		}
		out = append(out, domain.LineItem{
			ID:             item.ID,
			Title:          item.Title,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			AllowDiscounts: item.AllowDiscounts,
			IncludesTax:    item.IncludesTax,
			Adjustments:    adjustments,
		})
	}
	return out
}
