package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Update(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
}

type stripeCustomerAPI interface {
	New(params *stripe.CustomerParams) (*stripe.Customer, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeTaxCalculationAPI interface {
	New(params *stripe.TaxCalculationParams) (*stripe.TaxCalculation, error)
}

type stripeClients struct {
	intents         stripeIntentAPI
	customers       stripeCustomerAPI
	refunds         stripeRefundAPI
	taxCalculations stripeTaxCalculationAPI
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clients       *stripeClients
	// VerifySignature overrides webhook verification, used by tests.
	VerifySignature func(payload []byte, header, secret string) (stripe.Event, error)
}

// StripeGateway implements the Gateway interface using Stripe APIs,
// including Stripe Tax calculations.
type StripeGateway struct {
	api           stripeClients
	webhookSecret string
	verify        func(payload []byte, header, secret string) (stripe.Event, error)
	logger        StripeLogger
}

// NewStripeGateway constructs a Stripe Gateway using the given configuration.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents:         sc.PaymentIntents,
			customers:       sc.Customers,
			refunds:         sc.Refunds,
			taxCalculations: sc.TaxCalculations,
		}
	}

	if clients.intents == nil || clients.customers == nil || clients.refunds == nil || clients.taxCalculations == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	verify := cfg.VerifySignature
	if verify == nil {
		verify = webhook.ConstructEvent
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		api:           clients,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		verify:        verify,
		logger:        logger,
	}, nil
}

// CreateCustomer creates a Stripe customer for the given email.
func (g *StripeGateway) CreateCustomer(ctx context.Context, email string) (CustomerRef, error) {
	if g == nil {
		return CustomerRef{}, errors.New("stripe: gateway is nil")
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email = strings.TrimSpace(email); email != "" {
		params.Email = stripe.String(email)
	}
	customer, err := g.api.customers.New(params)
	if err != nil {
		return CustomerRef{}, BuildError("stripe: create customer", err)
	}
	g.logger(ctx, "payments.stripe.customer.created", map[string]any{
		"customerId": customer.ID,
	})
	return CustomerRef{ID: customer.ID, Email: customer.Email}, nil
}

// CreateIntent creates a payment intent.
func (g *StripeGateway) CreateIntent(ctx context.Context, req CreateIntentRequest) (IntentSnapshot, error) {
	if g == nil {
		return IntentSnapshot{}, errors.New("stripe: gateway is nil")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.CaptureMethod != "" {
		params.CaptureMethod = stripe.String(req.CaptureMethod)
	}
	if req.SetupFutureUsage != "" {
		params.SetupFutureUsage = stripe.String(req.SetupFutureUsage)
	}
	if len(req.PaymentMethodTypes) > 0 {
		params.PaymentMethodTypes = stripe.StringSlice(req.PaymentMethodTypes)
	}
	if req.AutomaticPaymentMethods {
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := g.api.intents.New(params)
	if err != nil {
		return IntentSnapshot{}, BuildError("stripe: create payment intent", err)
	}
	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})
	return intentSnapshot(intent), nil
}

// RetrieveIntent fetches the current intent snapshot.
func (g *StripeGateway) RetrieveIntent(ctx context.Context, id string) (IntentSnapshot, error) {
	if g == nil {
		return IntentSnapshot{}, errors.New("stripe: gateway is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := g.api.intents.Get(id, params)
	if err != nil {
		return IntentSnapshot{}, BuildError("stripe: retrieve payment intent", err)
	}
	return intentSnapshot(intent), nil
}

// UpdateIntent amends the intent's amount and metadata.
func (g *StripeGateway) UpdateIntent(ctx context.Context, id string, req UpdateIntentRequest) (IntentSnapshot, error) {
	if g == nil {
		return IntentSnapshot{}, errors.New("stripe: gateway is nil")
	}
	params := &stripe.PaymentIntentParams{
		Amount: stripe.Int64(req.Amount),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	intent, err := g.api.intents.Update(id, params)
	if err != nil {
		return IntentSnapshot{}, BuildError("stripe: update payment intent", err)
	}
	g.logger(ctx, "payments.stripe.intent.updated", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
	})
	return intentSnapshot(intent), nil
}

// CancelIntent cancels the intent. An intent that is already canceled is
// reported as success with the gateway's state, because the desired end
// state was already reached.
func (g *StripeGateway) CancelIntent(ctx context.Context, id string) (IntentSnapshot, error) {
	if g == nil {
		return IntentSnapshot{}, errors.New("stripe: gateway is nil")
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	intent, err := g.api.intents.Cancel(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.PaymentIntent != nil &&
			stripeErr.PaymentIntent.Status == stripe.PaymentIntentStatusCanceled {
			return intentSnapshot(stripeErr.PaymentIntent), nil
		}
		return IntentSnapshot{}, BuildError("stripe: cancel payment intent", err)
	}
	g.logger(ctx, "payments.stripe.intent.canceled", map[string]any{
		"paymentIntent": intent.ID,
	})
	return intentSnapshot(intent), nil
}

// CaptureIntent captures the intent. An intent that already succeeded is
// reported as success with the gateway's state.
func (g *StripeGateway) CaptureIntent(ctx context.Context, id string) (IntentSnapshot, error) {
	if g == nil {
		return IntentSnapshot{}, errors.New("stripe: gateway is nil")
	}
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	intent, err := g.api.intents.Capture(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState &&
			stripeErr.PaymentIntent != nil && stripeErr.PaymentIntent.Status == stripe.PaymentIntentStatusSucceeded {
			return intentSnapshot(stripeErr.PaymentIntent), nil
		}
		return IntentSnapshot{}, BuildError("stripe: capture payment intent", err)
	}
	g.logger(ctx, "payments.stripe.intent.captured", map[string]any{
		"paymentIntent":  intent.ID,
		"amountReceived": intent.AmountReceived,
	})
	return intentSnapshot(intent), nil
}

// CreateRefund refunds the given amount against an intent.
func (g *StripeGateway) CreateRefund(ctx context.Context, req RefundRequest) error {
	if g == nil {
		return errors.New("stripe: gateway is nil")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
		Amount:        stripe.Int64(req.Amount),
	}
	params.Context = ctx
	if _, err := g.api.refunds.New(params); err != nil {
		return BuildError("stripe: create refund", err)
	}
	g.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": req.IntentID,
		"amount":        req.Amount,
	})
	return nil
}

// CreateTaxCalculation runs a Stripe Tax calculation over the provided
// line items and shipping cost.
func (g *StripeGateway) CreateTaxCalculation(ctx context.Context, req TaxCalculationRequest) (TaxCalculation, error) {
	if g == nil {
		return TaxCalculation{}, errors.New("stripe: gateway is nil")
	}

	lines := make([]*stripe.TaxCalculationLineItemParams, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, &stripe.TaxCalculationLineItemParams{
			Amount:    stripe.Int64(line.Amount),
			Reference: stripe.String(line.Reference),
			TaxCode:   stripe.String(line.TaxCode),
		})
	}

	params := &stripe.TaxCalculationParams{
		Currency:  stripe.String(strings.ToLower(req.Currency)),
		LineItems: lines,
		CustomerDetails: &stripe.TaxCalculationCustomerDetailsParams{
			Address: &stripe.AddressParams{
				Line1:      stripe.String(req.Address.Line1),
				Line2:      stripe.String(req.Address.Line2),
				City:       stripe.String(req.Address.City),
				State:      stripe.String(req.Address.State),
				PostalCode: stripe.String(req.Address.PostalCode),
				Country:    stripe.String(req.Address.Country),
			},
			AddressSource: stripe.String("shipping"),
		},
		ShippingCost: &stripe.TaxCalculationShippingCostParams{
			Amount:  stripe.Int64(req.ShippingCost),
			TaxCode: stripe.String(req.ShippingTaxCode),
		},
	}
	params.Context = ctx
	params.AddExpand("line_items.data.tax_breakdown")

	calc, err := g.api.taxCalculations.New(params)
	if err != nil {
		return TaxCalculation{}, BuildError("stripe: create tax calculation", err)
	}
	g.logger(ctx, "payments.stripe.tax.calculated", map[string]any{
		"calculationId": calc.ID,
		"amountTotal":   calc.AmountTotal,
	})
	return TaxCalculation{
		ID:                 calc.ID,
		AmountTotal:        calc.AmountTotal,
		TaxAmountExclusive: calc.TaxAmountExclusive,
	}, nil
}

// ConstructWebhookEvent verifies the webhook signature and returns the
// decoded event. Verification failure surfaces as a ProcessorError.
func (g *StripeGateway) ConstructWebhookEvent(payload []byte, signature string) (WebhookEvent, error) {
	if g == nil {
		return WebhookEvent{}, errors.New("stripe: gateway is nil")
	}
	event, err := g.verify(payload, signature, g.webhookSecret)
	if err != nil {
		return WebhookEvent{}, BuildError("stripe: construct webhook event", err)
	}
	out := WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Account: event.Account,
	}
	if event.Data != nil {
		out.Data = event.Data.Raw
	}
	return out, nil
}

func intentSnapshot(intent *stripe.PaymentIntent) IntentSnapshot {
	if intent == nil {
		return IntentSnapshot{}
	}
	snapshot := IntentSnapshot{
		ID:           intent.ID,
		Amount:       intent.Amount,
		Currency:     string(intent.Currency),
		Status:       string(intent.Status),
		ClientSecret: intent.ClientSecret,
	}
	if intent.Customer != nil {
		snapshot.CustomerID = intent.Customer.ID
	}
	if len(intent.Metadata) > 0 {
		snapshot.Metadata = make(map[string]string, len(intent.Metadata))
		for k, v := range intent.Metadata {
			snapshot.Metadata[k] = v
		}
	}
	return snapshot
}
