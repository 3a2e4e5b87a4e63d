package services

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/cartfield/payments/internal/domain"
	"github.com/cartfield/payments/internal/payments"
	"github.com/cartfield/payments/internal/platform/textutil"
)

var (
	// ErrPaymentCartRequired indicates the update event arrived without
	// its originating cart. Precondition violation, never retried.
	ErrPaymentCartRequired = errors.New("payment: cart data is required")
	// ErrPaymentInvalidItems indicates a line item carries a non-positive
	// quantity, which allocation math cannot accept.
	ErrPaymentInvalidItems = errors.New("payment: line item quantity must be positive")
)

const (
	metadataKeyCartID   = "cartId"
	metadataKeyTaxCalc  = "tax_calculation"
	metadataKeyResource = "resource_id"
)

var tracer = otel.Tracer("github.com/cartfield/payments/internal/services")

// PaymentReconcilerDeps wires the dependencies of the reconciler.
type PaymentReconcilerDeps struct {
	Gateway      payments.Gateway
	Capabilities payments.IntentCapabilities
	// Capture selects automatic capture on intent creation; capability
	// values override it per provider key.
	Capture                 bool
	AutomaticPaymentMethods bool
	PaymentDescription      string
	// IncludeShipping feeds shipping methods into the calculation
	// context. Off by default: shipping is taxed through the dedicated
	// shipping cost line instead.
	IncludeShipping bool
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type paymentReconciler struct {
	gateway            payments.Gateway
	capabilities       payments.IntentCapabilities
	capture            bool
	automaticMethods   bool
	paymentDescription string
	includeShipping    bool
	now                func() time.Time
	logger             func(ctx context.Context, event string, fields map[string]any)
	outcomes           metric.Int64Counter
}

// NewPaymentReconciler constructs a PaymentService validating required
// dependencies.
func NewPaymentReconciler(deps PaymentReconcilerDeps) (PaymentService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("payment reconciler: gateway is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	meter := otel.Meter("github.com/cartfield/payments/internal/services")
	outcomes, err := meter.Int64Counter("payments.reconcile.outcomes",
		metric.WithDescription("Reconciliation pass outcomes by directive"))
	if err != nil {
		outcomes = nil
	}

	return &paymentReconciler{
		gateway:            deps.Gateway,
		capabilities:       deps.Capabilities,
		capture:            deps.Capture,
		automaticMethods:   deps.AutomaticPaymentMethods,
		paymentDescription: deps.PaymentDescription,
		includeShipping:    deps.IncludeShipping,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:   logger,
		outcomes: outcomes,
	}, nil
}

// InitiatePayment creates a gateway customer when none exists yet and
// opens a fresh payment intent for the cart.
func (s *paymentReconciler) InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentSessionResult, error) {
	ctx, span := tracer.Start(ctx, "payments.initiate", trace.WithAttributes(
		attribute.String("cart.id", cmd.ResourceID),
	))
	defer span.End()

	description := cmd.Description
	if description == "" {
		description = s.paymentDescription
	}

	captureMethod := "manual"
	if s.capture {
		captureMethod = "automatic"
	}
	if s.capabilities.CaptureMethod != "" {
		captureMethod = s.capabilities.CaptureMethod
	}

	req := payments.CreateIntentRequest{
		Amount:                  cmd.Amount,
		Currency:                cmd.CurrencyCode,
		Description:             description,
		Metadata:                map[string]string{metadataKeyResource: cmd.ResourceID},
		CaptureMethod:           captureMethod,
		SetupFutureUsage:        s.capabilities.SetupFutureUsage,
		PaymentMethodTypes:      s.capabilities.PaymentMethodTypes,
		AutomaticPaymentMethods: s.automaticMethods,
		IdempotencyKey:          ulid.Make().String(),
	}

	var createdCustomerID string
	if cmd.Customer != nil && cmd.Customer.StripeID != "" {
		req.CustomerID = cmd.Customer.StripeID
	} else {
		customer, err := s.gateway.CreateCustomer(ctx, cmd.Email)
		if err != nil {
			return PaymentSessionResult{}, payments.BuildError("payment: initiate when creating the gateway customer", err)
		}
		req.CustomerID = customer.ID
		createdCustomerID = customer.ID
	}

	session, err := s.gateway.CreateIntent(ctx, req)
	if err != nil {
		return PaymentSessionResult{}, payments.BuildError("payment: initiate during creation of the payment intent", err)
	}

	s.logger(ctx, "payment.initiated", map[string]any{
		"resourceId":    cmd.ResourceID,
		"paymentIntent": session.ID,
		"amount":        session.Amount,
	})

	return PaymentSessionResult{Session: session, CreatedCustomerID: createdCustomerID}, nil
}

// UpdatePayment is the per-event decision procedure: it recomputes the
// tax-inclusive total, then decides between no-op, amending the intent
// amount, and re-initiating for a changed customer.
func (s *paymentReconciler) UpdatePayment(ctx context.Context, cmd UpdatePaymentCommand) (UpdateDirective, error) {
	if cmd.Cart == nil {
		return UpdateDirective{}, ErrPaymentCartRequired
	}

	ctx, span := tracer.Start(ctx, "payments.update", trace.WithAttributes(
		attribute.String("cart.id", cmd.Cart.ID),
	))
	defer span.End()

	// Snapshot the cart at pass start; the context is built exactly once
	// per pass so every taxable amount sees one allocation view.
	cart := *cmd.Cart
	merged := domain.MergeLineItems(cart.Items, cart.Swaps, cart.Claims)
	for _, item := range merged {
		if item.Quantity <= 0 {
			return UpdateDirective{}, ErrPaymentInvalidItems
		}
	}

	calcCtx := domain.BuildCalculationContext(cart.CalculationData(), domain.ContextOptions{
		ExcludeShipping: !s.includeShipping,
	})

	lines := taxLines(cart.Items, calcCtx.AllocationMap)
	shipping := shippingCost(calcCtx.ShippingMethods)

	// A missing postal code disables tax computation for this pass; the
	// event-supplied amount then stands.
	var calculation *payments.TaxCalculation
	if cart.ShippingAddress != nil && cart.ShippingAddress.PostalCode != "" {
		calc, err := s.gateway.CreateTaxCalculation(ctx, payments.TaxCalculationRequest{
			Currency:        cmd.CurrencyCode,
			Lines:           lines,
			Address:         customerAddress(*cart.ShippingAddress),
			ShippingCost:    shipping,
			ShippingTaxCode: taxCodeShipping,
		})
		if err != nil {
			return UpdateDirective{}, payments.BuildError("payment: update during tax calculation", err)
		}
		calculation = &calc
	}

	amountTotal := cmd.Amount
	if calculation != nil {
		amountTotal = calculation.AmountTotal
	}

	var customerStripeID string
	if cmd.Customer != nil {
		customerStripeID = cmd.Customer.StripeID
	}

	if customerStripeID != cmd.Session.CustomerID {
		// A changed customer invalidates the intent's customer binding;
		// the payment is re-initiated from scratch.
		result, err := s.InitiatePayment(ctx, InitiatePaymentCommand{
			Amount:       amountTotal,
			CurrencyCode: cmd.CurrencyCode,
			Email:        cmd.Email,
			ResourceID:   cart.ID,
			Customer:     cmd.Customer,
		})
		if err != nil {
			return UpdateDirective{}, payments.BuildError("payment: update during the initiate of the new payment for the new customer", err)
		}
		s.recordOutcome(ctx, "reinitiate")
		return UpdateDirective{Session: &result.Session, CreatedCustomerID: result.CreatedCustomerID}, nil
	}

	if amountTotal == cmd.Session.Amount {
		s.recordOutcome(ctx, "noop")
		s.logger(ctx, "payment.update.noop", map[string]any{
			"cartId":        cart.ID,
			"paymentIntent": cmd.Session.ID,
			"amount":        amountTotal,
		})
		return UpdateDirective{NoOp: true}, nil
	}

	carried := textutil.NormalizeStringMap(cmd.Session.Metadata)
	metadata := make(map[string]string, len(carried)+2)
	for k, v := range carried {
		metadata[k] = v
	}
	metadata[metadataKeyCartID] = cart.ID
	if calculation != nil {
		// The calculation id is kept for the later tax transaction.
		metadata[metadataKeyTaxCalc] = calculation.ID
	}

	session, err := s.gateway.UpdateIntent(ctx, cmd.Session.ID, payments.UpdateIntentRequest{
		Amount:   amountTotal,
		Metadata: metadata,
	})
	if err != nil {
		return UpdateDirective{}, payments.BuildError("payment: update", err)
	}

	s.recordOutcome(ctx, "amend")
	s.logger(ctx, "payment.update.amended", map[string]any{
		"cartId":        cart.ID,
		"paymentIntent": session.ID,
		"amount":        amountTotal,
	})
	return UpdateDirective{Session: &session}, nil
}

// AuthorizePayment reports the canonical status alongside the snapshot.
func (s *paymentReconciler) AuthorizePayment(ctx context.Context, session payments.IntentSnapshot) (AuthorizePaymentResult, error) {
	status, err := s.GetPaymentStatus(ctx, session.ID)
	if err != nil {
		return AuthorizePaymentResult{}, err
	}
	return AuthorizePaymentResult{Status: status, Session: session}, nil
}

// GetPaymentStatus retrieves the intent and translates its state.
func (s *paymentReconciler) GetPaymentStatus(ctx context.Context, intentID string) (payments.Status, error) {
	snapshot, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return "", payments.BuildError("payment: get status", err)
	}
	return payments.TranslateStatus(snapshot.Status), nil
}

// RetrievePayment fetches the current intent snapshot.
func (s *paymentReconciler) RetrievePayment(ctx context.Context, intentID string) (payments.IntentSnapshot, error) {
	snapshot, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return payments.IntentSnapshot{}, payments.BuildError("payment: retrieve", err)
	}
	return snapshot, nil
}

// CapturePayment captures the intent; already-succeeded intents come
// back as success from the gateway.
func (s *paymentReconciler) CapturePayment(ctx context.Context, intentID string) (payments.IntentSnapshot, error) {
	snapshot, err := s.gateway.CaptureIntent(ctx, intentID)
	if err != nil {
		return payments.IntentSnapshot{}, payments.BuildError("payment: capture", err)
	}
	return snapshot, nil
}

// CancelPayment cancels the intent; already-canceled intents come back
// as success from the gateway.
func (s *paymentReconciler) CancelPayment(ctx context.Context, intentID string) (payments.IntentSnapshot, error) {
	snapshot, err := s.gateway.CancelIntent(ctx, intentID)
	if err != nil {
		return payments.IntentSnapshot{}, payments.BuildError("payment: cancel", err)
	}
	return snapshot, nil
}

// DeletePayment is cancelation under another name, matching the host's
// session teardown hook.
func (s *paymentReconciler) DeletePayment(ctx context.Context, intentID string) (payments.IntentSnapshot, error) {
	return s.CancelPayment(ctx, intentID)
}

// RefundPayment issues a refund and returns the stored snapshot
// unchanged; refund state is read back through RetrievePayment.
func (s *paymentReconciler) RefundPayment(ctx context.Context, cmd RefundPaymentCommand) (payments.IntentSnapshot, error) {
	err := s.gateway.CreateRefund(ctx, payments.RefundRequest{
		IntentID: cmd.Session.ID,
		Amount:   cmd.Amount,
	})
	if err != nil {
		return payments.IntentSnapshot{}, payments.BuildError("payment: refund", err)
	}
	s.logger(ctx, "payment.refunded", map[string]any{
		"paymentIntent": cmd.Session.ID,
		"amount":        cmd.Amount,
	})
	return cmd.Session, nil
}

// ConstructWebhookEvent verifies and decodes a gateway webhook payload.
func (s *paymentReconciler) ConstructWebhookEvent(ctx context.Context, payload []byte, signature string) (payments.WebhookEvent, error) {
	event, err := s.gateway.ConstructWebhookEvent(payload, signature)
	if err != nil {
		return payments.WebhookEvent{}, err
	}
	s.logger(ctx, "payment.webhook.received", map[string]any{
		"eventId":   event.ID,
		"eventType": event.Type,
	})
	return event, nil
}

func (s *paymentReconciler) recordOutcome(ctx context.Context, outcome string) {
	if s.outcomes == nil {
		return
	}
	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
