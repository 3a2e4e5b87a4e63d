package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/cartfield/payments/internal/domain"
	"github.com/cartfield/payments/internal/payments"
)

type fakeGateway struct {
	customers        []string
	customerRef      payments.CustomerRef
	customerErr      error
	createdIntents   []payments.CreateIntentRequest
	createdSnapshot  payments.IntentSnapshot
	createErr        error
	updatedID        string
	updatedReqs      []payments.UpdateIntentRequest
	updatedSnapshot  payments.IntentSnapshot
	updateErr        error
	retrieved        payments.IntentSnapshot
	retrieveErr      error
	taxRequests      []payments.TaxCalculationRequest
	taxCalc          payments.TaxCalculation
	taxErr           error
	refunds          []payments.RefundRequest
	refundErr        error
	canceledIDs      []string
	capturedIDs      []string
	terminalSnapshot payments.IntentSnapshot
	webhookEvent     payments.WebhookEvent
	webhookErr       error
}

func (f *fakeGateway) CreateCustomer(ctx context.Context, email string) (payments.CustomerRef, error) {
	f.customers = append(f.customers, email)
	return f.customerRef, f.customerErr
}

func (f *fakeGateway) CreateIntent(ctx context.Context, req payments.CreateIntentRequest) (payments.IntentSnapshot, error) {
	f.createdIntents = append(f.createdIntents, req)
	return f.createdSnapshot, f.createErr
}

func (f *fakeGateway) RetrieveIntent(ctx context.Context, id string) (payments.IntentSnapshot, error) {
	return f.retrieved, f.retrieveErr
}

func (f *fakeGateway) UpdateIntent(ctx context.Context, id string, req payments.UpdateIntentRequest) (payments.IntentSnapshot, error) {
	f.updatedID = id
	f.updatedReqs = append(f.updatedReqs, req)
	return f.updatedSnapshot, f.updateErr
}

func (f *fakeGateway) CancelIntent(ctx context.Context, id string) (payments.IntentSnapshot, error) {
	f.canceledIDs = append(f.canceledIDs, id)
	return f.terminalSnapshot, nil
}

func (f *fakeGateway) CaptureIntent(ctx context.Context, id string) (payments.IntentSnapshot, error) {
	f.capturedIDs = append(f.capturedIDs, id)
	return f.terminalSnapshot, nil
}

func (f *fakeGateway) CreateRefund(ctx context.Context, req payments.RefundRequest) error {
	f.refunds = append(f.refunds, req)
	return f.refundErr
}

func (f *fakeGateway) CreateTaxCalculation(ctx context.Context, req payments.TaxCalculationRequest) (payments.TaxCalculation, error) {
	f.taxRequests = append(f.taxRequests, req)
	return f.taxCalc, f.taxErr
}

func (f *fakeGateway) ConstructWebhookEvent(payload []byte, signature string) (payments.WebhookEvent, error) {
	return f.webhookEvent, f.webhookErr
}

func newTestReconciler(t *testing.T, gw *fakeGateway) PaymentService {
	t.Helper()
	svc, err := NewPaymentReconciler(PaymentReconcilerDeps{Gateway: gw})
	if err != nil {
		t.Fatalf("NewPaymentReconciler: %v", err)
	}
	return svc
}

func testCart() *domain.Cart {
	return &domain.Cart{
		ID:    "cart_1",
		Email: "jo@example.com",
		Items: []domain.LineItem{
			{
				ID:             "item_1",
				Title:          "Widget",
				UnitPrice:      1000,
				Quantity:       2,
				AllowDiscounts: true,
				Adjustments:    []domain.Adjustment{{Amount: 300, DiscountID: "disc_1"}},
			},
		},
		Discounts: []domain.Discount{
			{ID: "disc_1", Rule: domain.DiscountRule{Type: domain.DiscountRulePercentage}},
		},
		ShippingAddress: &domain.Address{
			Line1:       "1 Main St",
			City:        "Portland",
			Province:    "OR",
			PostalCode:  "97201",
			CountryCode: "us",
		},
	}
}

func TestUpdatePaymentRequiresCart(t *testing.T) {
	svc := newTestReconciler(t, &fakeGateway{})

	_, err := svc.UpdatePayment(context.Background(), UpdatePaymentCommand{})
	if !errors.Is(err, ErrPaymentCartRequired) {
		t.Fatalf("expected ErrPaymentCartRequired, got %v", err)
	}
}

func TestUpdatePaymentRejectsNonPositiveQuantity(t *testing.T) {
	svc := newTestReconciler(t, &fakeGateway{})
	cart := testCart()
	cart.Items[0].Quantity = 0

	_, err := svc.UpdatePayment(context.Background(), UpdatePaymentCommand{Cart: cart})
	if !errors.Is(err, ErrPaymentInvalidItems) {
		t.Fatalf("expected ErrPaymentInvalidItems, got %v", err)
	}
}

func TestUpdatePaymentNoOpWhenAmountUnchanged(t *testing.T) {
	gw := &fakeGateway{taxCalc: payments.TaxCalculation{ID: "taxcalc_1", AmountTotal: 5000}}
	svc := newTestReconciler(t, gw)

	cmd := UpdatePaymentCommand{
		Amount:       4800,
		CurrencyCode: "usd",
		Cart:         testCart(),
		Session:      payments.IntentSnapshot{ID: "pi_1", Amount: 5000},
	}

	directive, err := svc.UpdatePayment(context.Background(), cmd)
	if err != nil {
		t.Fatalf("UpdatePayment: %v", err)
	}
	if !directive.NoOp {
		t.Fatalf("expected no-op directive")
	}
	if len(gw.updatedReqs) != 0 {
		t.Fatalf("no gateway write may happen on a no-op")
	}

	// Idempotence: a second identical call is still a no-op.
	directive, err = svc.UpdatePayment(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second UpdatePayment: %v", err)
	}
	if !directive.NoOp || len(gw.updatedReqs) != 0 {
		t.Fatalf("repeated update must stay a no-op")
	}
}

func TestUpdatePaymentAmendsAmountAndStampsMetadata(t *testing.T) {
	gw := &fakeGateway{
		taxCalc:         payments.TaxCalculation{ID: "taxcalc_1", AmountTotal: 5200},
		updatedSnapshot: payments.IntentSnapshot{ID: "pi_1", Amount: 5200},
	}
	svc := newTestReconciler(t, gw)

	directive, err := svc.UpdatePayment(context.Background(), UpdatePaymentCommand{
		Amount:       5000,
		CurrencyCode: "usd",
		Cart:         testCart(),
		Session: payments.IntentSnapshot{
			ID:       "pi_1",
			Amount:   5000,
			Metadata: map[string]string{"existing": "kept"},
		},
	})
	if err != nil {
		t.Fatalf("UpdatePayment: %v", err)
	}
	if directive.NoOp || directive.Session == nil {
		t.Fatalf("expected amended session, got %+v", directive)
	}
	if directive.Session.Amount != 5200 {
		t.Fatalf("amount = %d, want 5200", directive.Session.Amount)
	}

	if gw.updatedID != "pi_1" {
		t.Fatalf("updated intent = %q", gw.updatedID)
	}
	req := gw.updatedReqs[0]
	if req.Amount != 5200 {
		t.Fatalf("update amount = %d, want 5200", req.Amount)
	}
	if req.Metadata["cartId"] != "cart_1" {
		t.Fatalf("cartId metadata missing: %v", req.Metadata)
	}
	if req.Metadata["tax_calculation"] != "taxcalc_1" {
		t.Fatalf("tax_calculation metadata missing: %v", req.Metadata)
	}
	if req.Metadata["existing"] != "kept" {
		t.Fatalf("existing metadata dropped: %v", req.Metadata)
	}
}

func TestUpdatePaymentTaxLinesNetOfDiscounts(t *testing.T) {
	gw := &fakeGateway{taxCalc: payments.TaxCalculation{ID: "taxcalc_1", AmountTotal: 1700}}
	svc := newTestReconciler(t, gw)

	_, err := svc.UpdatePayment(context.Background(), UpdatePaymentCommand{
		CurrencyCode: "usd",
		Cart:         testCart(),
		Session:      payments.IntentSnapshot{ID: "pi_1", Amount: 1700},
	})
	if err != nil {
		t.Fatalf("UpdatePayment: %v", err)
	}

	if len(gw.taxRequests) != 1 {
		t.Fatalf("expected one tax calculation, got %d", len(gw.taxRequests))
	}
	req := gw.taxRequests[0]
	if len(req.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(req.Lines))
	}
	// 1000 * 2 − 300 allocated discount.
	if req.Lines[0].Amount != 1700 {
		t.Fatalf("taxable amount = %d, want 1700", req.Lines[0].Amount)
	}
	if req.Lines[0].Reference != "Widget - item_1" {
		t.Fatalf("reference = %q", req.Lines[0].Reference)
	}
	if req.Lines[0].TaxCode != "txcd_99999999" {
		t.Fatalf("tax code = %q", req.Lines[0].TaxCode)
	}
	if req.ShippingTaxCode != "txcd_92010001" {
		t.Fatalf("shipping tax code = %q", req.ShippingTaxCode)
	}
	if req.Address.Country != "US" {
		t.Fatalf("country = %q, want upper-cased US", req.Address.Country)
	}
}

func TestUpdatePaymentMissingPostalCodeSkipsTaxCall(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestReconciler(t, gw)

	cart := testCart()
	cart.ShippingAddress.PostalCode = ""

	directive, err := svc.UpdatePayment(context.Background(), UpdatePaymentCommand{
		Amount:       5000,
		CurrencyCode: "usd",
		Cart:         cart,
		Session:      payments.IntentSnapshot{ID: "pi_1", Amount: 5000},
	})
	if err != nil {
		t.Fatalf("UpdatePayment: %v", err)
	}
	if len(gw.taxRequests) != 0 {
		t.Fatalf("no tax calculation may run without a postal code")
	}
	// The event-supplied amount stands, matching the stored intent.
	if !directive.NoOp {
		t.Fatalf("expected no-op fallback to event amount")
	}
}

func TestUpdatePaymentCustomerChangeReinitiates(t *testing.T) {
	gw := &fakeGateway{
		taxCalc:         payments.TaxCalculation{ID: "taxcalc_1", AmountTotal: 5000},
		createdSnapshot: payments.IntentSnapshot{ID: "pi_2", Amount: 5000, CustomerID: "cus_new"},
	}
	svc := newTestReconciler(t, gw)

	directive, err := svc.UpdatePayment(context.Background(), UpdatePaymentCommand{
		Amount:       5000,
		CurrencyCode: "usd",
		Email:        "jo@example.com",
		Customer:     &domain.Customer{ID: "user_1", StripeID: "cus_new"},
		Cart:         testCart(),
		Session:      payments.IntentSnapshot{ID: "pi_1", Amount: 5000, CustomerID: "cus_old"},
	})
	if err != nil {
		t.Fatalf("UpdatePayment: %v", err)
	}

	if len(gw.createdIntents) != 1 {
		t.Fatalf("expected one intent creation, got %d", len(gw.createdIntents))
	}
	if len(gw.updatedReqs) != 0 {
		t.Fatalf("a changed customer must never be patched")
	}
	if directive.Session == nil || directive.Session.ID != "pi_2" {
		t.Fatalf("expected new session, got %+v", directive)
	}
	if gw.createdIntents[0].CustomerID != "cus_new" {
		t.Fatalf("new intent customer = %q", gw.createdIntents[0].CustomerID)
	}
}

func TestUpdatePaymentCustomerChangeFailurePropagates(t *testing.T) {
	gw := &fakeGateway{
		taxCalc:   payments.TaxCalculation{AmountTotal: 5000},
		createErr: errors.New("intent limit reached"),
	}
	svc := newTestReconciler(t, gw)

	_, err := svc.UpdatePayment(context.Background(), UpdatePaymentCommand{
		CurrencyCode: "usd",
		Customer:     &domain.Customer{StripeID: "cus_new"},
		Cart:         testCart(),
		Session:      payments.IntentSnapshot{ID: "pi_1", CustomerID: "cus_old"},
	})
	var perr *payments.ProcessorError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessorError, got %v", err)
	}
}

func TestInitiatePaymentCreatesCustomerWhenMissing(t *testing.T) {
	gw := &fakeGateway{
		customerRef:     payments.CustomerRef{ID: "cus_1"},
		createdSnapshot: payments.IntentSnapshot{ID: "pi_1", CustomerID: "cus_1"},
	}
	svc := newTestReconciler(t, gw)

	result, err := svc.InitiatePayment(context.Background(), InitiatePaymentCommand{
		Amount:       5000,
		CurrencyCode: "usd",
		Email:        "jo@example.com",
		ResourceID:   "cart_1",
	})
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	if len(gw.customers) != 1 || gw.customers[0] != "jo@example.com" {
		t.Fatalf("customer creation not invoked: %v", gw.customers)
	}
	if result.CreatedCustomerID != "cus_1" {
		t.Fatalf("created customer id = %q", result.CreatedCustomerID)
	}
	req := gw.createdIntents[0]
	if req.CustomerID != "cus_1" {
		t.Fatalf("intent customer = %q", req.CustomerID)
	}
	if req.Metadata["resource_id"] != "cart_1" {
		t.Fatalf("resource_id metadata missing: %v", req.Metadata)
	}
	if req.CaptureMethod != "manual" {
		t.Fatalf("capture method = %q, want manual by default", req.CaptureMethod)
	}
	if req.IdempotencyKey == "" {
		t.Fatalf("idempotency key must be set on intent creation")
	}
}

func TestInitiatePaymentReusesStoredCustomer(t *testing.T) {
	gw := &fakeGateway{createdSnapshot: payments.IntentSnapshot{ID: "pi_1"}}
	svc := newTestReconciler(t, gw)

	result, err := svc.InitiatePayment(context.Background(), InitiatePaymentCommand{
		Amount:     5000,
		ResourceID: "cart_1",
		Customer:   &domain.Customer{ID: "user_1", StripeID: "cus_existing"},
	})
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	if len(gw.customers) != 0 {
		t.Fatalf("no customer creation expected")
	}
	if result.CreatedCustomerID != "" {
		t.Fatalf("created customer id must be empty when reusing")
	}
	if gw.createdIntents[0].CustomerID != "cus_existing" {
		t.Fatalf("intent customer = %q", gw.createdIntents[0].CustomerID)
	}
}

func TestInitiatePaymentCapabilitiesOverrideCapture(t *testing.T) {
	gw := &fakeGateway{createdSnapshot: payments.IntentSnapshot{ID: "pi_1"}}
	svc, err := NewPaymentReconciler(PaymentReconcilerDeps{
		Gateway:      gw,
		Capture:      true,
		Capabilities: payments.CapabilitiesFor(payments.ProviderKeyIdeal),
	})
	if err != nil {
		t.Fatalf("NewPaymentReconciler: %v", err)
	}

	if _, err := svc.InitiatePayment(context.Background(), InitiatePaymentCommand{
		Amount:   100,
		Customer: &domain.Customer{StripeID: "cus_1"},
	}); err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}

	req := gw.createdIntents[0]
	if req.CaptureMethod != "automatic" {
		t.Fatalf("capture method = %q", req.CaptureMethod)
	}
	if len(req.PaymentMethodTypes) != 1 || req.PaymentMethodTypes[0] != "ideal" {
		t.Fatalf("payment method types = %v", req.PaymentMethodTypes)
	}
}

func TestGetPaymentStatusTranslates(t *testing.T) {
	gw := &fakeGateway{retrieved: payments.IntentSnapshot{ID: "pi_1", Status: "requires_capture"}}
	svc := newTestReconciler(t, gw)

	status, err := svc.GetPaymentStatus(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("GetPaymentStatus: %v", err)
	}
	if status != payments.StatusAuthorized {
		t.Fatalf("status = %q, want authorized", status)
	}
}

func TestRefundPaymentReturnsStoredSession(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestReconciler(t, gw)

	session := payments.IntentSnapshot{ID: "pi_1", Amount: 5000}
	got, err := svc.RefundPayment(context.Background(), RefundPaymentCommand{Session: session, Amount: 1200})
	if err != nil {
		t.Fatalf("RefundPayment: %v", err)
	}
	if got.ID != "pi_1" {
		t.Fatalf("session = %+v", got)
	}
	if len(gw.refunds) != 1 || gw.refunds[0].Amount != 1200 || gw.refunds[0].IntentID != "pi_1" {
		t.Fatalf("refund request = %+v", gw.refunds)
	}
}

func TestDeletePaymentCancels(t *testing.T) {
	gw := &fakeGateway{terminalSnapshot: payments.IntentSnapshot{ID: "pi_1", Status: "canceled"}}
	svc := newTestReconciler(t, gw)

	snapshot, err := svc.DeletePayment(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("DeletePayment: %v", err)
	}
	if len(gw.canceledIDs) != 1 || gw.canceledIDs[0] != "pi_1" {
		t.Fatalf("cancel not invoked: %v", gw.canceledIDs)
	}
	if snapshot.Status != "canceled" {
		t.Fatalf("status = %q", snapshot.Status)
	}
}
