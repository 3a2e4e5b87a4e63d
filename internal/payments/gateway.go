package payments

import (
	"context"
	"encoding/json"
)

// CustomerRef identifies a gateway-side customer record.
type CustomerRef struct {
	ID    string
	Email string
}

// IntentSnapshot mirrors the gateway's payment-intent record. It is
// externally owned state: the engine reads it and proposes mutations via
// the gateway, never mutating it directly.
type IntentSnapshot struct {
	ID           string
	Amount       int64
	Currency     string
	Status       string
	CustomerID   string
	ClientSecret string
	Metadata     map[string]string
}

// CreateIntentRequest carries the fields used when creating an intent.
type CreateIntentRequest struct {
	Amount                  int64
	Currency                string
	Description             string
	CustomerID              string
	Metadata                map[string]string
	CaptureMethod           string
	SetupFutureUsage        string
	PaymentMethodTypes      []string
	AutomaticPaymentMethods bool
	IdempotencyKey          string
}

// UpdateIntentRequest amends an existing intent's amount and metadata.
type UpdateIntentRequest struct {
	Amount   int64
	Metadata map[string]string
}

// RefundRequest asks the gateway to refund part or all of an intent.
type RefundRequest struct {
	IntentID string
	Amount   int64
}

// TaxLine is one line-item entry in a remote tax calculation, net of
// allocated discounts.
type TaxLine struct {
	Amount    int64
	Reference string
	TaxCode   string
}

// CustomerAddress is the address shape the tax engine consumes. Missing
// fields stay empty strings.
type CustomerAddress struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// TaxCalculationRequest carries everything a remote tax calculation
// needs: line items, the shipping cost with its tax code, and the
// customer's shipping address.
type TaxCalculationRequest struct {
	Currency        string
	Lines           []TaxLine
	Address         CustomerAddress
	ShippingCost    int64
	ShippingTaxCode string
}

// TaxCalculation is the remote calculation result retained for later
// transaction reconciliation.
type TaxCalculation struct {
	ID                 string
	AmountTotal        int64
	TaxAmountExclusive int64
}

// WebhookEvent is a signature-verified gateway event.
type WebhookEvent struct {
	ID      string
	Type    string
	Account string
	Data    json.RawMessage
}

// Gateway is the opaque remote payment-and-tax service the engine talks
// to. Implementations own their transport, timeout, and retry policy;
// the engine treats every returned error as terminal for the current
// pass.
type Gateway interface {
	CreateCustomer(ctx context.Context, email string) (CustomerRef, error)
	CreateIntent(ctx context.Context, req CreateIntentRequest) (IntentSnapshot, error)
	RetrieveIntent(ctx context.Context, id string) (IntentSnapshot, error)
	UpdateIntent(ctx context.Context, id string, req UpdateIntentRequest) (IntentSnapshot, error)
	CancelIntent(ctx context.Context, id string) (IntentSnapshot, error)
	CaptureIntent(ctx context.Context, id string) (IntentSnapshot, error)
	CreateRefund(ctx context.Context, req RefundRequest) error
	CreateTaxCalculation(ctx context.Context, req TaxCalculationRequest) (TaxCalculation, error)
	ConstructWebhookEvent(payload []byte, signature string) (WebhookEvent, error)
}
