package services

import (
	"context"

	domain "github.com/cartfield/payments/internal/domain"
	"github.com/cartfield/payments/internal/payments"
)

// PaymentService exposes the reconciliation engine to the host checkout
// system. All operations are request-scoped; the engine owns no
// persisted state.
type PaymentService interface {
	InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentSessionResult, error)
	UpdatePayment(ctx context.Context, cmd UpdatePaymentCommand) (UpdateDirective, error)
	AuthorizePayment(ctx context.Context, session payments.IntentSnapshot) (AuthorizePaymentResult, error)
	GetPaymentStatus(ctx context.Context, intentID string) (payments.Status, error)
	RetrievePayment(ctx context.Context, intentID string) (payments.IntentSnapshot, error)
	CapturePayment(ctx context.Context, intentID string) (payments.IntentSnapshot, error)
	CancelPayment(ctx context.Context, intentID string) (payments.IntentSnapshot, error)
	DeletePayment(ctx context.Context, intentID string) (payments.IntentSnapshot, error)
	RefundPayment(ctx context.Context, cmd RefundPaymentCommand) (payments.IntentSnapshot, error)
	ConstructWebhookEvent(ctx context.Context, payload []byte, signature string) (payments.WebhookEvent, error)
}

// InitiatePaymentCommand starts a brand-new payment for a cart.
type InitiatePaymentCommand struct {
	Amount       int64
	CurrencyCode string
	Email        string
	ResourceID   string
	Customer     *domain.Customer
	Description  string
}

// PaymentSessionResult reports the created intent snapshot.
// CreatedCustomerID is set when a gateway customer was created during
// initiation; the host must persist it on the customer record.
type PaymentSessionResult struct {
	Session           payments.IntentSnapshot
	CreatedCustomerID string
}

// UpdatePaymentCommand carries one cart update event. Amount is the
// event-supplied total, used when no remote tax calculation runs. Cart
// is required; Session is the stored intent snapshot being reconciled.
type UpdatePaymentCommand struct {
	Amount       int64
	CurrencyCode string
	Email        string
	Customer     *domain.Customer
	Cart         *domain.Cart
	Session      payments.IntentSnapshot
}

// UpdateDirective is the reconciler's decision for one update event:
// either nothing needs to be sent to the gateway, or Session holds the
// amended (or re-created) intent snapshot.
type UpdateDirective struct {
	NoOp              bool
	Session           *payments.IntentSnapshot
	CreatedCustomerID string
}

// AuthorizePaymentResult pairs the canonical status with the snapshot it
// was derived from.
type AuthorizePaymentResult struct {
	Status  payments.Status
	Session payments.IntentSnapshot
}

// RefundPaymentCommand refunds part or all of a captured payment.
type RefundPaymentCommand struct {
	Session payments.IntentSnapshot
	Amount  int64
}
