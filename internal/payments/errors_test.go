package payments

import (
	"errors"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

func TestBuildErrorFromPlainError(t *testing.T) {
	err := BuildError("update payment", errors.New("network down"))
	if err.Message != "update payment" {
		t.Fatalf("message = %q", err.Message)
	}
	if err.Code != "" {
		t.Fatalf("code = %q, want empty", err.Code)
	}
	if err.Detail != "network down" {
		t.Fatalf("detail = %q", err.Detail)
	}
}

func TestBuildErrorFromStripeError(t *testing.T) {
	stripeErr := &stripe.Error{
		Code: stripe.ErrorCodePaymentIntentUnexpectedState,
		Msg:  "intent is not capturable",
	}
	err := BuildError("capture payment", stripeErr)
	if err.Code != string(stripe.ErrorCodePaymentIntentUnexpectedState) {
		t.Fatalf("code = %q", err.Code)
	}
	if err.Detail != "intent is not capturable" {
		t.Fatalf("detail = %q", err.Detail)
	}
}

func TestBuildErrorNestsProcessorErrorDetail(t *testing.T) {
	inner := BuildError("create customer", errors.New("invalid email"))
	outer := BuildError("initiate payment", inner)

	if outer.Message != "initiate payment" {
		t.Fatalf("message = %q", outer.Message)
	}
	lines := strings.Split(outer.Detail, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two detail lines, got %q", outer.Detail)
	}
	if lines[0] != "create customer" || lines[1] != "invalid email" {
		t.Fatalf("detail chain = %q", outer.Detail)
	}
}

func TestProcessorErrorString(t *testing.T) {
	err := &ProcessorError{Message: "refund payment", Code: "card_declined", Detail: "insufficient funds"}
	msg := err.Error()
	for _, want := range []string{"refund payment", "card_declined", "insufficient funds"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("Error() = %q missing %q", msg, want)
		}
	}
}
