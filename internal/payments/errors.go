package payments

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
)

// ProcessorError is the uniform error envelope surfaced for remote-call
// failures: a short message, the gateway code when one exists, and a
// textual detail chain. Nesting is textual only; there is no structured
// cause.
type ProcessorError struct {
	Message string
	Code    string
	Detail  string
}

// Error implements the error interface.
func (e *ProcessorError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Message, e.Code, e.Detail)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// BuildError wraps a failure into a ProcessorError. Nested engine errors
// contribute their message and detail joined by a line separator so the
// causal chain survives serialisation; gateway errors contribute their
// code and message.
func BuildError(message string, err error) *ProcessorError {
	out := &ProcessorError{Message: message}
	if err == nil {
		return out
	}

	var nested *ProcessorError
	if errors.As(err, &nested) {
		out.Code = nested.Code
		out.Detail = nested.Message + "\n" + nested.Detail
		return out
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		out.Code = string(stripeErr.Code)
		out.Detail = stripeErr.Msg
		if out.Detail == "" {
			out.Detail = stripeErr.Error()
		}
		return out
	}

	out.Detail = err.Error()
	return out
}
