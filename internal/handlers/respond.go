package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/cartfield/payments/internal/payments"
	"github.com/cartfield/payments/internal/platform/httpx"
	"github.com/cartfield/payments/internal/services"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var perr *payments.ProcessorError
	switch {
	case errors.Is(err, services.ErrPaymentCartRequired):
		httpx.WriteError(ctx, w, httpx.NewError("cart_required", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPaymentInvalidItems):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_line_items", err.Error(), http.StatusBadRequest))
	case errors.As(err, &perr):
		httpx.WriteError(ctx, w, httpx.NewError(perr.Code, perr.Message, http.StatusBadGateway).WithDetail(perr.Detail))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", err.Error(), http.StatusInternalServerError))
	}
}
