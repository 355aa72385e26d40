package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/smallbiznis/smallbiznis-checkout/internal/gateway"
)

// PaymentError carries the HTTP status and client-facing message for a failed
// operation, wrapping the underlying cause.
type PaymentError struct {
	Code        string
	Description string
	Status      int
	Err         error
}

func (e *PaymentError) Error() string {
	if e.Err == nil {
		return e.Description
	}
	return fmt.Sprintf("%s: %v", e.Description, e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Details returns diagnostic information suitable for a 5xx response body.
func (e *PaymentError) Details() any {
	var gwErr *gateway.Error
	if errors.As(e.Err, &gwErr) {
		return gwErr.Details()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return nil
}

func newPaymentError(code, description string, status int, err error) *PaymentError {
	return &PaymentError{Code: code, Description: description, Status: status, Err: err}
}

func badRequest(code, description string, err error) *PaymentError {
	return newPaymentError(code, description, http.StatusBadRequest, err)
}

// upstreamMessage prefers the gateway's own message when it sent one.
func upstreamMessage(err error, fallback string) string {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	return fallback
}
