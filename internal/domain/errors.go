package domain

import "errors"

// Client input errors.
var (
	ErrInvalidAmount          = errors.New("invalid payment amount")
	ErrMissingCustomerDetails = errors.New("missing customer details")
	ErrMissingTrackingID      = errors.New("missing order tracking id")
)

// Dependency and transport errors.
var (
	ErrStorageUnavailable      = errors.New("credential storage unavailable")
	ErrAuthenticationFailed    = errors.New("gateway authentication failed")
	ErrGatewaySubmissionFailed = errors.New("gateway submission failed")
	ErrPaymentInitiationFailed = errors.New("payment initiation failed")
	ErrStatusQueryFailed       = errors.New("transaction status query failed")
)
