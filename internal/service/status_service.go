package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-checkout/internal/domain"
)

// StatusGateway looks up transaction state at the gateway.
type StatusGateway interface {
	GetTransactionStatus(ctx context.Context, token, trackingID string) (domain.TransactionStatus, error)
}

// StatusService polls the gateway for the outcome of a submitted order.
type StatusService struct {
	tokens  TokenSource
	gateway StatusGateway
	logger  *zap.Logger
}

func NewStatusService(tokens TokenSource, gw StatusGateway, logger *zap.Logger) *StatusService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusService{tokens: tokens, gateway: gw, logger: logger}
}

// Status returns the gateway's current view of the order tracked by trackingID.
func (s *StatusService) Status(ctx context.Context, trackingID string) (domain.TransactionStatus, error) {
	ctx, span := s.startSpan(ctx, "StatusService.Status")
	defer span.End()

	trackingID = strings.TrimSpace(trackingID)
	if trackingID == "" {
		return domain.TransactionStatus{}, badRequest("missing_tracking_id", "Order tracking id is required", domain.ErrMissingTrackingID)
	}

	token, err := s.tokens.GetValidToken(ctx)
	if err == nil {
		var status domain.TransactionStatus
		status, err = s.gateway.GetTransactionStatus(ctx, token, trackingID)
		if err == nil {
			return status, nil
		}
	}

	span.RecordError(err)
	s.logger.Error("transaction status lookup failed", zap.String("order_tracking_id", trackingID), zap.Error(err))
	return domain.TransactionStatus{}, newPaymentError(
		"status_query_failed",
		upstreamMessage(err, "Transaction status lookup failed"),
		http.StatusInternalServerError,
		fmt.Errorf("%w: %w", domain.ErrStatusQueryFailed, err),
	)
}

func (s *StatusService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name)
}
