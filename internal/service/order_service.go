package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-checkout/internal/config"
	"github.com/smallbiznis/smallbiznis-checkout/internal/domain"
	"github.com/smallbiznis/smallbiznis-checkout/internal/metrics"
)

const tracerName = "github.com/smallbiznis/smallbiznis-checkout/internal/service"

var minAmount = decimal.New(1, -2)

// TokenSource yields a bearer token accepted by the gateway.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
}

// OrderGateway submits orders to the payment gateway.
type OrderGateway interface {
	SubmitOrder(ctx context.Context, token string, order domain.OrderSubmission) (domain.OrderResult, error)
}

// OrderService validates checkout requests and submits them to the gateway.
type OrderService struct {
	tokens      TokenSource
	gateway     OrderGateway
	currency    string
	countryCode string
	description string
	callbackURL string
	newID       func() string
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewOrderService wires the order workflow.
func NewOrderService(tokens TokenSource, gw OrderGateway, cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		tokens:      tokens,
		gateway:     gw,
		currency:    cfg.Currency,
		countryCode: cfg.CountryCode,
		description: cfg.OrderDescription,
		callbackURL: cfg.CallbackURL,
		newID:       uuid.NewString,
		logger:      logger,
		metrics:     m,
	}
}

// Submit validates req, then creates the order at the gateway. Validation
// failures return before any network call is made.
func (s *OrderService) Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	ctx, span := s.startSpan(ctx, "OrderService.Submit")
	defer span.End()

	amount, err := ParseAmount(req.Amount)
	if err != nil {
		s.metrics.Order("invalid")
		return domain.OrderResult{}, badRequest("invalid_amount", "Invalid payment amount. Must be 0.01 or higher.", err)
	}
	if err := validateCustomer(req); err != nil {
		s.metrics.Order("invalid")
		return domain.OrderResult{}, badRequest("missing_customer_details", "Missing customer details", err)
	}

	order := domain.OrderSubmission{
		ID:             s.newID(),
		Currency:       s.currency,
		Amount:         json.Number(amount.StringFixed(2)),
		Description:    s.description,
		CallbackURL:    s.callbackURL,
		NotificationID: s.newID(),
		BillingAddress: domain.BillingAddress{
			EmailAddress: strings.TrimSpace(req.Email),
			PhoneNumber:  strings.TrimSpace(req.Phone),
			CountryCode:  s.countryCode,
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
		},
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	token, err := s.tokens.GetValidToken(ctx)
	if err != nil {
		span.RecordError(err)
		return domain.OrderResult{}, s.initiationFailed(order.ID, err)
	}

	result, err := s.gateway.SubmitOrder(ctx, token, order)
	if err != nil {
		span.RecordError(err)
		return domain.OrderResult{}, s.initiationFailed(order.ID, err)
	}
	if result.MerchantReference == "" {
		result.MerchantReference = order.ID
	}

	s.metrics.Order("success")
	s.logger.Info("gateway order created",
		zap.String("order_id", order.ID),
		zap.String("order_tracking_id", result.OrderTrackingID),
	)
	return result, nil
}

func (s *OrderService) initiationFailed(orderID string, cause error) error {
	s.metrics.Order("failure")
	s.logger.Error("payment initiation failed", zap.String("order_id", orderID), zap.Error(cause))
	return newPaymentError(
		"payment_initiation_failed",
		upstreamMessage(cause, "Payment initiation failed"),
		http.StatusInternalServerError,
		fmt.Errorf("%w: %w", domain.ErrPaymentInitiationFailed, cause),
	)
}

func (s *OrderService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name)
}

// ParseAmount parses a decimal amount of at least 0.01 and rounds it half away
// from zero to two places, so 10.005 becomes 10.01.
func ParseAmount(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Decimal{}, domain.ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, trimmed)
	}
	if amount.LessThan(minAmount) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s is below %s", domain.ErrInvalidAmount, amount, minAmount)
	}
	return amount.Round(2), nil
}

func validateCustomer(req domain.OrderRequest) error {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"email", req.Email},
		{"phone", req.Phone},
		{"firstName", req.FirstName},
		{"lastName", req.LastName},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrMissingCustomerDetails, strings.Join(missing, ", "))
	}
	return nil
}
