package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-checkout/internal/domain"
	"github.com/smallbiznis/smallbiznis-checkout/internal/gateway"
	"github.com/smallbiznis/smallbiznis-checkout/internal/service"
)

func TestStatusRequiresTrackingID(t *testing.T) {
	tokens := &fakeTokens{token: "tok"}
	gw := &fakeStatusGateway{}
	svc := service.NewStatusService(tokens, gw, zap.NewNop())

	_, err := svc.Status(context.Background(), "  ")
	require.ErrorIs(t, err, domain.ErrMissingTrackingID)

	var paymentErr *service.PaymentError
	require.ErrorAs(t, err, &paymentErr)
	require.Equal(t, http.StatusBadRequest, paymentErr.Status)
	require.Zero(t, tokens.calls)
	require.Empty(t, gw.queried)
}

func TestStatusReturnsGatewayView(t *testing.T) {
	gw := &fakeStatusGateway{status: domain.TransactionStatus{
		OrderTrackingID:          "trk-1",
		PaymentStatusDescription: "Completed",
		StatusCode:               1,
	}}
	svc := service.NewStatusService(&fakeTokens{token: "tok"}, gw, zap.NewNop())

	status, err := svc.Status(context.Background(), "trk-1")
	require.NoError(t, err)
	require.Equal(t, "Completed", status.PaymentStatusDescription)
	require.Equal(t, []string{"trk-1"}, gw.queried)
}

func TestStatusFailures(t *testing.T) {
	cases := map[string]struct {
		tokens  *fakeTokens
		gateway *fakeStatusGateway
		message string
	}{
		"token": {
			tokens:  &fakeTokens{err: domain.ErrAuthenticationFailed},
			gateway: &fakeStatusGateway{},
			message: "Transaction status lookup failed",
		},
		"gateway": {
			tokens: &fakeTokens{token: "tok"},
			gateway: &fakeStatusGateway{err: &gateway.Error{
				Kind:    domain.ErrStatusQueryFailed,
				Op:      "transaction status",
				Message: "Invalid order tracking id",
			}},
			message: "Invalid order tracking id",
		},
		"transport": {
			tokens:  &fakeTokens{token: "tok"},
			gateway: &fakeStatusGateway{err: errors.New("connection refused")},
			message: "Transaction status lookup failed",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := service.NewStatusService(tc.tokens, tc.gateway, zap.NewNop())

			_, err := svc.Status(context.Background(), "trk-1")
			require.ErrorIs(t, err, domain.ErrStatusQueryFailed)

			var paymentErr *service.PaymentError
			require.ErrorAs(t, err, &paymentErr)
			require.Equal(t, http.StatusInternalServerError, paymentErr.Status)
			require.Equal(t, tc.message, paymentErr.Description)
		})
	}
}

type fakeStatusGateway struct {
	status  domain.TransactionStatus
	err     error
	queried []string
}

func (f *fakeStatusGateway) GetTransactionStatus(ctx context.Context, token, trackingID string) (domain.TransactionStatus, error) {
	f.queried = append(f.queried, trackingID)
	return f.status, f.err
}
