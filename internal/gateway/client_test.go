package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-checkout/internal/config"
	"github.com/smallbiznis/smallbiznis-checkout/internal/domain"
	"github.com/smallbiznis/smallbiznis-checkout/internal/gateway"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *gateway.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		PesapalBaseURL:        srv.URL + "/v3/api",
		PesapalConsumerKey:    "key",
		PesapalConsumerSecret: "secret",
		GatewayTimeout:        2 * time.Second,
	}
	return gateway.NewClient(cfg, zap.NewNop(), nil)
}

func TestAuthenticate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/api/Auth/RequestToken", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "key", body["consumer_key"])
		assert.Equal(t, "secret", body["consumer_secret"])

		_, _ = io.WriteString(w, `{"token":"abc","expiryDate":"2026-03-14T10:00:00Z","error":null,"status":"200","message":"Request processed successfully"}`)
	})

	tok, err := client.Authenticate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc", tok.Token)
	require.Equal(t, "2026-03-14T10:00:00Z", tok.ExpiryDate)
}

func TestAuthenticateFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"missing token": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"status":"200"}`)
		},
		"gateway error object": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"token":null,"error":{"error_type":"api_error","code":"invalid_consumer_key_or_secret_provided","message":""},"status":"500"}`)
		},
		"http error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"unauthorized"}`)
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>oops</html>`)
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, handler)

			_, err := client.Authenticate(context.Background())
			require.Error(t, err)
			require.ErrorIs(t, err, domain.ErrAuthenticationFailed)
		})
	}
}

func TestSubmitOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/api/Transactions/SubmitOrderRequest", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "order-1", body["id"])
		assert.Equal(t, 10.01, body["amount"])
		assert.Equal(t, "KES", body["currency"])
		billing, _ := body["billing_address"].(map[string]any)
		assert.Equal(t, "jane@example.com", billing["email_address"])

		_, _ = io.WriteString(w, `{"order_tracking_id":"trk-1","merchant_reference":"order-1","redirect_url":"https://pay.example/redirect","error":null,"status":"200"}`)
	})

	result, err := client.SubmitOrder(context.Background(), "tok", domain.OrderSubmission{
		ID:       "order-1",
		Currency: "KES",
		Amount:   json.Number("10.01"),
		BillingAddress: domain.BillingAddress{
			EmailAddress: "jane@example.com",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "trk-1", result.OrderTrackingID)
	require.Equal(t, "https://pay.example/redirect", result.RedirectURL)
	require.Equal(t, "order-1", result.MerchantReference)
}

func TestSubmitOrderCarriesGatewayBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"error_type":"validation","code":"invalid_amount","message":"Amount is invalid"},"status":"400"}`)
	})

	_, err := client.SubmitOrder(context.Background(), "tok", domain.OrderSubmission{ID: "order-1"})
	require.ErrorIs(t, err, domain.ErrGatewaySubmissionFailed)

	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	require.JSONEq(t, `{"error":{"error_type":"validation","code":"invalid_amount","message":"Amount is invalid"},"status":"400"}`, string(gwErr.Body))
	require.Contains(t, err.Error(), "Amount is invalid")
}

func TestSubmitOrderErrorInsideOKResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"order_tracking_id":null,"redirect_url":null,"error":{"error_type":"api_error","code":"invalid_notification_id","message":"Invalid notification id"},"status":"500"}`)
	})

	_, err := client.SubmitOrder(context.Background(), "tok", domain.OrderSubmission{ID: "order-1"})
	require.ErrorIs(t, err, domain.ErrGatewaySubmissionFailed)

	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, "Invalid notification id", gwErr.Message)
	require.NotEmpty(t, gwErr.Body)
}

func TestSubmitOrderTransportFailure(t *testing.T) {
	cfg := config.Config{PesapalBaseURL: "http://127.0.0.1:1", GatewayTimeout: time.Second}
	client := gateway.NewClient(cfg, zap.NewNop(), nil)

	_, err := client.SubmitOrder(context.Background(), "tok", domain.OrderSubmission{ID: "order-1"})
	require.ErrorIs(t, err, domain.ErrGatewaySubmissionFailed)
}

func TestGetTransactionStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v3/api/Transactions/GetTransactionStatus", r.URL.Path)
		assert.Equal(t, "trk-1", r.URL.Query().Get("orderTrackingId"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		_, _ = io.WriteString(w, `{
			"payment_method": "MpesaKE",
			"amount": 10.01,
			"created_date": "2026-03-14T09:01:02.123",
			"confirmation_code": "QCD123",
			"payment_status_description": "Completed",
			"description": "Payment processed",
			"message": "Request processed successfully",
			"payment_account": "2547xxxxx123",
			"status_code": 1,
			"merchant_reference": "order-1",
			"currency": "KES",
			"error": {"error_type": null, "code": null, "message": null},
			"status": "200"
		}`)
	})

	status, err := client.GetTransactionStatus(context.Background(), "tok", "trk-1")
	require.NoError(t, err)
	require.Equal(t, "trk-1", status.OrderTrackingID)
	require.Equal(t, "Completed", status.PaymentStatusDescription)
	require.Equal(t, 1, status.StatusCode)
	require.Equal(t, "order-1", status.MerchantReference)
	require.Equal(t, 10.01, status.Amount)
}
