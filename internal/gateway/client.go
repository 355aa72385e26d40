package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-checkout/internal/config"
	"github.com/smallbiznis/smallbiznis-checkout/internal/domain"
	"github.com/smallbiznis/smallbiznis-checkout/internal/metrics"
)

const (
	requestTokenPath       = "/Auth/RequestToken"
	submitOrderPath        = "/Transactions/SubmitOrderRequest"
	transactionStatusPath  = "/Transactions/GetTransactionStatus"
	maxResponseBody        = 1 << 20
	tracerName             = "github.com/smallbiznis/smallbiznis-checkout/internal/gateway"
	endpointAuth           = "auth"
	endpointSubmitOrder    = "submit_order"
	endpointTransactionGet = "transaction_status"
)

// Token is the result of a successful authentication call.
type Token struct {
	Token      string
	ExpiryDate string
}

// Client talks to the Pesapal v3 API. It holds no state between calls.
type Client struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	http           *http.Client
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// NewClient builds a client bounded by cfg.GatewayTimeout per request.
func NewClient(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *Client {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.GatewayTimeout}, logger, m)
}

// NewClientWithHTTP lets callers supply their own transport.
func NewClientWithHTTP(cfg config.Config, httpClient *http.Client, logger *zap.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.PesapalBaseURL, "/"),
		consumerKey:    cfg.PesapalConsumerKey,
		consumerSecret: cfg.PesapalConsumerSecret,
		http:           httpClient,
		logger:         logger,
		metrics:        m,
	}
}

// Authenticate exchanges the consumer credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context) (Token, error) {
	payload := map[string]string{
		"consumer_key":    c.consumerKey,
		"consumer_secret": c.consumerSecret,
	}

	var resp struct {
		Token      string    `json:"token"`
		ExpiryDate string    `json:"expiryDate"`
		Message    string    `json:"message"`
		Error      *apiError `json:"error"`
	}

	status, body, err := c.do(ctx, endpointAuth, http.MethodPost, requestTokenPath, "", payload, &resp)
	if err != nil {
		return Token{}, &Error{Kind: domain.ErrAuthenticationFailed, Op: "request token", StatusCode: status, Body: rawBody(body), Err: err}
	}
	if resp.Error.describe() != "" {
		return Token{}, &Error{Kind: domain.ErrAuthenticationFailed, Op: "request token", StatusCode: status, Message: resp.Error.describe(), Body: rawBody(body)}
	}
	if resp.Token == "" {
		return Token{}, &Error{Kind: domain.ErrAuthenticationFailed, Op: "request token", StatusCode: status, Message: "no token returned", Body: rawBody(body)}
	}

	return Token{Token: resp.Token, ExpiryDate: resp.ExpiryDate}, nil
}

// SubmitOrder creates an order and returns where to send the customer.
func (c *Client) SubmitOrder(ctx context.Context, token string, order domain.OrderSubmission) (domain.OrderResult, error) {
	var resp struct {
		OrderTrackingID   string    `json:"order_tracking_id"`
		MerchantReference string    `json:"merchant_reference"`
		RedirectURL       string    `json:"redirect_url"`
		Message           string    `json:"message"`
		Error             *apiError `json:"error"`
	}

	c.logger.Info("submitting gateway order",
		zap.String("order_id", order.ID),
		zap.String("amount", order.Amount.String()),
		zap.String("currency", order.Currency),
	)

	status, body, err := c.do(ctx, endpointSubmitOrder, http.MethodPost, submitOrderPath, token, order, &resp)
	if err != nil {
		return domain.OrderResult{}, &Error{Kind: domain.ErrGatewaySubmissionFailed, Op: "submit order", StatusCode: status, Body: rawBody(body), Err: err}
	}
	if resp.Error.describe() != "" {
		return domain.OrderResult{}, &Error{Kind: domain.ErrGatewaySubmissionFailed, Op: "submit order", StatusCode: status, Message: resp.Error.describe(), Body: rawBody(body)}
	}
	if resp.RedirectURL == "" || resp.OrderTrackingID == "" {
		return domain.OrderResult{}, &Error{Kind: domain.ErrGatewaySubmissionFailed, Op: "submit order", StatusCode: status, Message: "incomplete order response", Body: rawBody(body)}
	}

	return domain.OrderResult{
		RedirectURL:       resp.RedirectURL,
		OrderTrackingID:   resp.OrderTrackingID,
		MerchantReference: resp.MerchantReference,
	}, nil
}

// GetTransactionStatus asks the gateway for the current state of an order.
func (c *Client) GetTransactionStatus(ctx context.Context, token, trackingID string) (domain.TransactionStatus, error) {
	var resp struct {
		domain.TransactionStatus
		Error *apiError `json:"error"`
	}

	path := transactionStatusPath + "?orderTrackingId=" + url.QueryEscape(trackingID)
	status, body, err := c.do(ctx, endpointTransactionGet, http.MethodGet, path, token, nil, &resp)
	if err != nil {
		return domain.TransactionStatus{}, &Error{Kind: domain.ErrStatusQueryFailed, Op: "transaction status", StatusCode: status, Body: rawBody(body), Err: err}
	}
	// Pesapal fills error with empty fields for successful lookups.
	if resp.Error.describe() != "" {
		return domain.TransactionStatus{}, &Error{Kind: domain.ErrStatusQueryFailed, Op: "transaction status", StatusCode: status, Message: resp.Error.describe(), Body: rawBody(body)}
	}

	result := resp.TransactionStatus
	result.OrderTrackingID = trackingID
	return result, nil
}

// do performs a JSON round trip. It returns the HTTP status and raw body along
// with an error for transport failures, non-2xx statuses and undecodable bodies.
func (c *Client) do(ctx context.Context, endpoint, method, path, bearer string, payload, out any) (int, []byte, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "gateway."+endpoint)
	defer span.End()

	started := time.Now()
	status, body, err := c.roundTrip(ctx, method, path, bearer, payload, out)

	outcome := "success"
	if err != nil {
		outcome = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("gateway call failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", status),
			zap.ByteString("body", body),
			zap.Error(err),
		)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	c.metrics.GatewayRequest(endpoint, outcome, time.Since(started))

	return status, body, err
}

func (c *Client) roundTrip(ctx context.Context, method, path, bearer string, payload, out any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var envelope struct {
			Message string    `json:"message"`
			Error   *apiError `json:"error"`
		}
		msg := http.StatusText(res.StatusCode)
		if json.Unmarshal(body, &envelope) == nil {
			if d := envelope.Error.describe(); d != "" {
				msg = d
			} else if envelope.Message != "" {
				msg = envelope.Message
			}
		}
		return res.StatusCode, body, errors.New(msg)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return res.StatusCode, body, fmt.Errorf("decode response: %w", err)
	}
	return res.StatusCode, body, nil
}
