package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-checkout/internal/domain"
	"github.com/smallbiznis/smallbiznis-checkout/internal/service"
)

const maxIPNBody = 1 << 20

// PaymentHandler exposes the checkout endpoints.
type PaymentHandler struct {
	Orders *service.OrderService
	Status *service.StatusService
	logger *zap.Logger
}

// NewPaymentHandler creates the handler set.
func NewPaymentHandler(orders *service.OrderService, status *service.StatusService, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{Orders: orders, Status: status, logger: logger}
}

// orderPayload accepts any JSON scalar per field; clients send amounts and
// phone numbers both as numbers and as strings.
type orderPayload struct {
	Amount    json.RawMessage `json:"amount"`
	Email     json.RawMessage `json:"email"`
	Phone     json.RawMessage `json:"phone"`
	FirstName json.RawMessage `json:"firstName"`
	LastName  json.RawMessage `json:"lastName"`
}

// CreateOrder handles POST /order.
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var payload orderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		// An unreadable body is reported through validation like an empty one.
		h.logger.Debug("order body not decoded", zap.Error(err))
		payload = orderPayload{}
	}

	result, err := h.Orders.Submit(c.Request.Context(), domain.OrderRequest{
		Amount:    scalarText(payload.Amount),
		Email:     scalarText(payload.Email),
		Phone:     scalarText(payload.Phone),
		FirstName: scalarText(payload.FirstName),
		LastName:  scalarText(payload.LastName),
	})
	if err != nil {
		h.respondError(c, err, "Payment initiation failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"redirect_url":       result.RedirectURL,
		"order_tracking_id":  result.OrderTrackingID,
		"merchant_reference": result.MerchantReference,
	})
}

// OrderStatus handles GET /order/:trackingId/status.
func (h *PaymentHandler) OrderStatus(c *gin.Context) {
	status, err := h.Status.Status(c.Request.Context(), c.Param("trackingId"))
	if err != nil {
		h.respondError(c, err, "Transaction status lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": status})
}

// IPN acknowledges gateway notifications. It never fails, whatever the payload.
func (h *PaymentHandler) IPN(c *gin.Context) {
	var body []byte
	if c.Request.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxIPNBody))
	}

	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("order_tracking_id", c.Query("OrderTrackingId")),
		zap.String("merchant_reference", c.Query("OrderMerchantReference")),
		zap.String("notification_type", c.Query("OrderNotificationType")),
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 {
		if json.Valid(trimmed) {
			fields = append(fields, zap.Any("payload", json.RawMessage(trimmed)))
		} else {
			fields = append(fields, zap.ByteString("payload", trimmed))
		}
	}
	h.logger.Info("ipn received", fields...)

	c.JSON(http.StatusOK, gin.H{"message": "IPN received successfully"})
}

// Health reports liveness.
func (h *PaymentHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *PaymentHandler) respondError(c *gin.Context, err error, fallback string) {
	var paymentErr *service.PaymentError
	if !errors.As(err, &paymentErr) {
		h.logger.Error("unexpected payment failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": fallback, "details": err.Error()})
		return
	}

	if paymentErr.Status < http.StatusInternalServerError {
		h.logger.Warn("payment request rejected", zap.String("code", paymentErr.Code), zap.Error(err))
		c.JSON(paymentErr.Status, gin.H{"success": false, "message": paymentErr.Description})
		return
	}

	c.JSON(paymentErr.Status, gin.H{
		"success": false,
		"message": paymentErr.Description,
		"details": paymentErr.Details(),
	})
}

// scalarText turns a JSON scalar into its text form: strings are unquoted,
// numbers keep their literal digits, null and absent become "".
func scalarText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
		return ""
	}
	return string(trimmed)
}
