package domain

import "encoding/json"

// OrderRequest is the caller-supplied checkout payload. Amount keeps the raw
// textual value so validation can tell "abc" apart from 0.
type OrderRequest struct {
	Amount    string
	Email     string
	Phone     string
	FirstName string
	LastName  string
}

// BillingAddress is the customer block forwarded to the gateway.
type BillingAddress struct {
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number"`
	CountryCode  string `json:"country_code"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

// OrderSubmission is the payload posted to SubmitOrderRequest.
type OrderSubmission struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         json.Number    `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id"`
	BillingAddress BillingAddress `json:"billing_address"`
}

// OrderResult is what the gateway hands back for a created order.
type OrderResult struct {
	RedirectURL       string
	OrderTrackingID   string
	MerchantReference string
}

// TransactionStatus describes the gateway's view of a submitted order.
type TransactionStatus struct {
	OrderTrackingID          string  `json:"order_tracking_id"`
	MerchantReference        string  `json:"merchant_reference"`
	PaymentMethod            string  `json:"payment_method"`
	Amount                   float64 `json:"amount"`
	Currency                 string  `json:"currency"`
	StatusCode               int     `json:"status_code"`
	PaymentStatusDescription string  `json:"payment_status_description"`
	Description              string  `json:"description"`
	ConfirmationCode         string  `json:"confirmation_code"`
	PaymentAccount           string  `json:"payment_account"`
	CreatedDate              string  `json:"created_date"`
	Message                  string  `json:"message"`
}
