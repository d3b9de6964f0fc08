package grpc

import (
	"github.com/shopspring/decimal"

	"esadad-service/internal/services"
)

type AuthenticateRequest struct {
	ForceNew bool `json:"force_new"`
}

type InitiatePaymentRequest struct {
	CustomerID       string `json:"customer_id"`
	CustomerPassword string `json:"customer_password"`
	TokenKey         string `json:"token_key,omitempty"`
}

type RequestPaymentRequest struct {
	CustomerID string          `json:"customer_id"`
	OTP        string          `json:"otp"`
	InvoiceID  string          `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency,omitempty"`
	TokenKey   string          `json:"token_key,omitempty"`
}

type ConfirmPaymentRequest struct {
	CustomerID    string                      `json:"customer_id"`
	Details       services.TransactionDetails `json:"transaction_details"`
	Amount        decimal.Decimal             `json:"amount"`
	Currency      string                      `json:"currency,omitempty"`
	PaymentStatus string                      `json:"payment_status,omitempty"`
	TokenKey      string                      `json:"token_key,omitempty"`
}

// GatewayReply carries the gateway's response fields. Business failures are
// replies with Success false, not RPC errors.
type GatewayReply struct {
	Success  bool                   `json:"success"`
	Response map[string]interface{} `json:"response"`
}

type GetTransactionRequest struct {
	ID uint `json:"id"`
}

type TransactionReply struct {
	Transaction *services.TransactionView `json:"transaction"`
}
