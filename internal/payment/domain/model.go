package domain

import (
	"context"
	"errors"
	"time"
)

// SuccessCode is the gateway result code for a settled transfer.
const SuccessCode = "00"

// Gateway is the hosted-checkout provider. Verify and Parse operate on the
// raw callback body exactly as received.
type Gateway interface {
	Provider() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
	Verify(payload []byte) error
	Parse(payload []byte) (*CallbackEvent, error)
}

type CheckoutRequest struct {
	OrderCode   int64
	Amount      int64
	Description string
	ReturnURL   string
	CancelURL   string
}

type CheckoutResponse struct {
	CheckoutURL   string
	OrderCode     int64
	PaymentLinkID string
	Status        string
	// Raw is the provider response body, stored on the payment for audit.
	Raw []byte
}

// CallbackEvent is the provider-neutral view of one webhook delivery.
type CallbackEvent struct {
	Provider            string
	OrderCode           int64
	Code                string
	Description         string
	Reference           string
	Amount              int64
	TransactionDateTime *time.Time
	RawPayload          []byte
}

// Succeeded reports whether the provider settled the transfer.
func (e CallbackEvent) Succeeded() bool {
	return e.Code == SuccessCode
}

var (
	ErrInvalidConfig    = errors.New("invalid_gateway_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrGatewayRequest   = errors.New("gateway_request_failed")
	ErrGatewayResponse  = errors.New("gateway_response_invalid")
	ErrPaymentNotFound  = errors.New("payment_not_found")
)
