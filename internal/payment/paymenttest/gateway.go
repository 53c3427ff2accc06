// Package paymenttest provides an in-memory gateway for service tests.
package paymenttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paymentdomain "github.com/smallbiznis/listingboost/internal/payment/domain"
)

const ValidSignature = "valid-signature"

// Gateway records checkout requests and accepts callbacks whose signature
// equals ValidSignature.
type Gateway struct {
	mu       sync.Mutex
	err      error
	requests []paymentdomain.CheckoutRequest
}

func NewGateway() *Gateway {
	return &Gateway{}
}

func (g *Gateway) Provider() string { return "fake" }

// FailWith makes subsequent CreateCheckout calls return err.
func (g *Gateway) FailWith(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

func (g *Gateway) Requests() []paymentdomain.CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]paymentdomain.CheckoutRequest(nil), g.requests...)
}

func (g *Gateway) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	raw, _ := json.Marshal(map[string]any{"orderCode": req.OrderCode, "status": "PENDING"})
	return &paymentdomain.CheckoutResponse{
		CheckoutURL:   fmt.Sprintf("https://pay.test/checkout/%d", req.OrderCode),
		OrderCode:     req.OrderCode,
		PaymentLinkID: fmt.Sprintf("link-%d", req.OrderCode),
		Status:        "PENDING",
		Raw:           raw,
	}, nil
}

type callback struct {
	Data struct {
		OrderCode           int64  `json:"orderCode"`
		Code                string `json:"code"`
		Reference           string `json:"reference"`
		TransactionDateTime string `json:"transactionDateTime"`
	} `json:"data"`
	Signature string `json:"signature"`
}

func (g *Gateway) Verify(payload []byte) error {
	var cb callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	if cb.Signature != ValidSignature {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (g *Gateway) Parse(payload []byte) (*paymentdomain.CallbackEvent, error) {
	var cb callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	event := &paymentdomain.CallbackEvent{
		Provider:   "fake",
		OrderCode:  cb.Data.OrderCode,
		Code:       cb.Data.Code,
		Reference:  cb.Data.Reference,
		RawPayload: payload,
	}
	if cb.Data.TransactionDateTime != "" {
		if ts, err := time.Parse(time.RFC3339, cb.Data.TransactionDateTime); err == nil {
			event.TransactionDateTime = &ts
		}
	}
	return event, nil
}

// Callback builds a webhook body for orderCode with the given result code.
func Callback(orderCode int64, code, signature string, paidAt time.Time) []byte {
	body, _ := json.Marshal(map[string]any{
		"code":    "00",
		"success": true,
		"data": map[string]any{
			"orderCode":           orderCode,
			"code":                code,
			"reference":           fmt.Sprintf("REF%d", orderCode),
			"transactionDateTime": paidAt.UTC().Format(time.RFC3339),
		},
		"signature": signature,
	})
	return body
}
