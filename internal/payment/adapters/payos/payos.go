package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/smallbiznis/listingboost/internal/config"
	paymentdomain "github.com/smallbiznis/listingboost/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	providerName         = "payos"
	paymentRequestsPath  = "/v2/payment-requests"
	maxDescriptionLength = 25
	maxResponseBytes     = 1 << 20
	transactionTimeFmt   = "2006-01-02 15:04:05"
)

// Transaction timestamps are local to the provider and carry no offset.
var providerLocation = time.FixedZone("ICT", 7*60*60)

type Adapter struct {
	baseURL     string
	clientID    string
	apiKey      string
	checksumKey string
	httpClient  *http.Client
	log         *zap.Logger
}

func New(cfg config.GatewayConfig, log *zap.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.ClientID) == "" ||
		strings.TrimSpace(cfg.APIKey) == "" ||
		strings.TrimSpace(cfg.ChecksumKey) == "" {
		return nil, fmt.Errorf("%w: payos client id, api key and checksum key are required", paymentdomain.ErrInvalidConfig)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: payos base url is required", paymentdomain.ErrInvalidConfig)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Adapter{
		baseURL:     baseURL,
		clientID:    cfg.ClientID,
		apiKey:      cfg.APIKey,
		checksumKey: cfg.ChecksumKey,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log.Named("payment.payos"),
	}, nil
}

func (a *Adapter) Provider() string {
	return providerName
}

type paymentRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	Signature   string `json:"signature"`
}

type envelope struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

type paymentLink struct {
	CheckoutURL   string `json:"checkoutUrl"`
	OrderCode     int64  `json:"orderCode"`
	PaymentLinkID string `json:"paymentLinkId"`
	Status        string `json:"status"`
}

func (a *Adapter) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutResponse, error) {
	body := paymentRequest{
		OrderCode:   req.OrderCode,
		Amount:      req.Amount,
		Description: truncateRunes(req.Description, maxDescriptionLength),
		CancelURL:   req.CancelURL,
		ReturnURL:   req.ReturnURL,
	}
	signature, err := sign(a.checksumKey, map[string]any{
		"amount":      json.Number(fmt.Sprint(body.Amount)),
		"cancelUrl":   body.CancelURL,
		"description": body.Description,
		"orderCode":   json.Number(fmt.Sprint(body.OrderCode)),
		"returnUrl":   body.ReturnURL,
	})
	if err != nil {
		return nil, err
	}
	body.Signature = signature

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+paymentRequestsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-client-id", a.clientID)
	httpReq.Header.Set("x-api-key", a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayRequest, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", paymentdomain.ErrGatewayRequest, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http status %d", paymentdomain.ErrGatewayRequest, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", paymentdomain.ErrGatewayResponse, err)
	}
	if env.Code != paymentdomain.SuccessCode {
		return nil, fmt.Errorf("%w: code %s: %s", paymentdomain.ErrGatewayResponse, env.Code, env.Desc)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: empty data", paymentdomain.ErrGatewayResponse)
	}
	if env.Signature != "" {
		fields, err := decodeFields(env.Data)
		if err != nil || !verify(a.checksumKey, fields, env.Signature) {
			return nil, fmt.Errorf("%w: response signature mismatch", paymentdomain.ErrGatewayResponse)
		}
	}

	var link paymentLink
	if err := json.Unmarshal(env.Data, &link); err != nil {
		return nil, fmt.Errorf("%w: decode data: %v", paymentdomain.ErrGatewayResponse, err)
	}
	if strings.TrimSpace(link.CheckoutURL) == "" {
		return nil, fmt.Errorf("%w: missing checkoutUrl", paymentdomain.ErrGatewayResponse)
	}

	return &paymentdomain.CheckoutResponse{
		CheckoutURL:   link.CheckoutURL,
		OrderCode:     link.OrderCode,
		PaymentLinkID: link.PaymentLinkID,
		Status:        link.Status,
		Raw:           env.Data,
	}, nil
}

type webhookBody struct {
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

type webhookData struct {
	OrderCode           int64  `json:"orderCode"`
	Amount              int64  `json:"amount"`
	Description         string `json:"description"`
	Reference           string `json:"reference"`
	TransactionDateTime string `json:"transactionDateTime"`
	Code                string `json:"code"`
	Desc                string `json:"desc"`
}

func (a *Adapter) Verify(payload []byte) error {
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	if len(body.Data) == 0 || strings.TrimSpace(body.Signature) == "" {
		return paymentdomain.ErrInvalidSignature
	}
	fields, err := decodeFields(body.Data)
	if err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	if !verify(a.checksumKey, fields, body.Signature) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(payload []byte) (*paymentdomain.CallbackEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	var data webhookData
	if err := json.Unmarshal(body.Data, &data); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if data.OrderCode <= 0 {
		return nil, fmt.Errorf("%w: missing orderCode", paymentdomain.ErrInvalidPayload)
	}

	event := &paymentdomain.CallbackEvent{
		Provider:    providerName,
		OrderCode:   data.OrderCode,
		Code:        strings.TrimSpace(data.Code),
		Description: data.Description,
		Reference:   strings.TrimSpace(data.Reference),
		Amount:      data.Amount,
		RawPayload:  payload,
	}
	if ts := strings.TrimSpace(data.TransactionDateTime); ts != "" {
		parsed, err := parseTransactionTime(ts)
		if err != nil {
			a.log.Warn("unparseable transactionDateTime",
				zap.Int64("order_code", data.OrderCode),
				zap.String("value", ts),
			)
		} else {
			event.TransactionDateTime = &parsed
		}
	}
	return event, nil
}

func parseTransactionTime(value string) (time.Time, error) {
	if t, err := time.ParseInLocation(transactionTimeFmt, value, providerLocation); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.New("unsupported transaction time format")
	}
	return t.UTC(), nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
