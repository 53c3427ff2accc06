package payos

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/listingboost/internal/config"
	paymentdomain "github.com/smallbiznis/listingboost/internal/payment/domain"
	"go.uber.org/zap"
)

const testChecksumKey = "checksum-test"

func hmacHex(key, msg string) string {
	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	a, err := New(config.GatewayConfig{
		BaseURL:     baseURL,
		ClientID:    "client",
		APIKey:      "api-key",
		ChecksumKey: testChecksumKey,
		Timeout:     2 * time.Second,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return a
}

func TestCanonicalQuery(t *testing.T) {
	fields, err := decodeFields([]byte(`{
		"orderCode": 123,
		"amount": 3000,
		"reference": null,
		"desc": "undefined",
		"counterAccountName": "null",
		"items": [{"quantity": 1, "name": "A&B"}],
		"code": "00"
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	got, err := canonicalQuery(fields)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	want := `amount=3000&code=00&counterAccountName=&desc=&items=[{"name":"A&B","quantity":1}]&orderCode=123&reference=`
	if got != want {
		t.Fatalf("canonical mismatch\n got: %s\nwant: %s", got, want)
	}
}

func webhookPayload(t *testing.T, data map[string]any, key string) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	query, err := canonicalQuery(fields)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	body, err := json.Marshal(map[string]any{
		"code":      "00",
		"desc":      "success",
		"success":   true,
		"data":      json.RawMessage(raw),
		"signature": hmacHex(key, query),
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body
}

func sampleData() map[string]any {
	return map[string]any{
		"orderCode":           1767225600123,
		"amount":              30000,
		"description":         "Boost 6h - SP #42",
		"accountNumber":       "12345678",
		"reference":           "FT2601010001",
		"transactionDateTime": "2026-01-01 07:30:00",
		"currency":            "VND",
		"paymentLinkId":       "plink_1",
		"code":                "00",
		"desc":                "success",
		"counterAccountName":  nil,
	}
}

func TestVerifySignature(t *testing.T) {
	a := newTestAdapter(t, "http://unused")

	valid := webhookPayload(t, sampleData(), testChecksumKey)
	if err := a.Verify(valid); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	forged := webhookPayload(t, sampleData(), "wrong-key")
	if err := a.Verify(forged); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	if err := a.Verify([]byte(`not json`)); !errors.Is(err, paymentdomain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	a := newTestAdapter(t, "http://unused")

	var body map[string]any
	if err := json.Unmarshal(webhookPayload(t, sampleData(), testChecksumKey), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	body["data"].(map[string]any)["amount"] = 1
	tampered, _ := json.Marshal(body)

	if err := a.Verify(tampered); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseCallback(t *testing.T) {
	a := newTestAdapter(t, "http://unused")

	event, err := a.Parse(webhookPayload(t, sampleData(), testChecksumKey))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.OrderCode != 1767225600123 || !event.Succeeded() {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Reference != "FT2601010001" {
		t.Fatalf("unexpected reference %q", event.Reference)
	}
	want := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
	if event.TransactionDateTime == nil || !event.TransactionDateTime.Equal(want) {
		t.Fatalf("expected paid at %v, got %v", want, event.TransactionDateTime)
	}

	data := sampleData()
	data["code"] = "01"
	failed, err := a.Parse(webhookPayload(t, data, testChecksumKey))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if failed.Succeeded() {
		t.Fatalf("code 01 must not be a success")
	}
}

func TestCreateCheckout(t *testing.T) {
	var got paymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != paymentRequestsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-client-id") != "client" || r.Header.Get("x-api-key") != "api-key" {
			t.Errorf("missing credentials headers")
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{"orderCode":99,"amount":30000,"paymentLinkId":"plink","status":"PENDING","checkoutUrl":"https://pay.example/checkout/plink"}}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	resp, err := a.CreateCheckout(context.Background(), paymentdomain.CheckoutRequest{
		OrderCode:   99,
		Amount:      30000,
		Description: "Priority listing 7 days - SP #1800000000000000000",
		ReturnURL:   "http://fe/payment/PROMOTION/success?product_id=1&package_id=2",
		CancelURL:   "http://fe/payment/PROMOTION/cancel?product_id=1&package_id=2",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if resp.CheckoutURL != "https://pay.example/checkout/plink" || resp.PaymentLinkID != "plink" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len([]rune(got.Description)) > maxDescriptionLength {
		t.Fatalf("description not truncated: %q", got.Description)
	}

	query := "amount=30000&cancelUrl=" + got.CancelURL + "&description=" + got.Description +
		"&orderCode=99&returnUrl=" + got.ReturnURL
	if got.Signature != hmacHex(testChecksumKey, query) {
		t.Fatalf("request signature mismatch")
	}
}

func TestCreateCheckoutFailures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusBadGateway, body: `{}`, wantErr: paymentdomain.ErrGatewayRequest},
		{name: "rejected code", status: http.StatusOK, body: `{"code":"20","desc":"invalid orderCode","data":null}`, wantErr: paymentdomain.ErrGatewayResponse},
		{name: "missing checkout url", status: http.StatusOK, body: `{"code":"00","desc":"success","data":{"orderCode":1}}`, wantErr: paymentdomain.ErrGatewayResponse},
		{name: "malformed", status: http.StatusOK, body: `<html>`, wantErr: paymentdomain.ErrGatewayResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			a := newTestAdapter(t, srv.URL)
			_, err := a.CreateCheckout(context.Background(), paymentdomain.CheckoutRequest{OrderCode: 1, Amount: 1000})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(config.GatewayConfig{BaseURL: "http://x"}, zap.NewNop()); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
