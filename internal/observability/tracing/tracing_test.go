package tracing

import (
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSecrets(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/payments/webhook"),
		attribute.String("signature", "abc"),
		attribute.String("checkout_url", "https://pay.example/1"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}
}

func TestSafeErrorTruncates(t *testing.T) {
	if SafeError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	long := errors.New(strings.Repeat("x", 1000))
	if got := len(SafeError(long).Error()); got != maxErrorMessage {
		t.Fatalf("expected %d chars, got %d", maxErrorMessage, got)
	}
}
