package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/listingboost/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, obscontext.ActorUser, "42")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" {
		t.Fatalf("expected request_id req-1, got %v", fields["request_id"])
	}
	if fields["actor_type"] != "user" || fields["actor_id"] != "42" {
		t.Fatalf("unexpected actor fields: %v", fields)
	}
	if _, ok := fields["trace_id"]; ok {
		t.Fatalf("trace_id should be omitted without a span")
	}
}

func TestWithContextBareContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	WithContext(context.Background(), zap.New(core)).Info("bare")

	if got := len(logs.All()[0].Context); got != 0 {
		t.Fatalf("expected no fields, got %d", got)
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM listings":                              "SELECT",
		"  update users SET free_post_used = 1":               "UPDATE",
		"WITH due AS (SELECT id FROM listings) UPDATE x":      "SELECT",
		"INSERT INTO payments (id) VALUES (1)":                "INSERT",
		"":                                                    "UNKNOWN",
		"(DELETE FROM payments WHERE id = 1)":                 "DELETE",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}
