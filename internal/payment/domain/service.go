package domain

import "context"

// WebhookService consumes gateway callbacks. It never returns an error:
// every failure is expressed in the result so the gateway can decide
// whether to retry.
type WebhookService interface {
	HandleCallback(ctx context.Context, payload []byte) CallbackResult
}

type CallbackOutcome string

const (
	OutcomeProcessed        CallbackOutcome = "processed"
	OutcomeFailedPayment    CallbackOutcome = "payment_failed"
	OutcomeAlreadyProcessed CallbackOutcome = "already_processed"
	OutcomeInvalidSignature CallbackOutcome = "invalid_signature"
	OutcomeInvalidPayload   CallbackOutcome = "invalid_payload"
	OutcomeNotFound         CallbackOutcome = "not_found"
	OutcomeBusy             CallbackOutcome = "busy"
	OutcomeError            CallbackOutcome = "error"
)

type CallbackResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Outcome CallbackOutcome `json:"-"`
}
