package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// CreatePaymentIntent opens a PENDING order and payment and asks the
	// gateway for a checkout link. When the gateway fails the payment row
	// is removed and ErrGatewayUnavailable is returned; the order stays
	// PENDING.
	CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
}

type CreateIntentRequest struct {
	BuyerID   snowflake.ID  `json:"-"`
	PackageID snowflake.ID  `json:"package_id"`
	ListingID *snowflake.ID `json:"listing_id,omitempty"`
}

// RateLimitError carries the wait before the buyer may retry.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string        { return ErrRateLimited.Error() }
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

var (
	ErrInvalidBuyer       = errors.New("invalid_buyer")
	ErrPackageInactive    = errors.New("package_inactive")
	ErrListingRequired    = errors.New("listing_required")
	ErrPromotionActive    = errors.New("promotion_still_active")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrOrderCodeExhausted = errors.New("order_code_exhausted")
	ErrRateLimited        = errors.New("rate_limited")
)
