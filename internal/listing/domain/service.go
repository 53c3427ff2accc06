package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	entitlementdomain "github.com/smallbiznis/listingboost/internal/entitlement/domain"
	"gorm.io/gorm"
)

type Service interface {
	// Open consumes one unit of posting quota and stores a listing with a
	// fresh display window.
	Open(ctx context.Context, req OpenRequest) (*OpenResult, error)
	// GetOwned returns a live listing only when ownerID owns it.
	GetOwned(ctx context.Context, ownerID, listingID snowflake.ID) (*Listing, error)
	ApplyPromotion(ctx context.Context, tx *gorm.DB, listingID snowflake.ID, effect catalogdomain.PromotionEffect) (*Listing, error)
	// ExtendDisplay moves expireAt forward from the current expiry when it is
	// still in the future, otherwise from now.
	ExtendDisplay(ctx context.Context, tx *gorm.DB, listingID snowflake.ID, effect catalogdomain.RenewEffect) (*Listing, error)
}

type OpenRequest struct {
	OwnerID snowflake.ID `json:"-"`
	Title   string       `json:"title"`
}

type OpenResult struct {
	Listing  *Listing                   `json:"listing"`
	Decision entitlementdomain.Decision `json:"entitlement"`
}

// QuotaError is returned by Open when the entitlement engine denies the post.
type QuotaError struct {
	Decision entitlementdomain.Decision
}

func (e *QuotaError) Error() string {
	if e.Decision.Reason != "" {
		return ErrQuotaExceeded.Error() + ": " + e.Decision.Reason
	}
	return ErrQuotaExceeded.Error()
}

func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

// ResetAt returns the next free-window reset, if known.
func (e *QuotaError) ResetAt() *time.Time { return e.Decision.ResetAt }

var (
	ErrListingNotFound = errors.New("listing_not_found")
	ErrNotOwner        = errors.New("listing_not_owner")
	ErrInvalidTitle    = errors.New("invalid_title")
	ErrQuotaExceeded   = errors.New("post_quota_exceeded")
)
