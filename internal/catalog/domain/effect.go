package domain

import (
	"fmt"
	"time"
)

// Effect is the closed set of fulfillment payloads a package can carry.
// Consumers switch on the concrete type; isEffect keeps the set sealed.
type Effect interface {
	isEffect()
	Type() PackageType
}

type PromotionEffect struct {
	Kind          PromotionKind
	PriorityLevel int
	Duration      time.Duration
}

type RenewEffect struct {
	ExtendDays int
}

type MembershipEffect struct {
	Tier     MembershipTier
	Days     int
	MaxPosts *int // nil means unlimited
}

func (PromotionEffect) isEffect()  {}
func (RenewEffect) isEffect()      {}
func (MembershipEffect) isEffect() {}

func (PromotionEffect) Type() PackageType  { return PackageTypePromotion }
func (RenewEffect) Type() PackageType      { return PackageTypeRenew }
func (MembershipEffect) Type() PackageType { return PackageTypeMembership }

// Effect decodes the type-specific columns into their variant.
func (p Package) Effect() (Effect, error) {
	switch p.PackageType {
	case PackageTypePromotion:
		kind := PromotionKind(deref(p.PromotionKind))
		if kind != PromotionKindBoost && kind != PromotionKindPriority {
			return nil, fmt.Errorf("%w: promotion kind %q", ErrInvalidEffect, kind)
		}
		hours := derefInt(p.DurationHours)
		if hours <= 0 {
			return nil, fmt.Errorf("%w: duration_hours must be positive", ErrInvalidEffect)
		}
		return PromotionEffect{
			Kind:          kind,
			PriorityLevel: p.PriorityLevel,
			Duration:      time.Duration(hours) * time.Hour,
		}, nil
	case PackageTypeRenew:
		days := derefInt(p.ExtendDays)
		if days <= 0 {
			return nil, fmt.Errorf("%w: extend_days must be positive", ErrInvalidEffect)
		}
		return RenewEffect{ExtendDays: days}, nil
	case PackageTypeMembership:
		tier := MembershipTier(deref(p.MembershipTier))
		if tier.Rank() == 0 {
			return nil, fmt.Errorf("%w: membership tier %q", ErrInvalidEffect, tier)
		}
		days := derefInt(p.MembershipDays)
		if days <= 0 {
			return nil, fmt.Errorf("%w: membership_days must be positive", ErrInvalidEffect)
		}
		if p.MaxPosts != nil && *p.MaxPosts < 0 {
			return nil, fmt.Errorf("%w: max_posts cannot be negative", ErrInvalidEffect)
		}
		return MembershipEffect{Tier: tier, Days: days, MaxPosts: p.MaxPosts}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPackageType, p.PackageType)
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
