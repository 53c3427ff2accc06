package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PackageType string

const (
	PackageTypePromotion  PackageType = "PROMOTION"
	PackageTypeRenew      PackageType = "RENEW"
	PackageTypeMembership PackageType = "MEMBERSHIP"
)

func (t PackageType) Valid() bool {
	switch t {
	case PackageTypePromotion, PackageTypeRenew, PackageTypeMembership:
		return true
	}
	return false
}

// RequiresListing reports whether a purchase must target one of the buyer's listings.
func (t PackageType) RequiresListing() bool {
	return t == PackageTypePromotion || t == PackageTypeRenew
}

type PromotionKind string

const (
	PromotionKindBoost    PromotionKind = "BOOST"
	PromotionKindPriority PromotionKind = "PRIORITY"
)

type MembershipTier string

const (
	MembershipTierBasic   MembershipTier = "BASIC"
	MembershipTierPremium MembershipTier = "PREMIUM"
	MembershipTierVIP     MembershipTier = "VIP"
)

// Rank orders tiers; unknown tiers rank below BASIC.
func (t MembershipTier) Rank() int {
	switch t {
	case MembershipTierBasic:
		return 1
	case MembershipTierPremium:
		return 2
	case MembershipTierVIP:
		return 3
	}
	return 0
}

// Package is an immutable catalog row. Effect columns are nullable and only
// meaningful for the matching package type.
type Package struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	Key            string       `json:"key" gorm:"type:text;not null;uniqueIndex"`
	PackageType    PackageType  `json:"package_type" gorm:"type:text;not null"`
	DisplayName    string       `json:"display_name" gorm:"type:text;not null"`
	Description    string       `json:"description" gorm:"type:text"`
	Price          int64        `json:"price" gorm:"not null"`
	IsActive       bool         `json:"is_active" gorm:"not null;default:true"`
	PromotionKind  *string      `json:"promotion_kind,omitempty" gorm:"type:text"`
	PriorityLevel  int          `json:"priority_level" gorm:"not null;default:0"`
	DurationHours  *int         `json:"duration_hours,omitempty"`
	ExtendDays     *int         `json:"extend_days,omitempty"`
	MembershipTier *string      `json:"membership_tier,omitempty" gorm:"type:text"`
	MembershipDays *int         `json:"membership_days,omitempty"`
	MaxPosts       *int         `json:"max_posts,omitempty"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Package) TableName() string { return "packages" }
