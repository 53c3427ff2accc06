package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PromotionType string

const (
	PromotionTypeNone     PromotionType = "NONE"
	PromotionTypeBoost    PromotionType = "BOOST"
	PromotionTypePriority PromotionType = "PRIORITY"
)

// Listing carries only the fields the purchase and sweep flows touch.
type Listing struct {
	ID                snowflake.ID  `json:"id" gorm:"primaryKey"`
	OwnerID           snowflake.ID  `json:"owner_id"`
	Title             string        `json:"title"`
	PromotionType     PromotionType `json:"promotion_type"`
	PriorityLevel     int           `json:"priority_level"`
	PromotionExpireAt *time.Time    `json:"promotion_expire_at,omitempty"`
	ExpireAt          *time.Time    `json:"expire_at,omitempty"`
	IsExpired         bool          `json:"is_expired"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	DeletedAt         *time.Time    `json:"deleted_at,omitempty"`
}

func (Listing) TableName() string { return "listings" }

// HasActivePromotion reports whether a promotion is still running at now.
func (l Listing) HasActivePromotion(now time.Time) bool {
	return l.PromotionType != "" &&
		l.PromotionType != PromotionTypeNone &&
		l.PromotionExpireAt != nil &&
		l.PromotionExpireAt.After(now)
}
