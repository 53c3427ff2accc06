package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
)

type QuotaType string

const (
	QuotaTypeFree       QuotaType = "FREE"
	QuotaTypeMembership QuotaType = "MEMBERSHIP"
)

// Unlimited is reported as the remaining quota of memberships without a post cap.
const Unlimited = -1

// Entitlement is the per-user posting allowance. Version increments on
// every write and guards concurrent read-modify-write cycles.
type Entitlement struct {
	UserID              snowflake.ID `json:"user_id" gorm:"column:user_id;primaryKey"`
	FreePostQuota       int          `json:"free_post_quota"`
	FreePostUsed        int          `json:"free_post_used"`
	FreeQuotaResetAt    *time.Time   `json:"free_quota_reset_at,omitempty"`
	MembershipType      *string      `json:"membership_type,omitempty"`
	MembershipExpiresAt *time.Time   `json:"membership_expires_at,omitempty"`
	MembershipPostQuota *int         `json:"membership_post_quota,omitempty"`
	MembershipPostUsed  int          `json:"membership_post_used"`
	Version             int64        `json:"-"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

func (Entitlement) TableName() string { return "user_entitlements" }

// Tier returns the stored membership tier, or "" when the user has none.
func (e Entitlement) Tier() catalogdomain.MembershipTier {
	if e.MembershipType == nil {
		return ""
	}
	return catalogdomain.MembershipTier(*e.MembershipType)
}

// HasActiveMembership reports whether a membership is present and unexpired at now.
func (e Entitlement) HasActiveMembership(now time.Time) bool {
	return e.MembershipType != nil && e.MembershipExpiresAt != nil && e.MembershipExpiresAt.After(now)
}

// Decision is the outcome of one checkAndConsume call.
type Decision struct {
	CanPost        bool                         `json:"can_post"`
	RemainingQuota int                          `json:"remaining_quota"`
	QuotaType      QuotaType                    `json:"quota_type"`
	Tier           catalogdomain.MembershipTier `json:"membership_tier,omitempty"`
	Reason         string                       `json:"reason,omitempty"`
	ResetAt        *time.Time                   `json:"reset_at,omitempty"`
}

type ChangeKind string

const (
	ChangeKindNew     ChangeKind = "NEW"
	ChangeKindUpgrade ChangeKind = "UPGRADE"
	ChangeKindRenewal ChangeKind = "RENEWAL"
)

// Snapshot is the read model returned to callers after normalization.
type Snapshot struct {
	UserID              snowflake.ID                 `json:"user_id"`
	ActiveQuotaType     QuotaType                    `json:"active_quota_type"`
	MembershipTier      catalogdomain.MembershipTier `json:"membership_tier,omitempty"`
	MembershipExpiresAt *time.Time                   `json:"membership_expires_at,omitempty"`
	MembershipPostQuota *int                         `json:"membership_post_quota,omitempty"`
	MembershipPostUsed  int                          `json:"membership_post_used"`
	MembershipRemaining int                          `json:"membership_remaining"`
	FreePostQuota       int                          `json:"free_post_quota"`
	FreePostUsed        int                          `json:"free_post_used"`
	FreeRemaining       int                          `json:"free_remaining"`
	FreeQuotaResetAt    *time.Time                   `json:"free_quota_reset_at,omitempty"`
	Change              ChangeKind                   `json:"change,omitempty"`
}
