package domain

import (
	"fmt"
	"time"

	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
)

// Normalize applies lazy expiry as of now: an elapsed membership is cleared
// and an elapsed (or never started) free window is restarted. The second
// return value reports whether anything changed and must be persisted.
func Normalize(e Entitlement, now time.Time, freeWindow time.Duration) (Entitlement, bool) {
	changed := false

	if e.MembershipType != nil && !e.HasActiveMembership(now) {
		e.MembershipType = nil
		e.MembershipExpiresAt = nil
		e.MembershipPostQuota = nil
		e.MembershipPostUsed = 0
		changed = true
	}

	if e.FreeQuotaResetAt == nil || !e.FreeQuotaResetAt.After(now) {
		next := now.Add(freeWindow)
		e.FreePostUsed = 0
		e.FreeQuotaResetAt = &next
		changed = true
	}

	return e, changed
}

// Consume reserves one posting unit on an already normalized entitlement.
// The second return value reports whether counters were mutated.
func Consume(e Entitlement, now time.Time) (Entitlement, Decision, bool) {
	if e.HasActiveMembership(now) {
		tier := e.Tier()
		if e.MembershipPostQuota == nil {
			return e, Decision{
				CanPost:        true,
				RemainingQuota: Unlimited,
				QuotaType:      QuotaTypeMembership,
				Tier:           tier,
			}, false
		}

		quota := *e.MembershipPostQuota
		if e.MembershipPostUsed >= quota {
			return e, Decision{
				CanPost:        false,
				RemainingQuota: 0,
				QuotaType:      QuotaTypeMembership,
				Tier:           tier,
				Reason:         fmt.Sprintf("%s membership post quota of %d is used up", tier, quota),
			}, false
		}

		e.MembershipPostUsed++
		return e, Decision{
			CanPost:        true,
			RemainingQuota: quota - e.MembershipPostUsed,
			QuotaType:      QuotaTypeMembership,
			Tier:           tier,
		}, true
	}

	resetAt := e.FreeQuotaResetAt
	if e.FreePostUsed >= e.FreePostQuota {
		reason := fmt.Sprintf("free post quota of %d is used up", e.FreePostQuota)
		if resetAt != nil {
			reason = fmt.Sprintf("%s until %s", reason, resetAt.UTC().Format(time.RFC3339))
		}
		return e, Decision{
			CanPost:        false,
			RemainingQuota: 0,
			QuotaType:      QuotaTypeFree,
			Reason:         reason,
			ResetAt:        resetAt,
		}, false
	}

	e.FreePostUsed++
	return e, Decision{
		CanPost:        true,
		RemainingQuota: e.FreePostQuota - e.FreePostUsed,
		QuotaType:      QuotaTypeFree,
		ResetAt:        resetAt,
	}, true
}

// ApplyMembership grants a purchased membership on a normalized entitlement.
// A strictly higher tier stacks the remaining time of the current one; the
// same or a lower tier is handled as a renewal of the current expiry. Both
// overwrite tier and quota with the purchased package and reset usage.
func ApplyMembership(e Entitlement, effect catalogdomain.MembershipEffect, now time.Time) (Entitlement, ChangeKind) {
	extension := time.Duration(effect.Days) * 24 * time.Hour

	var (
		expiresAt time.Time
		kind      ChangeKind
	)
	switch {
	case !e.HasActiveMembership(now):
		expiresAt = now.Add(extension)
		kind = ChangeKindNew
	case effect.Tier.Rank() > e.Tier().Rank():
		remaining := e.MembershipExpiresAt.Sub(now)
		expiresAt = now.Add(remaining).Add(extension)
		kind = ChangeKindUpgrade
	default:
		expiresAt = e.MembershipExpiresAt.Add(extension)
		kind = ChangeKindRenewal
	}

	tier := string(effect.Tier)
	e.MembershipType = &tier
	e.MembershipExpiresAt = &expiresAt
	e.MembershipPostQuota = copyInt(effect.MaxPosts)
	e.MembershipPostUsed = 0
	return e, kind
}

// SnapshotOf renders the read model for a normalized entitlement.
func SnapshotOf(e Entitlement, now time.Time) Snapshot {
	snap := Snapshot{
		UserID:             e.UserID,
		ActiveQuotaType:    QuotaTypeFree,
		MembershipPostUsed: e.MembershipPostUsed,
		FreePostQuota:      e.FreePostQuota,
		FreePostUsed:       e.FreePostUsed,
		FreeRemaining:      max(e.FreePostQuota-e.FreePostUsed, 0),
		FreeQuotaResetAt:   e.FreeQuotaResetAt,
	}
	if e.HasActiveMembership(now) {
		snap.ActiveQuotaType = QuotaTypeMembership
		snap.MembershipTier = e.Tier()
		snap.MembershipExpiresAt = e.MembershipExpiresAt
		snap.MembershipPostQuota = e.MembershipPostQuota
		snap.MembershipRemaining = Unlimited
		if e.MembershipPostQuota != nil {
			snap.MembershipRemaining = max(*e.MembershipPostQuota-e.MembershipPostUsed, 0)
		}
	}
	return snap
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
