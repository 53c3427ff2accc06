package domain

import (
	"testing"
	"time"

	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
)

var baseNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const freeWindow = 30 * 24 * time.Hour

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt(v int) *int              { return &v }
func ptrStr(v string) *string        { return &v }

func TestNormalizeStartsMissingFreeWindow(t *testing.T) {
	e := Entitlement{UserID: 1, FreePostQuota: 5, FreePostUsed: 3}

	got, changed := Normalize(e, baseNow, freeWindow)
	if !changed {
		t.Fatalf("expected change")
	}
	if got.FreePostUsed != 0 {
		t.Fatalf("expected used reset, got %d", got.FreePostUsed)
	}
	if !got.FreeQuotaResetAt.Equal(baseNow.Add(freeWindow)) {
		t.Fatalf("unexpected reset at %v", got.FreeQuotaResetAt)
	}
}

func TestNormalizeKeepsOpenWindow(t *testing.T) {
	e := Entitlement{UserID: 1, FreePostQuota: 5, FreePostUsed: 3, FreeQuotaResetAt: ptrTime(baseNow.Add(time.Hour))}

	got, changed := Normalize(e, baseNow, freeWindow)
	if changed {
		t.Fatalf("expected no change")
	}
	if got.FreePostUsed != 3 {
		t.Fatalf("expected used 3, got %d", got.FreePostUsed)
	}
}

func TestNormalizeResetsAtExactBoundary(t *testing.T) {
	e := Entitlement{UserID: 1, FreePostQuota: 5, FreePostUsed: 5, FreeQuotaResetAt: ptrTime(baseNow)}

	got, changed := Normalize(e, baseNow, freeWindow)
	if !changed || got.FreePostUsed != 0 {
		t.Fatalf("expected window restart at boundary, got used=%d changed=%v", got.FreePostUsed, changed)
	}
}

func TestNormalizeClearsExpiredMembership(t *testing.T) {
	e := Entitlement{
		UserID:              1,
		FreePostQuota:       5,
		FreeQuotaResetAt:    ptrTime(baseNow.Add(time.Hour)),
		MembershipType:      ptrStr("PREMIUM"),
		MembershipExpiresAt: ptrTime(baseNow.Add(-time.Second)),
		MembershipPostQuota: ptrInt(50),
		MembershipPostUsed:  10,
	}

	got, changed := Normalize(e, baseNow, freeWindow)
	if !changed {
		t.Fatalf("expected change")
	}
	if got.MembershipType != nil || got.MembershipExpiresAt != nil || got.MembershipPostQuota != nil || got.MembershipPostUsed != 0 {
		t.Fatalf("membership not cleared: %+v", got)
	}
}

func TestConsume(t *testing.T) {
	open := ptrTime(baseNow.Add(24 * time.Hour))
	active := ptrTime(baseNow.Add(10 * 24 * time.Hour))

	cases := []struct {
		name          string
		in            Entitlement
		wantCanPost   bool
		wantRemaining int
		wantType      QuotaType
		wantMutated   bool
	}{
		{
			name:          "free quota available",
			in:            Entitlement{FreePostQuota: 5, FreePostUsed: 4, FreeQuotaResetAt: open},
			wantCanPost:   true,
			wantRemaining: 0,
			wantType:      QuotaTypeFree,
			wantMutated:   true,
		},
		{
			name:          "free quota exhausted",
			in:            Entitlement{FreePostQuota: 5, FreePostUsed: 5, FreeQuotaResetAt: open},
			wantCanPost:   false,
			wantRemaining: 0,
			wantType:      QuotaTypeFree,
		},
		{
			name: "capped membership",
			in: Entitlement{
				FreePostQuota: 5, FreePostUsed: 5, FreeQuotaResetAt: open,
				MembershipType: ptrStr("BASIC"), MembershipExpiresAt: active,
				MembershipPostQuota: ptrInt(20), MembershipPostUsed: 3,
			},
			wantCanPost:   true,
			wantRemaining: 16,
			wantType:      QuotaTypeMembership,
			wantMutated:   true,
		},
		{
			name: "capped membership exhausted ignores free quota",
			in: Entitlement{
				FreePostQuota: 5, FreeQuotaResetAt: open,
				MembershipType: ptrStr("BASIC"), MembershipExpiresAt: active,
				MembershipPostQuota: ptrInt(20), MembershipPostUsed: 20,
			},
			wantCanPost:   false,
			wantRemaining: 0,
			wantType:      QuotaTypeMembership,
		},
		{
			name: "unlimited membership",
			in: Entitlement{
				FreePostQuota: 5, FreeQuotaResetAt: open,
				MembershipType: ptrStr("VIP"), MembershipExpiresAt: active,
			},
			wantCanPost:   true,
			wantRemaining: Unlimited,
			wantType:      QuotaTypeMembership,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, decision, mutated := Consume(tc.in, baseNow)
			if decision.CanPost != tc.wantCanPost {
				t.Fatalf("expected canPost %v, got %v", tc.wantCanPost, decision.CanPost)
			}
			if decision.RemainingQuota != tc.wantRemaining {
				t.Fatalf("expected remaining %d, got %d", tc.wantRemaining, decision.RemainingQuota)
			}
			if decision.QuotaType != tc.wantType {
				t.Fatalf("expected quota type %s, got %s", tc.wantType, decision.QuotaType)
			}
			if mutated != tc.wantMutated {
				t.Fatalf("expected mutated %v, got %v", tc.wantMutated, mutated)
			}
			if !decision.CanPost && decision.Reason == "" {
				t.Fatalf("denied decision must carry a reason")
			}
			if !mutated && (next.FreePostUsed != tc.in.FreePostUsed || next.MembershipPostUsed != tc.in.MembershipPostUsed) {
				t.Fatalf("counters changed without mutation")
			}
		})
	}
}

func TestApplyMembershipNew(t *testing.T) {
	e := Entitlement{FreePostQuota: 5}
	effect := catalogdomain.MembershipEffect{Tier: catalogdomain.MembershipTierBasic, Days: 30, MaxPosts: ptrInt(20)}

	got, kind := ApplyMembership(e, effect, baseNow)
	if kind != ChangeKindNew {
		t.Fatalf("expected NEW, got %s", kind)
	}
	if !got.MembershipExpiresAt.Equal(baseNow.Add(30 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", got.MembershipExpiresAt)
	}
	if got.MembershipPostQuota == nil || *got.MembershipPostQuota != 20 {
		t.Fatalf("unexpected quota %v", got.MembershipPostQuota)
	}
}

func TestApplyMembershipUpgradeStacksRemainingTime(t *testing.T) {
	e := Entitlement{
		FreePostQuota:       5,
		MembershipType:      ptrStr("PREMIUM"),
		MembershipExpiresAt: ptrTime(baseNow.Add(10 * 24 * time.Hour)),
		MembershipPostQuota: ptrInt(50),
		MembershipPostUsed:  12,
	}
	effect := catalogdomain.MembershipEffect{Tier: catalogdomain.MembershipTierVIP, Days: 30}

	got, kind := ApplyMembership(e, effect, baseNow)
	if kind != ChangeKindUpgrade {
		t.Fatalf("expected UPGRADE, got %s", kind)
	}
	want := baseNow.Add(40 * 24 * time.Hour)
	if !got.MembershipExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, got.MembershipExpiresAt)
	}
	if got.Tier() != catalogdomain.MembershipTierVIP {
		t.Fatalf("expected VIP, got %s", got.Tier())
	}
	if got.MembershipPostQuota != nil {
		t.Fatalf("expected unlimited quota")
	}
	if got.MembershipPostUsed != 0 {
		t.Fatalf("expected used reset, got %d", got.MembershipPostUsed)
	}
}

func TestApplyMembershipSameOrLowerTierRenews(t *testing.T) {
	current := ptrTime(baseNow.Add(5 * 24 * time.Hour))
	e := Entitlement{
		MembershipType:      ptrStr("PREMIUM"),
		MembershipExpiresAt: current,
		MembershipPostQuota: ptrInt(50),
		MembershipPostUsed:  7,
	}

	for _, tier := range []catalogdomain.MembershipTier{catalogdomain.MembershipTierPremium, catalogdomain.MembershipTierBasic} {
		effect := catalogdomain.MembershipEffect{Tier: tier, Days: 30, MaxPosts: ptrInt(20)}
		got, kind := ApplyMembership(e, effect, baseNow)
		if kind != ChangeKindRenewal {
			t.Fatalf("%s: expected RENEWAL, got %s", tier, kind)
		}
		if !got.MembershipExpiresAt.Equal(current.Add(30 * 24 * time.Hour)) {
			t.Fatalf("%s: unexpected expiry %v", tier, got.MembershipExpiresAt)
		}
		if got.Tier() != tier {
			t.Fatalf("expected purchased tier %s, got %s", tier, got.Tier())
		}
		if got.MembershipPostUsed != 0 {
			t.Fatalf("expected used reset")
		}
	}
}

func TestApplyMembershipDoesNotAliasEffectQuota(t *testing.T) {
	quota := ptrInt(20)
	got, _ := ApplyMembership(Entitlement{}, catalogdomain.MembershipEffect{Tier: catalogdomain.MembershipTierBasic, Days: 1, MaxPosts: quota}, baseNow)
	*quota = 99
	if *got.MembershipPostQuota != 20 {
		t.Fatalf("entitlement quota aliases the package effect")
	}
}

func TestSnapshotOf(t *testing.T) {
	e := Entitlement{
		UserID:              7,
		FreePostQuota:       5,
		FreePostUsed:        2,
		FreeQuotaResetAt:    ptrTime(baseNow.Add(time.Hour)),
		MembershipType:      ptrStr("BASIC"),
		MembershipExpiresAt: ptrTime(baseNow.Add(time.Hour)),
		MembershipPostQuota: ptrInt(20),
		MembershipPostUsed:  25,
	}

	snap := SnapshotOf(e, baseNow)
	if snap.ActiveQuotaType != QuotaTypeMembership {
		t.Fatalf("expected membership quota type")
	}
	if snap.MembershipRemaining != 0 {
		t.Fatalf("expected remaining clamped to 0, got %d", snap.MembershipRemaining)
	}
	if snap.FreeRemaining != 3 {
		t.Fatalf("expected free remaining 3, got %d", snap.FreeRemaining)
	}
}
