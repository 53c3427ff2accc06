package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	"github.com/smallbiznis/listingboost/internal/clock"
	"github.com/smallbiznis/listingboost/internal/config"
	"github.com/smallbiznis/listingboost/internal/entitlement/domain"
	"github.com/smallbiznis/listingboost/internal/entitlement/repository"
	"github.com/smallbiznis/listingboost/internal/testutil/testdb"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, quota int) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db := testdb.Open(t)
	clk := clock.NewFakeClock(testNow)
	policy := config.DefaultEntitlementPolicy()
	policy.FreePostQuota = quota

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clk,
		Policy: config.NewStaticEntitlementPolicy(policy),
		Repo:   repository.Provide(),
	}).(*Service)
	return svc, db, clk
}

func TestCheckAndConsumeProvisionsAndCountsDown(t *testing.T) {
	svc, _, _ := newTestService(t, 2)
	ctx := context.Background()
	userID := snowflake.ID(101)

	for i, want := range []int{1, 0} {
		decision, err := svc.CheckAndConsume(ctx, userID)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if !decision.CanPost || decision.RemainingQuota != want {
			t.Fatalf("consume %d: expected allowed with %d left, got %+v", i, want, decision)
		}
	}

	decision, err := svc.CheckAndConsume(ctx, userID)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if decision.CanPost {
		t.Fatalf("expected denial after quota is used up")
	}
	if decision.ResetAt == nil || !decision.ResetAt.Equal(testNow.Add(30*24*time.Hour)) {
		t.Fatalf("unexpected reset at %v", decision.ResetAt)
	}
}

func TestCheckAndConsumeRestartsElapsedWindow(t *testing.T) {
	svc, _, clk := newTestService(t, 1)
	ctx := context.Background()
	userID := snowflake.ID(102)

	if d, err := svc.CheckAndConsume(ctx, userID); err != nil || !d.CanPost {
		t.Fatalf("first consume: %+v %v", d, err)
	}
	if d, err := svc.CheckAndConsume(ctx, userID); err != nil || d.CanPost {
		t.Fatalf("expected denial: %+v %v", d, err)
	}

	clk.Advance(30*24*time.Hour + time.Second)

	d, err := svc.CheckAndConsume(ctx, userID)
	if err != nil {
		t.Fatalf("consume after window: %v", err)
	}
	if !d.CanPost {
		t.Fatalf("expected quota restored after window elapsed")
	}
}

func TestCheckAndConsumeRejectsZeroUser(t *testing.T) {
	svc, _, _ := newTestService(t, 5)
	if _, err := svc.CheckAndConsume(context.Background(), 0); !errors.Is(err, domain.ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestCheckAndConsumeConcurrentLastUnit(t *testing.T) {
	svc, _, _ := newTestService(t, 1)
	ctx := context.Background()
	userID := snowflake.ID(103)

	if _, err := svc.Provision(ctx, userID); err != nil {
		t.Fatalf("provision: %v", err)
	}

	const workers = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := svc.CheckAndConsume(ctx, userID)
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			if d.CanPost {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 1 {
		t.Fatalf("expected exactly one allowed post, got %d", allowed)
	}
}

func TestUpgradeStacksOnActiveMembership(t *testing.T) {
	svc, db, clk := newTestService(t, 5)
	ctx := context.Background()
	userID := snowflake.ID(104)
	fifty := 50

	premium := catalogdomain.MembershipEffect{Tier: catalogdomain.MembershipTierPremium, Days: 30, MaxPosts: &fifty}
	if _, err := svc.Upgrade(ctx, nil, userID, premium); err != nil {
		t.Fatalf("upgrade premium: %v", err)
	}
	if _, err := svc.CheckAndConsume(ctx, userID); err != nil {
		t.Fatalf("consume: %v", err)
	}

	clk.Advance(20 * 24 * time.Hour)

	vip := catalogdomain.MembershipEffect{Tier: catalogdomain.MembershipTierVIP, Days: 30}
	var snap *domain.Snapshot
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		snap, err = svc.Upgrade(ctx, tx, userID, vip)
		return err
	})
	if err != nil {
		t.Fatalf("upgrade vip: %v", err)
	}

	if snap.Change != domain.ChangeKindUpgrade {
		t.Fatalf("expected UPGRADE, got %s", snap.Change)
	}
	want := clk.Now().Add(40 * 24 * time.Hour)
	if snap.MembershipExpiresAt == nil || !snap.MembershipExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, snap.MembershipExpiresAt)
	}
	if snap.MembershipTier != catalogdomain.MembershipTierVIP || snap.MembershipPostUsed != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.MembershipRemaining != domain.Unlimited {
		t.Fatalf("expected unlimited remaining, got %d", snap.MembershipRemaining)
	}
}

func TestUpgradeRollsBackWithCallerTransaction(t *testing.T) {
	svc, db, _ := newTestService(t, 5)
	ctx := context.Background()
	userID := snowflake.ID(105)
	rollback := errors.New("rollback")

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Upgrade(ctx, tx, userID, catalogdomain.MembershipEffect{Tier: catalogdomain.MembershipTierBasic, Days: 30}); err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}

	snap, err := svc.Snapshot(ctx, userID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.ActiveQuotaType != domain.QuotaTypeFree {
		t.Fatalf("membership survived rollback: %+v", snap)
	}
}

func TestSnapshotLazilyExpiresMembership(t *testing.T) {
	svc, _, clk := newTestService(t, 5)
	ctx := context.Background()
	userID := snowflake.ID(106)

	if _, err := svc.Upgrade(ctx, nil, userID, catalogdomain.MembershipEffect{Tier: catalogdomain.MembershipTierBasic, Days: 1}); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	clk.Advance(24*time.Hour + time.Second)

	snap, err := svc.Snapshot(ctx, userID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.ActiveQuotaType != domain.QuotaTypeFree || snap.MembershipTier != "" {
		t.Fatalf("expected membership expired, got %+v", snap)
	}
}
