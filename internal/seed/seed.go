package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	"gorm.io/gorm"
)

type packageSeed struct {
	key         string
	packageType catalogdomain.PackageType
	displayName string
	description string
	price       int64

	promotionKind  catalogdomain.PromotionKind
	priorityLevel  int
	durationHours  int
	extendDays     int
	membershipTier catalogdomain.MembershipTier
	membershipDays int
	maxPosts       *int
}

func intPtr(v int) *int { return &v }

var defaultPackages = []packageSeed{
	{key: "boost_6h", packageType: catalogdomain.PackageTypePromotion, displayName: "Boost 6 hours", description: "Pin the listing to the top for 6 hours", price: 10000, promotionKind: catalogdomain.PromotionKindBoost, priorityLevel: 1, durationHours: 6},
	{key: "priority_3d", packageType: catalogdomain.PackageTypePromotion, displayName: "Priority 3 days", description: "Priority placement for 3 days", price: 25000, promotionKind: catalogdomain.PromotionKindPriority, priorityLevel: 2, durationHours: 72},
	{key: "priority_7d", packageType: catalogdomain.PackageTypePromotion, displayName: "Priority 7 days", description: "Priority placement for 7 days", price: 50000, promotionKind: catalogdomain.PromotionKindPriority, priorityLevel: 3, durationHours: 168},
	{key: "renew_15d", packageType: catalogdomain.PackageTypeRenew, displayName: "Renew 15 days", description: "Keep the listing visible for 15 more days", price: 15000, extendDays: 15},
	{key: "renew_30d", packageType: catalogdomain.PackageTypeRenew, displayName: "Renew 30 days", description: "Keep the listing visible for 30 more days", price: 25000, extendDays: 30},
	{key: "basic_30d", packageType: catalogdomain.PackageTypeMembership, displayName: "Basic 30 days", description: "15 listings over 30 days", price: 30000, membershipTier: catalogdomain.MembershipTierBasic, membershipDays: 30, maxPosts: intPtr(15)},
	{key: "premium_30d", packageType: catalogdomain.PackageTypeMembership, displayName: "Premium 30 days", description: "40 listings over 30 days", price: 60000, membershipTier: catalogdomain.MembershipTierPremium, membershipDays: 30, maxPosts: intPtr(40)},
	{key: "premium_90d", packageType: catalogdomain.PackageTypeMembership, displayName: "Premium 90 days", description: "120 listings over 90 days", price: 150000, membershipTier: catalogdomain.MembershipTierPremium, membershipDays: 90, maxPosts: intPtr(120)},
	{key: "vip_30d", packageType: catalogdomain.PackageTypeMembership, displayName: "VIP 30 days", description: "200 listings over 30 days", price: 120000, membershipTier: catalogdomain.MembershipTierVIP, membershipDays: 30, maxPosts: intPtr(200)},
}

// EnsureCatalog inserts the default packages; existing keys are left untouched.
func EnsureCatalog(ctx context.Context, db *gorm.DB, node *snowflake.Node, repo catalogdomain.Repository) (int, error) {
	if db == nil || node == nil || repo == nil {
		return 0, errors.New("seed dependencies are required")
	}

	inserted := 0
	now := time.Now().UTC()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, seed := range defaultPackages {
			pkg := seed.toPackage(node.Generate(), now)
			if _, err := pkg.Effect(); err != nil {
				return err
			}
			ok, err := repo.Insert(ctx, tx, &pkg)
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
		return nil
	})
	return inserted, err
}

func (s packageSeed) toPackage(id snowflake.ID, now time.Time) catalogdomain.Package {
	pkg := catalogdomain.Package{
		ID:            id,
		Key:           s.key,
		PackageType:   s.packageType,
		DisplayName:   s.displayName,
		Description:   s.description,
		Price:         s.price,
		IsActive:      true,
		PriorityLevel: s.priorityLevel,
		CreatedAt:     now,
	}
	switch s.packageType {
	case catalogdomain.PackageTypePromotion:
		kind := string(s.promotionKind)
		pkg.PromotionKind = &kind
		pkg.DurationHours = intPtr(s.durationHours)
	case catalogdomain.PackageTypeRenew:
		pkg.ExtendDays = intPtr(s.extendDays)
	case catalogdomain.PackageTypeMembership:
		tier := string(s.membershipTier)
		pkg.MembershipTier = &tier
		pkg.MembershipDays = intPtr(s.membershipDays)
		pkg.MaxPosts = s.maxPosts
	}
	return pkg
}
