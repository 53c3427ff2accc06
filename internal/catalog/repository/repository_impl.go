package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/listingboost/internal/catalog/domain"
	"gorm.io/gorm"
)

const packageColumns = `id, key, package_type, display_name, description, price, is_active,
	promotion_kind, priority_level, duration_hours, extend_days,
	membership_tier, membership_days, max_posts, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Package, error) {
	var pkg domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT `+packageColumns+` FROM packages WHERE id = ?`,
		id,
	).Scan(&pkg).Error
	if err != nil {
		return nil, err
	}
	if pkg.ID == 0 {
		return nil, nil
	}
	return &pkg, nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Package, error) {
	var pkg domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT `+packageColumns+` FROM packages WHERE key = ?`,
		key,
	).Scan(&pkg).Error
	if err != nil {
		return nil, err
	}
	if pkg.ID == 0 {
		return nil, nil
	}
	return &pkg, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRequest) ([]domain.Package, error) {
	stmt := db.WithContext(ctx).Model(&domain.Package{})
	if filter.Type != "" {
		stmt = stmt.Where("package_type = ?", filter.Type)
	}
	if !filter.IncludeInactive {
		stmt = stmt.Where("is_active = ?", true)
	}

	var items []domain.Package
	if err := stmt.Order("package_type ASC").Order("price ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Insert stores a package unless its key already exists.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, pkg *domain.Package) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO packages (`+packageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO NOTHING`,
		pkg.ID,
		pkg.Key,
		pkg.PackageType,
		pkg.DisplayName,
		pkg.Description,
		pkg.Price,
		pkg.IsActive,
		pkg.PromotionKind,
		pkg.PriorityLevel,
		pkg.DurationHours,
		pkg.ExtendDays,
		pkg.MembershipTier,
		pkg.MembershipDays,
		pkg.MaxPosts,
		pkg.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
