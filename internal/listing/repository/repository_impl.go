package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/listingboost/internal/listing/domain"
	"gorm.io/gorm"
)

const listingColumns = `id, owner_id, title, promotion_type, priority_level, promotion_expire_at,
	expire_at, is_expired, created_at, updated_at, deleted_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, l *domain.Listing) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO listings (`+listingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID,
		l.OwnerID,
		l.Title,
		l.PromotionType,
		l.PriorityLevel,
		l.PromotionExpireAt,
		l.ExpireAt,
		l.IsExpired,
		l.CreatedAt,
		l.UpdatedAt,
		l.DeletedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Listing, error) {
	var l domain.Listing
	err := db.WithContext(ctx).Raw(
		`SELECT `+listingColumns+` FROM listings WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&l).Error
	if err != nil {
		return nil, err
	}
	if l.ID == 0 {
		return nil, nil
	}
	return &l, nil
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Listing, error) {
	var l domain.Listing
	err := db.WithContext(ctx).Raw(
		`SELECT `+listingColumns+` FROM listings WHERE id = ? AND deleted_at IS NULL FOR UPDATE`,
		id,
	).Scan(&l).Error
	if err != nil {
		return nil, err
	}
	if l.ID == 0 {
		return nil, nil
	}
	return &l, nil
}

func (r *repo) UpdatePromotion(ctx context.Context, db *gorm.DB, l *domain.Listing) error {
	return db.WithContext(ctx).Exec(
		`UPDATE listings
		 SET promotion_type = ?, priority_level = ?, promotion_expire_at = ?, updated_at = ?
		 WHERE id = ?`,
		l.PromotionType,
		l.PriorityLevel,
		l.PromotionExpireAt,
		l.UpdatedAt,
		l.ID,
	).Error
}

func (r *repo) UpdateDisplay(ctx context.Context, db *gorm.DB, l *domain.Listing) error {
	return db.WithContext(ctx).Exec(
		`UPDATE listings SET expire_at = ?, is_expired = ?, updated_at = ? WHERE id = ?`,
		l.ExpireAt,
		l.IsExpired,
		l.UpdatedAt,
		l.ID,
	).Error
}

func (r *repo) ClaimElapsedPromotions(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM listings
		 WHERE promotion_type <> 'NONE' AND promotion_expire_at < ?
		 ORDER BY promotion_expire_at ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		now,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) ResetPromotions(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE listings
		 SET promotion_type = 'NONE', priority_level = 0, promotion_expire_at = NULL, updated_at = ?
		 WHERE id IN ? AND promotion_type <> 'NONE' AND promotion_expire_at < ?`,
		now,
		ids,
		now,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ClaimElapsedDisplay(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM listings
		 WHERE expire_at < ? AND is_expired = ? AND deleted_at IS NULL
		 ORDER BY expire_at ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		now,
		false,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE listings SET is_expired = ?, updated_at = ?
		 WHERE id IN ? AND is_expired = ? AND expire_at < ?`,
		true,
		now,
		ids,
		false,
		now,
	)
	return result.RowsAffected, result.Error
}
