package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/listingboost/internal/entitlement/domain"
	"gorm.io/gorm"
)

const entitlementColumns = `user_id, free_post_quota, free_post_used, free_quota_reset_at,
	membership_type, membership_expires_at, membership_post_quota, membership_post_used,
	version, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Ensure(ctx context.Context, db *gorm.DB, userID snowflake.ID, freeQuota int, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO user_entitlements (user_id, free_post_quota, free_post_used, membership_post_used, version, created_at, updated_at)
		 VALUES (?, ?, 0, 0, 0, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
		freeQuota,
		now,
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Entitlement, error) {
	var e domain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT `+entitlementColumns+` FROM user_entitlements WHERE user_id = ? FOR UPDATE`,
		userID,
	).Scan(&e).Error
	if err != nil {
		return nil, err
	}
	if e.UserID == 0 {
		return nil, nil
	}
	return &e, nil
}

func (r *repo) UpdateIfVersion(ctx context.Context, db *gorm.DB, e *domain.Entitlement, expectedVersion int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE user_entitlements
		 SET free_post_quota = ?, free_post_used = ?, free_quota_reset_at = ?,
		     membership_type = ?, membership_expires_at = ?, membership_post_quota = ?,
		     membership_post_used = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND version = ?`,
		e.FreePostQuota,
		e.FreePostUsed,
		e.FreeQuotaResetAt,
		e.MembershipType,
		e.MembershipExpiresAt,
		e.MembershipPostQuota,
		e.MembershipPostUsed,
		e.UpdatedAt,
		e.UserID,
		expectedVersion,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	e.Version = expectedVersion + 1
	return true, nil
}

func (r *repo) ClaimElapsedFreeWindows(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT user_id FROM user_entitlements
		 WHERE free_quota_reset_at IS NOT NULL AND free_quota_reset_at <= ?
		 ORDER BY free_quota_reset_at ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		now,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) RestartFreeWindows(ctx context.Context, db *gorm.DB, userIDs []snowflake.ID, now, nextReset time.Time) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE user_entitlements
		 SET free_post_used = 0, free_quota_reset_at = ?, version = version + 1, updated_at = ?
		 WHERE user_id IN ? AND free_quota_reset_at <= ?`,
		nextReset,
		now,
		userIDs,
		now,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ClaimExpiredMemberships(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT user_id FROM user_entitlements
		 WHERE membership_type IS NOT NULL
		   AND (membership_expires_at IS NULL OR membership_expires_at <= ?)
		 ORDER BY membership_expires_at ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		now,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) ClearMemberships(ctx context.Context, db *gorm.DB, userIDs []snowflake.ID, now time.Time) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE user_entitlements
		 SET membership_type = NULL, membership_expires_at = NULL, membership_post_quota = NULL,
		     membership_post_used = 0, version = version + 1, updated_at = ?
		 WHERE user_id IN ? AND membership_type IS NOT NULL
		   AND (membership_expires_at IS NULL OR membership_expires_at <= ?)`,
		now,
		userIDs,
		now,
	)
	return result.RowsAffected, result.Error
}
