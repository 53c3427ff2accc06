package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Ensure inserts a default row for the user unless one exists.
	Ensure(ctx context.Context, db *gorm.DB, userID snowflake.ID, freeQuota int, now time.Time) (bool, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Entitlement, error)
	// UpdateIfVersion persists e only when the stored version still equals
	// expectedVersion, bumping it by one.
	UpdateIfVersion(ctx context.Context, db *gorm.DB, e *Entitlement, expectedVersion int64) (bool, error)

	ClaimElapsedFreeWindows(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)
	RestartFreeWindows(ctx context.Context, db *gorm.DB, userIDs []snowflake.ID, now, nextReset time.Time) (int64, error)
	ClaimExpiredMemberships(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)
	ClearMemberships(ctx context.Context, db *gorm.DB, userIDs []snowflake.ID, now time.Time) (int64, error)
}
