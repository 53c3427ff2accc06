package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, l *Listing) error
	// FindByID skips soft-deleted rows.
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Listing, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Listing, error)
	UpdatePromotion(ctx context.Context, db *gorm.DB, l *Listing) error
	UpdateDisplay(ctx context.Context, db *gorm.DB, l *Listing) error

	// ClaimElapsedPromotions includes soft-deleted rows.
	ClaimElapsedPromotions(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)
	ResetPromotions(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error)
	// ClaimElapsedDisplay skips soft-deleted rows and rows already flagged.
	ClaimElapsedDisplay(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)
	MarkExpired(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error)
}
