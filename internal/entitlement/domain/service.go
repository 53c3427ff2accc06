package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	"gorm.io/gorm"
)

type Service interface {
	// CheckAndConsume decides whether the user may post now and, when
	// allowed, reserves one unit of quota in the same atomic update.
	CheckAndConsume(ctx context.Context, userID snowflake.ID) (*Decision, error)
	// Upgrade grants a purchased membership. When tx is non-nil the update
	// joins the caller's transaction.
	Upgrade(ctx context.Context, tx *gorm.DB, userID snowflake.ID, effect catalogdomain.MembershipEffect) (*Snapshot, error)
	Snapshot(ctx context.Context, userID snowflake.ID) (*Snapshot, error)
	Provision(ctx context.Context, userID snowflake.ID) (*Snapshot, error)
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrConcurrentUpdate = errors.New("entitlement_concurrent_update")
)
