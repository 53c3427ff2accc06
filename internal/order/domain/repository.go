package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	InsertOrder(ctx context.Context, db *gorm.DB, o *Order) error
	FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	// TransitionOrder moves the order to status when its current status is
	// one of from; it reports whether a row changed.
	TransitionOrder(ctx context.Context, db *gorm.DB, id snowflake.ID, from []OrderStatus, status OrderStatus, now time.Time) (bool, error)

	InsertPayment(ctx context.Context, db *gorm.DB, p *Payment) error
	DeletePayment(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	SaveGatewayResponse(ctx context.Context, db *gorm.DB, id snowflake.ID, raw datatypes.JSON, now time.Time) error
	FindPaymentByProviderOrderID(ctx context.Context, db *gorm.DB, providerOrderID int64) (*Payment, error)
	FindPaymentForUpdate(ctx context.Context, db *gorm.DB, providerOrderID int64) (*Payment, error)
	// SettlePayment writes the terminal outcome unless the row is already
	// SUCCESS; it reports whether a row changed.
	SettlePayment(ctx context.Context, db *gorm.DB, p *Payment) (bool, error)
	CountPaymentsForOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error)
}
