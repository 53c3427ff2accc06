package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order is the buyer's purchase intent. It leaves PENDING at most once.
type Order struct {
	ID        snowflake.ID              `json:"id" gorm:"primaryKey"`
	BuyerID   snowflake.ID              `json:"buyer_id" gorm:"not null;index"`
	PackageID snowflake.ID              `json:"package_id" gorm:"not null"`
	ListingID *snowflake.ID             `json:"listing_id,omitempty"`
	OrderType catalogdomain.PackageType `json:"order_type" gorm:"type:text;not null"`
	Amount    int64                     `json:"amount" gorm:"not null"`
	Status    OrderStatus               `json:"status" gorm:"type:text;not null"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// Payment tracks one gateway settlement attempt. ProviderOrderID is the
// idempotency key shared with the gateway. A SUCCESS row is final.
type Payment struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrderID         snowflake.ID   `json:"order_id" gorm:"not null;index"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderOrderID int64          `json:"provider_order_id" gorm:"not null;uniqueIndex"`
	TransactionID   *string        `json:"transaction_id,omitempty"`
	Amount          int64          `json:"amount" gorm:"not null"`
	Status          PaymentStatus  `json:"status" gorm:"type:text;not null"`
	RawData         datatypes.JSON `json:"raw_data,omitempty" gorm:"type:jsonb"`
	PaidAt          *time.Time     `json:"paid_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// Intent is returned to the buyer after the gateway accepted the request.
type Intent struct {
	CheckoutURL string       `json:"checkout_url"`
	OrderID     snowflake.ID `json:"order_id"`
	PaymentID   snowflake.ID `json:"payment_id"`
	OrderCode   int64        `json:"order_code"`
}
