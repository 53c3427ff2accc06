package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/listingboost/internal/order/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	orderColumns   = `id, buyer_id, package_id, listing_id, order_type, amount, status, created_at, updated_at`
	paymentColumns = `id, order_id, provider, provider_order_id, transaction_id, amount, status,
		raw_data, paid_at, created_at, updated_at`
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		o.BuyerID,
		o.PackageID,
		o.ListingID,
		o.OrderType,
		o.Amount,
		o.Status,
		o.CreatedAt,
		o.UpdatedAt,
	).Error
}

func (r *repo) FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var o domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`,
		id,
	).Scan(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (r *repo) TransitionOrder(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.OrderStatus, status domain.OrderStatus, now time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status IN ?`,
		status,
		now,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.OrderID,
		p.Provider,
		p.ProviderOrderID,
		p.TransactionID,
		p.Amount,
		p.Status,
		p.RawData,
		p.PaidAt,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) DeletePayment(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM payments WHERE id = ? AND status = ?`,
		id,
		domain.PaymentStatusPending,
	).Error
}

func (r *repo) SaveGatewayResponse(ctx context.Context, db *gorm.DB, id snowflake.ID, raw datatypes.JSON, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments SET raw_data = ?, updated_at = ? WHERE id = ? AND status = ?`,
		raw,
		now,
		id,
		domain.PaymentStatusPending,
	).Error
}

func (r *repo) FindPaymentByProviderOrderID(ctx context.Context, db *gorm.DB, providerOrderID int64) (*domain.Payment, error) {
	return r.findPayment(ctx, db, `SELECT `+paymentColumns+` FROM payments WHERE provider_order_id = ?`, providerOrderID)
}

func (r *repo) FindPaymentForUpdate(ctx context.Context, db *gorm.DB, providerOrderID int64) (*domain.Payment, error) {
	return r.findPayment(ctx, db, `SELECT `+paymentColumns+` FROM payments WHERE provider_order_id = ? FOR UPDATE`, providerOrderID)
}

func (r *repo) findPayment(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Payment, error) {
	var p domain.Payment
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) SettlePayment(ctx context.Context, db *gorm.DB, p *domain.Payment) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, transaction_id = ?, raw_data = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		p.Status,
		p.TransactionID,
		p.RawData,
		p.PaidAt,
		p.UpdatedAt,
		p.ID,
		domain.PaymentStatusSuccess,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) CountPaymentsForOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM payments WHERE order_id = ?`,
		orderID,
	).Scan(&count).Error
	return count, err
}
