package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	"github.com/smallbiznis/listingboost/internal/clock"
	entitlementdomain "github.com/smallbiznis/listingboost/internal/entitlement/domain"
	listingdomain "github.com/smallbiznis/listingboost/internal/listing/domain"
	obscontext "github.com/smallbiznis/listingboost/internal/observability/context"
	obslogger "github.com/smallbiznis/listingboost/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/listingboost/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/listingboost/internal/order/domain"
	paymentdomain "github.com/smallbiznis/listingboost/internal/payment/domain"
	"github.com/smallbiznis/listingboost/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const callbackLockTTL = 30 * time.Second

var errAlreadySettled = errors.New("payment_already_settled")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Gateway      paymentdomain.Gateway
	Orders       orderdomain.Repository
	Packages     catalogdomain.Repository
	Listings     listingdomain.Service
	Entitlements entitlementdomain.Service
	Locker       *ratelimit.Locker   `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	gateway      paymentdomain.Gateway
	orders       orderdomain.Repository
	packages     catalogdomain.Repository
	listings     listingdomain.Service
	entitlements entitlementdomain.Service
	locker       *ratelimit.Locker
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.webhook"),
		clock:        p.Clock,
		gateway:      p.Gateway,
		orders:       p.Orders,
		packages:     p.Packages,
		listings:     p.Listings,
		entitlements: p.Entitlements,
		locker:       p.Locker,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) HandleCallback(ctx context.Context, payload []byte) paymentdomain.CallbackResult {
	ctx = obscontext.WithActor(ctx, obscontext.ActorGateway, s.gateway.Provider())
	log := obslogger.WithContext(ctx, s.log).With(zap.String("provider", s.gateway.Provider()))

	result := s.handle(ctx, log, payload)
	s.obsMetrics.RecordWebhook(ctx, s.gateway.Provider(), string(result.Outcome))
	return result
}

func (s *Service) handle(ctx context.Context, log *zap.Logger, payload []byte) paymentdomain.CallbackResult {
	if err := s.gateway.Verify(payload); err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidSignature) {
			log.Warn("webhook.invalid_signature")
			return reply(false, "Invalid signature", paymentdomain.OutcomeInvalidSignature)
		}
		log.Warn("webhook.invalid_payload", zap.Error(err))
		return reply(false, "Invalid payload", paymentdomain.OutcomeInvalidPayload)
	}

	event, err := s.gateway.Parse(payload)
	if err != nil {
		log.Warn("webhook.invalid_payload", zap.Error(err))
		return reply(false, "Invalid payload", paymentdomain.OutcomeInvalidPayload)
	}
	log = log.With(
		zap.Int64("order_code", event.OrderCode),
		zap.String("code", event.Code),
	)

	lease, err := s.locker.Acquire(ctx, fmt.Sprintf("listingboost:webhook:%s:%d", s.gateway.Provider(), event.OrderCode), callbackLockTTL)
	switch {
	case errors.Is(err, ratelimit.ErrLockHeld):
		log.Info("webhook.concurrent_delivery")
		return reply(false, "Callback is already being processed", paymentdomain.OutcomeBusy)
	case err != nil:
		// The database gate still guarantees a single settlement.
		log.Warn("webhook.lock_unavailable", zap.Error(err))
	default:
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("webhook.lock_release_failed", zap.Error(err))
			}
		}()
	}

	existing, err := s.orders.FindPaymentByProviderOrderID(ctx, s.db, event.OrderCode)
	if err != nil {
		log.Error("webhook.lookup_failed", zap.Error(err))
		return reply(false, "Processing failed", paymentdomain.OutcomeError)
	}
	if existing == nil {
		log.Warn("webhook.payment_not_found")
		return reply(false, fmt.Sprintf("Payment with orderCode %d not found", event.OrderCode), paymentdomain.OutcomeNotFound)
	}
	if existing.Status == orderdomain.PaymentStatusSuccess {
		log.Info("webhook.already_processed", zap.String("payment_id", existing.ID.String()))
		return reply(true, "Already processed", paymentdomain.OutcomeAlreadyProcessed)
	}

	var outcome paymentdomain.CallbackOutcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		outcome, err = s.settle(ctx, tx, log, event)
		return err
	})
	switch {
	case errors.Is(err, errAlreadySettled):
		log.Info("webhook.already_processed")
		return reply(true, "Already processed", paymentdomain.OutcomeAlreadyProcessed)
	case errors.Is(err, paymentdomain.ErrPaymentNotFound):
		log.Warn("webhook.payment_not_found")
		return reply(false, fmt.Sprintf("Payment with orderCode %d not found", event.OrderCode), paymentdomain.OutcomeNotFound)
	case err != nil:
		log.Error("webhook.processing_failed", zap.Error(err))
		return reply(false, "Processing failed", paymentdomain.OutcomeError)
	}

	if outcome == paymentdomain.OutcomeFailedPayment {
		return reply(true, "Payment failure recorded", outcome)
	}
	return reply(true, "Processed", outcome)
}

// settle transitions payment and order and applies the purchase effect in
// one transaction. The conditional payment update is the idempotency gate.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, log *zap.Logger, event *paymentdomain.CallbackEvent) (paymentdomain.CallbackOutcome, error) {
	payment, err := s.orders.FindPaymentForUpdate(ctx, tx, event.OrderCode)
	if err != nil {
		return "", err
	}
	if payment == nil {
		return "", paymentdomain.ErrPaymentNotFound
	}
	if payment.Status == orderdomain.PaymentStatusSuccess {
		return "", errAlreadySettled
	}

	now := s.clock.Now()
	succeeded := event.Succeeded()

	payment.Status = orderdomain.PaymentStatusFailed
	payment.PaidAt = nil
	if succeeded {
		payment.Status = orderdomain.PaymentStatusSuccess
		paidAt := now
		if event.TransactionDateTime != nil {
			paidAt = *event.TransactionDateTime
		}
		payment.PaidAt = &paidAt
	}
	payment.TransactionID = nil
	if event.Reference != "" {
		ref := event.Reference
		payment.TransactionID = &ref
	}
	payment.RawData = datatypes.JSON(event.RawPayload)
	payment.UpdatedAt = now

	changed, err := s.orders.SettlePayment(ctx, tx, payment)
	if err != nil {
		return "", err
	}
	if !changed {
		return "", errAlreadySettled
	}

	order, err := s.orders.FindOrder(ctx, tx, payment.OrderID)
	if err != nil {
		return "", err
	}
	if order == nil {
		return "", fmt.Errorf("order %s for payment %s is missing", payment.OrderID, payment.ID)
	}
	log = log.With(
		zap.String("payment_id", payment.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("order_type", string(order.OrderType)),
	)

	if !succeeded {
		moved, err := s.orders.TransitionOrder(ctx, tx, order.ID,
			[]orderdomain.OrderStatus{orderdomain.OrderStatusPending},
			orderdomain.OrderStatusFailed, now)
		if err != nil {
			return "", err
		}
		log.Info("webhook.payment_failed", zap.Bool("order_transitioned", moved))
		return paymentdomain.OutcomeFailedPayment, nil
	}

	// A success may follow an earlier failure report for the same payment.
	moved, err := s.orders.TransitionOrder(ctx, tx, order.ID,
		[]orderdomain.OrderStatus{orderdomain.OrderStatusPending, orderdomain.OrderStatusFailed},
		orderdomain.OrderStatusPaid, now)
	if err != nil {
		return "", err
	}
	if !moved {
		log.Warn("webhook.order_not_transitionable", zap.String("order_status", string(order.Status)))
	}

	if err := s.fulfill(ctx, tx, log, order); err != nil {
		return "", err
	}
	log.Info("webhook.payment_settled")
	return paymentdomain.OutcomeProcessed, nil
}

// fulfill applies the purchased package to its target. Missing targets and
// unsupported packages are logged and skipped: the payment stays captured.
func (s *Service) fulfill(ctx context.Context, tx *gorm.DB, log *zap.Logger, order *orderdomain.Order) error {
	pkg, err := s.packages.FindByID(ctx, tx, order.PackageID)
	if err != nil {
		return err
	}
	if pkg == nil {
		log.Error("webhook.package_missing", zap.String("package_id", order.PackageID.String()))
		s.obsMetrics.RecordFulfillment(ctx, string(order.OrderType), "package_missing")
		return nil
	}

	effect, err := pkg.Effect()
	if err != nil {
		log.Error("webhook.fulfillment_unsupported", zap.String("package_id", pkg.ID.String()), zap.Error(err))
		s.obsMetrics.RecordFulfillment(ctx, string(order.OrderType), "unsupported")
		return nil
	}
	if effect.Type() != order.OrderType {
		log.Warn("webhook.order_type_mismatch", zap.String("package_type", string(effect.Type())))
	}

	switch e := effect.(type) {
	case catalogdomain.PromotionEffect:
		if order.ListingID == nil {
			return s.skipMissingListing(ctx, log, order)
		}
		_, err = s.listings.ApplyPromotion(ctx, tx, *order.ListingID, e)
	case catalogdomain.RenewEffect:
		if order.ListingID == nil {
			return s.skipMissingListing(ctx, log, order)
		}
		_, err = s.listings.ExtendDisplay(ctx, tx, *order.ListingID, e)
	case catalogdomain.MembershipEffect:
		_, err = s.entitlements.Upgrade(ctx, tx, order.BuyerID, e)
	default:
		log.Error("webhook.fulfillment_unsupported", zap.String("package_type", string(effect.Type())))
		s.obsMetrics.RecordFulfillment(ctx, string(order.OrderType), "unsupported")
		return nil
	}

	if errors.Is(err, listingdomain.ErrListingNotFound) {
		return s.skipMissingListing(ctx, log, order)
	}
	if err != nil {
		s.obsMetrics.RecordFulfillment(ctx, string(order.OrderType), "error")
		return err
	}
	s.obsMetrics.RecordFulfillment(ctx, string(order.OrderType), "applied")
	return nil
}

func (s *Service) skipMissingListing(ctx context.Context, log *zap.Logger, order *orderdomain.Order) error {
	fields := []zap.Field{}
	if order.ListingID != nil {
		fields = append(fields, zap.String("listing_id", order.ListingID.String()))
	}
	log.Error("webhook.listing_missing", fields...)
	s.obsMetrics.RecordFulfillment(ctx, string(order.OrderType), "listing_missing")
	return nil
}

func reply(success bool, message string, outcome paymentdomain.CallbackOutcome) paymentdomain.CallbackResult {
	return paymentdomain.CallbackResult{Success: success, Message: message, Outcome: outcome}
}
