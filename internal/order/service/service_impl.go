package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	"github.com/smallbiznis/listingboost/internal/clock"
	"github.com/smallbiznis/listingboost/internal/config"
	listingdomain "github.com/smallbiznis/listingboost/internal/listing/domain"
	obslogger "github.com/smallbiznis/listingboost/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/listingboost/internal/observability/metrics"
	"github.com/smallbiznis/listingboost/internal/order/domain"
	paymentdomain "github.com/smallbiznis/listingboost/internal/payment/domain"
	"github.com/smallbiznis/listingboost/internal/ratelimit"
	"github.com/smallbiznis/listingboost/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxOrderCodeAttempts = 5

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       domain.Repository
	Catalog    catalogdomain.Service
	Listings   listingdomain.Service
	Gateway    paymentdomain.Gateway
	Limiter    *ratelimit.IntentLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics      `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	frontendURL string
	repo        domain.Repository
	catalog     catalogdomain.Service
	listings    listingdomain.Service
	gateway     paymentdomain.Gateway
	limiter     *ratelimit.IntentLimiter
	obsMetrics  *obsmetrics.Metrics

	codeMu   sync.Mutex
	lastCode int64
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("order.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		frontendURL: p.Cfg.FrontendURL,
		repo:        p.Repo,
		catalog:     p.Catalog,
		listings:    p.Listings,
		gateway:     p.Gateway,
		limiter:     p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) CreatePaymentIntent(ctx context.Context, req domain.CreateIntentRequest) (*domain.Intent, error) {
	if req.BuyerID == 0 {
		return nil, domain.ErrInvalidBuyer
	}

	res, err := s.limiter.Allow(ctx, req.BuyerID)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		s.obsMetrics.RecordRateLimitDenied(ctx, "payment_intent", "token_bucket")
		return nil, &domain.RateLimitError{RetryAfter: res.RetryAfter}
	}

	pkg, listingID, err := s.validate(ctx, req)
	if err != nil {
		s.obsMetrics.RecordPaymentIntent(ctx, "", "rejected")
		return nil, err
	}

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("buyer_id", req.BuyerID.String()),
		zap.String("package_id", pkg.ID.String()),
		zap.String("package_type", string(pkg.PackageType)),
	)

	now := s.clock.Now()
	order := &domain.Order{
		ID:        s.genID.Generate(),
		BuyerID:   req.BuyerID,
		PackageID: pkg.ID,
		ListingID: listingID,
		OrderType: pkg.PackageType,
		Amount:    pkg.Price,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertOrder(ctx, s.db, order); err != nil {
		return nil, err
	}

	payment, err := s.insertPayment(ctx, order)
	if err != nil {
		log.Error("payment.insert_failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil, err
	}
	log = log.With(
		zap.String("order_id", order.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.Int64("order_code", payment.ProviderOrderID),
	)

	checkout, err := s.gateway.CreateCheckout(ctx, paymentdomain.CheckoutRequest{
		OrderCode:   payment.ProviderOrderID,
		Amount:      pkg.Price,
		Description: describe(pkg, listingID),
		ReturnURL:   s.callbackURL(pkg, listingID, "success"),
		CancelURL:   s.callbackURL(pkg, listingID, "cancel"),
	})
	if err != nil {
		// Detached so a cancelled request still removes the payment row.
		cleanupCtx := context.WithoutCancel(ctx)
		if delErr := s.repo.DeletePayment(cleanupCtx, s.db, payment.ID); delErr != nil {
			log.Error("payment.compensation_failed", zap.Error(delErr))
			return nil, errors.Join(fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err), delErr)
		}
		log.Warn("payment.gateway_failed", zap.Error(err))
		s.obsMetrics.RecordPaymentIntent(ctx, string(pkg.PackageType), "gateway_error")
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	if len(checkout.Raw) > 0 {
		if err := s.repo.SaveGatewayResponse(ctx, s.db, payment.ID, datatypes.JSON(checkout.Raw), s.clock.Now()); err != nil {
			log.Warn("payment.save_response_failed", zap.Error(err))
		}
	}

	log.Info("payment.intent_created", zap.String("payment_link_id", checkout.PaymentLinkID))
	s.obsMetrics.RecordPaymentIntent(ctx, string(pkg.PackageType), "created")

	return &domain.Intent{
		CheckoutURL: checkout.CheckoutURL,
		OrderID:     order.ID,
		PaymentID:   payment.ID,
		OrderCode:   payment.ProviderOrderID,
	}, nil
}

func (s *Service) validate(ctx context.Context, req domain.CreateIntentRequest) (*catalogdomain.Package, *snowflake.ID, error) {
	pkg, err := s.catalog.Get(ctx, req.PackageID)
	if err != nil {
		return nil, nil, err
	}
	if !pkg.IsActive {
		return nil, nil, domain.ErrPackageInactive
	}
	if _, err := pkg.Effect(); err != nil {
		return nil, nil, err
	}

	if !pkg.PackageType.RequiresListing() {
		return pkg, nil, nil
	}
	if req.ListingID == nil || *req.ListingID == 0 {
		return nil, nil, domain.ErrListingRequired
	}

	listing, err := s.listings.GetOwned(ctx, req.BuyerID, *req.ListingID)
	if err != nil {
		return nil, nil, err
	}
	if pkg.PackageType == catalogdomain.PackageTypePromotion && listing.HasActivePromotion(s.clock.Now()) {
		return nil, nil, domain.ErrPromotionActive
	}
	id := listing.ID
	return pkg, &id, nil
}

// insertPayment retries on provider order code collisions, which only
// happen across processes sharing the same millisecond.
func (s *Service) insertPayment(ctx context.Context, order *domain.Order) (*domain.Payment, error) {
	for attempt := 1; attempt <= maxOrderCodeAttempts; attempt++ {
		now := s.clock.Now()
		payment := &domain.Payment{
			ID:              s.genID.Generate(),
			OrderID:         order.ID,
			Provider:        s.gateway.Provider(),
			ProviderOrderID: s.nextOrderCode(),
			Amount:          order.Amount,
			Status:          domain.PaymentStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		err := s.repo.InsertPayment(ctx, s.db, payment)
		if err == nil {
			return payment, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		s.log.Debug("payment.order_code_collision",
			zap.Int64("order_code", payment.ProviderOrderID),
			zap.Int("attempt", attempt),
		)
	}
	return nil, domain.ErrOrderCodeExhausted
}

// nextOrderCode returns the current unix millisecond, bumped past the last
// code handed out by this process.
func (s *Service) nextOrderCode() int64 {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()

	code := s.clock.Now().UnixMilli()
	if code <= s.lastCode {
		code = s.lastCode + 1
	}
	s.lastCode = code
	return code
}

func describe(pkg *catalogdomain.Package, listingID *snowflake.ID) string {
	if listingID == nil {
		return pkg.DisplayName
	}
	return fmt.Sprintf("%s - SP #%s", pkg.DisplayName, listingID.String())
}

func (s *Service) callbackURL(pkg *catalogdomain.Package, listingID *snowflake.ID, outcome string) string {
	query := "package_id=" + pkg.ID.String()
	if listingID != nil {
		query = "product_id=" + listingID.String() + "&" + query
	}
	return fmt.Sprintf("%s/payment/%s/%s?%s", s.frontendURL, pkg.PackageType, outcome, query)
}
