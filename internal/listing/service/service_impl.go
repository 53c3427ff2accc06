package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	"github.com/smallbiznis/listingboost/internal/clock"
	"github.com/smallbiznis/listingboost/internal/config"
	entitlementdomain "github.com/smallbiznis/listingboost/internal/entitlement/domain"
	"github.com/smallbiznis/listingboost/internal/listing/domain"
	obslogger "github.com/smallbiznis/listingboost/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxTitleLength = 200

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Policy       *config.EntitlementPolicyHolder
	Repo         domain.Repository
	Entitlements entitlementdomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	policy       *config.EntitlementPolicyHolder
	repo         domain.Repository
	entitlements entitlementdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("listing.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy,
		repo:         p.Repo,
		entitlements: p.Entitlements,
	}
}

func (s *Service) Open(ctx context.Context, req domain.OpenRequest) (*domain.OpenResult, error) {
	if req.OwnerID == 0 {
		return nil, entitlementdomain.ErrInvalidUser
	}
	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > maxTitleLength {
		return nil, domain.ErrInvalidTitle
	}

	decision, err := s.entitlements.CheckAndConsume(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if !decision.CanPost {
		return nil, &domain.QuotaError{Decision: *decision}
	}

	now := s.clock.Now()
	expireAt := now.Add(s.policy.Get().DisplayWindow())
	listing := &domain.Listing{
		ID:            s.genID.Generate(),
		OwnerID:       req.OwnerID,
		Title:         title,
		PromotionType: domain.PromotionTypeNone,
		ExpireAt:      &expireAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, listing); err != nil {
		// The quota unit stays consumed; posting is reserve-on-check.
		obslogger.WithContext(ctx, s.log).Error("listing.insert_failed",
			zap.String("owner_id", req.OwnerID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	obslogger.WithContext(ctx, s.log).Info("listing.opened",
		zap.String("listing_id", listing.ID.String()),
		zap.String("owner_id", req.OwnerID.String()),
		zap.String("quota_type", string(decision.QuotaType)),
		zap.Int("remaining_quota", decision.RemainingQuota),
	)
	return &domain.OpenResult{Listing: listing, Decision: *decision}, nil
}

func (s *Service) GetOwned(ctx context.Context, ownerID, listingID snowflake.ID) (*domain.Listing, error) {
	if listingID == 0 {
		return nil, domain.ErrListingNotFound
	}
	listing, err := s.repo.FindByID(ctx, s.db, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, domain.ErrListingNotFound
	}
	if listing.OwnerID != ownerID {
		return nil, domain.ErrNotOwner
	}
	return listing, nil
}

func (s *Service) ApplyPromotion(ctx context.Context, tx *gorm.DB, listingID snowflake.ID, effect catalogdomain.PromotionEffect) (*domain.Listing, error) {
	var out *domain.Listing
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		listing, err := s.lock(ctx, tx, listingID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		expireAt := now.Add(effect.Duration)
		listing.PromotionType = domain.PromotionType(effect.Kind)
		listing.PriorityLevel = effect.PriorityLevel
		listing.PromotionExpireAt = &expireAt
		listing.UpdatedAt = now
		if err := s.repo.UpdatePromotion(ctx, tx, listing); err != nil {
			return err
		}
		out = listing
		return nil
	})
	if err != nil {
		return nil, err
	}

	obslogger.WithContext(ctx, s.log).Info("listing.promotion_applied",
		zap.String("listing_id", listingID.String()),
		zap.String("promotion_type", string(out.PromotionType)),
		zap.Int("priority_level", out.PriorityLevel),
		zap.Timep("promotion_expire_at", out.PromotionExpireAt),
	)
	return out, nil
}

func (s *Service) ExtendDisplay(ctx context.Context, tx *gorm.DB, listingID snowflake.ID, effect catalogdomain.RenewEffect) (*domain.Listing, error) {
	var (
		out      *domain.Listing
		previous *time.Time
	)
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		listing, err := s.lock(ctx, tx, listingID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		from := now
		if listing.ExpireAt != nil && listing.ExpireAt.After(now) {
			from = *listing.ExpireAt
		}
		next := from.AddDate(0, 0, effect.ExtendDays)

		previous = listing.ExpireAt
		listing.ExpireAt = &next
		listing.IsExpired = false
		listing.UpdatedAt = now
		if err := s.repo.UpdateDisplay(ctx, tx, listing); err != nil {
			return err
		}
		out = listing
		return nil
	})
	if err != nil {
		return nil, err
	}

	obslogger.WithContext(ctx, s.log).Info("listing.display_extended",
		zap.String("listing_id", listingID.String()),
		zap.Int("extend_days", effect.ExtendDays),
		zap.Timep("previous_expire_at", previous),
		zap.Timep("expire_at", out.ExpireAt),
	)
	return out, nil
}

func (s *Service) lock(ctx context.Context, tx *gorm.DB, listingID snowflake.ID) (*domain.Listing, error) {
	if listingID == 0 {
		return nil, domain.ErrListingNotFound
	}
	listing, err := s.repo.FindForUpdate(ctx, tx, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, domain.ErrListingNotFound
	}
	return listing, nil
}

func (s *Service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}
