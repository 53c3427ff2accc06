package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	"github.com/smallbiznis/listingboost/internal/clock"
	"github.com/smallbiznis/listingboost/internal/config"
	"github.com/smallbiznis/listingboost/internal/entitlement/domain"
	obslogger "github.com/smallbiznis/listingboost/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/listingboost/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxWriteAttempts = 5

var errVersionConflict = errors.New("entitlement_version_conflict")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Policy     *config.EntitlementPolicyHolder
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	policy     *config.EntitlementPolicyHolder
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("entitlement.service"),
		clock:      p.Clock,
		policy:     p.Policy,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// mutation computes the next state from a normalized row. It returns
// whether the row must be written.
type mutation func(e domain.Entitlement) (domain.Entitlement, bool)

func (s *Service) CheckAndConsume(ctx context.Context, userID snowflake.ID) (*domain.Decision, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	var decision domain.Decision
	_, err := s.update(ctx, nil, userID, func(e domain.Entitlement) (domain.Entitlement, bool) {
		next, d, consumed := domain.Consume(e, s.clock.Now())
		decision = d
		return next, consumed
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordQuotaDecision(ctx, string(decision.QuotaType), decision.CanPost)
	if !decision.CanPost {
		obslogger.WithContext(ctx, s.log).Info("entitlement.post_denied",
			zap.String("user_id", userID.String()),
			zap.String("quota_type", string(decision.QuotaType)),
			zap.String("reason", decision.Reason),
		)
	}
	return &decision, nil
}

func (s *Service) Upgrade(ctx context.Context, tx *gorm.DB, userID snowflake.ID, effect catalogdomain.MembershipEffect) (*domain.Snapshot, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	var kind domain.ChangeKind
	e, err := s.update(ctx, tx, userID, func(e domain.Entitlement) (domain.Entitlement, bool) {
		var next domain.Entitlement
		next, kind = domain.ApplyMembership(e, effect, s.clock.Now())
		return next, true
	})
	if err != nil {
		return nil, err
	}

	obslogger.WithContext(ctx, s.log).Info("entitlement.membership_granted",
		zap.String("user_id", userID.String()),
		zap.String("tier", string(effect.Tier)),
		zap.String("change", string(kind)),
		zap.Timep("expires_at", e.MembershipExpiresAt),
	)

	snap := domain.SnapshotOf(*e, s.clock.Now())
	snap.Change = kind
	return &snap, nil
}

func (s *Service) Snapshot(ctx context.Context, userID snowflake.ID) (*domain.Snapshot, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	e, err := s.update(ctx, nil, userID, nil)
	if err != nil {
		return nil, err
	}
	snap := domain.SnapshotOf(*e, s.clock.Now())
	return &snap, nil
}

func (s *Service) Provision(ctx context.Context, userID snowflake.ID) (*domain.Snapshot, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	created, err := s.repo.Ensure(ctx, s.db, userID, s.policy.Get().FreePostQuota, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if created {
		obslogger.WithContext(ctx, s.log).Info("entitlement.provisioned", zap.String("user_id", userID.String()))
	}
	return s.Snapshot(ctx, userID)
}

// update runs normalize-then-act against the latest row under a row lock and
// a version check. Missing rows are provisioned with the configured free
// quota. With a nil tx each attempt runs in its own transaction and version
// conflicts are retried; inside a caller transaction a conflict aborts.
func (s *Service) update(ctx context.Context, tx *gorm.DB, userID snowflake.ID, act mutation) (*domain.Entitlement, error) {
	if tx != nil {
		return s.updateTx(ctx, tx, userID, act)
	}

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		var out *domain.Entitlement
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			e, err := s.updateTx(ctx, tx, userID, act)
			out = e
			return err
		})
		if errors.Is(err, errVersionConflict) {
			s.log.Debug("entitlement.version_conflict",
				zap.String("user_id", userID.String()),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, domain.ErrConcurrentUpdate
}

func (s *Service) updateTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, act mutation) (*domain.Entitlement, error) {
	now := s.clock.Now()
	policy := s.policy.Get()

	current, err := s.repo.FindForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		if _, err := s.repo.Ensure(ctx, tx, userID, policy.FreePostQuota, now); err != nil {
			return nil, err
		}
		current, err = s.repo.FindForUpdate(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, domain.ErrInvalidUser
		}
	}

	next, dirty := domain.Normalize(*current, now, policy.FreeWindow())
	if act != nil {
		var acted bool
		next, acted = act(next)
		dirty = dirty || acted
	}
	if !dirty {
		return &next, nil
	}

	next.UpdatedAt = now
	ok, err := s.repo.UpdateIfVersion(ctx, tx, &next, current.Version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errVersionConflict
	}
	return &next, nil
}
