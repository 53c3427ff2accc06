package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/listingboost/internal/clock"
	"github.com/smallbiznis/listingboost/internal/config"
	entitlementdomain "github.com/smallbiznis/listingboost/internal/entitlement/domain"
	listingdomain "github.com/smallbiznis/listingboost/internal/listing/domain"
	obsmetrics "github.com/smallbiznis/listingboost/internal/observability/metrics"
	"github.com/smallbiznis/listingboost/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Policy       *config.EntitlementPolicyHolder
	Listings     listingdomain.Repository
	Entitlements entitlementdomain.Repository
	Locker       *ratelimit.Locker `optional:"true"`
	Config       Config            `optional:"true"`
}

type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	policy       *config.EntitlementPolicyHolder
	listings     listingdomain.Repository
	entitlements entitlementdomain.Repository
	locker       *ratelimit.Locker

	mu      sync.Mutex
	lastRun map[string]time.Time
}

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context, run *jobRun) error
}

// claimFunc selects a batch of due rows under row locks.
type claimFunc func(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)

// applyFunc transitions claimed rows and returns how many changed.
type applyFunc func(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error)

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Listings == nil || p.Entitlements == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy,
		listings:     p.Listings,
		entitlements: p.Entitlements,
		locker:       p.Locker,
		lastRun:      map[string]time.Time{},
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{name: JobPromotionExpiry, interval: s.cfg.PromotionInterval, run: s.PromotionExpiryJob},
		{name: JobDisplayExpiry, interval: s.cfg.DisplayInterval, run: s.DisplayExpiryJob},
		{name: JobFreeQuotaReset, interval: s.cfg.QuotaInterval, run: s.FreeQuotaResetJob},
		{name: JobMembershipExpiry, interval: s.cfg.QuotaInterval, run: s.MembershipExpiryJob},
	}
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context, run *jobRun) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name, s.cfg.BatchSize)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	lease, err := s.locker.Acquire(ctx, "listingboost:scheduler:"+name, timeout)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		schedMetrics.IncJobError(name, fmt.Errorf("%s: %w", name, obsmetrics.ErrSchedulerLockHeld))
		log.Debug("job skipped, lock held elsewhere")
		return nil
	}
	if err != nil {
		log.Warn("job lock unavailable, running unlocked", zap.Error(err))
	}
	defer func() {
		if lease == nil {
			return
		}
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("job lock release failed", zap.Error(err))
		}
	}()

	s.logJobStart(ctx, run)
	err = fn(ctx, run)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout: the next tick resumes where this one stopped.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job regardless of its interval.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j.name, s.cfg.JobTimeout, j.run))
		s.markRun(j.name, s.clock.Now())
	}
	return err
}

// RunDue runs the enabled jobs whose interval elapsed since their last run.
func (s *Scheduler) RunDue(parent context.Context) error {
	now := s.clock.Now()
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		if !s.due(j.name, j.interval, now) {
			obsmetrics.Scheduler().IncBatchDeferred(j.name, obsmetrics.SchedulerBatchDeferredReasonNotDue)
			continue
		}
		err = errors.Join(err, s.runJob(parent, j.name, s.cfg.JobTimeout, j.run))
		s.markRun(j.name, now)
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := s.RunDue(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		schedMetrics.ObserveRunLoopLag(time.Since(nextRun))
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

func (s *Scheduler) due(name string, interval time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[name]
	return !ok || !now.Before(last.Add(interval))
}

func (s *Scheduler) markRun(name string, at time.Time) {
	s.mu.Lock()
	s.lastRun[name] = at
	s.mu.Unlock()
}

func (s *Scheduler) isJobEnabled(name string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, name) {
			return true
		}
	}
	return false
}

// PromotionExpiryJob demotes listings whose promotion window elapsed,
// soft-deleted ones included.
func (s *Scheduler) PromotionExpiryJob(ctx context.Context, run *jobRun) error {
	return s.sweep(ctx, run, obsmetrics.LockResourcePromotedListings,
		func(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
			return s.listings.ClaimElapsedPromotions(ctx, tx, now, limit)
		},
		func(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error) {
			return s.listings.ResetPromotions(ctx, tx, ids, now)
		},
	)
}

// DisplayExpiryJob flags live listings whose display window elapsed.
func (s *Scheduler) DisplayExpiryJob(ctx context.Context, run *jobRun) error {
	return s.sweep(ctx, run, obsmetrics.LockResourceDisplayListings,
		func(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
			return s.listings.ClaimElapsedDisplay(ctx, tx, now, limit)
		},
		func(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error) {
			return s.listings.MarkExpired(ctx, tx, ids, now)
		},
	)
}

// FreeQuotaResetJob restarts elapsed free windows for users who have not
// posted since the window ended.
func (s *Scheduler) FreeQuotaResetJob(ctx context.Context, run *jobRun) error {
	window := s.policy.Get().FreeWindow()
	return s.sweep(ctx, run, obsmetrics.LockResourceFreeWindows,
		func(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
			return s.entitlements.ClaimElapsedFreeWindows(ctx, tx, now, limit)
		},
		func(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error) {
			return s.entitlements.RestartFreeWindows(ctx, tx, ids, now, now.Add(window))
		},
	)
}

func (s *Scheduler) MembershipExpiryJob(ctx context.Context, run *jobRun) error {
	return s.sweep(ctx, run, obsmetrics.LockResourceMemberships,
		func(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
			return s.entitlements.ClaimExpiredMemberships(ctx, tx, now, limit)
		},
		func(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error) {
			return s.entitlements.ClearMemberships(ctx, tx, ids, now)
		},
	)
}

// sweep claims and transitions due rows in batches, one transaction per
// batch, until a batch comes back short.
func (s *Scheduler) sweep(ctx context.Context, run *jobRun, resource string, claim claimFunc, apply applyFunc) error {
	schedMetrics := obsmetrics.Scheduler()
	now := s.clock.Now()
	limit := s.cfg.BatchSize

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var claimed int
		var changed int64
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			lockStart := time.Now()
			ids, err := claim(ctx, tx, now, limit)
			schedMetrics.ObserveDBLockWait(resource, time.Since(lockStart))
			if err != nil {
				return err
			}
			claimed = len(ids)
			if claimed == 0 {
				return nil
			}
			changed, err = apply(ctx, tx, ids, now)
			return err
		})
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.batch.failed", err, zap.String("resource", resource))
			return err
		}

		run.AddProcessed(int(changed))
		schedMetrics.AddBatchProcessed(run.job, resource, int(changed))
		if claimed == 0 {
			schedMetrics.IncBatchDeferred(run.job, obsmetrics.SchedulerBatchDeferredReasonSkipLockedEmpty)
			return nil
		}
		if claimed < limit || changed == 0 {
			return nil
		}
	}
}
