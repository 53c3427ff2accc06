package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/listingboost/internal/clock"
	"github.com/smallbiznis/listingboost/internal/config"
	entitlementdomain "github.com/smallbiznis/listingboost/internal/entitlement/domain"
	entitlementrepo "github.com/smallbiznis/listingboost/internal/entitlement/repository"
	listingdomain "github.com/smallbiznis/listingboost/internal/listing/domain"
	listingrepo "github.com/smallbiznis/listingboost/internal/listing/repository"
	obsmetrics "github.com/smallbiznis/listingboost/internal/observability/metrics"
	"github.com/smallbiznis/listingboost/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	node  *snowflake.Node
	sched *Scheduler
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	registry := prometheus.NewRegistry()
	t.Cleanup(swapPrometheusRegistry(registry))
	obsmetrics.ResetSchedulerMetricsForTest()

	db := testdb.Open(t)
	clk := clock.NewFakeClock(testNow)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	sched, err := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Policy:       config.NewStaticEntitlementPolicy(config.DefaultEntitlementPolicy()),
		Listings:     listingrepo.Provide(),
		Entitlements: entitlementrepo.Provide(),
		Config:       cfg,
	})
	require.NoError(t, err)
	return fixture{db: db, clock: clk, node: node, sched: sched}
}

func (f fixture) insertListing(t *testing.T, mutate func(l *listingdomain.Listing)) snowflake.ID {
	t.Helper()
	expireAt := testNow.Add(30 * 24 * time.Hour)
	l := &listingdomain.Listing{
		ID:            f.node.Generate(),
		OwnerID:       1,
		Title:         "Desk lamp",
		PromotionType: listingdomain.PromotionTypeNone,
		ExpireAt:      &expireAt,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	mutate(l)
	require.NoError(t, listingrepo.Provide().Insert(context.Background(), f.db, l))
	return l.ID
}

func (f fixture) listing(t *testing.T, id snowflake.ID) listingdomain.Listing {
	t.Helper()
	var l listingdomain.Listing
	require.NoError(t, f.db.Raw(`SELECT * FROM listings WHERE id = ?`, id).Scan(&l).Error)
	return l
}

func (f fixture) entitlement(t *testing.T, userID snowflake.ID) entitlementdomain.Entitlement {
	t.Helper()
	var e entitlementdomain.Entitlement
	require.NoError(t, f.db.Raw(`SELECT * FROM user_entitlements WHERE user_id = ?`, userID).Scan(&e).Error)
	return e
}

func TestPromotionExpiryResetsElapsedListings(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobPromotionExpiry}})
	ctx := context.Background()

	elapsed := testNow.Add(-time.Second)
	running := testNow.Add(time.Hour)
	expiredID := f.insertListing(t, func(l *listingdomain.Listing) {
		l.PromotionType = listingdomain.PromotionTypePriority
		l.PriorityLevel = 2
		l.PromotionExpireAt = &elapsed
	})
	hiddenID := f.insertListing(t, func(l *listingdomain.Listing) {
		l.PromotionType = listingdomain.PromotionTypeBoost
		l.PriorityLevel = 1
		l.PromotionExpireAt = &elapsed
		l.DeletedAt = &elapsed
	})
	activeID := f.insertListing(t, func(l *listingdomain.Listing) {
		l.PromotionType = listingdomain.PromotionTypeBoost
		l.PriorityLevel = 1
		l.PromotionExpireAt = &running
	})

	require.NoError(t, f.sched.RunOnce(ctx))

	for _, id := range []snowflake.ID{expiredID, hiddenID} {
		got := f.listing(t, id)
		assert.Equal(t, listingdomain.PromotionTypeNone, got.PromotionType)
		assert.Zero(t, got.PriorityLevel)
		assert.Nil(t, got.PromotionExpireAt)
	}
	active := f.listing(t, activeID)
	assert.Equal(t, listingdomain.PromotionTypeBoost, active.PromotionType)

	before := f.listing(t, expiredID)
	require.NoError(t, f.sched.RunOnce(ctx))
	after := f.listing(t, expiredID)
	assert.Equal(t, before.UpdatedAt.UTC(), after.UpdatedAt.UTC())
}

func TestDisplayExpiryFlagsLiveListingsOnly(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobDisplayExpiry}, BatchSize: 1})
	ctx := context.Background()

	past := testNow.Add(-time.Minute)
	first := f.insertListing(t, func(l *listingdomain.Listing) { l.ExpireAt = &past })
	second := f.insertListing(t, func(l *listingdomain.Listing) { l.ExpireAt = &past })
	deleted := f.insertListing(t, func(l *listingdomain.Listing) {
		l.ExpireAt = &past
		l.DeletedAt = &past
	})
	live := f.insertListing(t, func(*listingdomain.Listing) {})

	require.NoError(t, f.sched.RunOnce(ctx))

	assert.True(t, f.listing(t, first).IsExpired)
	assert.True(t, f.listing(t, second).IsExpired)
	assert.False(t, f.listing(t, deleted).IsExpired)
	assert.False(t, f.listing(t, live).IsExpired)

	require.NoError(t, f.sched.RunOnce(ctx))
	assert.True(t, f.listing(t, first).IsExpired)
}

func TestQuotaSweepsNormalizeUsers(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobFreeQuotaReset, JobMembershipExpiry}})
	ctx := context.Background()
	repo := entitlementrepo.Provide()

	_, err := repo.Ensure(ctx, f.db, 7, 5, testNow.Add(-31*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(
		`UPDATE user_entitlements SET free_post_used = 5, free_quota_reset_at = ?,
		 membership_type = 'VIP', membership_expires_at = ?, membership_post_quota = 200, membership_post_used = 9
		 WHERE user_id = 7`,
		testNow.Add(-time.Hour), testNow.Add(-time.Second),
	).Error)

	require.NoError(t, f.sched.RunOnce(ctx))

	got := f.entitlement(t, 7)
	assert.Zero(t, got.FreePostUsed)
	require.NotNil(t, got.FreeQuotaResetAt)
	assert.True(t, testNow.Add(30*24*time.Hour).Equal(*got.FreeQuotaResetAt))
	assert.Nil(t, got.MembershipType)
	assert.Nil(t, got.MembershipExpiresAt)
	assert.Nil(t, got.MembershipPostQuota)
	assert.Zero(t, got.MembershipPostUsed)
}

func TestRunDueHonoursIntervals(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobPromotionExpiry}, PromotionInterval: time.Hour})
	ctx := context.Background()

	require.NoError(t, f.sched.RunDue(ctx))

	elapsed := testNow.Add(-time.Second)
	id := f.insertListing(t, func(l *listingdomain.Listing) {
		l.PromotionType = listingdomain.PromotionTypeBoost
		l.PriorityLevel = 1
		l.PromotionExpireAt = &elapsed
	})

	f.clock.Advance(30 * time.Minute)
	require.NoError(t, f.sched.RunDue(ctx))
	assert.Equal(t, listingdomain.PromotionTypeBoost, f.listing(t, id).PromotionType)

	f.clock.Advance(30 * time.Minute)
	require.NoError(t, f.sched.RunDue(ctx))
	assert.Equal(t, listingdomain.PromotionTypeNone, f.listing(t, id).PromotionType)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "listingboost",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{}), cfg: DefaultConfig()}
	err = s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context, _ *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "listingboost",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "listingboost_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "listingboost",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "listingboost_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
