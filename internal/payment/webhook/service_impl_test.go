package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/listingboost/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/listingboost/internal/catalog/service"
	"github.com/smallbiznis/listingboost/internal/clock"
	"github.com/smallbiznis/listingboost/internal/config"
	entitlementdomain "github.com/smallbiznis/listingboost/internal/entitlement/domain"
	entitlementrepo "github.com/smallbiznis/listingboost/internal/entitlement/repository"
	entitlementservice "github.com/smallbiznis/listingboost/internal/entitlement/service"
	listingdomain "github.com/smallbiznis/listingboost/internal/listing/domain"
	listingrepo "github.com/smallbiznis/listingboost/internal/listing/repository"
	listingservice "github.com/smallbiznis/listingboost/internal/listing/service"
	orderdomain "github.com/smallbiznis/listingboost/internal/order/domain"
	orderrepo "github.com/smallbiznis/listingboost/internal/order/repository"
	orderservice "github.com/smallbiznis/listingboost/internal/order/service"
	paymentdomain "github.com/smallbiznis/listingboost/internal/payment/domain"
	"github.com/smallbiznis/listingboost/internal/payment/paymenttest"
	"github.com/smallbiznis/listingboost/internal/seed"
	"github.com/smallbiznis/listingboost/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db           *gorm.DB
	clock        *clock.FakeClock
	catalog      catalogdomain.Service
	listings     listingdomain.Service
	listingRepo  listingdomain.Repository
	entitlements entitlementdomain.Service
	orderRepo    orderdomain.Repository
	orders       orderdomain.Service
	svc          paymentdomain.WebhookService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db := testdb.Open(t)
	clk := clock.NewFakeClock(testNow)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	log := zap.NewNop()
	policy := config.NewStaticEntitlementPolicy(config.DefaultEntitlementPolicy())

	_, err = seed.EnsureCatalog(ctx, db, node, catalogrepo.Provide())
	require.NoError(t, err)

	catalog := catalogservice.New(catalogservice.Params{DB: db, Log: log, Repo: catalogrepo.Provide()})
	entitlements := entitlementservice.New(entitlementservice.Params{
		DB: db, Log: log, Clock: clk, Policy: policy, Repo: entitlementrepo.Provide(),
	})
	listingRepo := listingrepo.Provide()
	listings := listingservice.New(listingservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Policy: policy,
		Repo: listingRepo, Entitlements: entitlements,
	})
	gateway := paymenttest.NewGateway()
	orderRepo := orderrepo.Provide()
	orders := orderservice.New(orderservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Cfg:  config.Config{FrontendURL: "http://fe.test"},
		Repo: orderRepo, Catalog: catalog, Listings: listings, Gateway: gateway,
	})
	svc := NewService(Params{
		DB: db, Log: log, Clock: clk, Gateway: gateway,
		Orders: orderRepo, Packages: catalogrepo.Provide(),
		Listings: listings, Entitlements: entitlements,
	})

	return fixture{
		db: db, clock: clk, catalog: catalog, listings: listings, listingRepo: listingRepo,
		entitlements: entitlements, orderRepo: orderRepo, orders: orders, svc: svc,
	}
}

func (f fixture) intent(t *testing.T, buyer snowflake.ID, key string, listingID *snowflake.ID) *orderdomain.Intent {
	t.Helper()
	pkg, err := f.catalog.GetByKey(context.Background(), key)
	require.NoError(t, err)
	intent, err := f.orders.CreatePaymentIntent(context.Background(), orderdomain.CreateIntentRequest{
		BuyerID: buyer, PackageID: pkg.ID, ListingID: listingID,
	})
	require.NoError(t, err)
	return intent
}

func (f fixture) openListing(t *testing.T, owner snowflake.ID) *listingdomain.Listing {
	t.Helper()
	res, err := f.listings.Open(context.Background(), listingdomain.OpenRequest{OwnerID: owner, Title: "Bicycle"})
	require.NoError(t, err)
	return res.Listing
}

func (f fixture) reload(t *testing.T, id snowflake.ID) *listingdomain.Listing {
	t.Helper()
	var l listingdomain.Listing
	require.NoError(t, f.db.Raw(`SELECT * FROM listings WHERE id = ?`, id).Scan(&l).Error)
	return &l
}

func (f fixture) state(t *testing.T, code int64) (*orderdomain.Payment, *orderdomain.Order) {
	t.Helper()
	ctx := context.Background()
	payment, err := f.orderRepo.FindPaymentByProviderOrderID(ctx, f.db, code)
	require.NoError(t, err)
	require.NotNil(t, payment)
	order, err := f.orderRepo.FindOrder(ctx, f.db, payment.OrderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	return payment, order
}

func TestPromotionCallbackAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing := f.openListing(t, 21)
	intent := f.intent(t, 21, "boost_6h", &listing.ID)

	paidAt := testNow.Add(2 * time.Minute)
	body := paymenttest.Callback(intent.OrderCode, paymentdomain.SuccessCode, paymenttest.ValidSignature, paidAt)

	res := f.svc.HandleCallback(ctx, body)
	assert.True(t, res.Success)
	assert.Equal(t, paymentdomain.OutcomeProcessed, res.Outcome)

	payment, order := f.state(t, intent.OrderCode)
	assert.Equal(t, orderdomain.PaymentStatusSuccess, payment.Status)
	require.NotNil(t, payment.PaidAt)
	assert.True(t, paidAt.Equal(*payment.PaidAt))
	require.NotNil(t, payment.TransactionID)
	assert.Equal(t, orderdomain.OrderStatusPaid, order.Status)

	got := f.reload(t, listing.ID)
	assert.Equal(t, listingdomain.PromotionTypeBoost, got.PromotionType)
	assert.Equal(t, 1, got.PriorityLevel)
	require.NotNil(t, got.PromotionExpireAt)
	assert.True(t, testNow.Add(6*time.Hour).Equal(*got.PromotionExpireAt))

	f.clock.Advance(time.Hour)
	again := f.svc.HandleCallback(ctx, body)
	assert.True(t, again.Success)
	assert.Equal(t, paymentdomain.OutcomeAlreadyProcessed, again.Outcome)
	assert.Equal(t, "Already processed", again.Message)

	after := f.reload(t, listing.ID)
	assert.True(t, got.PromotionExpireAt.Equal(*after.PromotionExpireAt))
}

func TestRenewCallbackExtendsDisplay(t *testing.T) {
	f := newFixture(t)
	listing := f.openListing(t, 22)
	require.NotNil(t, listing.ExpireAt)
	before := *listing.ExpireAt
	intent := f.intent(t, 22, "renew_15d", &listing.ID)

	res := f.svc.HandleCallback(context.Background(), paymenttest.Callback(intent.OrderCode, paymentdomain.SuccessCode, paymenttest.ValidSignature, testNow))
	require.True(t, res.Success)

	got := f.reload(t, listing.ID)
	require.NotNil(t, got.ExpireAt)
	assert.True(t, before.AddDate(0, 0, 15).Equal(*got.ExpireAt))
	assert.False(t, got.IsExpired)
}

func TestMembershipCallbackUpgradesBuyer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	intent := f.intent(t, 23, "premium_30d", nil)

	res := f.svc.HandleCallback(ctx, paymenttest.Callback(intent.OrderCode, paymentdomain.SuccessCode, paymenttest.ValidSignature, testNow))
	require.True(t, res.Success)

	snap, err := f.entitlements.Snapshot(ctx, 23)
	require.NoError(t, err)
	assert.Equal(t, entitlementdomain.QuotaTypeMembership, snap.ActiveQuotaType)
	assert.Equal(t, catalogdomain.MembershipTierPremium, snap.MembershipTier)
	require.NotNil(t, snap.MembershipExpiresAt)
	assert.True(t, testNow.AddDate(0, 0, 30).Equal(*snap.MembershipExpiresAt))
	assert.Equal(t, 40, snap.MembershipRemaining)
}

func TestInvalidSignatureChangesNothing(t *testing.T) {
	f := newFixture(t)
	listing := f.openListing(t, 24)
	intent := f.intent(t, 24, "priority_3d", &listing.ID)

	res := f.svc.HandleCallback(context.Background(), paymenttest.Callback(intent.OrderCode, paymentdomain.SuccessCode, "forged", testNow))
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid signature", res.Message)
	assert.Equal(t, paymentdomain.OutcomeInvalidSignature, res.Outcome)

	payment, order := f.state(t, intent.OrderCode)
	assert.Equal(t, orderdomain.PaymentStatusPending, payment.Status)
	assert.Equal(t, orderdomain.OrderStatusPending, order.Status)
	assert.Equal(t, listingdomain.PromotionTypeNone, f.reload(t, listing.ID).PromotionType)
}

func TestMalformedPayload(t *testing.T) {
	f := newFixture(t)
	res := f.svc.HandleCallback(context.Background(), []byte(`{"data":`))
	assert.False(t, res.Success)
	assert.Equal(t, paymentdomain.OutcomeInvalidPayload, res.Outcome)
}

func TestUnknownOrderCode(t *testing.T) {
	f := newFixture(t)
	res := f.svc.HandleCallback(context.Background(), paymenttest.Callback(424242, paymentdomain.SuccessCode, paymenttest.ValidSignature, testNow))
	assert.False(t, res.Success)
	assert.Equal(t, paymentdomain.OutcomeNotFound, res.Outcome)
	assert.Contains(t, res.Message, "424242")
}

func TestFailedCallbackThenSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	intent := f.intent(t, 25, "basic_30d", nil)

	failed := f.svc.HandleCallback(ctx, paymenttest.Callback(intent.OrderCode, "01", paymenttest.ValidSignature, testNow))
	assert.True(t, failed.Success)
	assert.Equal(t, paymentdomain.OutcomeFailedPayment, failed.Outcome)

	payment, order := f.state(t, intent.OrderCode)
	assert.Equal(t, orderdomain.PaymentStatusFailed, payment.Status)
	assert.Nil(t, payment.PaidAt)
	assert.Equal(t, orderdomain.OrderStatusFailed, order.Status)

	snap, err := f.entitlements.Snapshot(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, entitlementdomain.QuotaTypeFree, snap.ActiveQuotaType)

	ok := f.svc.HandleCallback(ctx, paymenttest.Callback(intent.OrderCode, paymentdomain.SuccessCode, paymenttest.ValidSignature, testNow))
	assert.Equal(t, paymentdomain.OutcomeProcessed, ok.Outcome)

	payment, order = f.state(t, intent.OrderCode)
	assert.Equal(t, orderdomain.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, orderdomain.OrderStatusPaid, order.Status)

	snap, err = f.entitlements.Snapshot(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.MembershipTierBasic, snap.MembershipTier)
}

func TestDeletedListingStillSettlesPayment(t *testing.T) {
	f := newFixture(t)
	listing := f.openListing(t, 26)
	intent := f.intent(t, 26, "boost_6h", &listing.ID)
	require.NoError(t, f.db.Exec(`UPDATE listings SET deleted_at = ? WHERE id = ?`, testNow, listing.ID).Error)

	res := f.svc.HandleCallback(context.Background(), paymenttest.Callback(intent.OrderCode, paymentdomain.SuccessCode, paymenttest.ValidSignature, testNow))
	assert.True(t, res.Success)
	assert.Equal(t, paymentdomain.OutcomeProcessed, res.Outcome)

	payment, order := f.state(t, intent.OrderCode)
	assert.Equal(t, orderdomain.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, orderdomain.OrderStatusPaid, order.Status)
	assert.Equal(t, listingdomain.PromotionTypeNone, f.reload(t, listing.ID).PromotionType)
}
