package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/listingboost/internal/catalog"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	"github.com/smallbiznis/listingboost/internal/config"
	"github.com/smallbiznis/listingboost/internal/entitlement"
	entitlementdomain "github.com/smallbiznis/listingboost/internal/entitlement/domain"
	"github.com/smallbiznis/listingboost/internal/listing"
	listingdomain "github.com/smallbiznis/listingboost/internal/listing/domain"
	"github.com/smallbiznis/listingboost/internal/observability"
	obsmiddleware "github.com/smallbiznis/listingboost/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/listingboost/internal/observability/metrics"
	obstracing "github.com/smallbiznis/listingboost/internal/observability/tracing"
	"github.com/smallbiznis/listingboost/internal/order"
	orderdomain "github.com/smallbiznis/listingboost/internal/order/domain"
	"github.com/smallbiznis/listingboost/internal/payment"
	paymentdomain "github.com/smallbiznis/listingboost/internal/payment/domain"
	"github.com/smallbiznis/listingboost/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	catalog.Module,
	entitlement.Module,
	listing.Module,
	order.Module,
	payment.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	catalogSvc     catalogdomain.Service
	entitlementSvc entitlementdomain.Service
	listingSvc     listingdomain.Service
	orderSvc       orderdomain.Service
	webhookSvc     paymentdomain.WebhookService
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	CatalogSvc     catalogdomain.Service
	EntitlementSvc entitlementdomain.Service
	ListingSvc     listingdomain.Service
	OrderSvc       orderdomain.Service
	WebhookSvc     paymentdomain.WebhookService
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		catalogSvc:     p.CatalogSvc,
		entitlementSvc: p.EntitlementSvc,
		listingSvc:     p.ListingSvc,
		orderSvc:       p.OrderSvc,
		webhookSvc:     p.WebhookSvc,
	}
	svc.registerAPIRoutes()
	svc.registerFallback()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Packages --------
	api.GET("/packages", s.ListPackages)
	api.GET("/packages/:id", s.GetPackage)

	// -------- Payments --------
	api.POST("/payments/intents", s.UserRequired(), s.CreatePaymentIntent)
	api.POST("/payments/webhook", s.HandlePaymentWebhook)

	// -------- Listings --------
	api.POST("/listings", s.UserRequired(), s.CreateListing)
	api.GET("/listings/:id", s.UserRequired(), s.GetListing)

	// -------- Entitlements --------
	api.GET("/entitlements/me", s.UserRequired(), s.GetMyEntitlement)
	api.POST("/entitlements/consume", s.UserRequired(), s.ConsumeEntitlement)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
