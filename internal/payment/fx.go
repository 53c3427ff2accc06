package payment

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/listingboost/internal/config"
	"github.com/smallbiznis/listingboost/internal/payment/adapters/payos"
	paymentdomain "github.com/smallbiznis/listingboost/internal/payment/domain"
	"github.com/smallbiznis/listingboost/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(NewGateway),
	fx.Provide(webhook.NewService),
)

// NewGateway builds the configured checkout provider.
func NewGateway(cfg config.Config, log *zap.Logger) (paymentdomain.Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Gateway.Provider)) {
	case "", "payos":
		return payos.New(cfg.Gateway, log)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", paymentdomain.ErrInvalidConfig, cfg.Gateway.Provider)
	}
}
