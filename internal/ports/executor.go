package ports

import (
	"context"

	"github.com/baseliq/liquidator/internal/domain"
)

// LiquidationExecutor builds, signs, submits, and confirms the protocol's
// liquidation call (§4.D Transaction construction).
type LiquidationExecutor interface {
	Execute(ctx context.Context, params domain.LiquidationParams) (domain.LiquidationResult, error)
	CurrentGasPrice(ctx context.Context) (uint64, error)
}

// Notifier presents status reports and alerts to an external sink; the core
// never blocks on delivery (§4.E Alerts).
type Notifier interface {
	NotifyStatus(ctx context.Context, report domain.StatusReport) error
	NotifyAlert(ctx context.Context, alert domain.BreakerAlert) error
}
