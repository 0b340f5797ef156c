package ports

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/baseliq/liquidator/internal/domain"
)

// PositionStore is the durable mirror of the in-memory position map (§4.B,
// §6). Upserts are idempotent by address.
type PositionStore interface {
	UpsertPosition(ctx context.Context, p domain.Position) error
	GetPosition(ctx context.Context, addr common.Address) (domain.Position, bool, error)
	AllAddresses(ctx context.Context) ([]common.Address, error)
	// DeletePositions archives the given addresses out of the durable store;
	// the caller only evicts them from hot memory after this succeeds.
	DeletePositions(ctx context.Context, addrs []common.Address) error

	RecordLiquidationEvent(ctx context.Context, evt domain.LiquidationResult, opp domain.Opportunity) error
	RecordMonitoringEvent(ctx context.Context, kind string, addr *common.Address, detail string) error
	RecordPriceFeed(ctx context.Context, asset common.Address, price uint64, at time.Time) error

	Close() error
}
