package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccountData is the parsed six-word response from the protocol's aggregate
// account-data view call (selector 0xbf92857c).
type AccountData struct {
	TotalCollateralBase      *big.Int
	TotalDebtBase            *big.Int
	AvailableBorrowsBase     *big.Int
	CurrentLiquidationThresh *big.Int
	LTV                      *big.Int
	HealthFactor             *big.Int
}

// PoolClient is the read surface of the Aave Pool contract the Health
// Evaluator and Discovery components depend on.
type PoolClient interface {
	// GetUserAccountData calls the aggregate-account-data view function.
	GetUserAccountData(ctx context.Context, user common.Address) (AccountData, error)

	// GetUserConfiguration returns the per-user bitfield: bit 2i marks asset i
	// as collateral, bit 2i+1 marks asset i as borrowed.
	GetUserConfiguration(ctx context.Context, user common.Address) (*big.Int, error)

	// GetReservesList returns the ordered array of reserve addresses; index
	// into this array is the asset id used by GetUserConfiguration and by the
	// liquidation call's asset-id arguments.
	GetReservesList(ctx context.Context) ([]common.Address, error)
}
