package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Opportunity is derived on demand from a liquidatable Position and a chosen
// collateral/debt pair; it is never stored, only produced and consumed by the
// priority channel.
type Opportunity struct {
	User               common.Address
	CollateralAsset    common.Address
	DebtAsset          common.Address
	DebtToCover        *big.Int
	CollateralReceived *big.Int
	Bonus              *big.Int
	FlashLoanFee       *big.Int
	GasCost            *big.Int
	Slippage           *big.Int
	NetProfit          *big.Int
	MeetsThreshold     bool
}

// LiquidationParams is the exact argument vector the protocol's liquidation
// call expects.
type LiquidationParams struct {
	User              common.Address
	CollateralAsset   common.Address
	CollateralSymbol  string // resolved from the asset registry, for logging only
	DebtAsset         common.Address
	DebtSymbol        string // resolved from the asset registry, for logging only
	DebtToCover       *big.Int
	CollateralAssetID uint16
	DebtAssetID       uint16
	ReceiveAToken     bool
}

// LiquidationResult is what the executor reports back after submitting and
// waiting for a liquidation transaction.
type LiquidationResult struct {
	TxHash    common.Hash
	Succeeded bool
	GasUsed   uint64
	Err       error
}
