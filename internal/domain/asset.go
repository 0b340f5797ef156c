package domain

import "github.com/ethereum/go-ethereum/common"

// AssetConfig is the immutable, per-reserve configuration used by the
// profitability model and the pair-selection scorer. Built once at startup
// from protocol reads, a config file, or the hard-coded Base mainnet
// fallback; never mutated afterward.
type AssetConfig struct {
	Address          common.Address
	Symbol           string
	Decimals         uint8
	AssetID          uint16 // protocol-assigned reserve index, used by the liquidation call
	LiquidationBonus uint32 // basis points over par
	IsCollateral     bool
	IsBorrowable     bool
}

// AssetLoadingMethod selects how asset configuration is populated at startup.
type AssetLoadingMethod string

const (
	AssetLoadingFullyDynamic       AssetLoadingMethod = "fully_dynamic"
	AssetLoadingFromFile           AssetLoadingMethod = "from_file"
	AssetLoadingHardcoded          AssetLoadingMethod = "hardcoded"
	AssetLoadingDynamicWithFallback AssetLoadingMethod = "dynamic_with_fallback"
)

// PriceFeed tracks the last observed oracle reading for one asset.
type PriceFeed struct {
	AssetAddress        common.Address
	FeedAddress         common.Address
	AssetSymbol         string
	LastPrice           uint64 // unscaled, oracle-native decimals
	LastUpdated         int64  // unix seconds
	PriceChangeThreshold float64
}
