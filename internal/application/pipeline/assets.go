package pipeline

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/baseliq/liquidator/internal/domain"
)

// hardcodedBaseAssets is the fallback reserve configuration used when
// asset loading is set to hardcoded, or as the final fallback of
// dynamic_with_fallback when a protocol read fails. Addresses, decimals,
// reserve indices and liquidation bonuses are Base mainnet constants.
var hardcodedBaseAssets = []domain.AssetConfig{
	{
		Address:          common.HexToAddress("0x4200000000000000000000000000000000000006"),
		Symbol:           "WETH",
		Decimals:         18,
		AssetID:          0,
		LiquidationBonus: 500,
		IsCollateral:     true,
		IsBorrowable:     true,
	},
	{
		Address:          common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		Symbol:           "USDC",
		Decimals:         6,
		AssetID:          1,
		LiquidationBonus: 450,
		IsCollateral:     true,
		IsBorrowable:     true,
	},
	{
		Address:          common.HexToAddress("0xcbb7c0000ab88b473b1f5afd9ef808440eed33bf"),
		Symbol:           "cbBTC",
		Decimals:         8,
		AssetID:          2,
		LiquidationBonus: 750,
		IsCollateral:     true,
		IsBorrowable:     true,
	},
	{
		Address:          common.HexToAddress("0xd9aAEc86B65D86f6A7B5B1b0c42FFA531710b6CA"),
		Symbol:           "USDbC",
		Decimals:         6,
		AssetID:          3,
		LiquidationBonus: 450,
		IsCollateral:     true,
		IsBorrowable:     true,
	},
}

// HardcodedBaseAssets returns a copy of the Base mainnet fallback reserve
// list, safe for the caller to mutate.
func HardcodedBaseAssets() []domain.AssetConfig {
	out := make([]domain.AssetConfig, len(hardcodedBaseAssets))
	copy(out, hardcodedBaseAssets)
	return out
}

var stablecoinSymbols = map[string]bool{
	"USDC":  true,
	"USDbC": true,
	"USDT":  true,
	"DAI":   true,
	"BUSD":  true,
	"FRAX":  true,
}

var majorCollateralSymbols = map[string]bool{
	"ETH":   true,
	"WETH":  true,
	"cbETH": true,
	"cbBTC": true,
	"stETH": true,
	"rETH":  true,
}

func isStablecoin(symbol string) bool      { return stablecoinSymbols[symbol] }
func isMajorCollateral(symbol string) bool { return majorCollateralSymbols[symbol] }

// AssetRegistry looks up reserve configuration by address; built once at
// startup by the asset loader and shared read-only thereafter.
type AssetRegistry struct {
	byAddress map[common.Address]domain.AssetConfig
}

// NewAssetRegistry indexes a reserve list by address.
func NewAssetRegistry(assets []domain.AssetConfig) *AssetRegistry {
	reg := &AssetRegistry{byAddress: make(map[common.Address]domain.AssetConfig, len(assets))}
	for _, a := range assets {
		reg.byAddress[a.Address] = a
	}
	return reg
}

// Lookup returns the configuration for an asset address.
func (r *AssetRegistry) Lookup(addr common.Address) (domain.AssetConfig, bool) {
	cfg, ok := r.byAddress[addr]
	return cfg, ok
}

// Symbols returns the configured symbol for every tracked asset, for
// pretty-printing logs and status output in place of raw addresses.
func (r *AssetRegistry) Symbols() []string {
	out := make([]string, 0, len(r.byAddress))
	for _, cfg := range r.byAddress {
		out = append(out, cfg.Symbol)
	}
	return out
}

// CollateralPair is one candidate (collateral reserve, debt reserve) scored
// by FindBestLiquidationPair.
type CollateralPair struct {
	Collateral domain.AssetConfig
	Debt       domain.AssetConfig
	Score      int
}

// FindBestLiquidationPair scores every (collateral, debt) combination drawn
// from the user's held collateral reserves and borrowed debt reserves, and
// returns the highest-scoring pair. Pairs where the collateral reserve isn't
// usable as collateral or the debt reserve isn't borrowable are rejected
// outright. Ties keep the first pair encountered (strict > comparison), so
// callers should pass reserves in a stable order.
//
// score = liquidation_bonus_bps
//       + 200 if collateral == debt (same-asset liquidation, no swap slippage)
//       + 50  if collateral has 18 decimals and debt has >= 6 decimals
//       + 30  if the debt asset is a stablecoin
//       + 20  if the collateral asset is a major collateral symbol
func FindBestLiquidationPair(collaterals, debts []domain.AssetConfig) (CollateralPair, bool) {
	var best CollateralPair
	found := false

	for _, coll := range collaterals {
		if !coll.IsCollateral {
			continue
		}
		for _, debt := range debts {
			if !debt.IsBorrowable {
				continue
			}
			score := int(coll.LiquidationBonus)

			if coll.Address == debt.Address {
				score += 200
			}
			if coll.Decimals == 18 && debt.Decimals >= 6 {
				score += 50
			}
			if isStablecoin(debt.Symbol) {
				score += 30
			}
			if isMajorCollateral(coll.Symbol) {
				score += 20
			}

			if !found || score > best.Score {
				best = CollateralPair{Collateral: coll, Debt: debt, Score: score}
				found = true
			}
		}
	}

	return best, found
}
