package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/baseliq/liquidator/internal/domain"
)

func TestHardcodedBaseAssets_ContainsKnownReserves(t *testing.T) {
	assets := HardcodedBaseAssets()
	assert.Len(t, assets, 4)

	reg := NewAssetRegistry(assets)
	weth, ok := reg.Lookup(assets[0].Address)
	assert.True(t, ok)
	assert.Equal(t, "WETH", weth.Symbol)
	assert.EqualValues(t, 18, weth.Decimals)
	assert.EqualValues(t, 500, weth.LiquidationBonus)
}

func TestHardcodedBaseAssets_ReturnsIndependentCopy(t *testing.T) {
	a := HardcodedBaseAssets()
	a[0].Symbol = "MUTATED"
	b := HardcodedBaseAssets()
	assert.Equal(t, "WETH", b[0].Symbol, "mutating one copy must not affect the package-level list")
}

func TestFindBestLiquidationPair_SameAssetBeatsCrossAsset(t *testing.T) {
	weth := domain.AssetConfig{Symbol: "WETH", Decimals: 18, LiquidationBonus: 500, Address: [20]byte{1}}
	usdc := domain.AssetConfig{Symbol: "USDC", Decimals: 6, LiquidationBonus: 450, Address: [20]byte{2}}

	weth.IsCollateral, weth.IsBorrowable = true, true
	usdc.IsCollateral, usdc.IsBorrowable = true, true

	// same-asset (WETH/WETH): 500 + 200 (same-asset) + 50 (decimals, 18/18) + 20 (major collateral) = 770
	// cross-asset (WETH/USDC): 500 + 50 (decimals) + 30 (stablecoin debt) + 20 (major collateral) = 600
	pair, ok := FindBestLiquidationPair([]domain.AssetConfig{weth, usdc}, []domain.AssetConfig{weth, usdc})
	assert.True(t, ok)
	assert.Equal(t, weth.Address, pair.Collateral.Address)
	assert.Equal(t, weth.Address, pair.Debt.Address)
	assert.Equal(t, 770, pair.Score)
}

func TestFindBestLiquidationPair_SameAssetDebtOutscoresStablecoinDebt(t *testing.T) {
	cbbtc := domain.AssetConfig{Symbol: "cbBTC", Decimals: 8, LiquidationBonus: 750, Address: [20]byte{3}, IsCollateral: true, IsBorrowable: true}
	usdc := domain.AssetConfig{Symbol: "USDC", Decimals: 6, LiquidationBonus: 450, Address: [20]byte{2}, IsCollateral: true, IsBorrowable: true}

	// collateral cbBTC, debt cbBTC: 750 + 200 (same asset) + 20 (major collateral) = 970
	// collateral cbBTC, debt USDC: 750 + 30 (stablecoin debt) + 20 (major collateral) = 800 (cbBTC isn't 18-decimal, no decimals bonus)
	pair, ok := FindBestLiquidationPair([]domain.AssetConfig{cbbtc}, []domain.AssetConfig{cbbtc, usdc})
	assert.True(t, ok)
	assert.Equal(t, cbbtc.Address, pair.Debt.Address)
	assert.Equal(t, 970, pair.Score)
}

func TestFindBestLiquidationPair_EmptyInputs(t *testing.T) {
	_, ok := FindBestLiquidationPair(nil, nil)
	assert.False(t, ok)
}

func TestIsStablecoinAndMajorCollateral(t *testing.T) {
	assert.True(t, isStablecoin("USDC"))
	assert.True(t, isStablecoin("USDbC"))
	assert.False(t, isStablecoin("WETH"))

	assert.True(t, isMajorCollateral("WETH"))
	assert.True(t, isMajorCollateral("cbBTC"))
	assert.False(t, isMajorCollateral("USDC"))
}
