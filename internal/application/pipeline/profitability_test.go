package pipeline

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/baseliq/liquidator/internal/domain"
)

func TestEvaluate_SameAssetPair_ExactArithmetic(t *testing.T) {
	weth := domain.AssetConfig{Symbol: "WETH", Decimals: 18, LiquidationBonus: 500, Address: [20]byte{1}}
	pair := CollateralPair{Collateral: weth, Debt: weth}

	opp := Evaluate(pair, ProfitabilityInputs{
		TotalDebtBase: big.NewInt(100_000_000_000_000), // 1e14
		GasLimit:      800_000,
		BaseFeeWei:    big.NewInt(1000),
		MinProfitWei:  big.NewInt(0),
	})

	assert.Equal(t, "50000000000000", opp.DebtToCover.String())         // 50% close factor
	assert.Equal(t, "52500000000000", opp.CollateralReceived.String()) // +5% bonus
	assert.Equal(t, "2500000000000", opp.Bonus.String())
	assert.Equal(t, "25000000000", opp.FlashLoanFee.String()) // 0.05% of debt_to_cover
	assert.Equal(t, "960000000", opp.GasCost.String())         // 800000 * (1000 + 200)
	assert.Equal(t, "0", opp.Slippage.String())                // same-asset, no swap
	assert.Equal(t, "2474040000000", opp.NetProfit.String())
	assert.True(t, opp.MeetsThreshold)
}

func TestEvaluate_CrossAssetPair_AppliesSlippage(t *testing.T) {
	weth := domain.AssetConfig{Symbol: "WETH", Decimals: 18, LiquidationBonus: 500, Address: [20]byte{1}}
	usdc := domain.AssetConfig{Symbol: "USDC", Decimals: 6, LiquidationBonus: 450, Address: [20]byte{2}}
	pair := CollateralPair{Collateral: weth, Debt: usdc}

	opp := Evaluate(pair, ProfitabilityInputs{
		TotalDebtBase: big.NewInt(100_000_000_000_000),
		GasLimit:      800_000,
		BaseFeeWei:    big.NewInt(1000),
		MinProfitWei:  big.NewInt(0),
	})

	assert.Equal(t, "525000000000", opp.Slippage.String()) // 1% of collateral_received
	assert.Equal(t, "1949040000000", opp.NetProfit.String())
	assert.True(t, opp.MeetsThreshold)
}

func TestEvaluate_SmallDebtAppliesCloseFactorExactly(t *testing.T) {
	weth := domain.AssetConfig{Symbol: "WETH", Decimals: 18, LiquidationBonus: 500, Address: [20]byte{1}}
	pair := CollateralPair{Collateral: weth, Debt: weth}

	opp := Evaluate(pair, ProfitabilityInputs{
		TotalDebtBase: big.NewInt(100),
		GasLimit:      800_000,
		BaseFeeWei:    big.NewInt(1000),
		MinProfitWei:  big.NewInt(0),
	})

	assert.Equal(t, "50", opp.DebtToCover.String()) // 50% close factor
}

func TestEvaluate_BelowThreshold_DoesNotMeetGate(t *testing.T) {
	weth := domain.AssetConfig{Symbol: "WETH", Decimals: 18, LiquidationBonus: 500, Address: [20]byte{1}}
	pair := CollateralPair{Collateral: weth, Debt: weth}

	opp := Evaluate(pair, ProfitabilityInputs{
		TotalDebtBase: big.NewInt(100_000_000_000_000),
		GasLimit:      800_000,
		BaseFeeWei:    big.NewInt(1000),
		MinProfitWei:  big.NewInt(10_000_000_000_000), // far above the realized profit
	})

	assert.False(t, opp.MeetsThreshold)
}

func TestIsDust(t *testing.T) {
	assert.True(t, IsDust(big.NewInt(999_999_999_999_999)))  // just under 10^15
	assert.False(t, IsDust(big.NewInt(1_000_000_000_000_000))) // exactly at the floor
}
