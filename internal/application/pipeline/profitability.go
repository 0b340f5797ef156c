package pipeline

import (
	"math/big"

	"github.com/baseliq/liquidator/internal/domain"
)

const (
	closeFactorBps      = 5_000 // 50%, Aave's standard close factor
	flashLoanFeeBps      = 5     // 0.05%
	crossAssetSlippageBps = 100   // 1%, applied only when collateral != debt asset
	priorityFeeFraction  = 0.2   // priority fee = 0.2 * base fee
	dustFloorWei         = 1_000_000_000_000_000 // 10^15, below this a position isn't worth pursuing

	bpsScale = 10_000
)

// DustFloor is the minimum debt-to-cover, in the same base units as the
// position's debt, below which a position is not worth liquidating.
var DustFloor = big.NewInt(dustFloorWei)

// ProfitabilityInputs carries every external reading the profitability
// model needs, already converted to *big.Int base units.
type ProfitabilityInputs struct {
	TotalDebtBase *big.Int // base-currency units (8 decimals), the position's total outstanding debt across all reserves
	GasLimit      uint64
	BaseFeeWei    *big.Int
	MinProfitWei  *big.Int // threshold from config, base-currency units comparable scale
}

// Evaluate computes the exact bps-scaled profitability of liquidating a
// position through the given collateral/debt pair, following §4.D:
//
//	debt_to_cover          = min(total_debt, total_debt * close_factor)
//	collateral_received    = debt_to_cover * (1 + bonus_bps/10000)
//	bonus                  = collateral_received - debt_to_cover
//	flash_loan_fee          = debt_to_cover * flash_loan_fee_bps / 10000
//	gas_cost                = gas_limit * (base_fee + priority_fee), priority_fee = 0.2 * base_fee
//	slippage                = collateral_received * 1% if collateral != debt asset, else 0
//	net_profit              = max(0, bonus - flash_loan_fee - gas_cost - slippage)
func Evaluate(pair CollateralPair, in ProfitabilityInputs) domain.Opportunity {
	debtToCover := applyBps(in.TotalDebtBase, closeFactorBps)
	if debtToCover.Cmp(in.TotalDebtBase) > 0 {
		debtToCover = new(big.Int).Set(in.TotalDebtBase)
	}

	bonusMultiplierBps := bpsScale + int64(pair.Collateral.LiquidationBonus)
	collateralReceived := applyBps(debtToCover, bonusMultiplierBps)
	bonus := new(big.Int).Sub(collateralReceived, debtToCover)

	flashLoanFee := applyBps(debtToCover, flashLoanFeeBps)

	priorityFee := new(big.Int).Div(
		new(big.Int).Mul(in.BaseFeeWei, big.NewInt(int64(priorityFeeFraction*1000))),
		big.NewInt(1000),
	)
	gasPrice := new(big.Int).Add(in.BaseFeeWei, priorityFee)
	gasCost := new(big.Int).Mul(big.NewInt(int64(in.GasLimit)), gasPrice)

	slippage := big.NewInt(0)
	if pair.Collateral.Address != pair.Debt.Address {
		slippage = applyBps(collateralReceived, crossAssetSlippageBps)
	}

	netProfit := new(big.Int).Sub(bonus, flashLoanFee)
	netProfit.Sub(netProfit, gasCost)
	netProfit.Sub(netProfit, slippage)
	if netProfit.Sign() < 0 {
		netProfit = big.NewInt(0)
	}

	threshold := in.MinProfitWei
	if threshold == nil {
		threshold = big.NewInt(0)
	}

	return domain.Opportunity{
		CollateralAsset:    pair.Collateral.Address,
		DebtAsset:          pair.Debt.Address,
		DebtToCover:        debtToCover,
		CollateralReceived: collateralReceived,
		Bonus:              bonus,
		FlashLoanFee:       flashLoanFee,
		GasCost:            gasCost,
		Slippage:           slippage,
		NetProfit:          netProfit,
		MeetsThreshold:     netProfit.Cmp(threshold) >= 0,
	}
}

// applyBps computes value * bps / 10000.
func applyBps(value *big.Int, bps int64) *big.Int {
	product := new(big.Int).Mul(value, big.NewInt(bps))
	return product.Div(product, big.NewInt(bpsScale))
}

// IsDust reports whether a debt-to-cover amount is below the floor worth
// pursuing.
func IsDust(debtToCover *big.Int) bool {
	return debtToCover.Cmp(DustFloor) < 0
}
