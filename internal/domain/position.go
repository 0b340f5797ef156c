// Package domain holds the plain data types shared by every layer of the
// liquidation agent: positions, asset configuration, price feeds, derived
// opportunities, chain events, and the circuit breaker state machine.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Position is a borrower's current state on the money market, keyed by
// address. All monetary fields are base-currency scaled integers (8-decimal
// USD on Aave v3); HealthFactor is an 18-decimal fixed-point ratio.
type Position struct {
	Address                   common.Address
	TotalCollateralBase       *big.Int
	TotalDebtBase             *big.Int
	AvailableBorrowsBase      *big.Int
	CurrentLiquidationThresh  *big.Int
	LTV                       *big.Int
	HealthFactor              *big.Int
	LastUpdated               time.Time
	IsAtRisk                  bool
}

// WAD is the 18-decimal fixed-point scale used for HealthFactor.
var WAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// IsLiquidatable reports whether the position may be liquidated right now:
// health factor strictly below 1.0 and outstanding debt.
func (p Position) IsLiquidatable() bool {
	if p.TotalDebtBase == nil || p.TotalDebtBase.Sign() <= 0 {
		return false
	}
	if p.HealthFactor == nil {
		return false
	}
	return p.HealthFactor.Cmp(WAD) < 0
}

// ComputeAtRisk derives the at-risk flag for a given threshold (18-decimal
// fixed point, e.g. 1.1 * WAD). A position is at risk iff 0 < HF < threshold.
func ComputeAtRisk(hf *big.Int, threshold *big.Int) bool {
	if hf == nil || hf.Sign() <= 0 {
		return false
	}
	return hf.Cmp(threshold) < 0
}

// NewZeroDebtPosition returns the canonical representation of a position with
// no debt: health factor is defined to be zero, never left uninitialized.
func NewZeroDebtPosition(addr common.Address) Position {
	return Position{
		Address:                  addr,
		TotalCollateralBase:      big.NewInt(0),
		TotalDebtBase:            big.NewInt(0),
		AvailableBorrowsBase:     big.NewInt(0),
		CurrentLiquidationThresh: big.NewInt(0),
		LTV:                      big.NewInt(0),
		HealthFactor:             big.NewInt(0),
		LastUpdated:              time.Now(),
		IsAtRisk:                 false,
	}
}

// IsSafeForArchival reports whether the position has zero debt and a health
// factor at or above the configured safety threshold, the precondition for
// the archival cycle to consider evicting it from hot memory.
func (p Position) IsSafeForArchival(safeThreshold *big.Int) bool {
	if p.TotalDebtBase != nil && p.TotalDebtBase.Sign() > 0 {
		return false
	}
	if p.HealthFactor == nil {
		return true
	}
	return p.HealthFactor.Cmp(safeThreshold) >= 0
}
