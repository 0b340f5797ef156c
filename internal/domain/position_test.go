package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestComputeAtRisk_BelowThreshold(t *testing.T) {
	threshold := big.NewInt(0).Mul(WAD, big.NewInt(11))
	threshold.Div(threshold, big.NewInt(10)) // 1.1

	hf := big.NewInt(0).Mul(WAD, big.NewInt(105))
	hf.Div(hf, big.NewInt(100)) // 1.05

	assert.True(t, ComputeAtRisk(hf, threshold))
}

func TestComputeAtRisk_AboveThreshold(t *testing.T) {
	threshold := big.NewInt(0).Mul(WAD, big.NewInt(11))
	threshold.Div(threshold, big.NewInt(10))

	hf := big.NewInt(0).Mul(WAD, big.NewInt(2))

	assert.False(t, ComputeAtRisk(hf, threshold))
}

func TestComputeAtRisk_ZeroHealthFactorNotAtRisk(t *testing.T) {
	// No debt at all reports HF=0 on some protocol reads; a position with
	// zero debt can never be liquidated, so it isn't "at risk".
	threshold := big.NewInt(0).Mul(WAD, big.NewInt(11))
	threshold.Div(threshold, big.NewInt(10))

	assert.False(t, ComputeAtRisk(big.NewInt(0), threshold))
}

func TestPosition_IsLiquidatable(t *testing.T) {
	p := Position{
		HealthFactor:  big.NewInt(0).Sub(WAD, big.NewInt(1)),
		TotalDebtBase: big.NewInt(1_000_000),
	}
	assert.True(t, p.IsLiquidatable())

	p2 := Position{HealthFactor: WAD, TotalDebtBase: big.NewInt(1_000_000)}
	assert.False(t, p2.IsLiquidatable())
}

func TestPosition_IsLiquidatable_ZeroDebtNeverLiquidatable(t *testing.T) {
	p := Position{
		HealthFactor:  big.NewInt(0).Sub(WAD, big.NewInt(1)),
		TotalDebtBase: big.NewInt(0),
	}
	assert.False(t, p.IsLiquidatable())
}

func TestRawLog_UserAddress_SupplyUsesTopic1(t *testing.T) {
	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	lg := RawLog{
		Kind: EventSupply,
		Topics: []common.Hash{
			{}, // event signature placeholder
			common.BytesToHash(user.Bytes()),
			common.BytesToHash(common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes()),
		},
	}
	addr, ok := lg.UserAddress()
	assert.True(t, ok)
	assert.Equal(t, user, addr)
}

func TestRawLog_UserAddress_BorrowUsesTopic1(t *testing.T) {
	user := common.HexToAddress("0x5555555555555555555555555555555555555555")
	lg := RawLog{
		Kind: EventBorrow,
		Topics: []common.Hash{
			{},
			common.BytesToHash(user.Bytes()),
		},
	}
	addr, ok := lg.UserAddress()
	assert.True(t, ok)
	assert.Equal(t, user, addr)
}

func TestRawLog_UserAddress_RepayUsesUserTopic(t *testing.T) {
	user := common.HexToAddress("0x3333333333333333333333333333333333333333")
	lg := RawLog{
		Kind: EventRepay,
		Topics: []common.Hash{
			{},
			common.BytesToHash(common.HexToAddress("0x4444444444444444444444444444444444444444").Bytes()),
			common.BytesToHash(user.Bytes()),
		},
	}
	addr, ok := lg.UserAddress()
	assert.True(t, ok)
	assert.Equal(t, user, addr)
}

func TestRawLog_UserAddress_ZeroAddressDiscarded(t *testing.T) {
	lg := RawLog{
		Kind: EventSupply,
		Topics: []common.Hash{
			{},
			common.BytesToHash(common.Address{}.Bytes()),
		},
	}
	_, ok := lg.UserAddress()
	assert.False(t, ok)
}

func TestRawLog_UserAddress_ReserveDataUpdatedCarriesNoUser(t *testing.T) {
	lg := RawLog{Kind: EventReserveDataUpdated, Topics: []common.Hash{{}, {}, {}}}
	_, ok := lg.UserAddress()
	assert.False(t, ok)
}
