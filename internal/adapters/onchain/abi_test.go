package onchain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolABI_GetUserAccountData_PackUnpackRoundTrip(t *testing.T) {
	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	packed, err := poolABI.Pack("getUserAccountData", user)
	require.NoError(t, err)
	assert.Len(t, packed, 4+32) // 4-byte selector + one address word

	returned, err := poolABI.Methods["getUserAccountData"].Outputs.Pack(
		big.NewInt(1000), big.NewInt(500), big.NewInt(400), big.NewInt(8000), big.NewInt(7500), big.NewInt(1_100_000_000_000_000_000),
	)
	require.NoError(t, err)

	vals, err := poolABI.Unpack("getUserAccountData", returned)
	require.NoError(t, err)
	require.Len(t, vals, 6)
	assert.Equal(t, big.NewInt(1000), vals[0])
	assert.Equal(t, big.NewInt(1_100_000_000_000_000_000), vals[5])
}

func TestPoolABI_GetUserConfiguration_Unpack(t *testing.T) {
	bitmap := big.NewInt(0b1001)
	returned, err := poolABI.Methods["getUserConfiguration"].Outputs.Pack(bitmap)
	require.NoError(t, err)

	vals, err := poolABI.Unpack("getUserConfiguration", returned)
	require.NoError(t, err)
	assert.Equal(t, bitmap, vals[0])
}

func TestPoolABI_GetReservesList_Unpack(t *testing.T) {
	addrs := []common.Address{
		common.HexToAddress("0x4200000000000000000000000000000000000006"),
		common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
	}
	returned, err := poolABI.Methods["getReservesList"].Outputs.Pack(addrs)
	require.NoError(t, err)

	vals, err := poolABI.Unpack("getReservesList", returned)
	require.NoError(t, err)
	assert.Equal(t, addrs, vals[0].([]common.Address))
}

func TestExecutorABI_Liquidate_Pack(t *testing.T) {
	packed, err := executorABI.Pack("liquidate",
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
		big.NewInt(1_000_000),
		false,
		uint16(0),
		uint16(1),
	)
	require.NoError(t, err)
	assert.NotEmpty(t, packed)
}

func TestOracleABI_LatestRoundData_Unpack(t *testing.T) {
	returned, err := oracleABI.Methods["latestRoundData"].Outputs.Pack(
		big.NewInt(1), big.NewInt(350_000_000_00), big.NewInt(100), big.NewInt(100), big.NewInt(1),
	)
	require.NoError(t, err)

	vals, err := oracleABI.Unpack("latestRoundData", returned)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(350_000_000_00), vals[1])
}

func TestEventSignatures_AreDistinct(t *testing.T) {
	seen := make(map[common.Hash]string)
	for _, name := range []string{"Supply", "Borrow", "Repay", "Withdraw", "ReserveDataUpdated", "LiquidationCall"} {
		id := poolABI.Events[name].ID
		if existing, ok := seen[id]; ok {
			t.Fatalf("event %s collides with %s on signature hash", name, existing)
		}
		seen[id] = name
	}
	assert.Len(t, seen, 6)
}
