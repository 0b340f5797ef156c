package onchain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimHexPrefix(t *testing.T) {
	assert.Equal(t, "abc123", trimHexPrefix("0xabc123"))
	assert.Equal(t, "abc123", trimHexPrefix("0Xabc123"))
	assert.Equal(t, "abc123", trimHexPrefix("abc123"))
}

func TestApplyMultiplier(t *testing.T) {
	price := big.NewInt(1_000_000_000) // 1 gwei
	assert.Equal(t, big.NewInt(2_000_000_000), applyMultiplier(price, 2.0))
	assert.Equal(t, big.NewInt(1_500_000_000), applyMultiplier(price, 1.5))
}

// A deterministic test key (never used on any real network) so
// NewLiquidationExecutor's key-parsing and address-derivation path is
// exercised without touching an RPC endpoint.
const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewLiquidationExecutor_DerivesAddressFromKey(t *testing.T) {
	exec, err := NewLiquidationExecutor(nil, testPrivateKeyHex, [20]byte{0x99}, big.NewInt(8453), 0)
	require.NoError(t, err)
	assert.NotEqual(t, [20]byte{}, [20]byte(exec.address))
	assert.Equal(t, 2.0, exec.gasMultiplier) // zero input falls back to the default
}

func TestNewLiquidationExecutor_AcceptsHexPrefixedKey(t *testing.T) {
	exec, err := NewLiquidationExecutor(nil, "0x"+testPrivateKeyHex, [20]byte{0x99}, big.NewInt(8453), 3.0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, exec.gasMultiplier)
}

func TestNewLiquidationExecutor_RejectsInvalidKey(t *testing.T) {
	_, err := NewLiquidationExecutor(nil, "not-a-hex-key", [20]byte{0x99}, big.NewInt(8453), 2.0)
	assert.Error(t, err)
}
