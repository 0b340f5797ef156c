package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/baseliq/liquidator/internal/domain"
)

// OracleClient implements ports.OracleClient against Chainlink-compatible
// aggregator contracts.
type OracleClient struct {
	client *ethclient.Client
}

// NewOracleClient wraps an existing RPC connection for oracle reads.
func NewOracleClient(client *ethclient.Client) *OracleClient {
	return &OracleClient{client: client}
}

// LatestPrice calls latestRoundData() (selector 0xfeaf968c) and returns the
// unscaled answer. The answer is expected positive; a negative or zero
// reading is a protocol decode error.
func (c *OracleClient) LatestPrice(ctx context.Context, feed common.Address) (uint64, error) {
	callData, err := oracleABI.Pack("latestRoundData")
	if err != nil {
		return 0, fmt.Errorf("onchain: pack latestRoundData: %w", err)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: callData}, nil)
	if err != nil {
		return 0, fmt.Errorf("onchain: call latestRoundData: %w", err)
	}

	vals, err := oracleABI.Unpack("latestRoundData", out)
	if err != nil || len(vals) != 5 {
		return 0, fmt.Errorf("onchain: protocol decode latestRoundData: %w", err)
	}

	answer, ok := vals[1].(*big.Int)
	if !ok || answer.Sign() <= 0 {
		return 0, fmt.Errorf("onchain: protocol decode latestRoundData: non-positive answer %v: %w", answer, domain.ErrProtocolDecode)
	}
	return answer.Uint64(), nil
}
