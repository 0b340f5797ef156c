package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// OracleClient reads Chainlink-compatible price feeds.
type OracleClient interface {
	// LatestPrice calls latestRoundData() (selector 0xfeaf968c) on the given
	// feed address and returns the unscaled answer.
	LatestPrice(ctx context.Context, feed common.Address) (uint64, error)
}
