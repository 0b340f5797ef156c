package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/baseliq/liquidator/internal/domain"
	"github.com/baseliq/liquidator/internal/ports"
)

// PoolClient implements ports.PoolClient against a real Aave v3 Pool
// contract via plain eth_call view invocations.
type PoolClient struct {
	client  *ethclient.Client
	address common.Address
}

// NewPoolClient targets the given pool contract over an existing RPC
// connection.
func NewPoolClient(client *ethclient.Client, poolAddress common.Address) *PoolClient {
	return &PoolClient{client: client, address: poolAddress}
}

// GetUserAccountData calls the aggregate-account-data view function
// (selector 0xbf92857c) and parses the six fixed-width return words.
func (c *PoolClient) GetUserAccountData(ctx context.Context, user common.Address) (ports.AccountData, error) {
	callData, err := poolABI.Pack("getUserAccountData", user)
	if err != nil {
		return ports.AccountData{}, fmt.Errorf("onchain: pack getUserAccountData: %w", err)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: callData}, nil)
	if err != nil {
		return ports.AccountData{}, fmt.Errorf("onchain: call getUserAccountData: %w", err)
	}

	vals, err := poolABI.Unpack("getUserAccountData", out)
	if err != nil {
		return ports.AccountData{}, fmt.Errorf("onchain: protocol decode getUserAccountData: %w: %w", domain.ErrProtocolDecode, err)
	}
	if len(vals) != 6 {
		return ports.AccountData{}, fmt.Errorf("onchain: protocol decode getUserAccountData: expected 6 words, got %d: %w", len(vals), domain.ErrProtocolDecode)
	}

	return ports.AccountData{
		TotalCollateralBase:      vals[0].(*big.Int),
		TotalDebtBase:            vals[1].(*big.Int),
		AvailableBorrowsBase:     vals[2].(*big.Int),
		CurrentLiquidationThresh: vals[3].(*big.Int),
		LTV:                      vals[4].(*big.Int),
		HealthFactor:             vals[5].(*big.Int),
	}, nil
}

// GetUserConfiguration returns the raw per-user bitfield.
func (c *PoolClient) GetUserConfiguration(ctx context.Context, user common.Address) (*big.Int, error) {
	callData, err := poolABI.Pack("getUserConfiguration", user)
	if err != nil {
		return nil, fmt.Errorf("onchain: pack getUserConfiguration: %w", err)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("onchain: call getUserConfiguration: %w", err)
	}

	vals, err := poolABI.Unpack("getUserConfiguration", out)
	if err != nil {
		return nil, fmt.Errorf("onchain: protocol decode getUserConfiguration: %w: %w", domain.ErrProtocolDecode, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("onchain: protocol decode getUserConfiguration: empty return: %w", domain.ErrProtocolDecode)
	}
	return vals[0].(*big.Int), nil
}

// GetReservesList returns the ordered reserve address array; its index is
// the asset id used both by GetUserConfiguration bits and the liquidation
// call's asset-id arguments.
func (c *PoolClient) GetReservesList(ctx context.Context) ([]common.Address, error) {
	callData, err := poolABI.Pack("getReservesList")
	if err != nil {
		return nil, fmt.Errorf("onchain: pack getReservesList: %w", err)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("onchain: call getReservesList: %w", err)
	}

	vals, err := poolABI.Unpack("getReservesList", out)
	if err != nil {
		return nil, fmt.Errorf("onchain: protocol decode getReservesList: %w: %w", domain.ErrProtocolDecode, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("onchain: protocol decode getReservesList: empty return: %w", domain.ErrProtocolDecode)
	}
	return vals[0].([]common.Address), nil
}
