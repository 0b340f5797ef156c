package onchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/baseliq/liquidator/internal/domain"
)

const (
	defaultGasLimit        = uint64(800_000)
	receiptTimeout          = 2 * time.Minute
	receiptPollInterval     = 2 * time.Second
	gasPriceCacheTTL        = 30 * time.Second
)

// LiquidationExecutor implements ports.LiquidationExecutor against a
// deployed liquidation-executor contract that wraps the protocol's flash-loan
// liquidation entrypoint.
type LiquidationExecutor struct {
	client         *ethclient.Client
	privateKey     *ecdsa.PrivateKey
	address        common.Address
	contractAddr   common.Address
	chainID        *big.Int
	gasMultiplier  float64

	mu           sync.RWMutex
	cachedGas    *big.Int
	cachedGasAt  time.Time
}

// NewLiquidationExecutor builds an executor for the given signer key and
// deployed contract. gasMultiplier scales the network-suggested gas price
// (default 2x per the configured policy).
func NewLiquidationExecutor(client *ethclient.Client, privateKeyHex string, contractAddr common.Address, chainID *big.Int, gasMultiplier float64) (*LiquidationExecutor, error) {
	privKey, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("onchain: invalid signer key: %w", err)
	}

	if gasMultiplier <= 0 {
		gasMultiplier = 2.0
	}

	return &LiquidationExecutor{
		client:        client,
		privateKey:    privKey,
		address:       crypto.PubkeyToAddress(privKey.PublicKey),
		contractAddr:  contractAddr,
		chainID:       chainID,
		gasMultiplier: gasMultiplier,
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// CurrentGasPrice returns the network-suggested gas price in wei, cached for
// a short interval to avoid hammering the RPC on every opportunity.
func (e *LiquidationExecutor) CurrentGasPrice(ctx context.Context) (uint64, error) {
	price, err := e.gasPrice(ctx)
	if err != nil {
		return 0, err
	}
	return price.Uint64(), nil
}

func (e *LiquidationExecutor) gasPrice(ctx context.Context) (*big.Int, error) {
	e.mu.RLock()
	cached := e.cachedGas
	at := e.cachedGasAt
	e.mu.RUnlock()

	if cached != nil && time.Since(at) < gasPriceCacheTTL {
		return cached, nil
	}

	price, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("onchain: suggest gas price: %w", err)
	}

	e.mu.Lock()
	e.cachedGas = price
	e.cachedGasAt = time.Now()
	e.mu.Unlock()

	return price, nil
}

// Execute encodes, signs, submits, and confirms the liquidation call.
func (e *LiquidationExecutor) Execute(ctx context.Context, params domain.LiquidationParams) (domain.LiquidationResult, error) {
	callData, err := executorABI.Pack("liquidate",
		params.User,
		params.CollateralAsset,
		params.DebtAsset,
		params.DebtToCover,
		params.ReceiveAToken,
		params.CollateralAssetID,
		params.DebtAssetID,
	)
	if err != nil {
		return domain.LiquidationResult{}, fmt.Errorf("onchain: pack liquidate: %w", err)
	}

	baseGasPrice, err := e.gasPrice(ctx)
	if err != nil {
		return domain.LiquidationResult{}, err
	}

	gasPrice := applyMultiplier(baseGasPrice, e.gasMultiplier)

	nonce, err := e.client.PendingNonceAt(ctx, e.address)
	if err != nil {
		return domain.LiquidationResult{}, fmt.Errorf("onchain: nonce: %w", err)
	}

	gasLimit, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     e.address,
		To:       &e.contractAddr,
		GasPrice: gasPrice,
		Data:     callData,
	})
	if err != nil {
		slog.Warn("onchain: liquidate gas estimate failed, using default", "err", err, "limit", defaultGasLimit)
		gasLimit = defaultGasLimit
	}

	tx := types.NewTransaction(nonce, e.contractAddr, big.NewInt(0), gasLimit, gasPrice, callData)

	signed, err := types.SignTx(tx, types.NewEIP155Signer(e.chainID), e.privateKey)
	if err != nil {
		return domain.LiquidationResult{}, fmt.Errorf("onchain: sign liquidate tx: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return domain.LiquidationResult{}, fmt.Errorf("onchain: send liquidate tx: %w", err)
	}

	slog.Info("onchain: liquidation tx submitted",
		"user", params.User, "collateral", assetLabel(params.CollateralSymbol, params.CollateralAsset),
		"debt", assetLabel(params.DebtSymbol, params.DebtAsset), "tx", signed.Hash())

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	receipt, err := e.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return domain.LiquidationResult{
			TxHash: signed.Hash(),
		}, fmt.Errorf("onchain: confirmation: %w", err)
	}

	result := domain.LiquidationResult{
		TxHash:    signed.Hash(),
		Succeeded: receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed:   receipt.GasUsed,
	}
	if !result.Succeeded {
		result.Err = fmt.Errorf("onchain: liquidation tx reverted: %s", signed.Hash())
	}
	return result, nil
}

// VerifyContractSetup warns (does not fail) when the deployed executor's
// configured pool address doesn't match the expected one.
func (e *LiquidationExecutor) VerifyContractSetup(ctx context.Context, expectedPool common.Address) error {
	callData, err := executorABI.Pack("getPool")
	if err != nil {
		return fmt.Errorf("onchain: pack getPool: %w", err)
	}

	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &e.contractAddr, Data: callData}, nil)
	if err != nil {
		return fmt.Errorf("onchain: call getPool: %w", err)
	}

	vals, err := executorABI.Unpack("getPool", out)
	if err != nil || len(vals) == 0 {
		return fmt.Errorf("onchain: protocol decode getPool: %w", err)
	}

	configured := vals[0].(common.Address)
	if configured != expectedPool {
		slog.Warn("onchain: executor pool address mismatch", "expected", expectedPool, "got", configured)
		return nil
	}
	slog.Info("onchain: executor pool address verified", "pool", configured)
	return nil
}

func (e *LiquidationExecutor) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := e.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue
			}
			return receipt, nil
		}
	}
}

// assetLabel prefers the resolved symbol for log readability, falling back
// to the raw address when the asset registry didn't have an entry for it.
func assetLabel(symbol string, addr common.Address) string {
	if symbol != "" {
		return symbol
	}
	return addr.Hex()
}

func applyMultiplier(price *big.Int, multiplier float64) *big.Int {
	scaled := new(big.Float).Mul(new(big.Float).SetInt(price), big.NewFloat(multiplier))
	result, _ := scaled.Int(nil)
	return result
}
