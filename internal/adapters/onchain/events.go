package onchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/baseliq/liquidator/internal/domain"
)

const (
	maxLogRangeBlocks = uint64(500)
	pollInterval      = 10 * time.Second
)

// userBearingSignatures is the fixed set of Aave Pool event signatures the
// Chain Event Source watches; order doesn't matter, each is queried
// independently in poll mode.
var userBearingSignatures = []struct {
	kind domain.EventKind
	name string
}{
	{domain.EventSupply, "Supply"},
	{domain.EventBorrow, "Borrow"},
	{domain.EventRepay, "Repay"},
	{domain.EventWithdraw, "Withdraw"},
	{domain.EventLiquidationCall, "LiquidationCall"},
	{domain.EventReserveDataUpdated, "ReserveDataUpdated"},
}

func signatureKind(topic0 common.Hash) (domain.EventKind, bool) {
	for _, s := range userBearingSignatures {
		if poolABI.Events[s.name].ID == topic0 {
			return s.kind, true
		}
	}
	return "", false
}

// PoolEventSource is Component 4.A for the Aave Pool contract: it dials in
// push mode when given a WebSocket-backed client, and falls back to
// block-range polling otherwise.
type PoolEventSource struct {
	client      *ethclient.Client
	poolAddress common.Address
	pushMode    bool
	limiter     *rate.Limiter
}

// NewPoolEventSource constructs a source. pushMode should be true only when
// client was dialed over ws:// or wss://, since SubscribeFilterLogs requires
// a transport that supports subscriptions.
func NewPoolEventSource(client *ethclient.Client, poolAddress common.Address, pushMode bool) *PoolEventSource {
	return &PoolEventSource{
		client:      client,
		poolAddress: poolAddress,
		pushMode:    pushMode,
		limiter:     rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (s *PoolEventSource) Run(ctx context.Context, out chan<- domain.RawLog) error {
	if s.pushMode {
		return s.runPush(ctx, out)
	}
	return s.runPoll(ctx, out)
}

func (s *PoolEventSource) runPush(ctx context.Context, out chan<- domain.RawLog) error {
	query := ethereum.FilterQuery{Addresses: []common.Address{s.poolAddress}}

	logsCh := make(chan types.Log, 256)
	sub, err := s.client.SubscribeFilterLogs(ctx, query, logsCh)
	if err != nil {
		return fmt.Errorf("onchain: subscribe pool logs: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("onchain: pool log subscription lost: %w", err)
		case lg := <-logsCh:
			if raw, ok := toRawLog(lg); ok {
				out <- raw
			}
		}
	}
}

func (s *PoolEventSource) runPoll(ctx context.Context, out chan<- domain.RawLog) error {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("onchain: initial block number: %w", err)
	}
	lastProcessed := head

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			newHead, err := s.client.BlockNumber(ctx)
			if err != nil {
				continue // transient, retried on the next tick
			}
			if newHead <= lastProcessed {
				continue
			}

			advanced, err := s.pollRange(ctx, lastProcessed+1, newHead, out)
			if err != nil {
				continue // don't advance the counter on partial failure
			}
			if advanced {
				lastProcessed = newHead
			}
		}
	}
}

// Backfill scans a fixed historical block range [from, to] for user-bearing
// events, used by the discovery component's initial scan. Unlike runPoll it
// does not retry on partial failure — the caller decides how to treat a
// partially-scanned range.
func (s *PoolEventSource) Backfill(ctx context.Context, from, to uint64, out chan<- domain.RawLog) error {
	_, err := s.pollRange(ctx, from, to, out)
	return err
}

// pollRange fetches logs for every user-bearing signature across
// [from, to] in bounded chunks, advancing only when every signature query
// for every chunk succeeds.
func (s *PoolEventSource) pollRange(ctx context.Context, from, to uint64, out chan<- domain.RawLog) (bool, error) {
	for chunkStart := from; chunkStart <= to; chunkStart += maxLogRangeBlocks {
		chunkEnd := chunkStart + maxLogRangeBlocks - 1
		if chunkEnd > to {
			chunkEnd = to
		}

		for _, sig := range userBearingSignatures {
			if err := s.limiter.Wait(ctx); err != nil {
				return false, err
			}

			query := ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(chunkStart),
				ToBlock:   new(big.Int).SetUint64(chunkEnd),
				Addresses: []common.Address{s.poolAddress},
				Topics:    [][]common.Hash{{poolABI.Events[sig.name].ID}},
			}

			logs, err := s.client.FilterLogs(ctx, query)
			if err != nil {
				return false, fmt.Errorf("onchain: poll %s [%d,%d]: %w", sig.name, chunkStart, chunkEnd, err)
			}
			for _, lg := range logs {
				if raw, ok := toRawLog(lg); ok {
					out <- raw
				}
			}
		}
	}
	return true, nil
}

func toRawLog(lg types.Log) (domain.RawLog, bool) {
	if len(lg.Topics) == 0 {
		return domain.RawLog{}, false
	}
	kind, ok := signatureKind(lg.Topics[0])
	if !ok {
		return domain.RawLog{}, false
	}
	return domain.RawLog{
		Kind:        kind,
		Topics:      lg.Topics,
		Data:        lg.Data,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
	}, true
}
