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

	"github.com/baseliq/liquidator/internal/domain"
)

// OracleEventSource implements ports.OracleFeed for one Chainlink feed
// address, mirroring PoolEventSource's push/poll duality.
type OracleEventSource struct {
	client      *ethclient.Client
	feedAddress common.Address
	pushMode    bool
}

// NewOracleEventSource constructs a per-feed source.
func NewOracleEventSource(client *ethclient.Client, feedAddress common.Address, pushMode bool) *OracleEventSource {
	return &OracleEventSource{client: client, feedAddress: feedAddress, pushMode: pushMode}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (s *OracleEventSource) Run(ctx context.Context, out chan<- domain.AnswerUpdate) error {
	if s.pushMode {
		return s.runPush(ctx, out)
	}
	return s.runPoll(ctx, out)
}

func (s *OracleEventSource) runPush(ctx context.Context, out chan<- domain.AnswerUpdate) error {
	query := ethereum.FilterQuery{Addresses: []common.Address{s.feedAddress}}

	logsCh := make(chan types.Log, 32)
	sub, err := s.client.SubscribeFilterLogs(ctx, query, logsCh)
	if err != nil {
		return fmt.Errorf("onchain: subscribe oracle logs: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("onchain: oracle log subscription lost for %s: %w", s.feedAddress, err)
		case lg := <-logsCh:
			if update, ok := toAnswerUpdate(lg); ok {
				out <- update
			}
		}
	}
}

func (s *OracleEventSource) runPoll(ctx context.Context, out chan<- domain.AnswerUpdate) error {
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
			if err != nil || newHead <= lastProcessed {
				continue
			}

			ok := true
			for chunkStart := lastProcessed + 1; chunkStart <= newHead && ok; chunkStart += maxLogRangeBlocks {
				chunkEnd := chunkStart + maxLogRangeBlocks - 1
				if chunkEnd > newHead {
					chunkEnd = newHead
				}

				query := ethereum.FilterQuery{
					FromBlock: new(big.Int).SetUint64(chunkStart),
					ToBlock:   new(big.Int).SetUint64(chunkEnd),
					Addresses: []common.Address{s.feedAddress},
					Topics:    [][]common.Hash{{oracleABI.Events["AnswerUpdated"].ID}},
				}

				logs, err := s.client.FilterLogs(ctx, query)
				if err != nil {
					ok = false // don't advance lastProcessed on partial failure
					break
				}
				for _, lg := range logs {
					if update, ok := toAnswerUpdate(lg); ok {
						out <- update
					}
				}
			}
			if ok {
				lastProcessed = newHead
			}
		}
	}
}

func toAnswerUpdate(lg types.Log) (domain.AnswerUpdate, bool) {
	if len(lg.Topics) < 3 {
		return domain.AnswerUpdate{}, false
	}
	current := new(big.Int).SetBytes(lg.Topics[1].Bytes())
	roundID := new(big.Int).SetBytes(lg.Topics[2].Bytes())

	vals, err := oracleABI.Events["AnswerUpdated"].Inputs.NonIndexed().Unpack(lg.Data)
	var updatedAt int64
	if err == nil && len(vals) == 1 {
		if u, ok := vals[0].(*big.Int); ok {
			updatedAt = u.Int64()
		}
	}

	return domain.AnswerUpdate{
		FeedAddress: lg.Address,
		Answer:      current,
		RoundID:     roundID,
		UpdatedAt:   updatedAt,
	}, true
}
