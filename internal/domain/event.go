package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies which Aave/Chainlink log signature a RawLog carries.
type EventKind string

const (
	EventSupply             EventKind = "Supply"
	EventBorrow             EventKind = "Borrow"
	EventRepay              EventKind = "Repay"
	EventWithdraw           EventKind = "Withdraw"
	EventLiquidationCall    EventKind = "LiquidationCall"
	EventReserveDataUpdated EventKind = "ReserveDataUpdated"
	EventAnswerUpdated      EventKind = "AnswerUpdated"
)

// RawLog is the normalized record both push mode and poll mode emit:
// (event-signature, topics, data, block, tx). Component 4.A's sole output.
type RawLog struct {
	Kind        EventKind
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
}

// UserAddress extracts the user address carried by this log using the
// signature-specific topic index: supply/borrow use topic[1] (onBehalfOf),
// repay/withdraw use topic[2] (user), liquidation calls use topic[3] (the
// liquidated user). Returns the zero address, false for
// event kinds that carry no user (ReserveDataUpdated, AnswerUpdated) or when
// the zero address was extracted (discarded).
func (r RawLog) UserAddress() (common.Address, bool) {
	var idx int
	switch r.Kind {
	case EventSupply, EventBorrow:
		idx = 1
	case EventRepay, EventWithdraw:
		idx = 2
	case EventLiquidationCall:
		idx = 3
	default:
		return common.Address{}, false
	}
	if len(r.Topics) <= idx {
		return common.Address{}, false
	}
	addr := common.BytesToAddress(r.Topics[idx].Bytes())
	if addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}

// PositionChanged is the normal-track bookkeeping message: an address whose
// on-chain state may have moved and needs a fresh health evaluation.
type PositionChanged struct {
	Address common.Address
}

// AnswerUpdate is the decoded payload of a Chainlink AnswerUpdated log.
type AnswerUpdate struct {
	FeedAddress common.Address
	Answer      *big.Int
	RoundID     *big.Int
	UpdatedAt   int64
}
