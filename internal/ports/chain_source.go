package ports

import (
	"context"

	"github.com/baseliq/liquidator/internal/domain"
)

// ChainEventSource is Component 4.A: it yields a stream of normalized chain
// records, operating in push mode (WebSocket subscription) or poll mode
// (block-range scanning) depending on how the concrete adapter was dialed.
type ChainEventSource interface {
	// Run starts the subscription/poll loop and pushes every observed log to
	// out. It blocks until ctx is cancelled or the underlying subscription
	// fails, in which case it returns a non-nil error — loss of a push-mode
	// subscription is fatal to this task and must bubble up to the
	// supervisor (§5).
	Run(ctx context.Context, out chan<- domain.RawLog) error
}

// OracleFeed yields normalized AnswerUpdated events from one Chainlink price
// feed, mirroring ChainEventSource's push/poll duality for oracle addresses.
type OracleFeed interface {
	Run(ctx context.Context, out chan<- domain.AnswerUpdate) error
}
