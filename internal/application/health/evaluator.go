// Package health implements the Health Evaluator: a single view-call
// operation against the protocol's aggregate-account-data function, wrapped
// in a transient-error retry policy.
package health

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/baseliq/liquidator/internal/domain"
	"github.com/baseliq/liquidator/internal/ports"
)

const (
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

// ErrProtocolDecode marks a non-retryable malformed protocol response; an
// alias of domain.ErrProtocolDecode so adapters can wrap the one sentinel
// and every layer can check it with errors.Is regardless of which package
// name they imported it under.
var ErrProtocolDecode = domain.ErrProtocolDecode

// Config controls the retry envelope and the at-risk rule threshold.
type Config struct {
	MaxAttempts int // default 3
	Threshold   *big.Int // 18-decimal fixed point, default 1.1 * WAD
}

// Evaluator implements §4.C: evaluate(address) → Position.
type Evaluator struct {
	pool   ports.PoolClient
	cfg    Config
	sleep  func(time.Duration)
}

// New constructs an Evaluator against the given protocol read surface.
func New(pool ports.PoolClient, cfg Config) *Evaluator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Threshold == nil {
		cfg.Threshold = new(big.Int).Div(new(big.Int).Mul(domain.WAD, big.NewInt(11)), big.NewInt(10))
	}
	return &Evaluator{pool: pool, cfg: cfg, sleep: time.Sleep}
}

// SetSleep overrides the backoff sleep function; used by tests to avoid
// real waits during retry exercises.
func (e *Evaluator) SetSleep(sleep func(time.Duration)) {
	e.sleep = sleep
}

// Evaluate calls the protocol's aggregate-account-data view function and
// derives the at-risk flag. Transient errors (timeouts, rate limits,
// connection resets) are retried with exponential backoff and jitter;
// protocol decode failures are returned immediately, unretried.
func (e *Evaluator) Evaluate(ctx context.Context, addr common.Address) (domain.Position, error) {
	var lastErr error

	delay := retryBaseDelay
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Int63n(int64(delay) / 4 + 1))
			e.sleep(delay + jitter)
			delay *= 2
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
		}

		data, err := e.pool.GetUserAccountData(ctx, addr)
		if err == nil {
			return e.toPosition(addr, data), nil
		}

		lastErr = err
		if errors.Is(err, ErrProtocolDecode) || !isTransient(err) {
			return domain.Position{}, err
		}
	}

	return domain.Position{}, fmt.Errorf("health: evaluate %s: exhausted retries: %w", addr, lastErr)
}

func (e *Evaluator) toPosition(addr common.Address, data ports.AccountData) domain.Position {
	isAtRisk := domain.ComputeAtRisk(data.HealthFactor, e.cfg.Threshold)
	return domain.Position{
		Address:                  addr,
		TotalCollateralBase:      data.TotalCollateralBase,
		TotalDebtBase:            data.TotalDebtBase,
		AvailableBorrowsBase:     data.AvailableBorrowsBase,
		CurrentLiquidationThresh: data.CurrentLiquidationThresh,
		LTV:                      data.LTV,
		HealthFactor:             data.HealthFactor,
		LastUpdated:              time.Now().UTC(),
		IsAtRisk:                 isAtRisk,
	}
}

// isTransient classifies an error by substring match against common
// transport failure modes, mirroring how the RPC client surfaces them.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"timeout", "rate limit", "connection reset", "i/o timeout", "eof", "too many requests"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
