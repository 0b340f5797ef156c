// Package pipeline implements the Liquidation Pipeline (§4.D): a normal-track
// worker pool fed by the discovery component's position-changed stream, a
// fast-path dedupe gate fed directly by LiquidationCall-adjacent events, and
// a single priority-channel consumer that gates every attempt on the circuit
// breaker before calling the executor.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/baseliq/liquidator/internal/domain"
	"github.com/baseliq/liquidator/internal/ports"
)

const fastPathDedupeWindow = 2 * time.Second

// Config controls worker count and the profitability gate.
type Config struct {
	Workers        int // 0 uses runtime.NumCPU() * 2
	GasLimit       uint64
	MinProfitWei   *big.Int
	ReceiveAToken  bool
	VerboseEvents  bool // log per-attempt detail (symbols, amounts) at info level, independent of the slog level
}

// Pipeline wires the Health Evaluator's at-risk output to the executor,
// gating every attempt on profitability and the circuit breaker.
type Pipeline struct {
	assets   *AssetRegistry
	pool     ports.PoolClient
	executor ports.LiquidationExecutor
	store    ports.PositionStore
	breaker  *domain.CircuitBreaker
	cfg      Config

	mu       sync.Mutex
	lastSeen map[common.Address]time.Time // fast-path dedupe
}

// New constructs a Pipeline. Oracle prices reach the circuit breaker through
// the independent oracle feed subscriptions (§4.A), not through the
// pipeline itself — base-currency amounts returned by the Pool contract are
// already priced.
func New(assets *AssetRegistry, pool ports.PoolClient, executor ports.LiquidationExecutor, store ports.PositionStore, breaker *domain.CircuitBreaker, cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU() * 2
	}
	return &Pipeline{
		assets:   assets,
		pool:     pool,
		executor: executor,
		store:    store,
		breaker:  breaker,
		cfg:      cfg,
		lastSeen: make(map[common.Address]time.Time),
	}
}

// RunNormalTrack drains changed from a worker pool of size cfg.Workers,
// evaluating and attempting each candidate independently; it blocks until
// ctx is cancelled or changed is closed.
func (p *Pipeline) RunNormalTrack(ctx context.Context, changed <-chan domain.PositionChanged) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case pc, ok := <-changed:
					if !ok {
						return
					}
					p.considerAndAttempt(ctx, pc.Address)
				}
			}
		}()
	}
	wg.Wait()
}

// FastPathCandidate reports whether addr should bypass the normal-track
// worker pool and be attempted immediately, deduping repeat signals for the
// same address within fastPathDedupeWindow (a fixed 2s).
func (p *Pipeline) FastPathCandidate(addr common.Address, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if last, ok := p.lastSeen[addr]; ok && now.Sub(last) < fastPathDedupeWindow {
		return false
	}
	p.lastSeen[addr] = now

	// Opportunistic prune: bound map growth without a separate sweep goroutine.
	if len(p.lastSeen) > 4096 {
		for a, t := range p.lastSeen {
			if now.Sub(t) >= fastPathDedupeWindow {
				delete(p.lastSeen, a)
			}
		}
	}
	return true
}

// RunFastPath attempts every deduped candidate from in immediately, on its
// own goroutine per signal, independent of the normal-track worker pool.
func (p *Pipeline) RunFastPath(ctx context.Context, in <-chan common.Address) {
	for {
		select {
		case <-ctx.Done():
			return
		case addr, ok := <-in:
			if !ok {
				return
			}
			if !p.FastPathCandidate(addr, time.Now()) {
				continue
			}
			go p.considerAndAttempt(ctx, addr)
		}
	}
}

// considerAndAttempt re-reads account data, skips dust and healthy
// positions, selects the best collateral/debt pair, evaluates
// profitability, and attempts the liquidation if it clears the gate. Gate
// misses (below dust, no admissible pair, circuit breaker open) are normal
// outcomes, not faults; they're surfaced as sentinel errors so callers that
// care can tell them apart with errors.Is, but they're only ever logged at
// debug level here.
func (p *Pipeline) considerAndAttempt(ctx context.Context, addr common.Address) {
	opp, err := p.buildOpportunity(ctx, addr)
	if err != nil {
		slog.Debug("pipeline: no liquidation attempt", "address", addr, "err", err)
		return
	}

	if err := p.attempt(ctx, opp); err != nil {
		slog.Debug("pipeline: no liquidation attempt", "address", addr, "err", err)
	}
}

// buildOpportunity re-reads account data, skips dust and healthy positions,
// selects the best collateral/debt pair, and evaluates profitability,
// returning ErrBelowDust or ErrNoAdmissiblePair for the corresponding gate
// misses.
func (p *Pipeline) buildOpportunity(ctx context.Context, addr common.Address) (domain.Opportunity, error) {
	data, err := p.pool.GetUserAccountData(ctx, addr)
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("pipeline: account data read failed: %w", err)
	}
	if data.HealthFactor.Cmp(domain.WAD) >= 0 {
		return domain.Opportunity{}, fmt.Errorf("pipeline: position healthy: %w", domain.ErrNoAdmissiblePair)
	}
	if debtToCover := applyBps(data.TotalDebtBase, closeFactorBps); IsDust(debtToCover) {
		return domain.Opportunity{}, fmt.Errorf("pipeline: debt to cover %s below dust floor: %w", debtToCover, domain.ErrBelowDust)
	}

	reserveConfig, err := p.pool.GetUserConfiguration(ctx, addr)
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("pipeline: user configuration read failed: %w", err)
	}
	collaterals, debts := p.reservesFromConfig(reserveConfig)
	if len(collaterals) == 0 || len(debts) == 0 {
		return domain.Opportunity{}, fmt.Errorf("pipeline: no held collateral/debt reserves: %w", domain.ErrNoAdmissiblePair)
	}

	pair, ok := FindBestLiquidationPair(collaterals, debts)
	if !ok {
		return domain.Opportunity{}, fmt.Errorf("pipeline: no eligible collateral/debt pair: %w", domain.ErrNoAdmissiblePair)
	}

	gasPrice, err := p.executor.CurrentGasPrice(ctx)
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("pipeline: gas price read failed: %w", err)
	}

	opp := Evaluate(pair, ProfitabilityInputs{
		TotalDebtBase: data.TotalDebtBase,
		GasLimit:      p.cfg.GasLimit,
		BaseFeeWei:    new(big.Int).SetUint64(gasPrice),
		MinProfitWei:  p.cfg.MinProfitWei,
	})
	opp.User = addr
	if !opp.MeetsThreshold {
		return domain.Opportunity{}, fmt.Errorf("pipeline: net profit below threshold: %w", domain.ErrNoAdmissiblePair)
	}

	return opp, nil
}

// attempt is the single priority-channel consumer path: snapshot the
// breaker state before the call (TOCTOU-safe, §9), record the outcome
// through exactly one of the two recorder APIs, and record a probe when the
// snapshot itself was Half-Open and the attempt succeeded. Returns
// ErrCircuitBreakerOpen when the breaker blocked the attempt.
func (p *Pipeline) attempt(ctx context.Context, opp domain.Opportunity) error {
	wasHalfOpen := p.breaker.State() == domain.BreakerHalfOpen
	if !p.breaker.IsLiquidationAllowed() {
		p.breaker.RecordBlockedLiquidation()
		return fmt.Errorf("pipeline: attempt for %s: %w", opp.User, domain.ErrCircuitBreakerOpen)
	}

	params := domain.LiquidationParams{
		User:            opp.User,
		CollateralAsset: opp.CollateralAsset,
		DebtAsset:       opp.DebtAsset,
		DebtToCover:     opp.DebtToCover,
		ReceiveAToken:   p.cfg.ReceiveAToken,
	}
	if coll, ok := p.assets.Lookup(opp.CollateralAsset); ok {
		params.CollateralAssetID = coll.AssetID
		params.CollateralSymbol = coll.Symbol
	}
	if debt, ok := p.assets.Lookup(opp.DebtAsset); ok {
		params.DebtAssetID = debt.AssetID
		params.DebtSymbol = debt.Symbol
	}

	if p.cfg.VerboseEvents {
		slog.Info("pipeline: attempting liquidation",
			"user", opp.User, "collateral", params.CollateralSymbol, "debt", params.DebtSymbol,
			"debt_to_cover", opp.DebtToCover, "net_profit", opp.NetProfit)
	}

	result, err := p.executor.Execute(ctx, params)
	if err != nil {
		slog.Error("pipeline: liquidation execution failed", "user", opp.User, "err", err)
		p.breaker.RecordLiquidationAttempt(false, nil)
		return nil
	}

	if wasHalfOpen && result.Succeeded {
		p.breaker.RecordTestLiquidation()
	}
	p.breaker.RecordLiquidationAttempt(result.Succeeded, nil)

	if err := p.store.RecordLiquidationEvent(ctx, result, opp); err != nil {
		slog.Error("pipeline: failed to persist liquidation event", "err", err)
	}
	return nil
}

// reservesFromConfig decodes the protocol's per-reserve configuration
// bitfield into held collateral and debt reserve lists: bit 2*i marks
// reserve i as collateral, bit 2*i+1 marks it as borrowed (GetUserConfiguration).
func (p *Pipeline) reservesFromConfig(bitmap *big.Int) (collaterals, debts []domain.AssetConfig) {
	for _, cfg := range p.assets.byAddress {
		collateralBit := new(big.Int).Lsh(big.NewInt(1), uint(cfg.AssetID)*2)
		usingAsCollateral := new(big.Int).And(bitmap, collateralBit).Sign() != 0

		borrowBit := new(big.Int).Lsh(big.NewInt(1), uint(cfg.AssetID)*2+1)
		borrowing := new(big.Int).And(bitmap, borrowBit).Sign() != 0

		if usingAsCollateral {
			collaterals = append(collaterals, cfg)
		}
		if borrowing {
			debts = append(debts, cfg)
		}
	}
	return collaterals, debts
}
