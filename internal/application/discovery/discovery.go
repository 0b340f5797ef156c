// Package discovery finds and tracks the universe of addresses with open
// Aave positions: an initial historical backfill, then a hot in-memory index
// kept current by the normal-track event stream and refreshed on a short
// (at-risk only) and long (full rescan) cycle.
package discovery

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/baseliq/liquidator/internal/domain"
	"github.com/baseliq/liquidator/internal/ports"
)

// Backfiller scans a bounded historical block range for user-bearing events;
// satisfied by *onchain.PoolEventSource.
type Backfiller interface {
	Backfill(ctx context.Context, from, to uint64, out chan<- domain.RawLog) error
}

// ChainHead reports the current block height, used to compute the backfill
// window.
type ChainHead interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config controls the backfill window and rescan cadence.
type Config struct {
	BackfillBlocks uint64 // how many blocks back from head to scan
	ChunkBlocks    uint64 // Backfiller's internal chunk size, informational
	SoftCap        int    // stop backfill early once this many unique users are found
	ShortCycle     time.Duration
	LongCycle      time.Duration
	VerboseEvents  bool // log per-position detail at info level, independent of the slog level
}

// Discovery owns the hot address index: positions mirrored from the store,
// a collateral-asset → user-set reverse index, and an in-flight processing
// set used to avoid re-queuing an address already being evaluated. The
// position map and the collateral index are shared by every task that reads
// them (short/long cycle, archival), guarded by the same mutex.
type Discovery struct {
	head      ChainHead
	backfill  Backfiller
	evaluator Evaluator
	store     ports.PositionStore
	pool      ports.PoolClient // nil disables the collateral index
	reserves  []common.Address // reserve address at index == protocol asset id
	cfg       Config

	mu                sync.Mutex
	positions         map[common.Address]domain.Position
	processing        map[common.Address]struct{}
	usersByCollateral map[common.Address]map[common.Address]struct{}
}

// Evaluator is the subset of health.Evaluator that discovery depends on.
type Evaluator interface {
	Evaluate(ctx context.Context, addr common.Address) (domain.Position, error)
}

// New constructs a Discovery component. pool and reserves may be nil/empty,
// in which case the collateral index is never populated; reserves must be
// ordered so that reserves[assetID] is the reserve address for that id,
// matching GetUserConfiguration's bit layout.
func New(head ChainHead, backfill Backfiller, evaluator Evaluator, store ports.PositionStore, pool ports.PoolClient, reserves []common.Address, cfg Config) *Discovery {
	if cfg.ShortCycle <= 0 {
		cfg.ShortCycle = 5 * time.Second
	}
	if cfg.LongCycle <= 0 {
		cfg.LongCycle = 15 * time.Minute
	}
	return &Discovery{
		head:              head,
		backfill:          backfill,
		evaluator:         evaluator,
		store:             store,
		pool:              pool,
		reserves:          reserves,
		cfg:               cfg,
		positions:         make(map[common.Address]domain.Position),
		processing:        make(map[common.Address]struct{}),
		usersByCollateral: make(map[common.Address]map[common.Address]struct{}),
	}
}

// Backfill scans the last cfg.BackfillBlocks blocks for unique addresses,
// evaluates each one, and seeds both the hot index and the durable store.
// It stops early once cfg.SoftCap unique addresses have been found.
func (d *Discovery) Backfill(ctx context.Context) error {
	head, err := d.head.BlockNumber(ctx)
	if err != nil {
		return err
	}
	from := uint64(0)
	if head > d.cfg.BackfillBlocks {
		from = head - d.cfg.BackfillBlocks
	}

	scanCtx, cancelScan := context.WithCancel(ctx)
	defer cancelScan()

	logsCh := make(chan domain.RawLog, 1024)
	done := make(chan error, 1)
	go func() {
		done <- d.backfill.Backfill(scanCtx, from, head, logsCh)
		close(logsCh)
	}()

	seen := make(map[common.Address]struct{})
	capped := false
	for lg := range logsCh {
		addr, ok := lg.UserAddress()
		if !ok {
			continue
		}
		if _, already := seen[addr]; already {
			continue
		}
		seen[addr] = struct{}{}

		d.evaluateAndIndex(ctx, addr)

		if d.cfg.SoftCap > 0 && len(seen) >= d.cfg.SoftCap {
			slog.Info("discovery: backfill soft cap reached", "cap", d.cfg.SoftCap)
			capped = true
			break
		}
	}
	if capped {
		// Stop the scan and drain what it already queued so it can return.
		cancelScan()
		for range logsCh {
		}
	}

	if err := <-done; err != nil && !capped {
		slog.Warn("discovery: backfill scan ended with error", "err", err)
	}
	slog.Info("discovery: backfill complete", "unique_addresses", len(seen), "from_block", from, "to_block", head)
	return nil
}

// RunShortCycle re-evaluates only the currently at-risk addresses on a
// tight cadence, cheap enough to run every few seconds.
func (d *Discovery) RunShortCycle(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ShortCycle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, addr := range d.atRiskAddresses() {
				d.evaluateAndIndex(ctx, addr)
			}
		}
	}
}

// RunLongCycle re-evaluates every tracked address on a long cadence,
// catching positions the event stream missed.
func (d *Discovery) RunLongCycle(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.LongCycle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, addr := range d.allAddresses() {
				d.evaluateAndIndex(ctx, addr)
			}
		}
	}
}

// OnPositionChanged is the event-stream entry point: it marks addr for
// immediate re-evaluation and emits a PositionChanged record to out so the
// normal-track worker pool can consider it.
func (d *Discovery) OnPositionChanged(ctx context.Context, addr common.Address, out chan<- domain.PositionChanged) {
	d.evaluateAndIndex(ctx, addr)
	select {
	case out <- domain.PositionChanged{Address: addr}:
	case <-ctx.Done():
	}
}

func (d *Discovery) evaluateAndIndex(ctx context.Context, addr common.Address) {
	if !d.tryMarkProcessing(addr) {
		return
	}
	defer d.unmarkProcessing(addr)

	pos, err := d.evaluator.Evaluate(ctx, addr)
	if err != nil {
		slog.Debug("discovery: evaluate failed", "address", addr, "err", err)
		return
	}

	d.mu.Lock()
	d.positions[addr] = pos
	d.mu.Unlock()

	if err := d.store.UpsertPosition(ctx, pos); err != nil {
		slog.Error("discovery: upsert position failed", "address", addr, "err", err)
	}

	if d.cfg.VerboseEvents {
		slog.Info("discovery: position evaluated",
			"address", addr, "health_factor", pos.HealthFactor, "total_debt_base", pos.TotalDebtBase,
			"total_collateral_base", pos.TotalCollateralBase, "at_risk", pos.IsAtRisk)
	}

	d.refreshCollateralIndex(ctx, addr)
}

// refreshCollateralIndex rebuilds addr's entries in the collateral reverse
// index from a fresh GetUserConfiguration read. A no-op when no pool client
// was wired in (tests, or deployments that don't need the index).
func (d *Discovery) refreshCollateralIndex(ctx context.Context, addr common.Address) {
	if d.pool == nil || len(d.reserves) == 0 {
		return
	}
	bitmap, err := d.pool.GetUserConfiguration(ctx, addr)
	if err != nil {
		slog.Debug("discovery: user configuration read failed", "address", addr, "err", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for asset, users := range d.usersByCollateral {
		delete(users, addr)
		if len(users) == 0 {
			delete(d.usersByCollateral, asset)
		}
	}
	for i, reserve := range d.reserves {
		if reserve == (common.Address{}) {
			continue
		}
		collateralBit := new(big.Int).Lsh(big.NewInt(1), uint(i)*2)
		if new(big.Int).And(bitmap, collateralBit).Sign() == 0 {
			continue
		}
		users, ok := d.usersByCollateral[reserve]
		if !ok {
			users = make(map[common.Address]struct{})
			d.usersByCollateral[reserve] = users
		}
		users[addr] = struct{}{}
	}
}

// UsersByCollateral returns the addresses currently using asset as
// collateral, per the reverse index refreshed alongside every position
// evaluation.
func (d *Discovery) UsersByCollateral(asset common.Address) []common.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	users := d.usersByCollateral[asset]
	out := make([]common.Address, 0, len(users))
	for addr := range users {
		out = append(out, addr)
	}
	return out
}

func (d *Discovery) tryMarkProcessing(addr common.Address) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, inFlight := d.processing[addr]; inFlight {
		return false
	}
	d.processing[addr] = struct{}{}
	return true
}

func (d *Discovery) unmarkProcessing(addr common.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.processing, addr)
}

func (d *Discovery) atRiskAddresses() []common.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]common.Address, 0, len(d.positions))
	for addr, pos := range d.positions {
		if pos.IsAtRisk {
			out = append(out, addr)
		}
	}
	return out
}

func (d *Discovery) allAddresses() []common.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]common.Address, 0, len(d.positions))
	for addr := range d.positions {
		out = append(out, addr)
	}
	return out
}

// ArchiveZeroDebt evicts positions with zero outstanding debt and a health
// factor at or above safeThreshold from the hot index and the durable store,
// once seen that way for longer than cooldown, reducing the working set the
// short/long cycles have to re-evaluate.
func (d *Discovery) ArchiveZeroDebt(ctx context.Context, safeThreshold *big.Int, cooldown time.Duration) error {
	d.mu.Lock()
	var stale []common.Address
	now := time.Now()
	for addr, pos := range d.positions {
		if pos.IsSafeForArchival(safeThreshold) && now.Sub(pos.LastUpdated) >= cooldown {
			stale = append(stale, addr)
		}
	}
	d.mu.Unlock()

	if len(stale) == 0 {
		return nil
	}
	if err := d.store.DeletePositions(ctx, stale); err != nil {
		return err
	}

	d.mu.Lock()
	for _, addr := range stale {
		delete(d.positions, addr)
		for asset, users := range d.usersByCollateral {
			delete(users, addr)
			if len(users) == 0 {
				delete(d.usersByCollateral, asset)
			}
		}
	}
	d.mu.Unlock()

	slog.Info("discovery: archived zero-debt positions", "count", len(stale))
	return nil
}
