package storage

// sqlite.go — durable mirror of the hot-memory position map.
//
// Strategy:
//   - `positions`: one row per address (UPSERT by address). All monetary and
//     ratio fields are stored as decimal strings to avoid 64-bit truncation
//     of base-currency/wad-scaled *big.Int values.
//   - In-memory cache of the last-written health factor per address: skips
//     a write when the health factor hasn't moved more than a few percent
//     and the at-risk flag is unchanged, since most re-evaluations between
//     chain events don't change the outcome.
//   - `liquidation_events`, `monitoring_events`, `price_feeds` are
//     append-only logs, never pruned by this adapter.

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/baseliq/liquidator/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
    address                        TEXT PRIMARY KEY,
    total_collateral_base          TEXT NOT NULL DEFAULT '0',
    total_debt_base                TEXT NOT NULL DEFAULT '0',
    available_borrows_base         TEXT NOT NULL DEFAULT '0',
    current_liquidation_threshold  TEXT NOT NULL DEFAULT '0',
    ltv                            TEXT NOT NULL DEFAULT '0',
    health_factor                  TEXT NOT NULL DEFAULT '0',
    is_at_risk                     INTEGER NOT NULL DEFAULT 0,
    last_updated                   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS liquidation_events (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    address             TEXT NOT NULL,
    collateral_asset    TEXT NOT NULL,
    debt_asset          TEXT NOT NULL,
    debt_to_cover       TEXT NOT NULL,
    collateral_received TEXT NOT NULL,
    net_profit          TEXT NOT NULL,
    succeeded           INTEGER NOT NULL,
    tx_hash             TEXT,
    gas_used            INTEGER NOT NULL DEFAULT 0,
    executed_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS monitoring_events (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    address    TEXT,
    detail     TEXT,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS price_feeds (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    asset       TEXT NOT NULL,
    price       INTEGER NOT NULL,
    observed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_at_risk ON positions(is_at_risk);
CREATE INDEX IF NOT EXISTS idx_liq_events_addr    ON liquidation_events(address);
CREATE INDEX IF NOT EXISTS idx_monitoring_addr    ON monitoring_events(address);
CREATE INDEX IF NOT EXISTS idx_price_feeds_asset  ON price_feeds(asset, observed_at);
`

const healthFactorChangePct = 0.02 // 2% move in HF before a position row is rewritten

// cachedPosition is the last-written snapshot used to suppress no-op writes.
type cachedPosition struct {
	healthFactor *big.Int
	isAtRisk     bool
}

// SQLiteStorage implements ports.PositionStore over modernc.org/sqlite
// (pure Go, no cgo).
type SQLiteStorage struct {
	db    *sql.DB
	cache map[common.Address]cachedPosition
	mu    sync.Mutex
}

// NewSQLiteStorage opens (or creates) the database at path, applies the
// schema, and warms the write-suppression cache from existing rows.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}

	s := &SQLiteStorage{
		db:    db,
		cache: make(map[common.Address]cachedPosition),
	}
	s.warmCache(context.Background())
	return s, nil
}

// UpsertPosition writes p if its health factor moved enough, or its at-risk
// flag flipped, since the last write; otherwise it's a no-op.
func (s *SQLiteStorage) UpsertPosition(ctx context.Context, p domain.Position) error {
	if !s.shouldWrite(p) {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
			(address, total_collateral_base, total_debt_base, available_borrows_base,
			 current_liquidation_threshold, ltv, health_factor, is_at_risk, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			total_collateral_base         = excluded.total_collateral_base,
			total_debt_base               = excluded.total_debt_base,
			available_borrows_base        = excluded.available_borrows_base,
			current_liquidation_threshold = excluded.current_liquidation_threshold,
			ltv                           = excluded.ltv,
			health_factor                 = excluded.health_factor,
			is_at_risk                    = excluded.is_at_risk,
			last_updated                  = excluded.last_updated
	`,
		p.Address.Hex(),
		bigString(p.TotalCollateralBase),
		bigString(p.TotalDebtBase),
		bigString(p.AvailableBorrowsBase),
		bigString(p.CurrentLiquidationThresh),
		bigString(p.LTV),
		bigString(p.HealthFactor),
		boolToInt(p.IsAtRisk),
		p.LastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert position %s: %w", p.Address, err)
	}

	s.mu.Lock()
	s.cache[p.Address] = cachedPosition{healthFactor: p.HealthFactor, isAtRisk: p.IsAtRisk}
	s.mu.Unlock()
	return nil
}

// shouldWrite reports whether p differs enough from the cached snapshot to
// justify a write.
func (s *SQLiteStorage) shouldWrite(p domain.Position) bool {
	s.mu.Lock()
	prev, ok := s.cache[p.Address]
	s.mu.Unlock()

	if !ok {
		return true
	}
	if prev.isAtRisk != p.IsAtRisk {
		return true
	}
	return relChange(prev.healthFactor, p.HealthFactor) >= healthFactorChangePct
}

// GetPosition looks up a single position by address.
func (s *SQLiteStorage) GetPosition(ctx context.Context, addr common.Address) (domain.Position, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT total_collateral_base, total_debt_base, available_borrows_base,
		       current_liquidation_threshold, ltv, health_factor, is_at_risk, last_updated
		FROM positions WHERE address = ?
	`, addr.Hex())

	var (
		collateral, debt, available, threshold, ltv, hf string
		isAtRisk                                         int
		lastUpdated                                      time.Time
	)
	if err := row.Scan(&collateral, &debt, &available, &threshold, &ltv, &hf, &isAtRisk, &lastUpdated); err != nil {
		if err == sql.ErrNoRows {
			return domain.Position{}, false, nil
		}
		return domain.Position{}, false, fmt.Errorf("storage: get position %s: %w", addr, err)
	}

	return domain.Position{
		Address:                  addr,
		TotalCollateralBase:      parseBig(collateral),
		TotalDebtBase:            parseBig(debt),
		AvailableBorrowsBase:     parseBig(available),
		CurrentLiquidationThresh: parseBig(threshold),
		LTV:                      parseBig(ltv),
		HealthFactor:             parseBig(hf),
		IsAtRisk:                 isAtRisk == 1,
		LastUpdated:              lastUpdated,
	}, true, nil
}

// AllAddresses returns every tracked address.
func (s *SQLiteStorage) AllAddresses(ctx context.Context) ([]common.Address, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("storage: list addresses: %w", err)
	}
	defer rows.Close()

	var addrs []common.Address
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, fmt.Errorf("storage: scan address: %w", err)
		}
		addrs = append(addrs, common.HexToAddress(hex))
	}
	return addrs, rows.Err()
}

// DeletePositions archives the given addresses out of the durable store.
func (s *SQLiteStorage) DeletePositions(ctx context.Context, addrs []common.Address) error {
	if len(addrs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin delete: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM positions WHERE address = ?`)
	if err != nil {
		return fmt.Errorf("storage: prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, addr := range addrs {
		if _, err := stmt.ExecContext(ctx, addr.Hex()); err != nil {
			return fmt.Errorf("storage: delete %s: %w", addr, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit delete: %w", err)
	}

	s.mu.Lock()
	for _, addr := range addrs {
		delete(s.cache, addr)
	}
	s.mu.Unlock()
	return nil
}

// RecordLiquidationEvent appends an audit row for a submitted liquidation.
func (s *SQLiteStorage) RecordLiquidationEvent(ctx context.Context, result domain.LiquidationResult, opp domain.Opportunity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO liquidation_events
			(address, collateral_asset, debt_asset, debt_to_cover, collateral_received,
			 net_profit, succeeded, tx_hash, gas_used, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		opp.User.Hex(),
		opp.CollateralAsset.Hex(),
		opp.DebtAsset.Hex(),
		bigString(opp.DebtToCover),
		bigString(opp.CollateralReceived),
		bigString(opp.NetProfit),
		boolToInt(result.Succeeded),
		result.TxHash.Hex(),
		result.GasUsed,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: record liquidation event for %s: %w", opp.User, err)
	}
	return nil
}

// RecordMonitoringEvent appends a free-form operational log entry, keyed by
// a generated uuid rather than an autoincrement counter so ids stay stable
// across a future migration to a replicated store.
func (s *SQLiteStorage) RecordMonitoringEvent(ctx context.Context, kind string, addr *common.Address, detail string) error {
	var addrStr sql.NullString
	if addr != nil {
		addrStr = sql.NullString{String: addr.Hex(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitoring_events (id, kind, address, detail, created_at) VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), kind, addrStr, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: record monitoring event %s: %w", kind, err)
	}
	return nil
}

// RecordPriceFeed appends an oracle observation for historical audit.
func (s *SQLiteStorage) RecordPriceFeed(ctx context.Context, asset common.Address, price uint64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_feeds (asset, price, observed_at) VALUES (?, ?, ?)
	`, asset.Hex(), price, at.UTC())
	if err != nil {
		return fmt.Errorf("storage: record price feed %s: %w", asset, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// warmCache preloads the write-suppression cache from existing rows so a
// restart doesn't cause a burst of redundant writes on the first cycle.
func (s *SQLiteStorage) warmCache(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, health_factor, is_at_risk FROM positions`)
	if err != nil {
		return
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var addrHex, hf string
		var isAtRisk int
		if rows.Scan(&addrHex, &hf, &isAtRisk) == nil {
			s.cache[common.HexToAddress(addrHex)] = cachedPosition{
				healthFactor: parseBig(hf),
				isAtRisk:     isAtRisk == 1,
			}
		}
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// relChange returns the relative change between two *big.Int values as a
// float in [0, +Inf); a nil or zero baseline forces a write. The ratio is
// computed with big.Float because an 18-decimal health factor above ~9.2
// no longer fits in an int64.
func relChange(old, new *big.Int) float64 {
	if old == nil || old.Sign() == 0 {
		return 1.0
	}
	if new == nil {
		new = big.NewInt(0)
	}
	diff := big.NewInt(0).Sub(new, old)
	diff.Abs(diff)
	oldAbs := big.NewInt(0).Abs(old)
	ratio, _ := big.NewFloat(0).Quo(big.NewFloat(0).SetInt(diff), big.NewFloat(0).SetInt(oldAbs)).Float64()
	return ratio
}
