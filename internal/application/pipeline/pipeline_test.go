package pipeline

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baseliq/liquidator/internal/domain"
	"github.com/baseliq/liquidator/internal/ports"
)

var (
	testWETH = domain.AssetConfig{Symbol: "WETH", Decimals: 18, LiquidationBonus: 500, AssetID: 0, Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), IsCollateral: true, IsBorrowable: true}
	testUSDC = domain.AssetConfig{Symbol: "USDC", Decimals: 6, LiquidationBonus: 450, AssetID: 1, Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), IsCollateral: true, IsBorrowable: true}
)

func testRegistry() *AssetRegistry {
	return NewAssetRegistry([]domain.AssetConfig{testWETH, testUSDC})
}

// collateral bit for asset 0 (WETH), borrow bit for asset 1 (USDC):
// bit 0 (2*0) = collateral asset 0, bit 3 (2*1+1) = borrow asset 1.
func bitmapWethCollateralUsdcDebt() *big.Int {
	return big.NewInt(0b1001)
}

type fakePool struct {
	account ports.AccountData
	config  *big.Int
	err     error
}

func (f *fakePool) GetUserAccountData(_ context.Context, _ common.Address) (ports.AccountData, error) {
	if f.err != nil {
		return ports.AccountData{}, f.err
	}
	return f.account, nil
}
func (f *fakePool) GetUserConfiguration(_ context.Context, _ common.Address) (*big.Int, error) {
	return f.config, nil
}
func (f *fakePool) GetReservesList(_ context.Context) ([]common.Address, error) { return nil, nil }

type fakeExecutor struct {
	mu        sync.Mutex
	execCount int
	gasPrice  uint64
	result    domain.LiquidationResult
	err       error
	lastParams domain.LiquidationParams
}

func (f *fakeExecutor) Execute(_ context.Context, params domain.LiquidationParams) (domain.LiquidationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execCount++
	f.lastParams = params
	return f.result, f.err
}
func (f *fakeExecutor) CurrentGasPrice(_ context.Context) (uint64, error) { return f.gasPrice, nil }

type fakeStore struct {
	mu     sync.Mutex
	events []domain.LiquidationResult
}

func (s *fakeStore) UpsertPosition(_ context.Context, _ domain.Position) error { return nil }
func (s *fakeStore) GetPosition(_ context.Context, _ common.Address) (domain.Position, bool, error) {
	return domain.Position{}, false, nil
}
func (s *fakeStore) AllAddresses(_ context.Context) ([]common.Address, error) { return nil, nil }
func (s *fakeStore) DeletePositions(_ context.Context, _ []common.Address) error { return nil }
func (s *fakeStore) RecordLiquidationEvent(_ context.Context, evt domain.LiquidationResult, _ domain.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}
func (s *fakeStore) RecordMonitoringEvent(_ context.Context, _ string, _ *common.Address, _ string) error {
	return nil
}
func (s *fakeStore) RecordPriceFeed(_ context.Context, _ common.Address, _ uint64, _ time.Time) error {
	return nil
}
func (s *fakeStore) Close() error { return nil }

func closedBreaker() *domain.CircuitBreaker {
	return domain.NewCircuitBreaker(domain.BreakerThresholds{
		MaxVolatilityPercent:  100,
		MaxLiquidationsPerMin: 1_000_000,
		MaxGasMultiplier:      1_000,
		MonitoringWindow:      time.Minute,
		CooldownPeriod:        time.Minute,
		HalfOpenProbeInterval: time.Second,
	}, true)
}

func TestPipeline_ConsiderAndAttempt_HealthyPositionSkipped(t *testing.T) {
	pool := &fakePool{account: ports.AccountData{
		HealthFactor:  domain.WAD, // >= WAD, healthy
		TotalDebtBase: big.NewInt(100_000_000_000_000),
	}}
	exec := &fakeExecutor{gasPrice: 1000}
	store := &fakeStore{}
	p := New(testRegistry(), pool, exec, store, closedBreaker(), Config{Workers: 1, GasLimit: 800_000})

	p.considerAndAttempt(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"))
	assert.Equal(t, 0, exec.execCount)
}

func TestPipeline_ConsiderAndAttempt_DustSkipped(t *testing.T) {
	hf := new(big.Int).Div(domain.WAD, big.NewInt(2))
	pool := &fakePool{account: ports.AccountData{
		HealthFactor:  hf,
		TotalDebtBase: big.NewInt(1), // far below the dust floor
	}, config: bitmapWethCollateralUsdcDebt()}
	exec := &fakeExecutor{gasPrice: 1000}
	store := &fakeStore{}
	p := New(testRegistry(), pool, exec, store, closedBreaker(), Config{Workers: 1, GasLimit: 800_000})

	p.considerAndAttempt(context.Background(), common.HexToAddress("0x2222222222222222222222222222222222222222"))
	assert.Equal(t, 0, exec.execCount)
}

func TestPipeline_ConsiderAndAttempt_ProfitableLiquidationExecutes(t *testing.T) {
	hf := new(big.Int).Div(domain.WAD, big.NewInt(2))
	pool := &fakePool{
		account: ports.AccountData{HealthFactor: hf, TotalDebtBase: big.NewInt(10_000_000_000_000_000)}, // debt to cover 5e15, above the dust floor
		config:  bitmapWethCollateralUsdcDebt(),
	}
	exec := &fakeExecutor{gasPrice: 1000, result: domain.LiquidationResult{Succeeded: true}}
	store := &fakeStore{}
	p := New(testRegistry(), pool, exec, store, closedBreaker(), Config{Workers: 1, GasLimit: 800_000, MinProfitWei: big.NewInt(0)})

	addr := common.HexToAddress("0x3333333333333333333333333333333333333333")
	p.considerAndAttempt(context.Background(), addr)

	require.Equal(t, 1, exec.execCount)
	assert.Equal(t, addr, exec.lastParams.User)
	assert.Equal(t, testWETH.Address, exec.lastParams.CollateralAsset)
	assert.Equal(t, testUSDC.Address, exec.lastParams.DebtAsset)
	require.Len(t, store.events, 1)
	assert.True(t, store.events[0].Succeeded)
}

func TestPipeline_ConsiderAndAttempt_UnprofitableSkipsExecution(t *testing.T) {
	hf := new(big.Int).Div(domain.WAD, big.NewInt(2))
	pool := &fakePool{
		account: ports.AccountData{HealthFactor: hf, TotalDebtBase: big.NewInt(10_000_000_000_000_000)}, // debt to cover 5e15, above the dust floor
		config:  bitmapWethCollateralUsdcDebt(),
	}
	exec := &fakeExecutor{gasPrice: 1000}
	store := &fakeStore{}
	// Profit bar of 1e15 is above this position's ~1.95e14 net profit.
	p := New(testRegistry(), pool, exec, store, closedBreaker(), Config{Workers: 1, GasLimit: 800_000, MinProfitWei: big.NewInt(1_000_000_000_000_000)})

	p.considerAndAttempt(context.Background(), common.HexToAddress("0x4444444444444444444444444444444444444444"))
	assert.Equal(t, 0, exec.execCount)
}

func TestPipeline_Attempt_BlockedByOpenBreaker(t *testing.T) {
	breaker := domain.NewCircuitBreaker(domain.BreakerThresholds{
		MaxVolatilityPercent:  1,
		MaxLiquidationsPerMin: 1,
		MaxGasMultiplier:      1,
		MonitoringWindow:      time.Minute,
		CooldownPeriod:        time.Hour,
		HalfOpenProbeInterval: time.Second,
	}, true)
	spike := 200_000_000_000.0
	breaker.RecordPriceUpdate(nil, &spike) // trips the breaker open
	require.Equal(t, domain.BreakerOpen, breaker.State())

	pool := &fakePool{}
	exec := &fakeExecutor{}
	store := &fakeStore{}
	p := New(testRegistry(), pool, exec, store, breaker, Config{Workers: 1})

	p.attempt(context.Background(), domain.Opportunity{
		User: common.HexToAddress("0x5555555555555555555555555555555555555555"),
	})

	assert.Equal(t, 0, exec.execCount)
	assert.Equal(t, uint64(1), breaker.Stats().TotalLiquidationsBlocked)
}

func TestPipeline_FastPathCandidate_DedupesWithinWindow(t *testing.T) {
	p := New(testRegistry(), &fakePool{}, &fakeExecutor{}, &fakeStore{}, closedBreaker(), Config{Workers: 1})
	addr := common.HexToAddress("0x6666666666666666666666666666666666666666")
	now := time.Now()

	assert.True(t, p.FastPathCandidate(addr, now))
	assert.False(t, p.FastPathCandidate(addr, now.Add(time.Second)))
	assert.True(t, p.FastPathCandidate(addr, now.Add(3*time.Second)))
}

func TestPipeline_ReservesFromConfig_DecodesCollateralAndDebtBits(t *testing.T) {
	p := New(testRegistry(), &fakePool{}, &fakeExecutor{}, &fakeStore{}, closedBreaker(), Config{Workers: 1})

	collaterals, debts := p.reservesFromConfig(bitmapWethCollateralUsdcDebt())
	require.Len(t, collaterals, 1)
	require.Len(t, debts, 1)
	assert.Equal(t, testWETH.Address, collaterals[0].Address)
	assert.Equal(t, testUSDC.Address, debts[0].Address)
}

func TestPipeline_RunNormalTrack_DrainsChannelUntilClosed(t *testing.T) {
	hf := new(big.Int).Div(domain.WAD, big.NewInt(2))
	pool := &fakePool{
		account: ports.AccountData{HealthFactor: hf, TotalDebtBase: big.NewInt(10_000_000_000_000_000)}, // debt to cover 5e15, above the dust floor
		config:  bitmapWethCollateralUsdcDebt(),
	}
	exec := &fakeExecutor{gasPrice: 1000, result: domain.LiquidationResult{Succeeded: true}}
	store := &fakeStore{}
	p := New(testRegistry(), pool, exec, store, closedBreaker(), Config{Workers: 2, GasLimit: 800_000, MinProfitWei: big.NewInt(0)})

	changed := make(chan domain.PositionChanged, 2)
	changed <- domain.PositionChanged{Address: common.HexToAddress("0x7777777777777777777777777777777777777777")}
	changed <- domain.PositionChanged{Address: common.HexToAddress("0x8888888888888888888888888888888888888888")}
	close(changed)

	done := make(chan struct{})
	go func() {
		p.RunNormalTrack(context.Background(), changed)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunNormalTrack did not return after the channel closed")
	}

	assert.Equal(t, 2, exec.execCount)
}
