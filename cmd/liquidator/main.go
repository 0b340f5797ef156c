package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"gopkg.in/yaml.v3"

	"github.com/baseliq/liquidator/config"
	"github.com/baseliq/liquidator/internal/adapters/notify"
	"github.com/baseliq/liquidator/internal/adapters/onchain"
	"github.com/baseliq/liquidator/internal/adapters/storage"
	"github.com/baseliq/liquidator/internal/application/discovery"
	"github.com/baseliq/liquidator/internal/application/health"
	"github.com/baseliq/liquidator/internal/application/pipeline"
	"github.com/baseliq/liquidator/internal/domain"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print status as a table instead of one compact line")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("liquidator starting",
		"config", *configPath,
		"chain_id", cfg.Chain.ChainID,
		"monitoring_interval", cfg.MonitoringInterval(),
		"full_rescan_interval", cfg.FullRescanInterval(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		slog.Error("failed to dial RPC", "err", err, "url", cfg.Chain.RPCURL)
		os.Exit(1)
	}

	pushMode := false
	wsClient := client
	if cfg.Chain.WSURL != "" {
		wsClient, err = ethclient.DialContext(ctx, cfg.Chain.WSURL)
		if err != nil {
			slog.Warn("failed to dial WebSocket endpoint, falling back to polling", "err", err, "url", cfg.Chain.WSURL)
			wsClient = client
		} else {
			pushMode = true
		}
	}

	poolAddress := common.HexToAddress(cfg.Chain.PoolAddress)
	executorAddress := common.HexToAddress(cfg.Chain.ExecutorContract)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewConsole(*table)

	poolClient := onchain.NewPoolClient(client, poolAddress)
	oracleClient := onchain.NewOracleClient(client)

	chainID := big.NewInt(cfg.Chain.ChainID)
	executor, err := onchain.NewLiquidationExecutor(client, cfg.Chain.PrivateKey, executorAddress, chainID, cfg.Liquidation.GasPriceMultiplier)
	if err != nil {
		slog.Error("failed to construct executor", "err", err)
		os.Exit(1)
	}
	if err := executor.VerifyContractSetup(ctx, poolAddress); err != nil {
		slog.Warn("executor setup verification failed", "err", err)
	}

	assets := loadAssets(ctx, cfg, poolClient)
	registry := pipeline.NewAssetRegistry(assets)

	breaker := domain.NewCircuitBreaker(domain.BreakerThresholds{
		MaxVolatilityPercent:  cfg.CircuitBreaker.MaxPriceVolatilityThreshold,
		MaxLiquidationsPerMin: cfg.CircuitBreaker.MaxLiquidationsPerMinute,
		MaxGasMultiplier:      cfg.CircuitBreaker.MaxGasPriceMultiplier,
		MonitoringWindow:      secondsToDuration(cfg.CircuitBreaker.MonitoringWindowSecs),
		CooldownPeriod:        secondsToDuration(cfg.CircuitBreaker.CooldownSecs),
	}, cfg.CircuitBreaker.Enabled)

	minProfit, ok := new(big.Int).SetString(cfg.Liquidation.MinProfitThreshold, 10)
	if !ok {
		slog.Error("invalid liquidation.min_profit_threshold", "value", cfg.Liquidation.MinProfitThreshold)
		os.Exit(1)
	}

	pipe := pipeline.New(registry, poolClient, executor, store, breaker, pipeline.Config{
		GasLimit:      cfg.Liquidation.GasLimitDefault,
		MinProfitWei:  minProfit,
		ReceiveAToken: false,
		VerboseEvents: cfg.Log.VerboseEvents,
	})

	evaluator := health.New(poolClient, health.Config{
		Threshold: floatToWad(cfg.Health.HealthFactorThreshold),
	})

	disc := discovery.New(client, onchain.NewPoolEventSource(client, poolAddress, false), evaluator, store, poolClient, reservesByAssetID(assets), discovery.Config{
		BackfillBlocks: cfg.Discovery.BackfillBlocks,
		ChunkBlocks:    cfg.Discovery.ChunkBlocks,
		SoftCap:        cfg.Discovery.SoftCap,
		ShortCycle:     cfg.MonitoringInterval(),
		LongCycle:      cfg.FullRescanInterval(),
		VerboseEvents:  cfg.Log.VerboseEvents,
	})

	if err := disc.Backfill(ctx); err != nil {
		slog.Warn("initial backfill failed, continuing with live tracking only", "err", err)
	}

	changed := make(chan domain.PositionChanged, 256)
	rawLogs := make(chan domain.RawLog, 256)
	fastPath := make(chan common.Address, 64)

	eventSource := onchain.NewPoolEventSource(wsClient, poolAddress, pushMode)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eventSource.Run(ctx, rawLogs); err != nil && ctx.Err() == nil {
			slog.Error("chain event source exited", "err", err)
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				close(changed)
				return
			case lg, ok := <-rawLogs:
				if !ok {
					close(changed)
					return
				}
				addr, ok := lg.UserAddress()
				if !ok {
					continue
				}
				if lg.Kind == domain.EventLiquidationCall {
					select {
					case fastPath <- addr:
					default:
					}
					continue
				}
				disc.OnPositionChanged(ctx, addr, changed)
			}
		}
	}()

	for symbol, feedHex := range cfg.Assets.OracleFeeds {
		feedAddr := common.HexToAddress(feedHex)

		if price, err := oracleClient.LatestPrice(ctx, feedAddr); err != nil {
			slog.Warn("initial oracle read failed", "symbol", symbol, "err", err)
		} else {
			slog.Info("oracle feed online", "symbol", symbol, "feed", feedAddr, "price", price)
		}

		feedSource := onchain.NewOracleEventSource(wsClient, feedAddr, pushMode)
		updates := make(chan domain.AnswerUpdate, 32)

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			if err := feedSource.Run(ctx, updates); err != nil && ctx.Err() == nil {
				slog.Error("oracle feed source exited", "symbol", symbol, "err", err)
				cancel()
			}
		}(symbol)

		wg.Add(1)
		go func(symbol string, feedAddr common.Address) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case update, ok := <-updates:
					if !ok {
						return
					}
					price, _ := new(big.Float).SetInt(update.Answer).Float64()
					breaker.RecordPriceUpdate(&price, nil)
					if err := store.RecordPriceFeed(ctx, feedAddr, update.Answer.Uint64(), timeFromUnix(update.UpdatedAt)); err != nil {
						slog.Warn("record price feed failed", "symbol", symbol, "err", err)
					}
				}
			}
		}(symbol, feedAddr)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		disc.RunShortCycle(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		disc.RunLongCycle(ctx)
	}()

	if cfg.Health.ArchiveZeroDebtUsers {
		safeThreshold := floatToWad(cfg.Health.SafeHealthFactorThreshold)
		cooldown := time.Duration(cfg.Health.ZeroDebtCooldownHours) * time.Hour
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(cfg.FullRescanInterval())
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := disc.ArchiveZeroDebt(ctx, safeThreshold, cooldown); err != nil {
						slog.Warn("archive zero-debt users failed", "err", err)
					}
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pipe.RunNormalTrack(ctx, changed)
	}()

	if cfg.FastPath.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pipe.RunFastPath(ctx, fastPath)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case alert, ok := <-breaker.Alerts():
				if !ok {
					return
				}
				if err := notifier.NotifyAlert(ctx, alert); err != nil {
					slog.Warn("notify alert failed", "err", err)
				}
				detail := fmt.Sprintf("[%s] %s", alert.ID, alert.Message)
				if err := store.RecordMonitoringEvent(ctx, "circuit_breaker_"+string(alert.NewState), nil, detail); err != nil {
					slog.Warn("record circuit breaker alert failed", "err", err)
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.MonitoringInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report := breaker.StatusReport()
				report.TrackedAssets = registry.Symbols()
				if err := notifier.NotifyStatus(ctx, report); err != nil {
					slog.Warn("notify status failed", "err", err)
				}
			}
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, waiting for tasks to stop")
	wg.Wait()
	slog.Info("liquidator stopped cleanly")
}

func secondsToDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

func timeFromUnix(secs int64) time.Time {
	return time.Unix(secs, 0).UTC()
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func floatToWad(v float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(v), new(big.Float).SetInt(domain.WAD))
	out, _ := f.Int(nil)
	return out
}

// loadAssets builds the reserve configuration per cfg.Assets.LoadingMethod,
// falling back to the hardcoded Base mainnet list when a dynamic read fails
// and the method allows it.
func loadAssets(ctx context.Context, cfg *config.Config, pool *onchain.PoolClient) []domain.AssetConfig {
	switch cfg.Assets.LoadingMethod {
	case "hardcoded":
		return pipeline.HardcodedBaseAssets()
	case "from_file":
		assets, err := assetsFromFile(cfg.Assets.FilePath)
		if err != nil {
			slog.Error("asset file load failed", "path", cfg.Assets.FilePath, "err", err)
			os.Exit(1)
		}
		return assets
	case "fully_dynamic", "dynamic_with_fallback":
		list, err := pool.GetReservesList(ctx)
		if err != nil {
			if cfg.Assets.LoadingMethod == "dynamic_with_fallback" {
				slog.Warn("dynamic asset load failed, using hardcoded fallback", "err", err)
				return pipeline.HardcodedBaseAssets()
			}
			slog.Error("fully dynamic asset load failed", "err", err)
			os.Exit(1)
		}
		return assetsFromReservesList(list)
	default:
		return pipeline.HardcodedBaseAssets()
	}
}

// fileAsset is the YAML shape of one entry in an assets file loaded under
// the from_file loading method; addresses are hex strings since common.Address
// has no native YAML encoding.
type fileAsset struct {
	Address          string `yaml:"address"`
	Symbol           string `yaml:"symbol"`
	Decimals         uint8  `yaml:"decimals"`
	AssetID          uint16 `yaml:"asset_id"`
	LiquidationBonus uint32 `yaml:"liquidation_bonus"`
	IsCollateral     bool   `yaml:"is_collateral"`
	IsBorrowable     bool   `yaml:"is_borrowable"`
}

// assetsFromFile reads a YAML reserve list from disk, the from_file asset
// loading method (assets.file_path).
func assetsFromFile(path string) ([]domain.AssetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []fileAsset
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	out := make([]domain.AssetConfig, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.AssetConfig{
			Address:          common.HexToAddress(e.Address),
			Symbol:           e.Symbol,
			Decimals:         e.Decimals,
			AssetID:          e.AssetID,
			LiquidationBonus: e.LiquidationBonus,
			IsCollateral:     e.IsCollateral,
			IsBorrowable:     e.IsBorrowable,
		})
	}
	return out, nil
}

// reservesByAssetID builds the ordered reserve-address slice discovery's
// collateral index needs: index i holds the reserve address for asset id i,
// matching GetUserConfiguration's bit layout.
func reservesByAssetID(assets []domain.AssetConfig) []common.Address {
	maxID := 0
	for _, a := range assets {
		if int(a.AssetID) > maxID {
			maxID = int(a.AssetID)
		}
	}
	out := make([]common.Address, maxID+1)
	for _, a := range assets {
		out[a.AssetID] = a.Address
	}
	return out
}

// assetsFromReservesList builds minimal AssetConfig entries (address + id)
// from a bare reserve list. Reserves found in the hardcoded Base list keep
// that entry with the asset id replaced; any other reserve gets a symbol
// taken from its address hex, 18 decimals, a zero liquidation bonus, and
// both the collateral and borrowable flags set.
func assetsFromReservesList(list []common.Address) []domain.AssetConfig {
	hardcoded := pipeline.NewAssetRegistry(pipeline.HardcodedBaseAssets())
	out := make([]domain.AssetConfig, 0, len(list))
	for i, addr := range list {
		if known, ok := hardcoded.Lookup(addr); ok {
			known.AssetID = uint16(i)
			out = append(out, known)
			continue
		}
		out = append(out, domain.AssetConfig{
			Address:      addr,
			AssetID:      uint16(i),
			Symbol:       strings.ToUpper(addr.Hex()[2:8]),
			Decimals:     18,
			IsCollateral: true,
			IsBorrowable: true,
		})
	}
	return out
}
