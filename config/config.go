package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/baseliq/liquidator/internal/domain"
)

// Config is the complete liquidation agent configuration.
type Config struct {
	Chain          ChainConfig          `yaml:"chain"`
	Assets         AssetsConfig         `yaml:"assets"`
	Health         HealthConfig         `yaml:"health"`
	Discovery      DiscoveryConfig      `yaml:"discovery"`
	Liquidation    LiquidationConfig    `yaml:"liquidation"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	FastPath       FastPathConfig       `yaml:"fast_path"`
	Storage        StorageConfig        `yaml:"storage"`
	Log            LogConfig            `yaml:"log"`
}

// ChainConfig holds transport and signing configuration.
type ChainConfig struct {
	RPCURL             string `yaml:"rpc_url"`
	WSURL              string `yaml:"ws_url"`
	PrivateKey         string `yaml:"private_key"`
	PoolAddress        string `yaml:"pool_address"` // required; never inferred from rpc_url
	ExecutorContract   string `yaml:"executor_contract"`
	ChainID            int64  `yaml:"chain_id"`
}

// AssetsConfig controls how reserve configuration is built at startup.
type AssetsConfig struct {
	LoadingMethod string            `yaml:"loading_method"` // fully_dynamic | from_file | hardcoded | dynamic_with_fallback
	FilePath      string            `yaml:"file_path"`
	OracleFeeds   map[string]string `yaml:"oracle_feeds"` // asset symbol -> Chainlink feed address
}

// HealthConfig controls the Health Evaluator and position lifecycle.
type HealthConfig struct {
	HealthFactorThreshold        float64 `yaml:"health_factor_threshold"`
	MonitoringIntervalSecs       int     `yaml:"monitoring_interval_secs"`
	AtRiskScanLimit              int     `yaml:"at_risk_scan_limit"` // not read: the short cycle re-evaluates every at-risk address
	FullRescanIntervalMinutes    int     `yaml:"full_rescan_interval_minutes"`
	ArchiveZeroDebtUsers         bool    `yaml:"archive_zero_debt_users"`
	ZeroDebtCooldownHours        int     `yaml:"zero_debt_cooldown_hours"`
	SafeHealthFactorThreshold    float64 `yaml:"safe_health_factor_threshold"`
}

// DiscoveryConfig controls the initial backfill scan.
type DiscoveryConfig struct {
	BackfillBlocks uint64 `yaml:"backfill_blocks"`
	SoftCap        int    `yaml:"soft_cap"`
	ChunkBlocks    uint64 `yaml:"chunk_blocks"`
}

// LiquidationConfig controls the profitability gate and transaction policy.
type LiquidationConfig struct {
	MinProfitThreshold string  `yaml:"min_profit_threshold"` // decimal string, base-currency units
	GasPriceMultiplier float64 `yaml:"gas_price_multiplier"`
	GasLimitDefault    uint64  `yaml:"gas_limit_default"`
	TargetUser         string  `yaml:"target_user"` // optional single-address restriction; not read by any component, so no restriction is applied
}

// CircuitBreakerConfig mirrors domain.BreakerThresholds plus the enable flag.
type CircuitBreakerConfig struct {
	Enabled                     bool    `yaml:"enabled"`
	MaxPriceVolatilityThreshold float64 `yaml:"max_price_volatility_threshold"`
	MaxLiquidationsPerMinute    uint64  `yaml:"max_liquidations_per_minute"`
	MonitoringWindowSecs        int     `yaml:"monitoring_window_secs"`
	CooldownSecs                int     `yaml:"cooldown_secs"`
	MinGasPriceMultiplier       uint64  `yaml:"min_gas_price_multiplier"`
	MaxGasPriceMultiplier       uint64  `yaml:"max_gas_price_multiplier"`
}

// FastPathConfig gates the WebSocket fast-path liquidation channel.
type FastPathConfig struct {
	Enabled         bool `yaml:"enabled"`
	DedupeWindowSecs int  `yaml:"dedupe_window_secs"` // not read: the pipeline's fast-path dedupe window is a fixed 2s
}

// StorageConfig controls where durable data is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig controls logging format and verbosity.
type LogConfig struct {
	Level         string `yaml:"level"`  // debug | info | warn | error
	Format        string `yaml:"format"` // text | json
	VerboseEvents bool   `yaml:"verbose_events"` // log per-attempt/per-position detail at info level, independent of Level
}

// Load reads the YAML config file and an optional .env file (.env values
// take precedence for the keys they cover), then fills in defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if cfg.Chain.RPCURL == "" {
		return nil, fmt.Errorf("config.Load: chain.rpc_url is required: %w", domain.ErrConfiguration)
	}
	if cfg.Chain.PrivateKey == "" {
		return nil, fmt.Errorf("config.Load: chain.private_key is required: %w", domain.ErrConfiguration)
	}
	if cfg.Chain.PoolAddress == "" || common.HexToAddress(cfg.Chain.PoolAddress) == (common.Address{}) {
		return nil, fmt.Errorf("config.Load: chain.pool_address is required and must be non-zero (not inferred from rpc_url): %w", domain.ErrConfiguration)
	}

	return &cfg, nil
}

// MonitoringInterval returns the health-evaluation cadence as a Duration.
func (c *Config) MonitoringInterval() time.Duration {
	return time.Duration(c.Health.MonitoringIntervalSecs) * time.Second
}

// FullRescanInterval returns the long-cycle cadence as a Duration.
func (c *Config) FullRescanInterval() time.Duration {
	return time.Duration(c.Health.FullRescanIntervalMinutes) * time.Minute
}

// applyEnvOverrides overrides select values from environment variables,
// letting secrets and per-deployment knobs stay out of the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("WS_URL"); v != "" {
		cfg.Chain.WSURL = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := os.Getenv("POOL_ADDRESS"); v != "" {
		cfg.Chain.PoolAddress = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills in sensible defaults for anything left unset.
func setDefaults(cfg *Config) {
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 8453 // Base mainnet
	}
	if cfg.Assets.LoadingMethod == "" {
		cfg.Assets.LoadingMethod = "dynamic_with_fallback"
	}
	if cfg.Health.HealthFactorThreshold <= 0 {
		cfg.Health.HealthFactorThreshold = 1.1
	}
	if cfg.Health.MonitoringIntervalSecs <= 0 {
		cfg.Health.MonitoringIntervalSecs = 5
	}
	if cfg.Health.AtRiskScanLimit <= 0 {
		cfg.Health.AtRiskScanLimit = 200
	}
	if cfg.Health.FullRescanIntervalMinutes <= 0 {
		cfg.Health.FullRescanIntervalMinutes = 15
	}
	if cfg.Health.ZeroDebtCooldownHours <= 0 {
		cfg.Health.ZeroDebtCooldownHours = 24
	}
	if cfg.Health.SafeHealthFactorThreshold <= 0 {
		cfg.Health.SafeHealthFactorThreshold = 2.0
	}
	if cfg.Discovery.BackfillBlocks <= 0 {
		cfg.Discovery.BackfillBlocks = 50_000
	}
	if cfg.Discovery.SoftCap <= 0 {
		cfg.Discovery.SoftCap = 1_000
	}
	if cfg.Discovery.ChunkBlocks <= 0 {
		cfg.Discovery.ChunkBlocks = 500
	}
	if cfg.Liquidation.MinProfitThreshold == "" {
		cfg.Liquidation.MinProfitThreshold = "5000000000000000000" // 5 ETH wei
	}
	if cfg.Liquidation.GasPriceMultiplier <= 0 {
		cfg.Liquidation.GasPriceMultiplier = 2.0
	}
	if cfg.Liquidation.GasLimitDefault == 0 {
		cfg.Liquidation.GasLimitDefault = 800_000
	}
	if cfg.CircuitBreaker.MaxPriceVolatilityThreshold <= 0 {
		cfg.CircuitBreaker.MaxPriceVolatilityThreshold = 10.0
	}
	if cfg.CircuitBreaker.MaxLiquidationsPerMinute == 0 {
		cfg.CircuitBreaker.MaxLiquidationsPerMinute = 10
	}
	if cfg.CircuitBreaker.MonitoringWindowSecs <= 0 {
		cfg.CircuitBreaker.MonitoringWindowSecs = 300
	}
	if cfg.CircuitBreaker.CooldownSecs <= 0 {
		cfg.CircuitBreaker.CooldownSecs = 600
	}
	if cfg.CircuitBreaker.MaxGasPriceMultiplier == 0 {
		cfg.CircuitBreaker.MaxGasPriceMultiplier = 5
	}
	if cfg.FastPath.DedupeWindowSecs <= 0 {
		cfg.FastPath.DedupeWindowSecs = 2
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "liquidator.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
