package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full recognized configuration surface for the bot,
// loaded once at startup and never mutated at runtime (besides the
// explicit operator risk override the orchestrator keeps in memory).
type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Trading   TradingConfig   `yaml:"trading"`
	Optimize  OptimizerConfig `yaml:"optimizer"`
	Fees      FeeFilterConfig `yaml:"fees"`
	MEV       MEVConfig       `yaml:"mev"`
	Risk      RiskConfig      `yaml:"risk"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Store     StoreConfig     `yaml:"store"`
	Journal   JournalConfig   `yaml:"journal"`
	RPC       RPCConfig       `yaml:"rpc"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type TradingConfig struct {
	InputMint            string        `yaml:"input_mint"`
	OutputMint           string        `yaml:"output_mint"`
	GridLevels           int           `yaml:"grid_levels"`
	BaseSpacingPercent   float64       `yaml:"base_spacing_percent"`
	BasePositionSize     float64       `yaml:"base_position_size"`
	RepositionThreshold  float64       `yaml:"reposition_threshold"`
	OrderMaxAge          time.Duration `yaml:"order_max_age"`
	OrderRefreshInterval time.Duration `yaml:"order_refresh_interval"`
	MinVolatilityToTrade float64       `yaml:"min_volatility_to_trade"`
	EnableRegimeGate     bool          `yaml:"enable_regime_gate"`
	MaxFeedSilence       time.Duration `yaml:"max_feed_silence"`
}

type OptimizerConfig struct {
	Enabled                      bool    `yaml:"enabled"`
	OptimizationIntervalCycles   int     `yaml:"optimization_interval_cycles"`
	LowDrawdownPct               float64 `yaml:"low_drawdown_pct"`
	ModerateDrawdownPct          float64 `yaml:"moderate_drawdown_pct"`
	HighDrawdownPct              float64 `yaml:"high_drawdown_pct"`
	EmergencyDrawdownPct         float64 `yaml:"emergency_drawdown_pct"`
	SpacingTightenMultiplier     float64 `yaml:"spacing_tighten_multiplier"`
	SpacingWidenMultiplier       float64 `yaml:"spacing_widen_multiplier"`
	SpacingEmergencyMultiplier   float64 `yaml:"spacing_emergency_multiplier"`
	HighEfficiencyThreshold      float64 `yaml:"high_efficiency_threshold"`
	LowEfficiencyThreshold       float64 `yaml:"low_efficiency_threshold"`
	SizeHighEfficiencyMultiplier float64 `yaml:"size_high_efficiency_multiplier"`
	SizeLowEfficiencyMultiplier  float64 `yaml:"size_low_efficiency_multiplier"`
	WinStreakBonusMax            float64 `yaml:"win_streak_bonus_max"`
	LossStreakPenaltyMax         float64 `yaml:"loss_streak_penalty_max"`
	StreakThreshold              int     `yaml:"streak_threshold"`
	MinSpacingAbsolute           float64 `yaml:"min_spacing_absolute"`
	MaxSpacingAbsolute           float64 `yaml:"max_spacing_absolute"`
	MinPositionAbsolute          float64 `yaml:"min_position_absolute"`
	MaxPositionAbsolute          float64 `yaml:"max_position_absolute"`
}

type FeeFilterConfig struct {
	MakerFeePercent         float64 `yaml:"maker_fee_percent"`
	TakerFeePercent         float64 `yaml:"taker_fee_percent"`
	SlippagePercent         float64 `yaml:"slippage_percent"`
	MinProfitMultiplier     float64 `yaml:"min_profit_multiplier"`
	VolatilityScalingFactor float64 `yaml:"volatility_scaling_factor"`
	EnableMarketImpact      bool    `yaml:"enable_market_impact"`
	EnableRegimeAdjustment  bool    `yaml:"enable_regime_adjustment"`
	GracePeriodTrades       int     `yaml:"grace_period_trades"`
}

type MEVConfig struct {
	PriorityFeeTargetPercentile float64 `yaml:"priority_fee_target_percentile"`
	SampleSize                  int     `yaml:"sample_size"`
	MinFeeMicroLamports          uint64 `yaml:"min_fee"`
	MaxFeeMicroLamports          uint64 `yaml:"max_fee"`
	MaxSlippageBps               int    `yaml:"max_slippage_bps"`
	VolatilityMultiplier         float64 `yaml:"volatility_multiplier"`
	BundleEnabled                bool   `yaml:"bundle_enabled"`
	TipLamports                  uint64 `yaml:"tip_lamports"`
	MaxBundleSize                int    `yaml:"max_bundle_size"`
	SlotWindow                   int    `yaml:"slot_window"`
}

type RiskConfig struct {
	CircuitBreakerMaxLossPct float64       `yaml:"circuit_breaker_max_loss_pct"`
	EmergencyDrawdownPct     float64       `yaml:"emergency_drawdown_pct"`
	StopLossPct              float64       `yaml:"stop_loss_pct"`
	MaxPositionSize          float64       `yaml:"max_position_size"`
	MaxDailyTrades           int           `yaml:"max_daily_trades"`
	MaxDailyVolume           float64       `yaml:"max_daily_volume"`
	BreakerCooldown          time.Duration `yaml:"breaker_cooldown"`
}

type StrategyWeightConfig struct {
	Weight        float64 `yaml:"weight"`
	MinConfidence float64 `yaml:"min_confidence"`
}

type ConsensusConfig struct {
	Mode              string                          `yaml:"consensus_mode"`
	Weights           map[string]StrategyWeightConfig `yaml:"weights"`
	UpdateFrequency   int                              `yaml:"update_frequency_cycles"`
	Alpha             float64                          `yaml:"alpha"`
	WeightSmoothing   float64                          `yaml:"weight_smoothing"`
	MinMarginFraction float64                          `yaml:"min_margin_fraction"`
}

type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type JournalConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RPCConfig struct {
	Endpoints           []string      `yaml:"endpoints"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	QuarantineThreshold int           `yaml:"quarantine_threshold"`
	QuarantineCooldown  time.Duration `yaml:"quarantine_cooldown"`
	SubmitRetries       int           `yaml:"submit_retries"`
	SubmitBackoff       time.Duration `yaml:"submit_backoff"`
	ConfirmTimeout      time.Duration `yaml:"confirm_timeout"`
}

// Load reads and validates a YAML config file, applying defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Trading.GridLevels == 0 {
		cfg.Trading.GridLevels = 10
	}
	if cfg.Trading.BaseSpacingPercent == 0 {
		cfg.Trading.BaseSpacingPercent = 0.30
	}
	if cfg.Trading.RepositionThreshold == 0 {
		cfg.Trading.RepositionThreshold = 2.0
	}
	if cfg.Trading.OrderMaxAge == 0 {
		cfg.Trading.OrderMaxAge = 30 * time.Minute
	}
	if cfg.Trading.OrderRefreshInterval == 0 {
		cfg.Trading.OrderRefreshInterval = 5 * time.Minute
	}
	if cfg.Trading.MaxFeedSilence == 0 {
		cfg.Trading.MaxFeedSilence = 30 * time.Second
	}

	if cfg.Optimize.OptimizationIntervalCycles == 0 {
		cfg.Optimize.OptimizationIntervalCycles = 10
	}
	if cfg.Optimize.LowDrawdownPct == 0 {
		cfg.Optimize.LowDrawdownPct = 2.0
	}
	if cfg.Optimize.ModerateDrawdownPct == 0 {
		cfg.Optimize.ModerateDrawdownPct = 5.0
	}
	if cfg.Optimize.HighDrawdownPct == 0 {
		cfg.Optimize.HighDrawdownPct = 8.0
	}
	if cfg.Optimize.EmergencyDrawdownPct == 0 {
		cfg.Optimize.EmergencyDrawdownPct = 12.0
	}
	if cfg.Optimize.SpacingTightenMultiplier == 0 {
		cfg.Optimize.SpacingTightenMultiplier = 0.80
	}
	if cfg.Optimize.SpacingWidenMultiplier == 0 {
		cfg.Optimize.SpacingWidenMultiplier = 1.30
	}
	if cfg.Optimize.SpacingEmergencyMultiplier == 0 {
		cfg.Optimize.SpacingEmergencyMultiplier = 1.80
	}
	if cfg.Optimize.HighEfficiencyThreshold == 0 {
		cfg.Optimize.HighEfficiencyThreshold = 0.70
	}
	if cfg.Optimize.LowEfficiencyThreshold == 0 {
		cfg.Optimize.LowEfficiencyThreshold = 0.30
	}
	if cfg.Optimize.SizeHighEfficiencyMultiplier == 0 {
		cfg.Optimize.SizeHighEfficiencyMultiplier = 1.30
	}
	if cfg.Optimize.SizeLowEfficiencyMultiplier == 0 {
		cfg.Optimize.SizeLowEfficiencyMultiplier = 0.70
	}
	if cfg.Optimize.WinStreakBonusMax == 0 {
		cfg.Optimize.WinStreakBonusMax = 1.50
	}
	if cfg.Optimize.LossStreakPenaltyMax == 0 {
		cfg.Optimize.LossStreakPenaltyMax = 0.60
	}
	if cfg.Optimize.StreakThreshold == 0 {
		cfg.Optimize.StreakThreshold = 3
	}
	if cfg.Optimize.MinSpacingAbsolute == 0 {
		cfg.Optimize.MinSpacingAbsolute = 0.01
	}
	if cfg.Optimize.MaxSpacingAbsolute == 0 {
		cfg.Optimize.MaxSpacingAbsolute = 1.00
	}
	if cfg.Optimize.MinPositionAbsolute == 0 {
		cfg.Optimize.MinPositionAbsolute = cfg.Trading.BasePositionSize * 0.2
	}
	if cfg.Optimize.MaxPositionAbsolute == 0 {
		cfg.Optimize.MaxPositionAbsolute = cfg.Trading.BasePositionSize * 3
	}

	if cfg.Fees.MinProfitMultiplier == 0 {
		cfg.Fees.MinProfitMultiplier = 2.0
	}
	if cfg.Fees.VolatilityScalingFactor == 0 {
		cfg.Fees.VolatilityScalingFactor = 1.0
	}

	if cfg.MEV.PriorityFeeTargetPercentile == 0 {
		cfg.MEV.PriorityFeeTargetPercentile = 50
	}
	if cfg.MEV.SampleSize == 0 {
		cfg.MEV.SampleSize = 20
	}
	if cfg.MEV.MaxSlippageBps == 0 {
		cfg.MEV.MaxSlippageBps = 50
	}
	if cfg.MEV.VolatilityMultiplier == 0 {
		cfg.MEV.VolatilityMultiplier = 1.5
	}
	if cfg.MEV.MaxBundleSize == 0 {
		cfg.MEV.MaxBundleSize = 4
	}
	if cfg.MEV.SlotWindow == 0 {
		cfg.MEV.SlotWindow = 20
	}

	if cfg.Risk.CircuitBreakerMaxLossPct == 0 {
		cfg.Risk.CircuitBreakerMaxLossPct = 5.0
	}
	if cfg.Risk.EmergencyDrawdownPct == 0 {
		cfg.Risk.EmergencyDrawdownPct = 12.0
	}
	if cfg.Risk.BreakerCooldown == 0 {
		cfg.Risk.BreakerCooldown = 1 * time.Hour
	}

	if cfg.Consensus.Mode == "" {
		cfg.Consensus.Mode = "weighted"
	}
	if cfg.Consensus.UpdateFrequency == 0 {
		cfg.Consensus.UpdateFrequency = 50
	}
	if cfg.Consensus.Alpha == 0 {
		cfg.Consensus.Alpha = 0.6
	}
	if cfg.Consensus.WeightSmoothing == 0 {
		cfg.Consensus.WeightSmoothing = 0.3
	}
	if cfg.Consensus.MinMarginFraction == 0 {
		cfg.Consensus.MinMarginFraction = 0.15
	}
	if cfg.Consensus.Weights == nil {
		cfg.Consensus.Weights = map[string]StrategyWeightConfig{
			"grid":     {Weight: 1.0, MinConfidence: 0.65},
			"rsi":      {Weight: 0.7, MinConfidence: 0.65},
			"momentum": {Weight: 0.6, MinConfidence: 0.65},
		}
	}

	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "data/gridbot.db"
	}

	if cfg.Journal.Schema == "" {
		cfg.Journal.Schema = "public"
	}
	if cfg.Journal.QueueSize == 0 {
		cfg.Journal.QueueSize = 256
	}

	if cfg.RPC.HealthCheckInterval == 0 {
		cfg.RPC.HealthCheckInterval = 10 * time.Second
	}
	if cfg.RPC.QuarantineThreshold == 0 {
		cfg.RPC.QuarantineThreshold = 3
	}
	if cfg.RPC.QuarantineCooldown == 0 {
		cfg.RPC.QuarantineCooldown = 30 * time.Second
	}
	if cfg.RPC.SubmitRetries == 0 {
		cfg.RPC.SubmitRetries = 3
	}
	if cfg.RPC.SubmitBackoff == 0 {
		cfg.RPC.SubmitBackoff = 500 * time.Millisecond
	}
	if cfg.RPC.ConfirmTimeout == 0 {
		cfg.RPC.ConfirmTimeout = 60 * time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Trading.InputMint == "" || cfg.Trading.OutputMint == "" {
		return errors.New("trading.input_mint and trading.output_mint are required")
	}
	if cfg.Trading.GridLevels <= 0 || cfg.Trading.GridLevels%2 != 0 {
		return errors.New("trading.grid_levels must be a positive even number")
	}
	if cfg.Trading.BaseSpacingPercent <= 0 {
		return errors.New("trading.base_spacing_percent must be > 0")
	}
	if cfg.Trading.BasePositionSize <= 0 {
		return errors.New("trading.base_position_size must be > 0")
	}
	if cfg.Optimize.MinSpacingAbsolute > cfg.Optimize.MaxSpacingAbsolute {
		return errors.New("optimizer.min_spacing_absolute must be <= max_spacing_absolute")
	}
	if cfg.Optimize.MinPositionAbsolute > cfg.Optimize.MaxPositionAbsolute {
		return errors.New("optimizer.min_position_absolute must be <= max_position_absolute")
	}
	if cfg.Risk.MaxPositionSize > 0 && cfg.Trading.BasePositionSize > cfg.Risk.MaxPositionSize {
		return errors.New("trading.base_position_size exceeds risk.max_position_size")
	}
	if cfg.Fees.MinProfitMultiplier < 1.0 {
		return errors.New("fees.min_profit_multiplier must be >= 1.0")
	}
	switch cfg.Consensus.Mode {
	case "weighted", "single", "majority":
	default:
		return fmt.Errorf("consensus.consensus_mode %q is not recognized", cfg.Consensus.Mode)
	}
	return nil
}
