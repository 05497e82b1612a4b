package config

import "testing"

func validTradingConfig() Config {
	return Config{
		Trading: TradingConfig{
			InputMint:        "So11111111111111111111111111111111111111112",
			OutputMint:       "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			GridLevels:       10,
			BaseSpacingPercent: 0.30,
			BasePositionSize: 1.0,
		},
	}
}

func TestApplyDefaultsFillsOptimizerConstants(t *testing.T) {
	cfg := validTradingConfig()
	applyDefaults(&cfg)
	if cfg.Optimize.LowDrawdownPct != 2.0 {
		t.Fatalf("expected low drawdown default 2.0, got %v", cfg.Optimize.LowDrawdownPct)
	}
	if cfg.Optimize.SpacingEmergencyMultiplier != 1.80 {
		t.Fatalf("expected emergency spacing multiplier 1.80, got %v", cfg.Optimize.SpacingEmergencyMultiplier)
	}
	if cfg.Optimize.StreakThreshold != 3 {
		t.Fatalf("expected streak threshold 3, got %v", cfg.Optimize.StreakThreshold)
	}
	if cfg.Optimize.MinSpacingAbsolute != 0.01 || cfg.Optimize.MaxSpacingAbsolute != 1.00 {
		t.Fatalf("expected spacing clamp [0.01,1.00], got [%v,%v]", cfg.Optimize.MinSpacingAbsolute, cfg.Optimize.MaxSpacingAbsolute)
	}
}

func TestApplyDefaultsConsensusWeights(t *testing.T) {
	cfg := validTradingConfig()
	applyDefaults(&cfg)
	if cfg.Consensus.Mode != "weighted" {
		t.Fatalf("expected default consensus mode weighted, got %q", cfg.Consensus.Mode)
	}
	if len(cfg.Consensus.Weights) == 0 {
		t.Fatalf("expected default strategy weights to be populated")
	}
	if _, ok := cfg.Consensus.Weights["grid"]; !ok {
		t.Fatalf("expected default grid weight entry")
	}
}

func TestValidateRequiresMints(t *testing.T) {
	cfg := Config{Trading: TradingConfig{GridLevels: 10, BaseSpacingPercent: 0.3, BasePositionSize: 1}}
	applyDefaults(&cfg)
	if err := validate(&cfg); err == nil {
		t.Fatalf("expected error for missing mints")
	}
}

func TestValidateRejectsOddGridLevels(t *testing.T) {
	cfg := validTradingConfig()
	cfg.Trading.GridLevels = 9
	applyDefaults(&cfg)
	if err := validate(&cfg); err == nil {
		t.Fatalf("expected error for odd grid levels")
	}
}

func TestValidateRejectsBasePositionExceedingRiskCap(t *testing.T) {
	cfg := validTradingConfig()
	cfg.Risk.MaxPositionSize = 0.5
	applyDefaults(&cfg)
	if err := validate(&cfg); err == nil {
		t.Fatalf("expected error for base position exceeding risk cap")
	}
}

func TestValidateRejectsLowProfitMultiplier(t *testing.T) {
	cfg := validTradingConfig()
	cfg.Fees.MinProfitMultiplier = 0.5
	applyDefaults(&cfg)
	if err := validate(&cfg); err == nil {
		t.Fatalf("expected error for profit multiplier below 1.0")
	}
}

func TestValidateRejectsUnknownConsensusMode(t *testing.T) {
	cfg := validTradingConfig()
	cfg.Consensus.Mode = "banana"
	applyDefaults(&cfg)
	if err := validate(&cfg); err == nil {
		t.Fatalf("expected error for unrecognized consensus mode")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := validTradingConfig()
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestApplyDefaultsDerivesPositionClampFromBaseSize(t *testing.T) {
	cfg := validTradingConfig()
	cfg.Trading.BasePositionSize = 2.0
	applyDefaults(&cfg)
	if cfg.Optimize.MinPositionAbsolute != 0.4 {
		t.Fatalf("expected derived min position 0.4, got %v", cfg.Optimize.MinPositionAbsolute)
	}
	if cfg.Optimize.MaxPositionAbsolute != 6.0 {
		t.Fatalf("expected derived max position 6.0, got %v", cfg.Optimize.MaxPositionAbsolute)
	}
}
