// Package app assembles every component into one runnable process,
// the way the teacher's internal/app.App wires its exchange/market/
// account/executor collaborators into a single Run(ctx). New reads
// environment secrets, constructs every collaborator from Config, and
// Run hands off to the orchestrator's tick loop.
package app

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/bot"
	"gridbot/internal/config"
	"gridbot/internal/consensus"
	"gridbot/internal/execution"
	"gridbot/internal/feed"
	"gridbot/internal/feefilter"
	"gridbot/internal/grid"
	"gridbot/internal/indicator"
	"gridbot/internal/journal"
	"gridbot/internal/metrics"
	"gridbot/internal/mev"
	"gridbot/internal/optimizer"
	"gridbot/internal/orderstate"
	"gridbot/internal/regime"
	"gridbot/internal/risk"
	"gridbot/internal/router"
	"gridbot/internal/rpcclient"
	"gridbot/internal/signer"
	"gridbot/internal/store"
	"gridbot/internal/types"
)

// App owns the fully-wired orchestrator plus whatever infrastructure
// it needs torn down on exit (store, journal).
type App struct {
	cfg         *config.Config
	log         *zap.Logger
	bot         *bot.Bot
	store       *store.Store
	journal     *journal.Writer
	stopProbes  context.CancelFunc
	promMetrics *metrics.Prometheus
	metricsSrv  *http.Server
}

// New constructs every collaborator named in the configuration
// surface and wires them into one Bot. The signer seed, price feed
// URL and Jupiter URL come from the environment, matching the
// teacher's secrets-from-env convention; RPC endpoints come from
// GRIDBOT_RPC_ENDPOINTS unless rpc.endpoints is set in the config,
// which then takes precedence. A metrics server is started here when
// GRIDBOT_METRICS_ADDR is set.
func New(cfg *config.Config, log *zap.Logger, dryRun bool) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Store.SQLitePath)
	if err != nil {
		return nil, err
	}

	j, err := journal.New(journal.Config{
		Enabled:         cfg.Journal.Enabled,
		DSN:             cfg.Journal.DSN,
		Schema:          cfg.Journal.Schema,
		QueueSize:       cfg.Journal.QueueSize,
		MaxOpenConns:    cfg.Journal.MaxOpenConns,
		MaxIdleConns:    cfg.Journal.MaxIdleConns,
		ConnMaxLifetime: cfg.Journal.ConnMaxLifetime,
	}, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	rpcEndpoints := strings.Split(os.Getenv("GRIDBOT_RPC_ENDPOINTS"), ",")
	if len(cfg.RPC.Endpoints) > 0 {
		rpcEndpoints = cfg.RPC.Endpoints
	}
	clients := make(map[string]rpcclient.RPC)
	for _, ep := range rpcEndpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		clients[ep] = rpcclient.NewJSONRPCClient(ep, 10*time.Second, log)
	}
	if len(clients) == 0 {
		return nil, errors.New("at least one rpc endpoint is required (rpc.endpoints or GRIDBOT_RPC_ENDPOINTS)")
	}
	pool := rpcclient.NewPool(clients, cfg.RPC.QuarantineThreshold, cfg.RPC.QuarantineCooldown, log)

	probeCtx, stopProbes := context.WithCancel(context.Background())
	for label := range clients {
		label := label
		probe := rpcclient.NewHealthProbe(toWebsocketURL(label), cfg.RPC.QuarantineCooldown, cfg.RPC.HealthCheckInterval, func() {
			pool.ForceQuarantine(label, time.Now())
		}, log)
		go func() { _ = probe.Run(probeCtx) }()
	}

	priceFeedURL := os.Getenv("GRIDBOT_PRICE_FEED_URL")
	if priceFeedURL == "" {
		stopProbes()
		return nil, errors.New("GRIDBOT_PRICE_FEED_URL is required")
	}
	priceFeed := feed.NewHTTPPoller(priceFeedURL, 2*time.Second, 5*time.Second)

	swapRouterURL := os.Getenv("GRIDBOT_JUPITER_BASE_URL")
	if swapRouterURL == "" {
		stopProbes()
		return nil, errors.New("GRIDBOT_JUPITER_BASE_URL is required")
	}
	swapRouter := router.NewJupiterClient(swapRouterURL, 10*time.Second, log)

	sgr, err := newSigner(cfg)
	if err != nil {
		stopProbes()
		_ = st.Close()
		return nil, err
	}

	guard := mev.New(mev.Config{
		Enabled:                     true,
		PriorityFeePercentile:       cfg.MEV.PriorityFeeTargetPercentile,
		MaxPriorityFeeMicroLamports: cfg.MEV.MaxFeeMicroLamports,
		MinPriorityFeeMicroLamports: cfg.MEV.MinFeeMicroLamports,
		BaseSlippageBps:             50,
		MaxSlippageBps:              cfg.MEV.MaxSlippageBps,
		VolatilitySlippageFactor:    cfg.MEV.VolatilityMultiplier,
		SlotWindow:                  cfg.MEV.SlotWindow,
		SampleConcurrency:           cfg.MEV.SampleSize,
		EnableBundling:              cfg.MEV.BundleEnabled,
		TipLamports:                 cfg.MEV.TipLamports,
		MaxBundleSize:               cfg.MEV.MaxBundleSize,
	}, pool)

	tracker := orderstate.New()

	exec := execution.New(execution.Config{
		InputMint:        cfg.Trading.InputMint,
		OutputMint:       cfg.Trading.OutputMint,
		BaseUnitsPerUnit: decimal.NewFromInt(1_000_000_000),
		SlippageBps:      cfg.MEV.MaxSlippageBps,
		SubmitRetries:    cfg.RPC.SubmitRetries,
		SubmitBackoff:    cfg.RPC.SubmitBackoff,
		ConfirmTimeout:   cfg.RPC.ConfirmTimeout,
		DryRun:           dryRun,
	}, swapRouter, sgr, pool, guard, tracker, st, log)

	riskCtl := risk.New(risk.Config{
		CircuitBreakerMaxLossPct: cfg.Risk.CircuitBreakerMaxLossPct,
		EmergencyDrawdownPct:     cfg.Risk.EmergencyDrawdownPct,
		StopLossPct:              cfg.Risk.StopLossPct,
		MaxPositionSize:          decimal.NewFromFloat(cfg.Risk.MaxPositionSize),
		MaxDailyTrades:           cfg.Risk.MaxDailyTrades,
		MaxDailyVolume:           decimal.NewFromFloat(cfg.Risk.MaxDailyVolume),
		BreakerCooldown:          cfg.Risk.BreakerCooldown,
	}, startingEquity(cfg), time.Now())

	promMetrics := metrics.NewPrometheus()

	orchestrator := bot.New(
		bot.Config{
			MaxFeedSilence:             cfg.Trading.MaxFeedSilence,
			OptimizationIntervalCycles: cfg.Optimize.OptimizationIntervalCycles,
			PerformanceWindowSize:      50,
		},
		priceFeed,
		indicator.NewEngine(),
		regime.New(regime.Config{EmergencyDrawdownPct: cfg.Optimize.EmergencyDrawdownPct}),
		optimizer.New(optimizer.Config{
			BaseSpacingPercent:           cfg.Trading.BaseSpacingPercent,
			BasePositionSize:             cfg.Trading.BasePositionSize,
			LowDrawdownPct:               cfg.Optimize.LowDrawdownPct,
			ModerateDrawdownPct:          cfg.Optimize.ModerateDrawdownPct,
			HighDrawdownPct:              cfg.Optimize.HighDrawdownPct,
			SpacingTightenMultiplier:     cfg.Optimize.SpacingTightenMultiplier,
			SpacingWidenMultiplier:       cfg.Optimize.SpacingWidenMultiplier,
			SpacingEmergencyMultiplier:   cfg.Optimize.SpacingEmergencyMultiplier,
			HighEfficiencyThreshold:      cfg.Optimize.HighEfficiencyThreshold,
			LowEfficiencyThreshold:       cfg.Optimize.LowEfficiencyThreshold,
			SizeHighEfficiencyMultiplier: cfg.Optimize.SizeHighEfficiencyMultiplier,
			SizeLowEfficiencyMultiplier:  cfg.Optimize.SizeLowEfficiencyMultiplier,
			WinStreakBonusMax:            cfg.Optimize.WinStreakBonusMax,
			LossStreakPenaltyMax:         cfg.Optimize.LossStreakPenaltyMax,
			StreakThreshold:              cfg.Optimize.StreakThreshold,
			MinSpacingAbsolute:           cfg.Optimize.MinSpacingAbsolute,
			MaxSpacingAbsolute:           cfg.Optimize.MaxSpacingAbsolute,
			MinPositionAbsolute:          cfg.Optimize.MinPositionAbsolute,
			MaxPositionAbsolute:          cfg.Optimize.MaxPositionAbsolute,
		}),
		feefilter.New(feefilter.Config{
			Enabled:                 true,
			MakerFeePercent:         cfg.Fees.MakerFeePercent,
			TakerFeePercent:         cfg.Fees.TakerFeePercent,
			SlippagePercent:         cfg.Fees.SlippagePercent,
			MinProfitMultiplier:     cfg.Fees.MinProfitMultiplier,
			VolatilityScalingFactor: cfg.Fees.VolatilityScalingFactor,
			EnableMarketImpact:      cfg.Fees.EnableMarketImpact,
			EnableRegimeAdjustment:  cfg.Fees.EnableRegimeAdjustment,
			GracePeriodTrades:       cfg.Fees.GracePeriodTrades,
		}),
		grid.New(grid.Config{
			GridLevels:           cfg.Trading.GridLevels,
			RepositionThreshold:  cfg.Trading.RepositionThreshold,
			OrderMaxAge:          cfg.Trading.OrderMaxAge,
			OrderRefreshInterval: cfg.Trading.OrderRefreshInterval,
			MinVolatilityToTrade: cfg.Trading.MinVolatilityToTrade,
			EnableRegimeGate:     cfg.Trading.EnableRegimeGate,
		}),
		consensus.New(consensusConfig(cfg)),
		riskCtl,
		tracker,
		exec,
		j,
		promMetrics.Metrics,
		log,
	)

	var metricsSrv *http.Server
	if addr := os.Getenv("GRIDBOT_METRICS_ADDR"); addr != "" {
		metricsSrv = startMetricsServer(addr, promMetrics, log)
	}

	return &App{
		cfg:         cfg,
		log:         log,
		bot:         orchestrator,
		store:       st,
		journal:     j,
		stopProbes:  stopProbes,
		promMetrics: promMetrics,
		metricsSrv:  metricsSrv,
	}, nil
}

// Run starts the journal writer, then hands off to the orchestrator's
// tick loop until ctx is cancelled; on return it stops the metrics
// server, the health probes and the store.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.stopProbes()
	defer a.shutdownMetricsServer()
	if a.journal != nil {
		a.journal.Start(ctx)
	}
	return a.bot.Run(ctx)
}

func (a *App) shutdownMetricsServer() {
	if a.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.metricsSrv.Shutdown(ctx)
}

// startMetricsServer exposes the Prometheus registry on /metrics; the
// counters and gauges themselves are always live regardless of
// whether this server is started, so nothing is lost if an operator
// turns scraping on mid-run by restarting with the env var set.
func startMetricsServer(addr string, pm *metrics.Prometheus, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", pm.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

// toWebsocketURL derives a pubsub probe URL from an RPC endpoint by
// swapping the scheme, the way Solana RPC providers commonly pair an
// http(s) JSON-RPC endpoint with a ws(s) pubsub endpoint on the same
// host.
func toWebsocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

func startingEquity(cfg *config.Config) decimal.Decimal {
	if cfg.Risk.MaxDailyVolume > 0 {
		return decimal.NewFromFloat(cfg.Risk.MaxDailyVolume)
	}
	return decimal.NewFromInt(1)
}

// consensusConfig maps the YAML-facing string mode and string-keyed
// weight table onto the engine's int enum and SignalSource-keyed map.
func consensusConfig(cfg *config.Config) consensus.Config {
	mode := consensus.ModeWeightedVoting
	switch cfg.Consensus.Mode {
	case "single":
		mode = consensus.ModeSingle
	case "majority":
		mode = consensus.ModeMajorityVote
	}
	return consensus.Config{
		Mode:              mode,
		Weights:           toSourceWeights(cfg.Consensus.Weights),
		UpdateFrequency:   cfg.Consensus.UpdateFrequency,
		Alpha:             cfg.Consensus.Alpha,
		WeightSmoothing:   cfg.Consensus.WeightSmoothing,
		MinMarginFraction: cfg.Consensus.MinMarginFraction,
	}
}

func toSourceWeights(in map[string]config.StrategyWeightConfig) map[types.SignalSource]consensus.WeightConfig {
	out := make(map[types.SignalSource]consensus.WeightConfig, len(in))
	for key, wc := range in {
		var source types.SignalSource
		switch key {
		case "grid":
			source = types.SourceGrid
		case "rsi":
			source = types.SourceRSI
		case "momentum":
			source = types.SourceMomentum
		default:
			continue
		}
		out[source] = consensus.WeightConfig{Weight: wc.Weight, MinConfidence: wc.MinConfidence}
	}
	return out
}

// newSigner derives a LocalSigner from a hex-encoded ed25519 seed in
// GRIDBOT_SIGNER_SEED, generating an ephemeral one if absent (dry-run
// / paper-trading convenience, never for funded use).
func newSigner(cfg *config.Config) (signer.Signer, error) {
	seedHex := os.Getenv("GRIDBOT_SIGNER_SEED")
	var seed []byte
	if seedHex != "" {
		decoded, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, errors.New("GRIDBOT_SIGNER_SEED must be hex-encoded")
		}
		seed = decoded
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, err
		}
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("signer seed must be 32 bytes")
	}
	return signer.NewLocalSigner(seed, signer.Limits{
		MaxDailyTrades:  cfg.Risk.MaxDailyTrades,
		MaxDailyVolume:  decimal.NewFromFloat(cfg.Risk.MaxDailyVolume),
		MaxPositionSize: decimal.NewFromFloat(cfg.Risk.MaxPositionSize),
	}), nil
}
