package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/solswarm/guardian/internal/agents"
	"github.com/solswarm/guardian/internal/config"
	"github.com/solswarm/guardian/internal/guardian"
	"github.com/solswarm/guardian/internal/llm"
	"github.com/solswarm/guardian/internal/market"
	"github.com/solswarm/guardian/internal/metrics"
	"github.com/solswarm/guardian/internal/solana"
	"github.com/solswarm/guardian/internal/swarm"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	oneShot := flag.Bool("once", false, "Run a single cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	log.Info().
		Str("network", cfg.Solana.Network).
		Bool("simulation", cfg.Guardian.Simulation).
		Msg("Starting guardian")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, config.NewLogger("metrics"))
		if err := metricsServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
		defer metricsServer.Stop(context.Background())
	}

	gateway, err := buildGateway(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build RPC gateway")
	}

	aggregator := buildAggregator(ctx, cfg)
	coordinator := buildSwarm(cfg)

	memory, err := guardian.NewMemory(cfg.Guardian.MemorySize, cfg.Guardian.OutcomeLogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open strategy memory")
	}
	defer memory.Close()

	g := guardian.New(cfg.Guardian, gateway, aggregator, coordinator, memory, config.NewLogger("guardian"))

	if *oneShot {
		report := g.RunCycle(ctx)
		if report.Err != nil {
			log.Fatal().Err(report.Err).Str("status", report.Status).Msg("Cycle failed")
		}
		log.Info().Str("status", report.Status).Float64("risk_score", report.RiskScore).Msg("Cycle complete")
		return
	}

	if err := g.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Guardian loop stopped")
	}
	log.Info().Msg("Shutdown complete")
}

func buildGateway(cfg *config.Config) (*solana.Gateway, error) {
	gateway, err := solana.NewGateway(solana.GatewayConfig{
		PrimaryURL:        cfg.Solana.RPCURL,
		BackupURLs:        cfg.Solana.BackupRPCs,
		Network:           cfg.Solana.Network,
		Commitment:        cfg.Solana.Commitment,
		Timeout:           cfg.Solana.Timeout,
		MaxRetries:        cfg.Solana.MaxRetries,
		RequestsPerSecond: cfg.Solana.RequestsPerSecond,
		PriorityFee:       cfg.Solana.PriorityFee,
		Simulation:        cfg.Guardian.Simulation,
	}, config.NewLogger("solana"))
	if err != nil {
		return nil, err
	}

	wallet, err := solana.LoadWallet(cfg.Solana.PrivateKey, cfg.Solana.WalletPath, cfg.Guardian.Simulation)
	if err != nil {
		return nil, err
	}
	if wallet.Ephemeral() {
		log.Warn().Str("address", wallet.Address()).Msg("Using ephemeral wallet, simulation only")
	}
	gateway.SetWallet(wallet)
	return gateway, nil
}

func buildAggregator(ctx context.Context, cfg *config.Config) *market.Aggregator {
	var store market.Store = market.NewMemoryStore()
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisStore := market.NewRedisStore(client, "", config.NewLogger("redis_cache"))
		if err := redisStore.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Redis unreachable, using in-memory cache")
		} else {
			store = redisStore
		}
	}

	dexStats := market.NewDexStatsClient("", 0)
	aggregator := market.NewAggregator(market.AggregatorConfig{
		PriceTTL: cfg.Market.PriceCacheTTL,
		DexTTL:   cfg.Market.DexCacheTTL,
	}, store, dexStats, config.NewLogger("market"))

	for name, src := range cfg.Market.Sources {
		if !src.Enabled {
			continue
		}
		var source market.Source
		switch market.SourceName(name) {
		case market.SourceJupiter:
			source = market.NewJupiterSource(src.URL, "", 0)
		case market.SourceCoinGecko:
			source = market.NewCoinGeckoSource(src.URL, 0)
		case market.SourceBinance:
			source = market.NewBinanceSource(src.URL)
		case market.SourceCoinbase:
			source = market.NewCoinbaseSource(src.URL, 0)
		case market.SourcePyth:
			source = market.NewPythSource(src.URL, 0)
		default:
			log.Warn().Str("source", name).Msg("Unknown market source, skipping")
			continue
		}
		aggregator.Register(source, src.Priority, src.RequestsPerMinute)
	}
	return aggregator
}

func buildSwarm(cfg *config.Config) *swarm.Coordinator {
	coordinator := swarm.NewCoordinator(swarm.CoordinatorConfig{
		MinConfidence:   cfg.Swarm.MinConfidence,
		MinVotes:        cfg.Swarm.MinVotes,
		Timeout:         cfg.Swarm.Timeout,
		HighThreshold:   cfg.Swarm.HighThreshold,
		RejectThreshold: cfg.Swarm.RejectThreshold,
	}, config.NewLogger("swarm"))

	var oracle agents.Oracle
	if cfg.LLM.Endpoint != "" || cfg.LLM.APIKey != "" {
		oracle = llm.NewClient(llm.ClientConfig{
			Endpoint:    cfg.LLM.Endpoint,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		}, config.NewLogger("llm"))
	} else {
		log.Warn().Msg("No LLM endpoint configured, agents use heuristic evaluation")
	}

	specs := cfg.Swarm.Agents
	if len(specs) == 0 {
		specs = []config.AgentConfig{
			{Role: agents.RoleMarketAnalyzer},
			{Role: agents.RoleRiskManager},
			{Role: agents.RoleStrategyOptimizer},
		}
	}

	registry := agents.NewRegistry()
	for _, spec := range specs {
		plugin, err := registry.Build(spec.Role, spec.Name, 0, oracle)
		if err != nil {
			log.Warn().Err(err).Str("role", spec.Role).Msg("Skipping unknown agent role")
			continue
		}
		coordinator.Join(guardian.SwarmID, plugin)
	}
	return coordinator
}
