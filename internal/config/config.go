package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Solana     SolanaConfig     `mapstructure:"solana"`
	Market     MarketConfig     `mapstructure:"market"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Swarm      SwarmConfig      `mapstructure:"swarm"`
	Guardian   GuardianConfig   `mapstructure:"guardian"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// SolanaConfig contains RPC gateway settings
type SolanaConfig struct {
	Network           string        `mapstructure:"network"` // mainnet-beta, devnet, testnet
	RPCURL            string        `mapstructure:"rpc_url"`
	BackupRPCs        []string      `mapstructure:"backup_rpcs"`
	Commitment        string        `mapstructure:"commitment"` // processed, confirmed, finalized
	WalletPath        string        `mapstructure:"wallet_path"`
	PrivateKey        string        `mapstructure:"private_key"` // base58 secret, never logged
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	PriorityFee       uint64        `mapstructure:"priority_fee"` // micro-lamports
}

// MarketConfig contains market data aggregator settings
type MarketConfig struct {
	PriceCacheTTL time.Duration           `mapstructure:"price_cache_ttl"`
	DexCacheTTL   time.Duration           `mapstructure:"dex_cache_ttl"`
	Sources       map[string]SourceConfig `mapstructure:"sources"`
}

// SourceConfig configures one price source
type SourceConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Priority          int    `mapstructure:"priority"` // higher = preferred
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	URL               string `mapstructure:"url"` // override for tests / self-hosted mirrors
}

// LLMConfig contains the reasoning oracle settings
type LLMConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SwarmConfig contains consensus settings
type SwarmConfig struct {
	MinConfidence   float64       `mapstructure:"min_confidence"`
	MinVotes        int           `mapstructure:"min_votes"`
	Timeout         time.Duration `mapstructure:"timeout"`
	HighThreshold   float64       `mapstructure:"high_threshold"`
	RejectThreshold float64       `mapstructure:"reject_threshold"`
	Agents          []AgentConfig `mapstructure:"agents"`
}

// AgentConfig describes one swarm peer
type AgentConfig struct {
	Name string `mapstructure:"name"`
	Role string `mapstructure:"role"`
}

// GuardianConfig contains the portfolio guardian loop settings
type GuardianConfig struct {
	Simulation      bool          `mapstructure:"simulation"`
	UpdateInterval  time.Duration `mapstructure:"update_interval"`
	EmergencyDrop   float64       `mapstructure:"emergency_drop"`       // 24h drop (fraction) that triggers an exit proposal
	RiskCeiling     float64       `mapstructure:"risk_ceiling"`         // risk score above which an exit proposal is raised
	BypassConsensus bool          `mapstructure:"bypass_consensus"`     // emergency exits skip the vote when set
	OutcomeLogPath  string        `mapstructure:"outcome_log_path"`     // optional append-only JSONL log
	MemorySize      int           `mapstructure:"memory_size"`          // in-process outcome ring size
	WatchSymbols    []string      `mapstructure:"watch_symbols"`        // portfolio symbols pulled each cycle
}

// RedisConfig contains optional Redis cache settings
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	EnableMetrics  bool `mapstructure:"enable_metrics"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("GUARDIAN")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment variables apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Solana.RPCURL == "" {
		url, err := defaultRPCURL(cfg.Solana.Network)
		if err != nil {
			return nil, err
		}
		cfg.Solana.RPCURL = url
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "guardian")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	v.SetDefault("solana.network", "devnet")
	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("solana.timeout", 30*time.Second)
	v.SetDefault("solana.max_retries", 3)
	v.SetDefault("solana.requests_per_second", 10)
	v.SetDefault("solana.priority_fee", 0)

	v.SetDefault("market.price_cache_ttl", 30*time.Second)
	v.SetDefault("market.dex_cache_ttl", 60*time.Second)
	v.SetDefault("market.sources", map[string]interface{}{
		"jupiter":   map[string]interface{}{"enabled": true, "priority": 100, "requests_per_minute": 100},
		"coingecko": map[string]interface{}{"enabled": true, "priority": 70, "requests_per_minute": 50},
		"binance":   map[string]interface{}{"enabled": true, "priority": 60, "requests_per_minute": 60},
		"coinbase":  map[string]interface{}{"enabled": false, "priority": 50, "requests_per_minute": 60},
		"pyth":      map[string]interface{}{"enabled": true, "priority": 90, "requests_per_minute": 120},
	})

	v.SetDefault("llm.endpoint", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("llm.model", "anthropic/claude-3.5-sonnet")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout", 30*time.Second)

	v.SetDefault("swarm.min_confidence", 0.7)
	v.SetDefault("swarm.min_votes", 2)
	v.SetDefault("swarm.timeout", 60*time.Second)
	v.SetDefault("swarm.high_threshold", 0.7)
	v.SetDefault("swarm.reject_threshold", 0.3)

	v.SetDefault("guardian.simulation", true)
	v.SetDefault("guardian.update_interval", 5*time.Minute)
	v.SetDefault("guardian.emergency_drop", 0.15)
	v.SetDefault("guardian.risk_ceiling", 0.9)
	v.SetDefault("guardian.bypass_consensus", false)
	v.SetDefault("guardian.memory_size", 256)
	v.SetDefault("guardian.watch_symbols", []string{"SOL", "USDC", "RAY", "ORCA"})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("monitoring.enable_metrics", true)
	v.SetDefault("monitoring.prometheus_port", 9091)
}

func defaultRPCURL(network string) (string, error) {
	switch network {
	case "mainnet-beta":
		return "https://api.mainnet-beta.solana.com", nil
	case "devnet":
		return "https://api.devnet.solana.com", nil
	case "testnet":
		return "https://api.testnet.solana.com", nil
	default:
		return "", &ValidationError{Field: "solana.network", Reason: fmt.Sprintf("unknown network %q", network)}
	}
}

// ValidationError reports an invalid configuration value. It is fatal at startup.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// Validate checks configuration invariants that would otherwise surface as
// runtime misbehavior deep inside the gateway or the swarm.
func (c *Config) Validate() error {
	switch c.Solana.Network {
	case "mainnet-beta", "devnet", "testnet":
	default:
		return &ValidationError{Field: "solana.network", Reason: fmt.Sprintf("unknown network %q", c.Solana.Network)}
	}

	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return &ValidationError{Field: "solana.commitment", Reason: fmt.Sprintf("unknown commitment %q", c.Solana.Commitment)}
	}

	if c.Solana.RequestsPerSecond <= 0 {
		return &ValidationError{Field: "solana.requests_per_second", Reason: "must be positive"}
	}
	if c.Solana.MaxRetries < 0 {
		return &ValidationError{Field: "solana.max_retries", Reason: "must not be negative"}
	}
	if c.Solana.Timeout <= 0 {
		return &ValidationError{Field: "solana.timeout", Reason: "must be positive"}
	}

	enabled := 0
	for name, src := range c.Market.Sources {
		if !src.Enabled {
			continue
		}
		enabled++
		if src.RequestsPerMinute <= 0 {
			return &ValidationError{Field: "market.sources." + name + ".requests_per_minute", Reason: "must be positive"}
		}
	}
	if enabled == 0 {
		return &ValidationError{Field: "market.sources", Reason: "at least one source must be enabled"}
	}

	if c.Swarm.MinConfidence < 0 || c.Swarm.MinConfidence > 1 {
		return &ValidationError{Field: "swarm.min_confidence", Reason: "must be in [0,1]"}
	}
	if c.Swarm.MinVotes < 1 {
		return &ValidationError{Field: "swarm.min_votes", Reason: "must be at least 1"}
	}
	if c.Swarm.Timeout <= 0 {
		return &ValidationError{Field: "swarm.timeout", Reason: "must be positive"}
	}

	if !c.Guardian.Simulation && c.Solana.WalletPath == "" && c.Solana.PrivateKey == "" {
		return &ValidationError{Field: "solana.wallet_path", Reason: "a wallet is required when simulation is off"}
	}

	return nil
}
