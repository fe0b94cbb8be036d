package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Run from a temp dir so no stray config file is picked up.
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(cwd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "devnet", cfg.Solana.Network)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.Solana.RPCURL)
	assert.Equal(t, "confirmed", cfg.Solana.Commitment)
	assert.Equal(t, 10, cfg.Solana.RequestsPerSecond)

	assert.Equal(t, 30*time.Second, cfg.Market.PriceCacheTTL)
	assert.Equal(t, 60*time.Second, cfg.Market.DexCacheTTL)
	assert.True(t, cfg.Market.Sources["jupiter"].Enabled)
	assert.Greater(t, cfg.Market.Sources["jupiter"].Priority, cfg.Market.Sources["coingecko"].Priority)

	assert.InDelta(t, 0.7, cfg.Swarm.MinConfidence, 1e-9)
	assert.Equal(t, 2, cfg.Swarm.MinVotes)
	assert.Equal(t, 60*time.Second, cfg.Swarm.Timeout)

	assert.True(t, cfg.Guardian.Simulation, "simulation is on by default")
	assert.InDelta(t, 0.15, cfg.Guardian.EmergencyDrop, 1e-9)
	assert.Equal(t, []string{"SOL", "USDC", "RAY", "ORCA"}, cfg.Guardian.WatchSymbols)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
solana:
  network: mainnet-beta
  commitment: finalized
swarm:
  min_votes: 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mainnet-beta", cfg.Solana.Network)
	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.Solana.RPCURL)
	assert.Equal(t, "finalized", cfg.Solana.Commitment)
	assert.Equal(t, 3, cfg.Swarm.MinVotes)
}

func baseConfig() *Config {
	return &Config{
		Solana: SolanaConfig{
			Network:           "devnet",
			Commitment:        "confirmed",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 10,
		},
		Market: MarketConfig{
			Sources: map[string]SourceConfig{
				"jupiter": {Enabled: true, Priority: 100, RequestsPerMinute: 100},
			},
		},
		Swarm: SwarmConfig{
			MinConfidence: 0.7,
			MinVotes:      2,
			Timeout:       60 * time.Second,
		},
		Guardian: GuardianConfig{Simulation: true},
	}
}

func TestValidateOK(t *testing.T) {
	assert.NoError(t, baseConfig().Validate())
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown network", func(c *Config) { c.Solana.Network = "moonnet" }, "solana.network"},
		{"unknown commitment", func(c *Config) { c.Solana.Commitment = "hopeful" }, "solana.commitment"},
		{"zero rps", func(c *Config) { c.Solana.RequestsPerSecond = 0 }, "solana.requests_per_second"},
		{"negative retries", func(c *Config) { c.Solana.MaxRetries = -1 }, "solana.max_retries"},
		{"no sources", func(c *Config) { c.Market.Sources = nil }, "market.sources"},
		{"bad source budget", func(c *Config) {
			c.Market.Sources["jupiter"] = SourceConfig{Enabled: true, RequestsPerMinute: 0}
		}, "market.sources.jupiter.requests_per_minute"},
		{"confidence out of range", func(c *Config) { c.Swarm.MinConfidence = 1.5 }, "swarm.min_confidence"},
		{"zero min votes", func(c *Config) { c.Swarm.MinVotes = 0 }, "swarm.min_votes"},
		{"live mode without wallet", func(c *Config) { c.Guardian.Simulation = false }, "solana.wallet_path"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestValidateLiveModeWithWallet(t *testing.T) {
	cfg := baseConfig()
	cfg.Guardian.Simulation = false
	cfg.Solana.WalletPath = "~/.config/solana/id.json"
	assert.NoError(t, cfg.Validate())
}
