package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	weth = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdc = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tokens = []types.Token{{ID: "A"}, {ID: "B"}, {ID: "C"}}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.Detection.HopLimit)
	assert.Equal(t, 3, cfg.Detection.MinCycleLength)
	assert.Equal(t, 6, cfg.Detection.MaxCycleLength)
	assert.Equal(t, 1000.0, cfg.Detection.Capital)
	assert.Equal(t, 0.001, cfg.Acceptance.MinProfitPct)
	assert.Equal(t, 50.0, cfg.Acceptance.MaxProfitPct)
	assert.Equal(t, 0.003, cfg.Fees.Default)
	assert.Equal(t, 1.0, cfg.Cost.PerHop)

	// defaults alone lack a token universe
	assert.ErrorIs(t, cfg.ValidateConfig(), ErrInvalidConfig)
	assert.NoError(t, validConfig().ValidateConfig())
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"duplicate token", func(c *Config) { c.Tokens = append(c.Tokens, types.Token{ID: "A"}) }, "duplicate id A"},
		{"empty token id", func(c *Config) { c.Tokens[1].ID = "" }, "tokens[1]: id must be specified"},
		{"zero hop limit", func(c *Config) { c.Detection.HopLimit = 0 }, "hop_limit"},
		{"min length", func(c *Config) { c.Detection.MinCycleLength = 1 }, "min_cycle_length"},
		{"max below min", func(c *Config) { c.Detection.MaxCycleLength = 2 }, "max_cycle_length"},
		{"negative enumeration budget", func(c *Config) { c.Detection.EnumerationBudget = -1 }, "enumeration_budget"},
		{"zero capital", func(c *Config) { c.Detection.Capital = 0 }, "capital"},
		{"inverted band", func(c *Config) { c.Acceptance.MaxProfitPct = 0.0001 }, "max_profit_pct"},
		{"negative band", func(c *Config) { c.Acceptance.MinProfitPct = -1 }, "min_profit_pct"},
		{"zero min rate", func(c *Config) { c.Rates.MinRate = 0 }, "min_rate"},
		{"max rate below min", func(c *Config) { c.Rates.MaxRate = 1e-10 }, "max_rate"},
		{"fee of one", func(c *Config) { c.Fees.Default = 1 }, "default fee"},
		{"override fee", func(c *Config) {
			c.Fees.Overrides = []FeeOverride{{From: "A", To: "B", Fee: -0.1}}
		}, "overrides[0]"},
		{"negative cost", func(c *Config) { c.Cost.PerHop = -1 }, "cost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.ValidateConfig()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateConfigCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Detection.HopLimit = 0
	cfg.Fees.Default = 2
	err := cfg.ValidateConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hop_limit")
	assert.Contains(t, err.Error(), "default fee")
}

func TestNormalizeTokenID(t *testing.T) {
	assert.Equal(t, weth, NormalizeTokenID("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"))
	assert.Equal(t, weth, NormalizeTokenID("  "+weth+" "))
	assert.Equal(t, "So11111111111111111111111111111111111111112", NormalizeTokenID("So11111111111111111111111111111111111111112"))
	assert.Equal(t, "USDC", NormalizeTokenID("USDC"))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
tokens:
  - id: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
    symbol: WETH
    decimals: 18
  - id: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
    symbol: USDC
    decimals: 6
  - id: DAI
detection:
  hop_limit: 4
  interval: 2s
fees:
  overrides:
    - from: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
      to: DAI
      fee: 0.0005
rates:
  max_quote_age: 30s
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Tokens, 3)
	assert.Equal(t, weth, cfg.Tokens[0].ID)
	assert.Equal(t, uint8(18), cfg.Tokens[0].Decimals)
	assert.Equal(t, usdc, cfg.Tokens[1].ID)
	assert.Equal(t, 4, cfg.Detection.HopLimit)
	assert.Equal(t, 2*time.Second, cfg.Detection.Interval)
	assert.Equal(t, 30*time.Second, cfg.Rates.MaxQuoteAge)
	// unspecified values keep their defaults
	assert.Equal(t, 6, cfg.Detection.MaxCycleLength)
	assert.Equal(t, 0.003, cfg.Fees.Default)

	overrides := cfg.Fees.OverrideMap()
	assert.Equal(t, 0.0005, overrides[types.PairKey{From: weth, To: "DAI"}])
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tokens: [\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tokens: [{id: A}]\n"), 0o644))
	_, err = LoadConfig(path)
	assert.NoError(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvHopLimit, "7")
	t.Setenv(EnvRPCEndpoint, "http://node:8545")
	t.Setenv(EnvRedisAddr, "redis:6379")
	t.Setenv(EnvMetricsAddr, ":9191")
	t.Setenv(EnvQuotesFile, "/tmp/quotes.yaml")
	t.Setenv(EnvLogLevel, "warn")

	cfg := validConfig()
	require.NoError(t, ApplyEnv(cfg))

	assert.Equal(t, 7, cfg.Detection.HopLimit)
	assert.Equal(t, "http://node:8545", cfg.Sources.Uniswap.RPCEndpoint)
	assert.Equal(t, "http://node:8545", cfg.Sources.Sushiswap.RPCEndpoint)
	assert.Equal(t, "redis:6379", cfg.Sources.Redis.Addr)
	assert.Equal(t, "redis:6379", cfg.Reporting.Redis.Addr)
	assert.Equal(t, ":9191", cfg.Metrics.Addr)
	assert.Equal(t, "/tmp/quotes.yaml", cfg.Sources.Static.Path)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestApplyEnvRejectsMalformedNumbers(t *testing.T) {
	t.Setenv(EnvHopLimit, "many")
	cfg := validConfig()

	err := ApplyEnv(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
	assert.Contains(t, err.Error(), EnvHopLimit)
	assert.Equal(t, 5, cfg.Detection.HopLimit)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tokens: [{id: A}]\n"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), EnvHopLimit)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := validConfig()
	cfg.Detection.HopLimit = 3
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Tokens, loaded.Tokens)
	assert.Equal(t, 3, loaded.Detection.HopLimit)
}
