package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/cyclearb/types"
	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig is returned for configurations a search cannot run with.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`

	// Token universe, fixed for the lifetime of an engine.
	Tokens []types.Token `yaml:"tokens"`

	Detection  DetectionConfig  `yaml:"detection"`
	Acceptance AcceptanceConfig `yaml:"acceptance"`
	Rates      RateConfig       `yaml:"rates"`
	Fees       FeeConfig        `yaml:"fees"`
	Cost       CostConfig       `yaml:"cost"`
	Sources    SourcesConfig    `yaml:"sources"`
	Reporting  ReportingConfig  `yaml:"reporting"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type DetectionConfig struct {
	HopLimit int `yaml:"hop_limit"`
	// MinCycleLength and MaxCycleLength bound the number of hops in a reported
	// loop. Three hops is the smallest loop that is not a plain round trip.
	MinCycleLength int `yaml:"min_cycle_length"`
	MaxCycleLength int `yaml:"max_cycle_length"`
	// ReconstructionCap bounds predecessor walks; 0 means token count + 1.
	ReconstructionCap int `yaml:"reconstruction_cap"`
	// EnumerationBudget bounds the edges the direct loop enumeration expands
	// per source token; 0 means the detector default.
	EnumerationBudget int     `yaml:"enumeration_budget"`
	RelaxEpsilon      float64 `yaml:"relax_epsilon"`
	// Workers bounds concurrent per-source searches; 0 means GOMAXPROCS.
	Workers  int           `yaml:"workers"`
	Interval time.Duration `yaml:"interval"`
	// Capital is the nominal reference amount cycles are replayed with.
	Capital float64 `yaml:"capital"`
}

type AcceptanceConfig struct {
	MinProfitPct float64 `yaml:"min_profit_pct"`
	MaxProfitPct float64 `yaml:"max_profit_pct"`
}

type RateConfig struct {
	MinRate     float64       `yaml:"min_rate"`
	MaxRate     float64       `yaml:"max_rate"`
	MaxQuoteAge time.Duration `yaml:"max_quote_age"`
}

type FeeConfig struct {
	Default   float64       `yaml:"default"`
	Overrides []FeeOverride `yaml:"overrides"`
}

type FeeOverride struct {
	From string  `yaml:"from"`
	To   string  `yaml:"to"`
	Fee  float64 `yaml:"fee"`
}

type CostConfig struct {
	Base   float64 `yaml:"base"`
	PerHop float64 `yaml:"per_hop"`
}

type SourcesConfig struct {
	Static    StaticSourceConfig `yaml:"static"`
	Uniswap   PairSourceConfig   `yaml:"uniswap"`
	Sushiswap PairSourceConfig   `yaml:"sushiswap"`
	HTTP      HTTPSourceConfig   `yaml:"http"`
	Redis     RedisSourceConfig  `yaml:"redis"`
}

type StaticSourceConfig struct {
	Path string `yaml:"path"`
}

type PairSourceConfig struct {
	Enabled     bool         `yaml:"enabled"`
	RPCEndpoint string       `yaml:"rpc_endpoint"`
	Fee         float64      `yaml:"fee"`
	Pairs       []PairConfig `yaml:"pairs"`
}

type PairConfig struct {
	Address string `yaml:"address"`
	Token0  string `yaml:"token0"`
	Token1  string `yaml:"token1"`
}

type HTTPSourceConfig struct {
	Enabled           bool          `yaml:"enabled"`
	URL               string        `yaml:"url"`
	Exchange          string        `yaml:"exchange"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
}

type RedisSourceConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type ReportingConfig struct {
	Log bool `yaml:"log"`
	// SuppressWindow is the number of recently reported cycles that are not
	// re-reported on later passes; 0 disables suppression.
	SuppressWindow int                `yaml:"suppress_window"`
	Redis          RedisReportConfig  `yaml:"redis"`
	SQLite         SQLiteReportConfig `yaml:"sqlite"`
}

type RedisReportConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	Stream   string `yaml:"stream"`
}

type SQLiteReportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	Namespace      string        `yaml:"namespace"`
	SystemInterval time.Duration `yaml:"system_interval"`
	// StatusInterval is how often the running bot logs its counters; 0
	// disables the status log.
	StatusInterval time.Duration `yaml:"status_interval"`
}

func (c *Config) ValidateConfig() error {
	var errs []string

	if len(c.Tokens) == 0 {
		errs = append(errs, "token universe must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Tokens))
	for i, t := range c.Tokens {
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("tokens[%d]: id must be specified", i))
			continue
		}
		if _, dup := seen[t.ID]; dup {
			errs = append(errs, fmt.Sprintf("tokens[%d]: duplicate id %s", i, t.ID))
		}
		seen[t.ID] = struct{}{}
	}

	if err := c.Detection.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("detection: %v", err))
	}
	if err := c.Acceptance.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("acceptance: %v", err))
	}
	if err := c.Rates.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("rates: %v", err))
	}
	if err := c.Fees.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("fees: %v", err))
	}
	if c.Cost.Base < 0 || c.Cost.PerHop < 0 {
		errs = append(errs, "cost: base and per_hop must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func (d *DetectionConfig) Validate() error {
	if d.HopLimit <= 0 {
		return fmt.Errorf("hop_limit must be positive")
	}
	if d.MinCycleLength < 2 {
		return fmt.Errorf("min_cycle_length must be at least 2")
	}
	if d.MaxCycleLength < d.MinCycleLength {
		return fmt.Errorf("max_cycle_length must not be below min_cycle_length")
	}
	if d.ReconstructionCap < 0 {
		return fmt.Errorf("reconstruction_cap must not be negative")
	}
	if d.EnumerationBudget < 0 {
		return fmt.Errorf("enumeration_budget must not be negative")
	}
	if d.RelaxEpsilon < 0 {
		return fmt.Errorf("relax_epsilon must not be negative")
	}
	if d.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if !(d.Capital > 0) || math.IsInf(d.Capital, 0) {
		return fmt.Errorf("capital must be a positive finite amount")
	}
	return nil
}

func (a *AcceptanceConfig) Validate() error {
	if a.MinProfitPct < 0 {
		return fmt.Errorf("min_profit_pct must not be negative")
	}
	if a.MaxProfitPct <= a.MinProfitPct {
		return fmt.Errorf("max_profit_pct must be greater than min_profit_pct")
	}
	return nil
}

func (r *RateConfig) Validate() error {
	if !(r.MinRate > 0) {
		return fmt.Errorf("min_rate must be positive")
	}
	if !(r.MaxRate > r.MinRate) || math.IsInf(r.MaxRate, 0) {
		return fmt.Errorf("max_rate must be finite and greater than min_rate")
	}
	if r.MaxQuoteAge < 0 {
		return fmt.Errorf("max_quote_age must not be negative")
	}
	return nil
}

func (f *FeeConfig) Validate() error {
	if f.Default < 0 || f.Default >= 1 {
		return fmt.Errorf("default fee must be in [0,1)")
	}
	for i, o := range f.Overrides {
		if o.From == "" || o.To == "" {
			return fmt.Errorf("overrides[%d]: from and to must be specified", i)
		}
		if o.Fee < 0 || o.Fee >= 1 {
			return fmt.Errorf("overrides[%d]: fee must be in [0,1)", i)
		}
	}
	return nil
}

// OverrideMap returns the per-pair fee overrides keyed by ordered pair.
func (f *FeeConfig) OverrideMap() map[types.PairKey]float64 {
	out := make(map[types.PairKey]float64, len(f.Overrides))
	for _, o := range f.Overrides {
		out[types.PairKey{From: o.From, To: o.To}] = o.Fee
	}
	return out
}

// NormalizeTokenID returns EVM addresses in checksum form and leaves every
// other identity (e.g. base58 mints) untouched.
func NormalizeTokenID(id string) string {
	id = strings.TrimSpace(id)
	if common.IsHexAddress(id) {
		return common.HexToAddress(id).Hex()
	}
	return id
}

// Normalize rewrites every token identity in the configuration to its
// canonical form so lookups agree across sections.
func (c *Config) Normalize() {
	for i := range c.Tokens {
		c.Tokens[i].ID = NormalizeTokenID(c.Tokens[i].ID)
	}
	for i := range c.Fees.Overrides {
		c.Fees.Overrides[i].From = NormalizeTokenID(c.Fees.Overrides[i].From)
		c.Fees.Overrides[i].To = NormalizeTokenID(c.Fees.Overrides[i].To)
	}
	for _, src := range []*PairSourceConfig{&c.Sources.Uniswap, &c.Sources.Sushiswap} {
		for i := range src.Pairs {
			src.Pairs[i].Token0 = NormalizeTokenID(src.Pairs[i].Token0)
			src.Pairs[i].Token1 = NormalizeTokenID(src.Pairs[i].Token1)
		}
	}
}

// LoadConfig reads a YAML configuration on top of DefaultConfig, applies
// environment overrides and validates the result.
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	if cfgFile != "" {
		data, err := os.ReadFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Normalize()

	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(cfg *Config, cfgFile string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(cfgFile, data, 0o644)
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Detection: DetectionConfig{
			HopLimit:       5,
			MinCycleLength: 3,
			MaxCycleLength: 6,
			RelaxEpsilon:   1e-12,
			Interval:       5 * time.Second,
			Capital:        1000,
		},
		Acceptance: AcceptanceConfig{
			MinProfitPct: 0.001,
			MaxProfitPct: 50,
		},
		Rates: RateConfig{
			MinRate:     1e-9,
			MaxRate:     1e9,
			MaxQuoteAge: 0,
		},
		Fees: FeeConfig{
			Default: 0.003, // Uniswap V2 pool fee
		},
		Cost: CostConfig{
			Base:   0,
			PerHop: 1,
		},
		Sources: SourcesConfig{
			Uniswap: PairSourceConfig{
				RPCEndpoint: "http://localhost:8545",
				Fee:         0.003,
			},
			Sushiswap: PairSourceConfig{
				RPCEndpoint: "http://localhost:8545",
				Fee:         0.003,
			},
			HTTP: HTTPSourceConfig{
				Exchange:          "jupiter",
				RequestsPerSecond: 2,
				Burst:             1,
				Timeout:           5 * time.Second,
			},
			Redis: RedisSourceConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "quote",
			},
		},
		Reporting: ReportingConfig{
			Log:            true,
			SuppressWindow: 1024,
			Redis: RedisReportConfig{
				Addr:    "localhost:6379",
				Channel: "cyclearb:opportunities",
				Stream:  "cyclearb:passes",
			},
			SQLite: SQLiteReportConfig{
				Path: "cyclearb.db",
			},
		},
		Metrics: MetricsConfig{
			Addr:           ":9090",
			Namespace:      "cyclearb",
			SystemInterval: 15 * time.Second,
			StatusInterval: time.Minute,
		},
	}
}
