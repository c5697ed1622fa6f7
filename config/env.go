package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvLogLevel    = "CYCLEARB_LOG_LEVEL"
	EnvRPCEndpoint = "CYCLEARB_RPC_ENDPOINT" // shared by the on-chain pair readers
	EnvRedisAddr   = "CYCLEARB_REDIS_ADDR"
	EnvMetricsAddr = "CYCLEARB_METRICS_ADDR"
	EnvHopLimit    = "CYCLEARB_HOP_LIMIT"
	EnvQuotesFile  = "CYCLEARB_QUOTES_FILE"
	EnvQuoteURL    = "CYCLEARB_QUOTE_URL"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// ApplyEnv overlays CYCLEARB_* variables onto cfg. A numeric variable that
// does not parse is an error.
func ApplyEnv(cfg *Config) error {
	cfg.LogLevel = GetEnvWithDefault(EnvLogLevel, cfg.LogLevel)

	if rpc := os.Getenv(EnvRPCEndpoint); rpc != "" {
		cfg.Sources.Uniswap.RPCEndpoint = rpc
		cfg.Sources.Sushiswap.RPCEndpoint = rpc
	}
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		cfg.Sources.Redis.Addr = addr
		cfg.Reporting.Redis.Addr = addr
	}
	cfg.Metrics.Addr = GetEnvWithDefault(EnvMetricsAddr, cfg.Metrics.Addr)
	cfg.Sources.Static.Path = GetEnvWithDefault(EnvQuotesFile, cfg.Sources.Static.Path)
	cfg.Sources.HTTP.URL = GetEnvWithDefault(EnvQuoteURL, cfg.Sources.HTTP.URL)

	if v := os.Getenv(EnvHopLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHopLimit, err)
		}
		cfg.Detection.HopLimit = n
	}
	return nil
}
