package cmd

import (
	"context"
	"fmt"

	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "cyclearb",
	Short: "Detect cyclic arbitrage across token exchange rates",
	Long: `cyclearb models a market as a directed graph of tokens weighted by
-ln(rate * (1 - fee)) and searches it for negative cycles, i.e. trade loops
whose compounded return exceeds one. Opportunities are ranked and handed to
the configured reporters.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initEnv() {
	// a missing .env file is not an error
	_ = config.LoadEnv()
}

// setup loads the configuration and initializes the global logger from it.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Debug = true
	}
	return cfg, utils.InitLogger(cfg.LogLevel, cfg.Debug), nil
}
