package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/michaelpento.lv/cyclearb/cmd/bot"
	"github.com/michaelpento.lv/cyclearb/strategies/arbitrage"
	"github.com/michaelpento.lv/cyclearb/utils"
	"github.com/michaelpento.lv/cyclearb/utils/metrics"
	"github.com/michaelpento.lv/cyclearb/utils/monitor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run detection passes continuously",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, log, err := setup()
		if err != nil {
			utils.GetLogger().Fatal("Failed to load config", zap.Error(err))
		}
		defer utils.CleanupLogger()

		reg := metrics.NewRegistry()
		namespace := cfg.Metrics.Namespace

		source, closeSources, err := bot.BuildSource(ctx, cfg, log, metrics.NewSourceMetrics(reg, namespace))
		if err != nil {
			log.Fatal("Failed to configure rate sources", zap.Error(err))
		}
		defer closeSources.Run()

		reporter, closeReporters, err := bot.BuildReporter(ctx, cfg, log, metrics.NewReportMetrics(reg, namespace))
		if err != nil {
			log.Fatal("Failed to configure reporters", zap.Error(err))
		}
		defer closeReporters.Run()

		engine, err := arbitrage.NewEngine(cfg, source, log.With(zap.String("component", "engine")),
			arbitrage.WithRegisterer(reg))
		if err != nil {
			log.Fatal("Failed to create detection engine", zap.Error(err))
		}

		if cfg.Metrics.Enabled {
			sysMon, err := monitor.NewSystemMonitor(ctx, log, metrics.NewSystemMetrics(reg, namespace), cfg.Metrics.SystemInterval)
			if err != nil {
				log.Fatal("Failed to create system monitor", zap.Error(err))
			}
			defer sysMon.Cleanup()

			server := &http.Server{
				Addr:              cfg.Metrics.Addr,
				Handler:           metrics.Handler(reg),
				ReadHeaderTimeout: 2 * time.Second,
			}
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Metrics server error", zap.Error(err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Error("Metrics server shutdown failed", zap.Error(err))
				}
			}()
			log.Info("Serving metrics", zap.String("addr", cfg.Metrics.Addr))
		}

		b := bot.New(engine, reporter, cfg.Detection.Interval, log)
		b.EnableStatusLog(engine.Metrics(), cfg.Metrics.StatusInterval)
		if err := b.Start(ctx); err != nil {
			log.Fatal("Failed to start bot", zap.Error(err))
		}

		log.Info("cyclearb started",
			zap.Int("tokens", len(cfg.Tokens)),
			zap.String("sources", source.Name()),
			zap.Int("hop_limit", cfg.Detection.HopLimit))

		<-ctx.Done()
		log.Info("Shutting down gracefully...")
		b.Stop()

		passes, failures, _ := b.Stats()
		log.Info("Stopped", zap.Int("passes", passes), zap.Int("failures", failures))
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
