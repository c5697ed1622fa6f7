package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/dex"
	"github.com/michaelpento.lv/cyclearb/dex/httpquote"
	"github.com/michaelpento.lv/cyclearb/dex/rediscache"
	"github.com/michaelpento.lv/cyclearb/dex/static"
	"github.com/michaelpento.lv/cyclearb/dex/sushiswap"
	"github.com/michaelpento.lv/cyclearb/dex/uniswap"
	"github.com/michaelpento.lv/cyclearb/graph"
	"github.com/michaelpento.lv/cyclearb/report"
	reportredis "github.com/michaelpento.lv/cyclearb/report/redis"
	"github.com/michaelpento.lv/cyclearb/report/sqlite"
	"github.com/michaelpento.lv/cyclearb/utils/metrics"
	"go.uber.org/zap"
)

// ErrNoSources is returned when the configuration enables no rate source.
var ErrNoSources = errors.New("no rate source enabled")

// Cleanup releases connections opened while wiring.
type Cleanup []func()

func (c Cleanup) Run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// BuildSource connects every enabled rate source and merges them. On error
// everything opened so far is released.
func BuildSource(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.SourceMetrics) (dex.RateSource, Cleanup, error) {
	var (
		sources []dex.RateSource
		cleanup Cleanup
	)
	fail := func(err error) (dex.RateSource, Cleanup, error) {
		cleanup.Run()
		return nil, nil, err
	}

	if cfg.Sources.Static.Path != "" {
		sources = append(sources, static.NewFileSource(cfg.Sources.Static.Path))
	}

	if sc := cfg.Sources.Uniswap; sc.Enabled {
		client, err := ethclient.DialContext(ctx, sc.RPCEndpoint)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to %s: %w", sc.RPCEndpoint, err))
		}
		cleanup = append(cleanup, client.Close)
		src, err := uniswap.NewV2Source(client, uniswap.Options{
			Name:     "uniswap-v2",
			Factory:  uniswap.MainnetFactory,
			InitCode: uniswap.InitCodeHash,
			Fee:      sc.Fee,
			Pairs:    sc.Pairs,
			Tokens:   cfg.Tokens,
		})
		if err != nil {
			return fail(err)
		}
		sources = append(sources, src)
	}

	if sc := cfg.Sources.Sushiswap; sc.Enabled {
		client, err := ethclient.DialContext(ctx, sc.RPCEndpoint)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to %s: %w", sc.RPCEndpoint, err))
		}
		cleanup = append(cleanup, client.Close)
		src, err := sushiswap.NewSource(client, sc, cfg.Tokens)
		if err != nil {
			return fail(err)
		}
		sources = append(sources, src)
	}

	if cfg.Sources.HTTP.Enabled {
		src, err := httpquote.NewSource(cfg.Sources.HTTP)
		if err != nil {
			return fail(err)
		}
		sources = append(sources, src)
	}

	if cfg.Sources.Redis.Enabled {
		src, err := rediscache.New(ctx, cfg.Sources.Redis)
		if err != nil {
			return fail(err)
		}
		cleanup = append(cleanup, func() { _ = src.Close() })
		sources = append(sources, src)
	}

	if len(sources) == 0 {
		return fail(ErrNoSources)
	}

	logger.Info("Rate sources configured", zap.Int("count", len(sources)))
	fees := graph.Policy{DefaultFee: cfg.Fees.Default, FeeOverrides: cfg.Fees.OverrideMap()}
	return dex.NewMultiSource(logger.With(zap.String("component", "sources")), m, fees, sources...), cleanup, nil
}

// BuildReporter assembles the enabled reporters behind a fanout. With a
// positive suppression window already reported cycles are dropped before
// delivery.
func BuildReporter(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.ReportMetrics) (report.Reporter, Cleanup, error) {
	var (
		reporters []report.Reporter
		cleanup   Cleanup
	)
	fail := func(err error) (report.Reporter, Cleanup, error) {
		cleanup.Run()
		return nil, nil, err
	}

	rc := cfg.Reporting
	if rc.Log {
		reporters = append(reporters, report.NewLogReporter(logger.With(zap.String("component", "report"))))
	}
	if rc.Redis.Enabled {
		pub, err := reportredis.New(ctx, rc.Redis)
		if err != nil {
			return fail(err)
		}
		cleanup = append(cleanup, func() { _ = pub.Close() })
		reporters = append(reporters, pub)
	}
	if rc.SQLite.Enabled {
		archive, err := sqlite.Open(rc.SQLite.Path)
		if err != nil {
			return fail(err)
		}
		cleanup = append(cleanup, func() { _ = archive.Close() })
		reporters = append(reporters, archive)
	}

	var out report.Reporter = report.NewFanout(logger, m, reporters...)
	if rc.SuppressWindow > 0 {
		s, err := report.NewSuppressor(out, rc.SuppressWindow, m)
		if err != nil {
			return fail(err)
		}
		out = s
	}
	return out, cleanup, nil
}
