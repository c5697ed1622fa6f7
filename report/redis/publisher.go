package redis

import (
	"context"
	"fmt"

	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/redis/go-redis/v9"
	"github.com/sugawarayuuta/sonnet"
)

// streamMaxLen caps the pass stream via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// Publisher pushes each opportunity onto a pub/sub channel and appends a
// summary of every pass to a stream.
type Publisher struct {
	rdb     *redis.Client
	channel string
	stream  string
}

// New connects to the configured server and verifies it is reachable.
func New(ctx context.Context, cfg config.RedisReportConfig) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return NewWithClient(rdb, cfg.Channel, cfg.Stream), nil
}

func NewWithClient(rdb *redis.Client, channel, stream string) *Publisher {
	return &Publisher{rdb: rdb, channel: channel, stream: stream}
}

func (p *Publisher) Name() string { return "redis" }

func (p *Publisher) Close() error { return p.rdb.Close() }

type opportunityMessage struct {
	PassID string `json:"pass_id"`
	Rank   int    `json:"rank"`
	types.Opportunity
}

func (p *Publisher) Report(ctx context.Context, result types.PassResult) error {
	for i, opp := range result.Opportunities {
		payload, err := sonnet.Marshal(opportunityMessage{PassID: result.ID, Rank: i + 1, Opportunity: opp})
		if err != nil {
			return fmt.Errorf("redis: encode opportunity: %w", err)
		}
		if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
			return fmt.Errorf("redis: publish %s: %w", p.channel, err)
		}
	}

	if p.stream == "" {
		return nil
	}
	values := map[string]interface{}{
		"pass_id":       result.ID,
		"snapshot":      result.SnapshotVersion,
		"started_at":    result.StartedAt.UnixMilli(),
		"duration_ms":   result.Duration.Milliseconds(),
		"opportunities": len(result.Opportunities),
		"cycles_found":  result.Stats.CyclesFound,
	}
	if !result.Empty() {
		values["best_route"] = result.Opportunities[0].Route()
		values["best_profit_pct"] = result.Opportunities[0].ProfitPct
	}
	err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: xadd %s: %w", p.stream, err)
	}
	return nil
}
