// Package rediscache reads quotes that an external collector keeps in Redis.
// Each directed quote is a hash at "{prefix}:{from}:{to}" with fields "rate",
// "fee" (optional), "liquidity", "ts" (Unix nanoseconds) and "exchange".
package rediscache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/redis/go-redis/v9"
)

const scanCount = 512

type Source struct {
	rdb    *redis.Client
	prefix string
}

// New connects to Redis, pings it and returns a quote source.
func New(ctx context.Context, cfg config.RedisSourceConfig) (*Source, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewWithClient(rdb, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, prefix string) *Source {
	if prefix == "" {
		prefix = "quote"
	}
	return &Source{rdb: rdb, prefix: prefix}
}

func (s *Source) Name() string {
	return "redis"
}

func (s *Source) Close() error {
	return s.rdb.Close()
}

func (s *Source) key(pair types.PairKey) string {
	return s.prefix + ":" + pair.From + ":" + pair.To
}

// SetQuote stores one directed quote.
func (s *Source) SetQuote(ctx context.Context, pair types.PairKey, q types.Quote) error {
	fields := map[string]interface{}{
		"rate":      strconv.FormatFloat(q.Rate, 'g', -1, 64),
		"liquidity": strconv.FormatFloat(q.Liquidity, 'g', -1, 64),
		"ts":        strconv.FormatInt(q.Timestamp.UnixNano(), 10),
		"exchange":  q.Exchange,
	}
	if q.HasFee {
		fields["fee"] = strconv.FormatFloat(q.Fee, 'g', -1, 64)
	}
	if err := s.rdb.HSet(ctx, s.key(pair), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", pair, err)
	}
	return nil
}

// FetchQuotes scans every quote key and reads them in one pipeline. A key
// that cannot be parsed fails the fetch.
func (s *Source) FetchQuotes(ctx context.Context) (types.QuoteSet, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+":*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan quotes: %w", err)
	}

	quotes := make(types.QuoteSet, len(keys))
	if len(keys) == 0 {
		return quotes, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: read quotes: %w", err)
	}

	for i, key := range keys {
		pair, ok := s.parseKey(key)
		if !ok {
			return nil, fmt.Errorf("redis: malformed quote key %q", key)
		}
		vals := cmds[i].Val()
		if len(vals) == 0 {
			// deleted between SCAN and HGETALL
			continue
		}
		q, err := parseQuote(vals)
		if err != nil {
			return nil, fmt.Errorf("redis: quote %s: %w", key, err)
		}
		quotes[pair] = q
	}
	return quotes, nil
}

func (s *Source) parseKey(key string) (types.PairKey, bool) {
	rest, ok := strings.CutPrefix(key, s.prefix+":")
	if !ok {
		return types.PairKey{}, false
	}
	from, to, ok := strings.Cut(rest, ":")
	if !ok || from == "" || to == "" {
		return types.PairKey{}, false
	}
	return types.PairKey{From: config.NormalizeTokenID(from), To: config.NormalizeTokenID(to)}, true
}

func parseQuote(vals map[string]string) (types.Quote, error) {
	var q types.Quote
	var err error

	raw, ok := vals["rate"]
	if !ok {
		return q, fmt.Errorf("missing rate")
	}
	if q.Rate, err = strconv.ParseFloat(raw, 64); err != nil {
		return q, fmt.Errorf("parse rate: %w", err)
	}
	if raw, ok := vals["fee"]; ok {
		if q.Fee, err = strconv.ParseFloat(raw, 64); err != nil {
			return q, fmt.Errorf("parse fee: %w", err)
		}
		q.HasFee = true
	}
	if raw, ok := vals["liquidity"]; ok && raw != "" {
		if q.Liquidity, err = strconv.ParseFloat(raw, 64); err != nil {
			return q, fmt.Errorf("parse liquidity: %w", err)
		}
	}
	if raw, ok := vals["ts"]; ok && raw != "" {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, fmt.Errorf("parse ts: %w", err)
		}
		q.Timestamp = time.Unix(0, nanos)
	}
	q.Exchange = vals["exchange"]
	if q.Exchange == "" {
		q.Exchange = "redis"
	}
	return q, nil
}
