package httpquote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/time/rate"
)

const maxBodySize = 16 << 20

// quoteEntry is one quote in the aggregator response.
type quoteEntry struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Rate      float64   `json:"rate"`
	Fee       *float64  `json:"fee,omitempty"`
	Liquidity float64   `json:"liquidity,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Exchange  string    `json:"exchange,omitempty"`
}

type quotesResponse struct {
	Quotes []quoteEntry `json:"quotes"`
}

// Source polls a JSON quote aggregator. Requests are paced by a token bucket
// so a fast detection cadence cannot exceed the upstream's rate limit.
type Source struct {
	client   *http.Client
	url      string
	exchange string
	limiter  *rate.Limiter
}

// NewSource creates an HTTP quote source
func NewSource(cfg config.HTTPSourceConfig) (*Source, error) {
	if cfg.URL == "" {
		return nil, errors.New("http quote source: url must be specified")
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "http"
	}

	return &Source{
		client:   &http.Client{Timeout: timeout},
		url:      cfg.URL,
		exchange: exchange,
		limiter:  rate.NewLimiter(limit, burst),
	}, nil
}

func (s *Source) Name() string {
	return s.exchange
}

// FetchQuotes requests the full quote set. Any transport, status or decoding
// failure fails the fetch.
func (s *Source) FetchQuotes(ctx context.Context) (types.QuoteSet, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quotes: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := body
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, fmt.Errorf("quote API returned %d: %s", resp.StatusCode, snippet)
	}

	var payload quotesResponse
	if err := sonnet.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode quotes: %w", err)
	}

	quotes := make(types.QuoteSet, len(payload.Quotes))
	for i, e := range payload.Quotes {
		if e.From == "" || e.To == "" {
			return nil, fmt.Errorf("quotes[%d]: missing token", i)
		}
		q := types.Quote{
			Rate:      e.Rate,
			Liquidity: e.Liquidity,
			Timestamp: e.Timestamp,
			Exchange:  e.Exchange,
		}
		if e.Fee != nil {
			q.Fee, q.HasFee = *e.Fee, true
		}
		if q.Exchange == "" {
			q.Exchange = s.exchange
		}
		quotes[types.PairKey{From: config.NormalizeTokenID(e.From), To: config.NormalizeTokenID(e.To)}] = q
	}
	return quotes, nil
}
