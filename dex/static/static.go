package static

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/types"
	"gopkg.in/yaml.v2"
)

// QuoteEntry is one directed quote in a quotes file.
type QuoteEntry struct {
	From      string    `yaml:"from"`
	To        string    `yaml:"to"`
	Rate      float64   `yaml:"rate"`
	Fee       *float64  `yaml:"fee,omitempty"`
	Liquidity float64   `yaml:"liquidity,omitempty"`
	Timestamp time.Time `yaml:"timestamp,omitempty"`
	Exchange  string    `yaml:"exchange,omitempty"`
}

type quotesFile struct {
	Quotes []QuoteEntry `yaml:"quotes"`
}

// Source serves quotes from a YAML file or from memory. A file source
// re-reads the file on every fetch so edits are picked up by the next pass.
type Source struct {
	path   string
	quotes types.QuoteSet
	now    func() time.Time
}

// NewFileSource creates a source reading path on every fetch.
func NewFileSource(path string) *Source {
	return &Source{path: path, now: time.Now}
}

// NewSource creates a source that always returns a copy of quotes.
func NewSource(quotes types.QuoteSet) *Source {
	return &Source{quotes: quotes.Clone(), now: time.Now}
}

func (s *Source) Name() string {
	return "static"
}

// FetchQuotes returns the configured quotes. Quotes without a timestamp are
// stamped with the fetch time.
func (s *Source) FetchQuotes(ctx context.Context) (types.QuoteSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.path == "" {
		return s.quotes.Clone(), nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quotes file: %w", err)
	}
	quotes, err := ParseQuotes(data, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to parse quotes file %s: %w", s.path, err)
	}
	return quotes, nil
}

// ParseQuotes decodes a quotes document. Later entries for the same ordered
// pair replace earlier ones.
func ParseQuotes(data []byte, now time.Time) (types.QuoteSet, error) {
	var f quotesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	quotes := make(types.QuoteSet, len(f.Quotes))
	for i, e := range f.Quotes {
		if e.From == "" || e.To == "" {
			return nil, fmt.Errorf("quotes[%d]: from and to must be specified", i)
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
		if q.Timestamp.IsZero() {
			q.Timestamp = now
		}
		if q.Exchange == "" {
			q.Exchange = "static"
		}
		key := types.PairKey{From: config.NormalizeTokenID(e.From), To: config.NormalizeTokenID(e.To)}
		quotes[key] = q
	}
	return quotes, nil
}
