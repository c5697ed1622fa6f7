package uniswap

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/dex"
	"github.com/michaelpento.lv/cyclearb/types"
	ratemath "github.com/michaelpento.lv/cyclearb/utils/math"
	"golang.org/x/sync/errgroup"
)

// Contract addresses
var (
	MainnetFactory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	InitCodeHash   = common.FromHex("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
)

// Options configures a V2 pair reader.
type Options struct {
	// Name is reported as the exchange of every quote.
	Name     string
	Factory  common.Address
	InitCode []byte
	// Fee is the pool fee attached to every quote.
	Fee   float64
	Pairs []config.PairConfig
	// Tokens supplies decimals; pairs must only reference these tokens.
	Tokens      []types.Token
	Concurrency int
	Now         func() time.Time
}

// V2Source reads spot rates from Uniswap V2 style pools. Each pool yields a
// quote in both directions.
type V2Source struct {
	opts     Options
	decimals map[string]uint8
	pairs    []*pairState
}

type pairState struct {
	pair   *Pair
	tokenA common.Address
	tokenB common.Address

	mu       sync.Mutex
	resolved bool
	token0   common.Address
	token1   common.Address
}

// NewV2Source creates a reader for opts.Pairs. A pair without an explicit
// address is located with the factory's CREATE2 derivation.
func NewV2Source(caller bind.ContractCaller, opts Options) (*V2Source, error) {
	if opts.Name == "" {
		opts.Name = "uniswap"
	}
	if opts.Fee < 0 || opts.Fee >= 1 {
		return nil, fmt.Errorf("%s: fee must be in [0,1)", opts.Name)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &V2Source{
		opts:     opts,
		decimals: make(map[string]uint8, len(opts.Tokens)),
	}
	for _, t := range opts.Tokens {
		s.decimals[config.NormalizeTokenID(t.ID)] = t.Decimals
	}

	for i, pc := range opts.Pairs {
		if !common.IsHexAddress(pc.Token0) || !common.IsHexAddress(pc.Token1) {
			return nil, fmt.Errorf("%s: pairs[%d]: tokens must be hex addresses", opts.Name, i)
		}
		a, b := common.HexToAddress(pc.Token0), common.HexToAddress(pc.Token1)
		for _, tok := range []common.Address{a, b} {
			if _, ok := s.decimals[tok.Hex()]; !ok {
				return nil, fmt.Errorf("%s: pairs[%d]: token %s is not in the universe", opts.Name, i, tok.Hex())
			}
		}

		var addr common.Address
		switch {
		case pc.Address != "":
			if !common.IsHexAddress(pc.Address) {
				return nil, fmt.Errorf("%s: pairs[%d]: invalid pair address %q", opts.Name, i, pc.Address)
			}
			addr = common.HexToAddress(pc.Address)
		case len(opts.InitCode) > 0:
			addr = PairFor(opts.Factory, opts.InitCode, a, b)
		default:
			return nil, fmt.Errorf("%s: pairs[%d]: no address and no factory to derive it", opts.Name, i)
		}

		s.pairs = append(s.pairs, &pairState{pair: NewPair(addr, caller), tokenA: a, tokenB: b})
	}

	return s, nil
}

// Name returns the exchange name
func (s *V2Source) Name() string {
	return s.opts.Name
}

// FetchQuotes reads the reserves of every configured pool. Any failing pool
// fails the whole fetch.
func (s *V2Source) FetchQuotes(ctx context.Context) (types.QuoteSet, error) {
	reserves := make([]*dex.Reserves, len(s.pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, ps := range s.pairs {
		i, ps := i, ps
		g.Go(func() error {
			if err := ps.resolve(gctx); err != nil {
				return err
			}
			r, err := ps.pair.GetReserves(gctx)
			if err != nil {
				return err
			}
			reserves[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.opts.Name, err)
	}

	now := s.opts.Now()
	quotes := make(types.QuoteSet, 2*len(s.pairs))
	for i, ps := range s.pairs {
		t0, t1 := ps.token0.Hex(), ps.token1.Hex()
		d0, d1 := s.decimals[t0], s.decimals[t1]
		r := reserves[i]

		quotes[types.PairKey{From: t0, To: t1}] = types.Quote{
			Rate:      ratemath.SpotRate(r.Reserve0, r.Reserve1, d0, d1),
			Fee:       s.opts.Fee,
			HasFee:    true,
			Liquidity: ratemath.ToFloat(r.Reserve1, d1),
			Timestamp: now,
			Exchange:  s.opts.Name,
		}
		quotes[types.PairKey{From: t1, To: t0}] = types.Quote{
			Rate:      ratemath.SpotRate(r.Reserve1, r.Reserve0, d1, d0),
			Fee:       s.opts.Fee,
			HasFee:    true,
			Liquidity: ratemath.ToFloat(r.Reserve0, d0),
			Timestamp: now,
			Exchange:  s.opts.Name,
		}
	}
	return quotes, nil
}

// resolve reads the pool's token ordering once and checks it against the
// configured tokens. Failed reads are retried on the next fetch.
func (ps *pairState) resolve(ctx context.Context) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.resolved {
		return nil
	}

	t0, err := ps.pair.Token0(ctx)
	if err != nil {
		return err
	}
	t1, err := ps.pair.Token1(ctx)
	if err != nil {
		return err
	}
	if !((t0 == ps.tokenA && t1 == ps.tokenB) || (t0 == ps.tokenB && t1 == ps.tokenA)) {
		return fmt.Errorf("pair %s holds %s/%s, configured as %s/%s",
			ps.pair.Address().Hex(), t0.Hex(), t1.Hex(), ps.tokenA.Hex(), ps.tokenB.Hex())
	}
	ps.token0, ps.token1 = t0, t1
	ps.resolved = true
	return nil
}

// PairFor calculates the CREATE2 pair address for two tokens
func PairFor(factory common.Address, initCode []byte, tokenA, tokenB common.Address) common.Address {
	token0, token1 := tokenA, tokenB
	if bytes.Compare(token0.Bytes(), token1.Bytes()) > 0 {
		token0, token1 = token1, token0
	}

	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256([]byte{0xff}, factory.Bytes(), salt, initCode)[12:])
}
