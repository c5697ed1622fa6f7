package sushiswap

import (
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/dex/uniswap"
	"github.com/michaelpento.lv/cyclearb/types"
)

// Factory addresses
var (
	MainnetFactory = common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac")
	InitCodeHash   = common.FromHex("0xe18a34eb0e04b04f7a0ac29a6e80748dca96319b42c54d679cb821dca90c6303")
)

// NewSource creates a reader for Sushiswap pools. Sushiswap pools share the
// Uniswap V2 pair interface and differ only in factory and init code.
func NewSource(caller bind.ContractCaller, cfg config.PairSourceConfig, tokens []types.Token) (*uniswap.V2Source, error) {
	return uniswap.NewV2Source(caller, uniswap.Options{
		Name:     "sushiswap",
		Factory:  MainnetFactory,
		InitCode: InitCodeHash,
		Fee:      cfg.Fee,
		Pairs:    cfg.Pairs,
		Tokens:   tokens,
	})
}
