package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Chain identifies a tracked blockchain token quoted in USD.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
)

// tokenAddresses maps each chain to the ERC-20 contract the price API quotes.
var tokenAddresses = map[Chain]common.Address{
	ChainEthereum: common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"), // WETH
	ChainPolygon:  common.HexToAddress("0x7d1afa7b718fb893db30a3abc0cfc608aacfebb0"), // MATIC
}

// Swap legs are quoted through the same price API but are not tracked chains.
var (
	SwapTokenETH = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2") // WETH
	SwapTokenBTC = common.HexToAddress("0x2260fac5e5542a773aa44fbcfedf7c193bc2c599") // WBTC
)

// Tracked returns the fixed set of chains the tracker samples every cycle.
func Tracked() []Chain {
	return []Chain{ChainEthereum, ChainPolygon}
}

// ParseChain validates a caller-supplied chain name.
func ParseChain(s string) (Chain, error) {
	switch c := Chain(strings.ToLower(strings.TrimSpace(s))); c {
	case ChainEthereum, ChainPolygon:
		return c, nil
	default:
		return "", fmt.Errorf("chain must be either ethereum or polygon, got %q", s)
	}
}

// TokenAddress returns the ERC-20 contract address quoted for this chain.
func (c Chain) TokenAddress() common.Address {
	return tokenAddresses[c]
}

func (c Chain) String() string {
	return string(c)
}
