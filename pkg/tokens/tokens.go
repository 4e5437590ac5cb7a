package tokens

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	HostChainID   uint64 = 3151908
	RollupChainID uint64 = 14174
)

// NativeAddress is the pseudo-address used for the chain's gas token
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Permit2Address is the canonical Permit2 deployment, identical on every chain
var Permit2Address = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")

// Token describes an asset and where it lives on each supported chain
type Token struct {
	Symbol      string                    `json:"symbol"`
	Name        string                    `json:"name"`
	Decimals    uint8                     `json:"decimals"`
	Addresses   map[uint64]common.Address `json:"addresses"`
	PriceFeedID string                    `json:"priceFeedId"`
}

// AddressOn returns the token address on a chain
func (t Token) AddressOn(chainID uint64) (common.Address, bool) {
	addr, ok := t.Addresses[chainID]
	return addr, ok
}

// IsNativeOn reports whether the token is the gas token on the given chain
func (t Token) IsNativeOn(chainID uint64) bool {
	addr, ok := t.Addresses[chainID]
	return ok && IsNative(addr)
}

// IsNative reports whether addr is the native pseudo-address
func IsNative(addr common.Address) bool {
	return addr == NativeAddress
}

var registry = []Token{
	{
		Symbol:   "ETH",
		Name:     "Ether",
		Decimals: 18,
		Addresses: map[uint64]common.Address{
			HostChainID:   NativeAddress,
			RollupChainID: NativeAddress,
		},
		PriceFeedID: "ethereum",
	},
	{
		Symbol:   "USDC",
		Name:     "USD Coin",
		Decimals: 6,
		Addresses: map[uint64]common.Address{
			HostChainID:   common.HexToAddress("0x885F8DB528dC8a38aA3DDad9D3F619746B4a6A81"),
			RollupChainID: common.HexToAddress("0x0B8BC5e60EE10957E0d1A0d95598fA63E65605e2"),
		},
		PriceFeedID: "usd-coin",
	},
	{
		Symbol:   "USDT",
		Name:     "Tether USD",
		Decimals: 6,
		Addresses: map[uint64]common.Address{
			HostChainID:   common.HexToAddress("0x7970D259D4a96764Fa9B23FF0715A35f06f52D1A"),
			RollupChainID: common.HexToAddress("0xF34326d3521F1b07d1aa63729cB14A372f8A737C"),
		},
		PriceFeedID: "tether",
	},
	{
		Symbol:   "WBTC",
		Name:     "Wrapped Bitcoin",
		Decimals: 8,
		Addresses: map[uint64]common.Address{
			HostChainID:   common.HexToAddress("0x9aeDED4224f3dD31aD8A0B1FcD05E2d7829283a7"),
			RollupChainID: common.HexToAddress("0xE3d7066115f7d6b65F88Dff86288dB4756a7D733"),
		},
		PriceFeedID: "wrapped-bitcoin",
	},
}

// All returns every supported token, ordered by symbol
func All() []Token {
	out := make([]Token, len(registry))
	copy(out, registry)
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// BySymbol looks up a token by symbol, case-insensitively
func BySymbol(symbol string) (Token, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, t := range registry {
		if t.Symbol == symbol {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("token '%s' not supported", symbol)
}

// ByAddress finds the token deployed at addr on chainID
func ByAddress(chainID uint64, addr common.Address) (Token, bool) {
	for _, t := range registry {
		if a, ok := t.Addresses[chainID]; ok && a == addr {
			return t, true
		}
	}
	return Token{}, false
}

// IsHostToRollup reports whether a transfer moves from the host chain to the rollup
func IsHostToRollup(sourceChainID, targetChainID uint64) bool {
	return sourceChainID == HostChainID && targetChainID == RollupChainID
}

// IsSupportedChain reports whether chainID is the host or the rollup
func IsSupportedChain(chainID uint64) bool {
	return chainID == HostChainID || chainID == RollupChainID
}

// Counterpart returns the other side of the host/rollup pair
func Counterpart(chainID uint64) uint64 {
	if chainID == HostChainID {
		return RollupChainID
	}
	return HostChainID
}
