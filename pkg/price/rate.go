package price

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"signet-swap/pkg/tokens"
)

// MaxDisplayDecimals caps the fractional digits of a computed target amount
const MaxDisplayDecimals = 6

// ErrPriceUnavailable is returned when a rate cannot be computed
var ErrPriceUnavailable = errors.New("price unavailable")

// Conversion describes a source-to-target amount conversion
type Conversion struct {
	Source        tokens.Token
	Target        tokens.Token
	SourceChainID uint64
	TargetChainID uint64
	SourcePrice   float64
	TargetPrice   float64
}

// OneToOne reports whether the same asset moves host to rollup, which is
// always converted at par regardless of prices.
func (c Conversion) OneToOne() bool {
	return tokens.IsHostToRollup(c.SourceChainID, c.TargetChainID) && c.Source.Symbol == c.Target.Symbol
}

// TargetAmount converts amount (source smallest units) into target smallest
// units. Market conversions are computed exactly and truncated to at most
// MaxDisplayDecimals fractional digits of the target token, never rounded up.
func (c Conversion) TargetAmount(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be greater than zero")
	}
	if c.OneToOne() {
		return rescale(amount, c.Source.Decimals, c.Target.Decimals), nil
	}
	if !valid(c.SourcePrice) || !valid(c.TargetPrice) {
		return nil, ErrPriceUnavailable
	}

	src, err := exactRat(c.SourcePrice)
	if err != nil {
		return nil, err
	}
	tgt, err := exactRat(c.TargetPrice)
	if err != nil {
		return nil, err
	}

	// amount / 10^srcDec * srcPrice / tgtPrice * 10^tgtDec
	v := new(big.Rat).SetInt(amount)
	v.Mul(v, src)
	v.Quo(v, tgt)
	v.Mul(v, new(big.Rat).SetFrac(pow10(c.Target.Decimals), pow10(c.Source.Decimals)))

	units := new(big.Int).Quo(v.Num(), v.Denom())

	keep := c.Target.Decimals
	if keep > MaxDisplayDecimals {
		keep = MaxDisplayDecimals
	}
	quantum := pow10(c.Target.Decimals - keep)
	units.Quo(units, quantum)
	units.Mul(units, quantum)
	return units, nil
}

// Rate is the number of target tokens per source token, for display
func (c Conversion) Rate() string {
	if c.OneToOne() {
		return "1"
	}
	if !valid(c.SourcePrice) || !valid(c.TargetPrice) {
		return ""
	}
	return strconv.FormatFloat(c.SourcePrice/c.TargetPrice, 'f', MaxDisplayDecimals, 64)
}

func rescale(amount *big.Int, from, to uint8) *big.Int {
	out := new(big.Int).Set(amount)
	switch {
	case to > from:
		out.Mul(out, pow10(to-from))
	case from > to:
		out.Quo(out, pow10(from-to))
	}
	return out
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// exactRat parses the shortest decimal form of p, so 0.1 becomes 1/10
func exactRat(p float64) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(p, 'g', -1, 64))
	if !ok {
		return nil, fmt.Errorf("invalid price %v", p)
	}
	return r, nil
}
