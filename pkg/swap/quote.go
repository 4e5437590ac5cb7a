package swap

import (
	"context"
	"math/big"

	"signet-swap/pkg/order"
	"signet-swap/pkg/price"
	"signet-swap/pkg/tokens"
)

// PriceSource resolves USD prices. It never fails; Quote.Origin says how
// good the answer is.
type PriceSource interface {
	Resolve(ctx context.Context, token tokens.Token) price.Quote
}

// QuoteResult is a priced conversion for a request
type QuoteResult struct {
	TargetAmount *big.Int
	Rate         string
	OneToOne     bool
	SourcePrice  price.Quote
	TargetPrice  price.Quote
}

// Degraded reports whether either side used a stale or static price
func (q *QuoteResult) Degraded() bool {
	return !q.OneToOne && (q.SourcePrice.Degraded() || q.TargetPrice.Degraded())
}

// Quote computes the target amount for req. Same-asset host-to-rollup moves
// are priced at par without consulting prices.
func Quote(ctx context.Context, prices PriceSource, req order.Request) (*QuoteResult, error) {
	conv := price.Conversion{
		Source:        req.SourceToken,
		Target:        req.TargetToken,
		SourceChainID: req.SourceChainID,
		TargetChainID: req.TargetChainID,
	}

	result := &QuoteResult{OneToOne: conv.OneToOne()}
	if !result.OneToOne {
		if prices == nil {
			return nil, price.ErrPriceUnavailable
		}
		result.SourcePrice = prices.Resolve(ctx, req.SourceToken)
		result.TargetPrice = prices.Resolve(ctx, req.TargetToken)
		conv.SourcePrice = result.SourcePrice.Price
		conv.TargetPrice = result.TargetPrice.Price
	}

	amount, err := conv.TargetAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	result.TargetAmount = amount
	result.Rate = conv.Rate()
	return result, nil
}
