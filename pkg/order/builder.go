package order

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"signet-swap/pkg/tokens"
	"signet-swap/pkg/types"
)

// DefaultHorizon is how far in the future a new order's deadline is set
const DefaultHorizon = 300 * time.Second

// ValidationError reports a request that cannot become an order
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order %s: %s", e.Field, e.Reason)
}

// Request is everything needed to build a one-input, one-output order
type Request struct {
	SourceToken   tokens.Token
	TargetToken   tokens.Token
	SourceChainID uint64
	TargetChainID uint64
	Amount        *big.Int
	TargetAmount  *big.Int
	Recipient     common.Address
}

// Builder turns swap requests into unsigned orders
type Builder struct {
	horizon time.Duration
	now     func() time.Time
}

// NewBuilder creates a builder; a non-positive horizon falls back to DefaultHorizon
func NewBuilder(horizon time.Duration) *Builder {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Builder{horizon: horizon, now: time.Now}
}

// WithClock replaces the builder's time source
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build produces a fresh order. It has no side effects.
func (b *Builder) Build(req Request) (*types.Order, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if req.TargetAmount == nil || req.TargetAmount.Sign() <= 0 {
		return nil, &ValidationError{Field: "targetAmount", Reason: "must be greater than zero"}
	}
	if req.SourceChainID == req.TargetChainID {
		return nil, &ValidationError{Field: "chain", Reason: fmt.Sprintf("source and target are both chain %d", req.SourceChainID)}
	}
	if req.TargetChainID > uint64(^uint32(0)) {
		return nil, &ValidationError{Field: "targetChainId", Reason: "does not fit in uint32"}
	}
	if req.Recipient == (common.Address{}) {
		return nil, &ValidationError{Field: "recipient", Reason: "is the zero address"}
	}

	inputToken, ok := req.SourceToken.AddressOn(req.SourceChainID)
	if !ok {
		return nil, &ValidationError{Field: "sourceToken", Reason: fmt.Sprintf("%s has no address on chain %d", req.SourceToken.Symbol, req.SourceChainID)}
	}
	outputToken, ok := req.TargetToken.AddressOn(req.TargetChainID)
	if !ok {
		return nil, &ValidationError{Field: "targetToken", Reason: fmt.Sprintf("%s has no address on chain %d", req.TargetToken.Symbol, req.TargetChainID)}
	}

	return &types.Order{
		Inputs: []types.Input{{
			Token:  inputToken,
			Amount: new(big.Int).Set(req.Amount),
		}},
		Outputs: []types.Output{{
			Token:     outputToken,
			Amount:    new(big.Int).Set(req.TargetAmount),
			Recipient: req.Recipient,
			ChainID:   uint32(req.TargetChainID),
		}},
		Deadline: uint64(b.now().Add(b.horizon).Unix()),
	}, nil
}
