package signing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"signet-swap/pkg/types"
)

// SigningError covers every way an order can fail to become a signed order
type SigningError struct {
	Reason string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signing failed: %s: %v", e.Reason, e.Err)
	}
	return "signing failed: " + e.Reason
}

func (e *SigningError) Unwrap() error { return e.Err }

// Rejected reports whether the signer declined the request
func (e *SigningError) Rejected() bool {
	return errors.Is(e.Err, ErrRejected)
}

// Engine converts orders into Permit2 batch-witness signed orders
type Engine struct {
	nonces NonceSource
	now    func() time.Time
	logger *slog.Logger
}

// NewEngine creates a signing engine. A nil nonce source uses MonotonicNonces.
func NewEngine(nonces NonceSource, logger *slog.Logger) *Engine {
	if nonces == nil {
		nonces = NewMonotonicNonces()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{nonces: nonces, now: time.Now, logger: logger.With("component", "signing")}
}

// Sign asks signer for a Permit2 signature over order. spender is the Orders
// contract that will redeem the permit; chainID is the source chain.
func (e *Engine) Sign(ctx context.Context, order *types.Order, chainID uint64, spender common.Address, signer TypedDataSigner) (*types.SignedOrder, error) {
	if signer == nil {
		return nil, &SigningError{Reason: "no signer available"}
	}
	if order == nil || len(order.Inputs) == 0 {
		return nil, &SigningError{Reason: "order has no inputs"}
	}
	if now := e.now().Unix(); int64(order.Deadline) <= now {
		return nil, &SigningError{Reason: fmt.Sprintf("deadline %d is not in the future (now %d)", order.Deadline, now)}
	}

	owner := signer.Address()
	permit := types.PermitBatchTransferFrom{
		Permitted: make([]types.TokenPermissions, 0, len(order.Inputs)),
		Nonce:     e.nonces.Next(owner),
		Deadline:  new(big.Int).SetUint64(order.Deadline),
	}
	for _, in := range order.Inputs {
		permit.Permitted = append(permit.Permitted, types.TokenPermissions{Token: in.Token, Amount: new(big.Int).Set(in.Amount)})
	}
	outputs := make([]types.Output, len(order.Outputs))
	for i, o := range order.Outputs {
		outputs[i] = o
		outputs[i].Amount = new(big.Int).Set(o.Amount)
	}

	data := PermitTypedData(permit, outputs, spender, chainID)
	e.logger.Debug("requesting permit signature", "owner", owner.Hex(), "nonce", permit.Nonce.String(), "chain_id", chainID)

	sig, err := signer.SignTypedData(ctx, data)
	if err != nil {
		return nil, &SigningError{Reason: "signer did not produce a signature", Err: err}
	}
	if len(sig) != crypto.SignatureLength {
		return nil, &SigningError{Reason: fmt.Sprintf("signature has %d bytes", len(sig))}
	}

	recovered, err := RecoverSigner(data, sig)
	if err != nil {
		return nil, &SigningError{Reason: "signature cannot be verified", Err: err}
	}
	if recovered != owner {
		return nil, &SigningError{Reason: fmt.Sprintf("signature recovers to %s, expected %s", recovered.Hex(), owner.Hex())}
	}

	e.logger.Info("order signed", "owner", owner.Hex(), "deadline", order.Deadline)
	return &types.SignedOrder{
		Permit: types.Permit2Batch{
			Permit:    permit,
			Owner:     owner,
			Signature: sig,
		},
		Outputs: outputs,
	}, nil
}
