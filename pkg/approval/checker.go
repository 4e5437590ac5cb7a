package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"signet-swap/pkg/tokens"
)

const (
	DefaultReceiptTimeout = 120 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

// ErrReverted is wrapped when an approval transaction is mined but fails
var ErrReverted = errors.New("approval transaction reverted")

// ErrInvalidAmount is returned for a missing or negative amount
var ErrInvalidAmount = errors.New("amount must be a non-negative integer")

// ApprovalError reports a failed allowance read or approval transaction
type ApprovalError struct {
	Op     string
	Token  common.Address
	TxHash common.Hash
	Err    error
}

func (e *ApprovalError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("approval %s for token %s (tx %s): %v", e.Op, e.Token.Hex(), e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("approval %s for token %s: %v", e.Op, e.Token.Hex(), e.Err)
}

func (e *ApprovalError) Unwrap() error { return e.Err }

// Transactor submits a contract call as a signed transaction
type Transactor interface {
	Transact(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
}

// MaxAllowance is the unlimited approval amount
func MaxAllowance() *big.Int {
	return new(big.Int).Set(math.MaxBig256)
}

// Checker reads ERC-20 allowances and, given a Transactor, grants them
type Checker struct {
	caller         ethereum.ContractCaller
	transactor     Transactor
	receiptTimeout time.Duration
	pollInterval   time.Duration
	logger         *slog.Logger
}

// NewChecker creates a checker. transactor may be nil for read-only use.
func NewChecker(caller ethereum.ContractCaller, transactor Transactor, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		caller:         caller,
		transactor:     transactor,
		receiptTimeout: DefaultReceiptTimeout,
		pollInterval:   DefaultPollInterval,
		logger:         logger.With("component", "approval"),
	}
}

// WithReceiptTimeout overrides how long Approve waits to be mined
func (c *Checker) WithReceiptTimeout(d time.Duration) *Checker {
	if d > 0 {
		c.receiptTimeout = d
	}
	return c
}

// NeedsApproval reports whether spender may not yet move amount of token for
// owner. The native token never needs approval. When the allowance cannot be
// read it answers true together with the error.
func (c *Checker) NeedsApproval(ctx context.Context, token, owner, spender common.Address, amount *big.Int) (bool, error) {
	if tokens.IsNative(token) {
		return false, nil
	}
	if amount == nil || amount.Sign() < 0 {
		return false, &ApprovalError{Op: "check allowance", Token: token, Err: ErrInvalidAmount}
	}
	allowance, err := c.Allowance(ctx, token, owner, spender)
	if err != nil {
		return true, err
	}
	return allowance.Cmp(amount) < 0, nil
}

// Allowance reads allowance(owner, spender) on token
func (c *Checker) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	var allowance *big.Int
	if err := c.call(ctx, token, &allowance, "allowance", owner, spender); err != nil {
		return nil, &ApprovalError{Op: "read allowance", Token: token, Err: err}
	}
	return allowance, nil
}

// BalanceOf returns account's balance of token, using the chain balance for
// the native token when the caller can provide it.
func (c *Checker) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	if tokens.IsNative(token) {
		reader, ok := c.caller.(interface {
			BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
		})
		if !ok {
			return nil, fmt.Errorf("native balance not available from this caller")
		}
		return reader.BalanceAt(ctx, account, nil)
	}
	var balance *big.Int
	if err := c.call(ctx, token, &balance, "balanceOf", account); err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", token.Hex(), err)
	}
	return balance, nil
}

func (c *Checker) call(ctx context.Context, token common.Address, out interface{}, method string, args ...interface{}) error {
	erc20 := ERC20ABI()
	data, err := erc20.Pack(method, args...)
	if err != nil {
		return err
	}
	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return err
	}
	return erc20.UnpackIntoInterface(out, method, result)
}

// Approve sends approve(spender, amount) and waits until it is mined
func (c *Checker) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	if c.transactor == nil {
		return common.Hash{}, &ApprovalError{Op: "approve", Token: token, Err: errors.New("no transactor configured")}
	}
	data, err := ERC20ABI().Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, &ApprovalError{Op: "approve", Token: token, Err: err}
	}

	hash, err := c.transactor.Transact(ctx, token, data, nil)
	if err != nil {
		return common.Hash{}, &ApprovalError{Op: "approve", Token: token, Err: err}
	}
	c.logger.Info("approval submitted", "token", token.Hex(), "spender", spender.Hex(), "tx", hash.Hex())

	receipt, err := c.waitForReceipt(ctx, hash)
	if err != nil {
		return hash, &ApprovalError{Op: "approve", Token: token, TxHash: hash, Err: err}
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return hash, &ApprovalError{Op: "approve", Token: token, TxHash: hash, Err: ErrReverted}
	}

	c.logger.Info("approval confirmed", "token", token.Hex(), "block", receipt.BlockNumber)
	return hash, nil
}

// waitForReceipt polls for a receipt until it appears or the timeout passes
func (c *Checker) waitForReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.transactor.TransactionReceipt(timeoutCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-timeoutCtx.Done():
			return nil, fmt.Errorf("timeout waiting for transaction receipt: %s", hash.Hex())
		case <-ticker.C:
		}
	}
}
