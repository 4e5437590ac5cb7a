package approval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"signet-swap/pkg/tokens"
)

var (
	usdc    = common.HexToAddress("0x885F8DB528dC8a38aA3DDad9D3F619746B4a6A81")
	owner   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	spender = tokens.Permit2Address
)

type fakeCaller struct {
	allowance *big.Int
	balance   *big.Int
	native    *big.Int
	err       error
	calls     atomic.Int32
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	parsed := ERC20ABI()
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "allowance":
		return common.LeftPadBytes(f.allowance.Bytes(), 32), nil
	case "balanceOf":
		return common.LeftPadBytes(f.balance.Bytes(), 32), nil
	}
	return nil, errors.New("unexpected call " + method.Name)
}

func (f *fakeCaller) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	return f.native, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNeedsApprovalBoundary(t *testing.T) {
	caller := &fakeCaller{allowance: big.NewInt(1000000)}
	c := NewChecker(caller, nil, quietLogger())

	need, err := c.NeedsApproval(context.Background(), usdc, owner, spender, big.NewInt(1000000))
	require.NoError(t, err)
	require.False(t, need, "allowance equal to amount is enough")

	caller.allowance = big.NewInt(999999)
	need, err = c.NeedsApproval(context.Background(), usdc, owner, spender, big.NewInt(1000000))
	require.NoError(t, err)
	require.True(t, need)
}

func TestNeedsApprovalNativeTokenSkipsRead(t *testing.T) {
	caller := &fakeCaller{}
	c := NewChecker(caller, nil, quietLogger())

	need, err := c.NeedsApproval(context.Background(), tokens.NativeAddress, owner, spender, big.NewInt(1))
	require.NoError(t, err)
	require.False(t, need)
	require.Zero(t, caller.calls.Load())
}

func TestNeedsApprovalReadFailure(t *testing.T) {
	c := NewChecker(&fakeCaller{err: errors.New("rpc down")}, nil, quietLogger())

	need, err := c.NeedsApproval(context.Background(), usdc, owner, spender, big.NewInt(1))
	require.True(t, need)

	var aerr *ApprovalError
	require.True(t, errors.As(err, &aerr))
	require.Equal(t, usdc, aerr.Token)
}

func TestNeedsApprovalRejectsMissingAmount(t *testing.T) {
	caller := &fakeCaller{allowance: big.NewInt(1)}
	c := NewChecker(caller, nil, quietLogger())

	need, err := c.NeedsApproval(context.Background(), usdc, owner, spender, nil)
	require.False(t, need)
	require.ErrorIs(t, err, ErrInvalidAmount)
	var aerr *ApprovalError
	require.True(t, errors.As(err, &aerr))
	require.Equal(t, usdc, aerr.Token)

	_, err = c.NeedsApproval(context.Background(), usdc, owner, spender, big.NewInt(-1))
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Zero(t, caller.calls.Load())
}

func TestBalanceOf(t *testing.T) {
	c := NewChecker(&fakeCaller{balance: big.NewInt(42), native: big.NewInt(7)}, nil, quietLogger())

	bal, err := c.BalanceOf(context.Background(), usdc, owner)
	require.NoError(t, err)
	require.Equal(t, int64(42), bal.Int64())

	bal, err = c.BalanceOf(context.Background(), tokens.NativeAddress, owner)
	require.NoError(t, err)
	require.Equal(t, int64(7), bal.Int64())
}

type fakeTransactor struct {
	receipt    *gethtypes.Receipt
	sendErr    error
	lastTo     common.Address
	lastData   []byte
	receiptHit atomic.Int32
}

func (f *fakeTransactor) Transact(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.lastTo, f.lastData = to, data
	return common.HexToHash("0xabc"), nil
}

func (f *fakeTransactor) TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	f.receiptHit.Add(1)
	if f.receipt == nil {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func TestApproveSuccess(t *testing.T) {
	tx := &fakeTransactor{receipt: &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}}
	c := NewChecker(&fakeCaller{}, tx, quietLogger())

	hash, err := c.Approve(context.Background(), usdc, spender, MaxAllowance())
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0xabc"), hash)
	require.Equal(t, usdc, tx.lastTo)

	args, err := ERC20ABI().Methods["approve"].Inputs.Unpack(tx.lastData[4:])
	require.NoError(t, err)
	require.Equal(t, spender, args[0].(common.Address))
	require.Equal(t, 0, MaxAllowance().Cmp(args[1].(*big.Int)))
}

func TestApproveReverted(t *testing.T) {
	tx := &fakeTransactor{receipt: &gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(10)}}
	c := NewChecker(&fakeCaller{}, tx, quietLogger())

	_, err := c.Approve(context.Background(), usdc, spender, big.NewInt(5))
	require.ErrorIs(t, err, ErrReverted)

	var aerr *ApprovalError
	require.True(t, errors.As(err, &aerr))
	require.Equal(t, common.HexToHash("0xabc"), aerr.TxHash)
}

func TestApproveTimeout(t *testing.T) {
	tx := &fakeTransactor{}
	c := NewChecker(&fakeCaller{}, tx, quietLogger()).WithReceiptTimeout(30 * time.Millisecond)
	c.pollInterval = 5 * time.Millisecond

	_, err := c.Approve(context.Background(), usdc, spender, big.NewInt(5))
	var aerr *ApprovalError
	require.True(t, errors.As(err, &aerr))
	require.Contains(t, err.Error(), "timeout")
	require.Greater(t, tx.receiptHit.Load(), int32(1))
}

func TestApproveSendFailure(t *testing.T) {
	c := NewChecker(&fakeCaller{}, &fakeTransactor{sendErr: errors.New("user denied")}, quietLogger())
	_, err := c.Approve(context.Background(), usdc, spender, big.NewInt(5))

	var aerr *ApprovalError
	require.True(t, errors.As(err, &aerr))
	require.Equal(t, common.Hash{}, aerr.TxHash)
}

func TestApproveWithoutTransactor(t *testing.T) {
	_, err := NewChecker(&fakeCaller{}, nil, quietLogger()).Approve(context.Background(), usdc, spender, big.NewInt(5))
	require.Error(t, err)
}
