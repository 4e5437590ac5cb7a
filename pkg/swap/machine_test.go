package swap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"signet-swap/pkg/approval"
	"signet-swap/pkg/client"
	"signet-swap/pkg/history"
	"signet-swap/pkg/monitor"
	"signet-swap/pkg/order"
	"signet-swap/pkg/price"
	"signet-swap/pkg/signing"
	"signet-swap/pkg/tokens"
	"signet-swap/pkg/types"
)

var hostOrders = common.HexToAddress("0x0A4f505364De0Aa46c66b15aBae44eBa12ab0380")

type fakeNetwork struct {
	mu        sync.Mutex
	chainID   uint64
	switchErr error
}

func (f *fakeNetwork) ChainID() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chainID
}

func (f *fakeNetwork) SwitchChain(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.switchErr != nil {
		return f.switchErr
	}
	f.chainID = id
	return nil
}

type fakeApprover struct {
	need        bool
	needErr     error
	balance     *big.Int
	approveErr  error
	approvedFor common.Address
	approvedAmt *big.Int
}

func (f *fakeApprover) NeedsApproval(ctx context.Context, token, owner, spender common.Address, amount *big.Int) (bool, error) {
	if f.needErr != nil {
		return false, f.needErr
	}
	return f.need, nil
}

func (f *fakeApprover) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	if f.balance == nil {
		return new(big.Int).Lsh(big.NewInt(1), 128), nil
	}
	return f.balance, nil
}

func (f *fakeApprover) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	if f.approveErr != nil {
		return common.Hash{}, f.approveErr
	}
	f.approvedFor, f.approvedAmt = spender, amount
	f.need = false
	return common.HexToHash("0xa11"), nil
}

type fakeSubmitter struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	entered chan struct{}
	orders  []*types.SignedOrder
}

func (f *fakeSubmitter) ForwardOrder(ctx context.Context, o *types.SignedOrder) error {
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	return f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeMonitor struct {
	mu       sync.Mutex
	orders   []*types.SignedOrder
	callback monitor.UpdateFunc
	stopped  bool
}

func (f *fakeMonitor) Monitor(o *types.SignedOrder, fn monitor.UpdateFunc) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	f.callback = fn
	return o.ID(), true
}

func (f *fakeMonitor) StopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

type rejectingSigner struct{ addr common.Address }

func (r rejectingSigner) Address() common.Address { return r.addr }

func (r rejectingSigner) SignTypedData(context.Context, apitypes.TypedData) ([]byte, error) {
	return nil, signing.ErrRejected
}

type harness struct {
	machine   *Machine
	network   *fakeNetwork
	approver  *fakeApprover
	submitter *fakeSubmitter
	monitor   *fakeMonitor
	history   *history.FileStore
	signer    *signing.KeySigner

	mu       sync.Mutex
	statuses []State
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	store, err := history.NewFileStore(filepath.Join(t.TempDir(), "orders.json"))
	require.NoError(t, err)

	h := &harness{
		network:   &fakeNetwork{chainID: tokens.HostChainID},
		approver:  &fakeApprover{},
		submitter: &fakeSubmitter{},
		monitor:   &fakeMonitor{},
		history:   store,
		signer:    signing.NewKeySigner(key),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := Deps{
		Network:        h.network,
		Approver:       h.approver,
		Builder:        order.NewBuilder(order.DefaultHorizon),
		Engine:         signing.NewEngine(nil, logger),
		Signer:         h.signer,
		Submitter:      h.submitter,
		Monitor:        h.monitor,
		History:        store,
		Orders:         map[uint64]common.Address{tokens.HostChainID: hostOrders},
		ChainNames:     map[uint64]string{tokens.HostChainID: "Pecorino Host", tokens.RollupChainID: "Signet Pecorino"},
		AutoResetDelay: 20 * time.Millisecond,
		Logger:         logger,
	}
	if mutate != nil {
		mutate(&deps)
	}
	m, err := New(deps)
	require.NoError(t, err)
	m.OnChange(func(s State) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.statuses = append(h.statuses, s)
	})
	h.machine = m
	t.Cleanup(m.Close)
	return h
}

func (h *harness) seen() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State{}, h.statuses...)
}

func (h *harness) statusTrail() []Status {
	var out []Status
	for _, s := range h.seen() {
		out = append(out, s.Status)
	}
	return out
}

func usdcRequest(t *testing.T) order.Request {
	t.Helper()
	usdc, err := tokens.BySymbol("USDC")
	require.NoError(t, err)
	return order.Request{
		SourceToken:   usdc,
		TargetToken:   usdc,
		SourceChainID: tokens.HostChainID,
		TargetChainID: tokens.RollupChainID,
		Amount:        big.NewInt(1000000),
	}
}

func TestSubmitHappyPath(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.machine.Submit(context.Background(), usdcRequest(t)))

	require.Equal(t, []Status{
		StatusCreatingOrder,
		StatusOrderCreated,
		StatusWaitingForConfirmation,
		StatusSendingBundle,
		StatusCompleted,
	}, h.statusTrail())
	require.Equal(t, PhaseSigning, h.seen()[2].Phase)

	require.Equal(t, 1, h.submitter.count())
	signed := h.submitter.orders[0]
	require.Equal(t, h.signer.Address(), signed.Permit.Owner)
	require.NoError(t, signing.Verify(signed, tokens.HostChainID, hostOrders))

	usdc, _ := tokens.BySymbol("USDC")
	hostUSDC, _ := usdc.AddressOn(tokens.HostChainID)
	rollupUSDC, _ := usdc.AddressOn(tokens.RollupChainID)
	require.Equal(t, hostUSDC, signed.Permit.Permit.Permitted[0].Token)
	require.Equal(t, int64(1000000), signed.Permit.Permit.Permitted[0].Amount.Int64())
	require.Equal(t, rollupUSDC, signed.Outputs[0].Token)
	require.Equal(t, int64(1000000), signed.Outputs[0].Amount.Int64())
	require.Equal(t, h.signer.Address(), signed.Outputs[0].Recipient)
	require.Equal(t, uint32(tokens.RollupChainID), signed.Outputs[0].ChainID)
	require.InDelta(t, time.Now().Add(order.DefaultHorizon).Unix(), int64(signed.Deadline()), 5)

	require.Len(t, h.monitor.orders, 1)
	records, err := h.history.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, signed.ID(), records[0].OrderID)
	require.Equal(t, "1", records[0].SourceAmount)

	require.Eventually(t, func() bool {
		return h.machine.State().Status == StatusIdle
	}, time.Second, 5*time.Millisecond, "COMPLETED auto-resets to IDLE")
}

func TestMonitorUpdatesHistory(t *testing.T) {
	var fills []monitor.Update
	h := newHarness(t, func(d *Deps) {
		d.OnFill = func(u monitor.Update) { fills = append(fills, u) }
	})
	require.NoError(t, h.machine.Submit(context.Background(), usdcRequest(t)))

	id := h.submitter.orders[0].ID()
	h.monitor.callback(monitor.Update{OrderID: id, Status: monitor.StatusFilled, Timestamp: time.Now()})

	r, err := h.history.Get(id)
	require.NoError(t, err)
	require.Equal(t, history.StatusFilled, r.Status)
	require.Len(t, fills, 1)
}

func TestSubmitWhileBusyIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.submitter.block = make(chan struct{})
	h.submitter.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.machine.Submit(context.Background(), usdcRequest(t)) }()
	<-h.submitter.entered

	before := h.machine.State()
	require.Equal(t, StatusSendingBundle, before.Status)

	err := h.machine.Submit(context.Background(), usdcRequest(t))
	require.ErrorIs(t, err, ErrSwapInProgress)
	require.Equal(t, before, h.machine.State())

	close(h.submitter.block)
	require.NoError(t, <-done)
	require.Equal(t, 1, h.submitter.count())
}

func TestSubmitServiceDegraded(t *testing.T) {
	h := newHarness(t, nil)
	h.submitter.err = &client.CacheSubmissionError{
		Op:         "forward order",
		StatusCode: 500,
		Kind:       client.KindServiceDegraded,
		Message:    "Internal Server Error",
	}

	err := h.machine.Submit(context.Background(), usdcRequest(t))
	require.Error(t, err)

	st := h.machine.State()
	require.Equal(t, StatusFailed, st.Status)
	require.Contains(t, st.Error, "temporarily unavailable")

	var cerr *client.CacheSubmissionError
	require.True(t, errors.As(st.Err, &cerr))
	require.Equal(t, 500, cerr.StatusCode)

	records, err := h.history.List()
	require.NoError(t, err)
	require.Empty(t, records, "rejected orders are not recorded")
}

func TestSubmitApprovesBeforeSigning(t *testing.T) {
	h := newHarness(t, nil)
	h.approver.need = true

	require.NoError(t, h.machine.Submit(context.Background(), usdcRequest(t)))

	trail := h.seen()
	require.Equal(t, StatusWaitingForConfirmation, trail[0].Status)
	require.Equal(t, PhaseApproval, trail[0].Phase)
	require.Equal(t, StatusIdle, trail[1].Status)
	require.Equal(t, common.HexToHash("0xa11"), trail[1].ApprovalTx)
	require.Equal(t, StatusCreatingOrder, trail[2].Status)

	require.Equal(t, tokens.Permit2Address, h.approver.approvedFor)
	require.Equal(t, 0, approval.MaxAllowance().Cmp(h.approver.approvedAmt))

	// the approval hash stays visible for the rest of the attempt
	for _, st := range trail[2:] {
		require.Equal(t, common.HexToHash("0xa11"), st.ApprovalTx)
	}
	require.Equal(t, common.HexToHash("0xa11"), h.machine.State().ApprovalTx)
}

func TestAllowanceReadFailureIsShownWhileApproving(t *testing.T) {
	h := newHarness(t, nil)
	readErr := &approval.ApprovalError{Op: "read allowance", Err: errors.New("rpc down")}
	h.approver.needErr = readErr

	require.NoError(t, h.machine.Submit(context.Background(), usdcRequest(t)))

	waiting := h.seen()[0]
	require.Equal(t, StatusWaitingForConfirmation, waiting.Status)
	require.Equal(t, PhaseApproval, waiting.Phase)
	require.ErrorIs(t, waiting.Err, readErr)
	require.Contains(t, waiting.Error, "rpc down")
	require.Equal(t, tokens.Permit2Address, h.approver.approvedFor)

	// later states carry no stale error
	require.Empty(t, h.seen()[1].Error)
}

func TestStaleAutoResetDoesNotOverwriteNewAttempt(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.AutoResetDelay = time.Hour })
	require.NoError(t, h.machine.Submit(context.Background(), usdcRequest(t)))
	require.Equal(t, StatusCompleted, h.machine.State().Status)

	h.machine.mu.Lock()
	gen := h.machine.generation
	h.machine.mu.Unlock()

	h.submitter.block = make(chan struct{})
	h.submitter.entered = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- h.machine.Submit(context.Background(), usdcRequest(t)) }()
	<-h.submitter.entered

	require.False(t, h.machine.autoReset(gen))
	require.Equal(t, StatusSendingBundle, h.machine.State().Status)

	close(h.submitter.block)
	require.NoError(t, <-done)
	require.Equal(t, StatusCompleted, h.machine.State().Status)

	h.machine.mu.Lock()
	gen = h.machine.generation
	h.machine.mu.Unlock()
	require.True(t, h.machine.autoReset(gen))
	require.Equal(t, StatusIdle, h.machine.State().Status)
}

func TestSubmitApprovalFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.approver.need = true
	h.approver.approveErr = &approval.ApprovalError{Op: "transaction", Err: approval.ErrReverted}

	require.Error(t, h.machine.Submit(context.Background(), usdcRequest(t)))
	st := h.machine.State()
	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, "Token approval transaction reverted", st.Error)
	require.Zero(t, h.submitter.count())
}

func TestSubmitSwitchesNetwork(t *testing.T) {
	h := newHarness(t, nil)
	h.network.chainID = tokens.RollupChainID

	require.NoError(t, h.machine.Submit(context.Background(), usdcRequest(t)))
	require.Equal(t, tokens.HostChainID, h.network.ChainID())
	require.Equal(t, StatusIdle, h.seen()[0].Status)
}

func TestSubmitNetworkMismatch(t *testing.T) {
	h := newHarness(t, nil)
	h.network.chainID = tokens.RollupChainID
	h.network.switchErr = errors.New("user rejected switch")

	err := h.machine.Submit(context.Background(), usdcRequest(t))
	var netErr *NetworkMismatchError
	require.True(t, errors.As(err, &netErr))

	st := h.machine.State()
	require.Equal(t, StatusFailed, st.Status)
	require.Equal(t, "Please switch to Pecorino Host in your wallet", st.Error)
	require.Zero(t, h.submitter.count(), "nothing is signed on the wrong chain")

	h.machine.NetworkChanged(tokens.RollupChainID)
	require.Equal(t, StatusFailed, h.machine.State().Status)

	h.machine.NetworkChanged(tokens.HostChainID)
	require.Equal(t, StatusIdle, h.machine.State().Status)
}

func TestSubmitSignerRejected(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Signer = rejectingSigner{addr: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	})

	err := h.machine.Submit(context.Background(), usdcRequest(t))
	var serr *signing.SigningError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, "Signature request was rejected", h.machine.State().Error)
	require.Zero(t, h.submitter.count())
}

func TestSubmitInsufficientBalance(t *testing.T) {
	h := newHarness(t, nil)
	h.approver.balance = big.NewInt(500000)

	err := h.machine.Submit(context.Background(), usdcRequest(t))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Contains(t, h.machine.State().Error, "have 0.5 USDC, need 1")
}

func TestSubmitValidationError(t *testing.T) {
	h := newHarness(t, nil)
	req := usdcRequest(t)
	req.Amount = big.NewInt(0)

	require.Error(t, h.machine.Submit(context.Background(), req))
	st := h.machine.State()
	require.Equal(t, StatusFailed, st.Status)
	require.NotEmpty(t, st.Error)
}

func TestRetryAfterFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.submitter.err = &client.CacheSubmissionError{Kind: client.KindUnreachable, Err: errors.New("dial tcp")}
	require.Error(t, h.machine.Submit(context.Background(), usdcRequest(t)))
	require.Equal(t, StatusFailed, h.machine.State().Status)

	h.submitter.err = nil
	require.NoError(t, h.machine.Submit(context.Background(), usdcRequest(t)))
	require.Equal(t, StatusCompleted, h.machine.State().Status)
}

func TestResetFromFailed(t *testing.T) {
	h := newHarness(t, nil)
	h.submitter.err = errors.New("boom")
	require.Error(t, h.machine.Submit(context.Background(), usdcRequest(t)))

	h.machine.Reset()
	st := h.machine.State()
	require.Equal(t, StatusIdle, st.Status)
	require.Empty(t, st.Error)
}

func TestCloseStopsAutoResetAndMonitor(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.AutoResetDelay = 30 * time.Millisecond })
	require.NoError(t, h.machine.Submit(context.Background(), usdcRequest(t)))

	h.machine.Close()
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, StatusCompleted, h.machine.State().Status)
	require.True(t, h.monitor.stopped)

	require.Error(t, h.machine.Submit(context.Background(), usdcRequest(t)))
}

type fixedPrices map[string]float64

func (f fixedPrices) Resolve(ctx context.Context, token tokens.Token) price.Quote {
	p, ok := f[token.Symbol]
	if !ok {
		return price.Quote{Origin: price.OriginNone}
	}
	return price.Quote{Price: p, Origin: price.OriginLive}
}

func TestQuoteSameTokenIsParWithoutPrices(t *testing.T) {
	q, err := Quote(context.Background(), nil, usdcRequest(t))
	require.NoError(t, err)
	require.True(t, q.OneToOne)
	require.Equal(t, int64(1000000), q.TargetAmount.Int64())
	require.Equal(t, "1", q.Rate)
}

func TestQuoteCrossAsset(t *testing.T) {
	eth, err := tokens.BySymbol("ETH")
	require.NoError(t, err)
	usdc, err := tokens.BySymbol("USDC")
	require.NoError(t, err)

	req := order.Request{
		SourceToken:   eth,
		TargetToken:   usdc,
		SourceChainID: tokens.RollupChainID,
		TargetChainID: tokens.HostChainID,
		Amount:        new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
	}
	q, err := Quote(context.Background(), fixedPrices{"ETH": 2500, "USDC": 1}, req)
	require.NoError(t, err)
	require.Equal(t, int64(2500000000), q.TargetAmount.Int64())
	require.False(t, q.Degraded())

	_, err = Quote(context.Background(), fixedPrices{"ETH": 2500}, req)
	require.ErrorIs(t, err, price.ErrPriceUnavailable)
}

func TestUserMessageNeverEmpty(t *testing.T) {
	for _, err := range []error{
		errors.New(""),
		&order.ValidationError{Field: "amount", Reason: "must be positive"},
		&client.CacheSubmissionError{Kind: client.KindRejected, StatusCode: 400},
		&signing.SigningError{Reason: "no signer available"},
	} {
		require.NotEmpty(t, UserMessage(err))
	}
}
