package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"signet-swap/pkg/approval"
	"signet-swap/pkg/history"
	"signet-swap/pkg/metrics"
	"signet-swap/pkg/monitor"
	"signet-swap/pkg/order"
	"signet-swap/pkg/parser"
	"signet-swap/pkg/signing"
	"signet-swap/pkg/tokens"
	"signet-swap/pkg/types"
)

// DefaultAutoResetDelay is how long COMPLETED is shown before returning to IDLE
const DefaultAutoResetDelay = 3 * time.Second

// Status is the state machine's position
type Status string

const (
	StatusIdle                   Status = "IDLE"
	StatusCreatingOrder          Status = "CREATING_ORDER"
	StatusOrderCreated           Status = "ORDER_CREATED"
	StatusWaitingForConfirmation Status = "WAITING_FOR_CONFIRMATION"
	StatusSendingBundle          Status = "SENDING_BUNDLE"
	StatusCompleted              Status = "COMPLETED"
	StatusFailed                 Status = "FAILED"
)

// Phase says what WAITING_FOR_CONFIRMATION is waiting for
type Phase string

const (
	PhaseNone     Phase = ""
	PhaseApproval Phase = "approval"
	PhaseSigning  Phase = "signing"
)

// State is a snapshot delivered to listeners
type State struct {
	Status     Status
	Phase      Phase
	Error      string
	Err        error
	OrderID    string
	Order      *types.SignedOrder
	ApprovalTx common.Hash
	UpdatedAt  time.Time
}

// accepting reports whether a new attempt may start from this status
func (s Status) accepting() bool {
	return s == StatusIdle || s == StatusFailed || s == StatusCompleted
}

// NetworkGuard is the wallet's chain selection capability
type NetworkGuard interface {
	ChainID() uint64
	SwitchChain(ctx context.Context, chainID uint64) error
}

// Approver reads balances and allowances and submits approvals on the
// wallet's active chain.
type Approver interface {
	NeedsApproval(ctx context.Context, token, owner, spender common.Address, amount *big.Int) (bool, error)
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
}

// OrderSigner produces signed orders
type OrderSigner interface {
	Sign(ctx context.Context, order *types.Order, chainID uint64, spender common.Address, signer signing.TypedDataSigner) (*types.SignedOrder, error)
}

// Submitter hands signed orders to the transaction cache
type Submitter interface {
	ForwardOrder(ctx context.Context, order *types.SignedOrder) error
}

// OrderMonitor watches submitted orders for fills
type OrderMonitor interface {
	Monitor(order *types.SignedOrder, onUpdate monitor.UpdateFunc) (string, bool)
	StopAll()
}

// StatusUpdater is implemented by history stores that can track fills
type StatusUpdater interface {
	UpdateStatus(key string, status history.Status) error
}

// Deps are the collaborators of a Machine
type Deps struct {
	Network   NetworkGuard
	Approver  Approver
	Builder   *order.Builder
	Engine    OrderSigner
	Signer    signing.TypedDataSigner
	Submitter Submitter
	Prices    PriceSource
	Monitor   OrderMonitor
	History   history.Store

	// Orders maps chain ID to the Orders contract that redeems permits
	Orders     map[uint64]common.Address
	Permit2    common.Address
	ChainNames map[uint64]string

	AutoResetDelay time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Swap

	// OnFill receives monitor updates for orders this machine submitted
	OnFill monitor.UpdateFunc
}

// Machine runs one swap attempt at a time through approval, signing and
// submission.
type Machine struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	state      State
	approvalTx common.Hash
	busy       bool
	resetTimer *time.Timer
	generation uint64
	closed     bool
	listeners  []func(State)

	notifyMu sync.Mutex
}

// New creates a machine in IDLE
func New(deps Deps) (*Machine, error) {
	switch {
	case deps.Network == nil:
		return nil, fmt.Errorf("network guard is required")
	case deps.Approver == nil:
		return nil, fmt.Errorf("approver is required")
	case deps.Engine == nil:
		return nil, fmt.Errorf("signing engine is required")
	case deps.Submitter == nil:
		return nil, fmt.Errorf("submitter is required")
	}
	if deps.Builder == nil {
		deps.Builder = order.NewBuilder(order.DefaultHorizon)
	}
	if deps.Permit2 == (common.Address{}) {
		deps.Permit2 = tokens.Permit2Address
	}
	if deps.AutoResetDelay <= 0 {
		deps.AutoResetDelay = DefaultAutoResetDelay
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Machine{
		deps:   deps,
		logger: logger.With("component", "swap"),
		now:    time.Now,
	}
	m.state = State{Status: StatusIdle, UpdatedAt: m.now()}
	return m, nil
}

// OnChange registers a listener for every transition. Listeners run on the
// goroutine that caused the transition.
func (m *Machine) OnChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// State returns the current snapshot
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Submit runs the full pipeline for req on the caller's goroutine. While
// another attempt is in flight it returns ErrSwapInProgress and changes
// nothing.
func (m *Machine) Submit(ctx context.Context, req order.Request) error {
	if err := m.begin(); err != nil {
		return err
	}
	defer m.end()

	err := m.run(ctx, req)
	if err != nil {
		m.fail(err)
		return err
	}
	return nil
}

func (m *Machine) begin() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("swap machine is closed")
	}
	if m.busy || !m.state.Status.accepting() {
		m.mu.Unlock()
		return ErrSwapInProgress
	}
	m.busy = true
	m.approvalTx = common.Hash{}
	m.stopResetTimerLocked()
	restart := m.state.Status != StatusIdle
	m.mu.Unlock()

	if restart {
		m.transition(State{Status: StatusIdle})
	}
	return nil
}

func (m *Machine) end() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

func (m *Machine) run(ctx context.Context, req order.Request) error {
	if m.deps.Signer == nil {
		return &signing.SigningError{Reason: "no signer available"}
	}
	owner := m.deps.Signer.Address()
	if req.Recipient == (common.Address{}) {
		req.Recipient = owner
	}

	// Network correctness comes before anything is signed
	if err := m.ensureNetwork(ctx, req.SourceChainID); err != nil {
		return err
	}

	if req.TargetAmount == nil {
		quote, err := Quote(ctx, m.deps.Prices, req)
		if err != nil {
			return err
		}
		if quote.Degraded() {
			m.logger.Warn("pricing with degraded quotes",
				"source_origin", quote.SourcePrice.Origin, "target_origin", quote.TargetPrice.Origin)
		}
		req.TargetAmount = quote.TargetAmount
	}

	// Validate locally before touching the chain
	if _, err := m.deps.Builder.Build(req); err != nil {
		return err
	}

	sourceToken, _ := req.SourceToken.AddressOn(req.SourceChainID)
	if err := m.checkBalance(ctx, sourceToken, owner, req); err != nil {
		return err
	}
	if err := m.ensureApproval(ctx, sourceToken, owner, req.Amount); err != nil {
		return err
	}

	m.transition(State{Status: StatusCreatingOrder})
	unsigned, err := m.deps.Builder.Build(req)
	if err != nil {
		return err
	}
	m.transition(State{Status: StatusOrderCreated})

	spender, ok := m.deps.Orders[req.SourceChainID]
	if !ok {
		return fmt.Errorf("no Orders contract configured for chain %d", req.SourceChainID)
	}

	m.transition(State{Status: StatusWaitingForConfirmation, Phase: PhaseSigning})
	signed, err := m.deps.Engine.Sign(ctx, unsigned, req.SourceChainID, spender, m.deps.Signer)
	if err != nil {
		return err
	}
	orderID := signed.ID()

	m.transition(State{Status: StatusSendingBundle, OrderID: orderID, Order: signed})
	if err := m.deps.Submitter.ForwardOrder(ctx, signed); err != nil {
		return fmt.Errorf("failed to submit order: %w", err)
	}

	m.record(req, signed)
	m.watch(signed)

	m.logger.Info("swap completed", "order_id", orderID,
		"amount", req.Amount.String(), "target_amount", req.TargetAmount.String())
	m.transition(State{Status: StatusCompleted, OrderID: orderID, Order: signed})
	m.deps.Metrics.SwapFinished(string(StatusCompleted))
	m.scheduleReset()
	return nil
}

func (m *Machine) ensureNetwork(ctx context.Context, chainID uint64) error {
	current := m.deps.Network.ChainID()
	if current == chainID {
		return nil
	}

	m.logger.Info("switching network", "from", current, "to", chainID)
	if err := m.deps.Network.SwitchChain(ctx, chainID); err != nil {
		return &NetworkMismatchError{
			Expected:  chainID,
			Actual:    current,
			ChainName: m.chainName(chainID),
			Err:       err,
		}
	}
	if now := m.deps.Network.ChainID(); now != chainID {
		return &NetworkMismatchError{
			Expected:  chainID,
			Actual:    now,
			ChainName: m.chainName(chainID),
			Err:       fmt.Errorf("network switch did not take effect"),
		}
	}
	// Pre-flight switch returns to IDLE
	m.transition(State{Status: StatusIdle})
	return nil
}

func (m *Machine) checkBalance(ctx context.Context, token, owner common.Address, req order.Request) error {
	balance, err := m.deps.Approver.BalanceOf(ctx, token, owner)
	if err != nil {
		// The cache rejects unfunded orders anyway
		m.logger.Warn("balance check failed", "token", token.Hex(), "error", err)
		return nil
	}
	if balance.Cmp(req.Amount) < 0 {
		return fmt.Errorf("%w: have %s %s, need %s", ErrInsufficientBalance,
			parser.FormatUnits(balance, req.SourceToken.Decimals), req.SourceToken.Symbol,
			parser.FormatUnits(req.Amount, req.SourceToken.Decimals))
	}
	return nil
}

func (m *Machine) ensureApproval(ctx context.Context, token, owner common.Address, amount *big.Int) error {
	waiting := State{Status: StatusWaitingForConfirmation, Phase: PhaseApproval}
	need, err := m.deps.Approver.NeedsApproval(ctx, token, owner, m.deps.Permit2, amount)
	if err != nil {
		m.logger.Warn("allowance read failed, approving to be safe", "token", token.Hex(), "error", err)
		need = true
		waiting.Err = err
		waiting.Error = "Could not read the current allowance, requesting approval: " + rootCause(err)
	}
	if !need {
		return nil
	}

	m.transition(waiting)
	hash, err := m.deps.Approver.Approve(ctx, token, m.deps.Permit2, approval.MaxAllowance())
	if err != nil {
		return err
	}
	m.logger.Info("approval confirmed", "token", token.Hex(), "tx", hash.Hex())
	m.mu.Lock()
	m.approvalTx = hash
	m.mu.Unlock()
	m.transition(State{Status: StatusIdle})
	return nil
}

// record saves the order to history; failures never fail the swap
func (m *Machine) record(req order.Request, signed *types.SignedOrder) {
	if m.deps.History == nil {
		return
	}
	err := m.deps.History.Save(history.Record{
		OrderID:       signed.ID(),
		Timestamp:     m.now().UTC(),
		SourceToken:   req.SourceToken.Symbol,
		TargetToken:   req.TargetToken.Symbol,
		SourceAmount:  parser.FormatUnits(req.Amount, req.SourceToken.Decimals),
		TargetAmount:  parser.FormatUnits(req.TargetAmount, req.TargetToken.Decimals),
		SourceChainID: req.SourceChainID,
		TargetChainID: req.TargetChainID,
		Deadline:      signed.Deadline(),
		Status:        history.StatusPending,
	})
	if err != nil {
		m.logger.Warn("failed to save order history", "order_id", signed.ID(), "error", err)
	}
}

func (m *Machine) watch(signed *types.SignedOrder) {
	if m.deps.Monitor == nil {
		return
	}
	m.deps.Monitor.Monitor(signed, func(u monitor.Update) {
		if updater, ok := m.deps.History.(StatusUpdater); ok {
			if status, terminal := historyStatus(u.Status); terminal {
				if err := updater.UpdateStatus(u.OrderID, status); err != nil {
					m.logger.Warn("failed to update order history", "order_id", u.OrderID, "error", err)
				}
			}
		}
		if m.deps.OnFill != nil {
			m.deps.OnFill(u)
		}
	})
}

func historyStatus(s monitor.Status) (history.Status, bool) {
	switch s {
	case monitor.StatusFilled:
		return history.StatusFilled, true
	case monitor.StatusExpired:
		return history.StatusExpired, true
	case monitor.StatusFailed:
		return history.StatusFailed, true
	}
	return history.StatusPending, false
}

func (m *Machine) fail(err error) {
	msg := UserMessage(err)
	m.logger.Error("swap failed", "error", err, "message", msg)

	prev := m.State()
	m.transition(State{Status: StatusFailed, Error: msg, Err: err, OrderID: prev.OrderID, Order: prev.Order})
	m.deps.Metrics.SwapFinished(string(StatusFailed))
}

// transition replaces the state and notifies listeners in order
func (m *Machine) transition(next State) {
	m.transitionIf(next, nil)
}

// transitionIf applies next only if allowed, evaluated under m.mu, still
// holds. The check and the write are atomic with respect to begin.
func (m *Machine) transitionIf(next State, allowed func() bool) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if allowed != nil && !allowed() {
		m.mu.Unlock()
		return false
	}
	next.UpdatedAt = m.now()
	if next.ApprovalTx == (common.Hash{}) {
		next.ApprovalTx = m.approvalTx
	}
	m.state = next
	listeners := append([]func(State){}, m.listeners...)
	m.mu.Unlock()

	m.logger.Debug("state changed", "status", next.Status, "phase", next.Phase)
	for _, fn := range listeners {
		fn(next)
	}
	return true
}

func (m *Machine) scheduleReset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopResetTimerLocked()
	m.generation++
	gen := m.generation
	m.resetTimer = time.AfterFunc(m.deps.AutoResetDelay, func() { m.autoReset(gen) })
}

// autoReset returns a COMPLETED machine to IDLE unless anything happened
// since the reset for gen was scheduled.
func (m *Machine) autoReset(gen uint64) bool {
	return m.transitionIf(State{Status: StatusIdle}, func() bool {
		return gen == m.generation && !m.closed && m.state.Status == StatusCompleted
	})
}

func (m *Machine) stopResetTimerLocked() {
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
	m.generation++
}

// Reset returns a FAILED or COMPLETED machine to IDLE, as when the user
// edits the form.
func (m *Machine) Reset() {
	m.mu.Lock()
	if m.busy || !m.state.Status.accepting() || m.state.Status == StatusIdle {
		m.mu.Unlock()
		return
	}
	m.stopResetTimerLocked()
	m.mu.Unlock()

	m.transition(State{Status: StatusIdle})
}

// NetworkChanged clears a network mismatch failure once the wallet reports
// the expected chain.
func (m *Machine) NetworkChanged(chainID uint64) {
	st := m.State()
	if st.Status != StatusFailed {
		return
	}
	var netErr *NetworkMismatchError
	if !errors.As(st.Err, &netErr) || netErr.Expected != chainID {
		return
	}
	m.logger.Info("network corrected", "chain_id", chainID)
	m.Reset()
}

// Close stops the auto-reset timer and every order monitor
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	m.stopResetTimerLocked()
	m.mu.Unlock()

	if m.deps.Monitor != nil {
		m.deps.Monitor.StopAll()
	}
}

func (m *Machine) chainName(chainID uint64) string {
	if name, ok := m.deps.ChainNames[chainID]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("chain %d", chainID)
}
