package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"signet-swap/pkg/metrics"
	"signet-swap/pkg/types"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultExpiryGrace = time.Minute
)

// Status is the fill state reported for a monitored order
type Status string

const (
	StatusPending Status = "PENDING"
	StatusFilled  Status = "FILLED"
	StatusExpired Status = "EXPIRED"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether monitoring stops after this status
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusExpired || s == StatusFailed
}

// Update is delivered to the callback on every poll
type Update struct {
	OrderID   string
	Status    Status
	Timestamp time.Time
	Err       error
}

// MonitorError is carried by the single FAILED update
type MonitorError struct {
	OrderID string
	Err     error
}

func (e *MonitorError) Error() string {
	return fmt.Sprintf("failed to check fill status of order %s: %v", e.OrderID, e.Err)
}

func (e *MonitorError) Unwrap() error { return e.Err }

// UpdateFunc receives monitor updates. It runs on the monitor's goroutine
// and must not call StopAll.
type UpdateFunc func(Update)

// OrderID returns the deterministic identifier used to deduplicate orders
func OrderID(order *types.SignedOrder) string {
	return order.ID()
}

// watch is a single monitored order
type watch struct {
	cancel context.CancelFunc
}

// Monitor polls fill status for signed orders
type Monitor struct {
	checker       FillChecker
	interval      time.Duration
	expiryGrace   time.Duration
	failThreshold int
	logger        *slog.Logger
	metrics       *metrics.Swap
	now           func() time.Time

	mu     sync.Mutex
	active map[string]*watch
	wg     sync.WaitGroup
}

// Option configures a Monitor
type Option func(*Monitor)

// WithInterval sets the poll interval
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithExpiryGrace sets how long after the deadline an unfilled order is
// still polled before being reported EXPIRED.
func WithExpiryGrace(d time.Duration) Option {
	return func(m *Monitor) { m.expiryGrace = d }
}

// WithFailureThreshold sets how many consecutive read errors end monitoring
func WithFailureThreshold(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.failThreshold = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithMetrics records every update
func WithMetrics(s *metrics.Swap) Option {
	return func(m *Monitor) { m.metrics = s }
}

// New creates a monitor
func New(checker FillChecker, opts ...Option) *Monitor {
	m := &Monitor{
		checker:       checker,
		interval:      DefaultInterval,
		expiryGrace:   DefaultExpiryGrace,
		failThreshold: 1,
		logger:        slog.Default(),
		now:           time.Now,
		active:        make(map[string]*watch),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "monitor")
	return m
}

// Monitor starts polling the order in the background, checking once
// immediately. It returns the order ID and false if the order was already
// being monitored, in which case nothing changes.
func (m *Monitor) Monitor(order *types.SignedOrder, onUpdate UpdateFunc) (string, bool) {
	id := OrderID(order)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[id]; exists {
		m.logger.Warn("order already monitored", "order_id", id)
		return id, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &watch{cancel: cancel}
	m.active[id] = w

	m.wg.Add(1)
	go m.run(ctx, w, id, order, onUpdate)

	m.logger.Info("started monitoring order", "order_id", id, "interval", m.interval)
	return id, true
}

// StopMonitoring stops polling a single order
func (m *Monitor) StopMonitoring(id string) {
	m.mu.Lock()
	w, exists := m.active[id]
	if exists {
		delete(m.active, id)
	}
	m.mu.Unlock()

	if exists {
		w.cancel()
		m.logger.Info("stopped monitoring order", "order_id", id)
	}
}

// StopAll stops every poller and waits for them to exit
func (m *Monitor) StopAll() {
	m.mu.Lock()
	for id, w := range m.active {
		w.cancel()
		delete(m.active, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// Active returns the IDs of orders currently being monitored
func (m *Monitor) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsMonitoring reports whether the order ID is being polled
func (m *Monitor) IsMonitoring(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.active[id]
	return exists
}

func (m *Monitor) run(ctx context.Context, w *watch, id string, order *types.SignedOrder, onUpdate UpdateFunc) {
	defer m.wg.Done()
	defer m.release(id, w)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	failures := 0
	for {
		update, done := m.check(ctx, id, order, &failures)
		if ctx.Err() != nil {
			return
		}
		if update != nil {
			m.metrics.MonitorUpdate(string(update.Status))
			if onUpdate != nil {
				onUpdate(*update)
			}
		}
		if done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// check performs one poll. A nil update means the poll is not reported.
func (m *Monitor) check(ctx context.Context, id string, order *types.SignedOrder, failures *int) (*Update, bool) {
	filled, err := m.checker.Filled(ctx, order)
	now := m.now()

	if err != nil {
		if ctx.Err() != nil {
			return nil, true
		}
		*failures++
		m.logger.Warn("fill check failed", "order_id", id, "attempt", *failures, "error", err)
		if *failures < m.failThreshold {
			return nil, false
		}
		return &Update{OrderID: id, Status: StatusFailed, Timestamp: now, Err: &MonitorError{OrderID: id, Err: err}}, true
	}
	*failures = 0

	if filled {
		m.logger.Info("order filled", "order_id", id)
		return &Update{OrderID: id, Status: StatusFilled, Timestamp: now}, true
	}

	deadline := time.Unix(int64(order.Deadline()), 0)
	if order.Deadline() > 0 && now.After(deadline.Add(m.expiryGrace)) {
		m.logger.Info("order expired unfilled", "order_id", id, "deadline", deadline)
		return &Update{OrderID: id, Status: StatusExpired, Timestamp: now}, true
	}

	return &Update{OrderID: id, Status: StatusPending, Timestamp: now}, false
}

// release removes the watch once its goroutine exits on its own
func (m *Monitor) release(id string, w *watch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[id] == w {
		delete(m.active, id)
	}
	w.cancel()
}
