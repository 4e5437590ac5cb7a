package signing

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NonceSource hands out Permit2 nonces for an owner
type NonceSource interface {
	Next(owner common.Address) *big.Int
}

// MonotonicNonces seeds nonces from wall-clock microseconds and guarantees
// they strictly increase per owner within the process.
type MonotonicNonces struct {
	mu   sync.Mutex
	last map[common.Address]uint64
	now  func() time.Time
}

// NewMonotonicNonces creates a nonce source backed by time.Now
func NewMonotonicNonces() *MonotonicNonces {
	return &MonotonicNonces{last: make(map[common.Address]uint64), now: time.Now}
}

// Next returns max(nowMicros, last+1) for owner
func (n *MonotonicNonces) Next(owner common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()

	v := uint64(n.now().UnixMicro())
	if last, ok := n.last[owner]; ok && v <= last {
		v = last + 1
	}
	n.last[owner] = v
	return new(big.Int).SetUint64(v)
}
