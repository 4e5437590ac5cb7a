package monitor

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"signet-swap/pkg/types"
)

// DefaultLookback is how many blocks back a fill is searched for
const DefaultLookback uint64 = 1000

const ordersABIJSON = `[
  {"type":"event","name":"Filled","anonymous":false,"inputs":[
    {"name":"outputs","type":"tuple[]","indexed":false,"components":[
      {"name":"token","type":"address"},
      {"name":"amount","type":"uint256"},
      {"name":"recipient","type":"address"},
      {"name":"chainId","type":"uint32"}
    ]}
  ]}
]`

var (
	ordersABIOnce sync.Once
	ordersABI     abi.ABI
)

// OrdersABI returns the parsed Orders contract ABI (Filled event only)
func OrdersABI() abi.ABI {
	ordersABIOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(ordersABIJSON))
		if err != nil {
			panic(fmt.Sprintf("invalid Orders ABI: %v", err))
		}
		ordersABI = parsed
	})
	return ordersABI
}

// filledOutput mirrors the Output tuple in the Filled event
type filledOutput struct {
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
	ChainId   uint32
}

// FillChecker reports whether a signed order has been filled
type FillChecker interface {
	Filled(ctx context.Context, order *types.SignedOrder) (bool, error)
}

// LogReader is the chain read capability needed to find fills
type LogReader interface {
	ethereum.LogFilterer
	BlockNumber(ctx context.Context) (uint64, error)
}

// ReaderFunc returns a LogReader for a chain
type ReaderFunc func(ctx context.Context, chainID uint64) (LogReader, error)

// LogFillChecker looks for Filled events on the Orders contract of every
// chain the order delivers to.
type LogFillChecker struct {
	readers   ReaderFunc
	contracts map[uint64]common.Address
	lookback  uint64
}

// NewLogFillChecker creates a fill checker. contracts maps chain ID to that
// chain's Orders contract.
func NewLogFillChecker(readers ReaderFunc, contracts map[uint64]common.Address) *LogFillChecker {
	return &LogFillChecker{readers: readers, contracts: contracts, lookback: DefaultLookback}
}

// WithLookback sets how many blocks back to search
func (c *LogFillChecker) WithLookback(blocks uint64) *LogFillChecker {
	c.lookback = blocks
	return c
}

// Filled returns true once every output of the order appears in a Filled
// event on its destination chain.
func (c *LogFillChecker) Filled(ctx context.Context, order *types.SignedOrder) (bool, error) {
	if len(order.Outputs) == 0 {
		return false, fmt.Errorf("order has no outputs")
	}

	byChain := make(map[uint64][]types.Output)
	for _, out := range order.Outputs {
		byChain[uint64(out.ChainID)] = append(byChain[uint64(out.ChainID)], out)
	}

	for chainID, outputs := range byChain {
		fills, err := c.fillsOn(ctx, chainID)
		if err != nil {
			return false, err
		}
		for _, want := range outputs {
			if !containsOutput(fills, want) {
				return false, nil
			}
		}
	}
	return true, nil
}

func (c *LogFillChecker) fillsOn(ctx context.Context, chainID uint64) ([]filledOutput, error) {
	contract, ok := c.contracts[chainID]
	if !ok {
		return nil, fmt.Errorf("no Orders contract configured for chain %d", chainID)
	}
	reader, err := c.readers(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain %d: %w", chainID, err)
	}

	head, err := reader.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number on chain %d: %w", chainID, err)
	}
	from := uint64(0)
	if head > c.lookback {
		from = head - c.lookback
	}

	event := OrdersABI().Events["Filled"]
	logs, err := reader.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{event.ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Filled logs on chain %d: %w", chainID, err)
	}

	var fills []filledOutput
	for _, lg := range logs {
		var decoded struct {
			Outputs []filledOutput
		}
		if err := OrdersABI().UnpackIntoInterface(&decoded, "Filled", lg.Data); err != nil {
			// A log we cannot decode cannot be our fill
			continue
		}
		fills = append(fills, decoded.Outputs...)
	}
	return fills, nil
}

func containsOutput(fills []filledOutput, want types.Output) bool {
	for _, f := range fills {
		if f.Token == want.Token &&
			f.Recipient == want.Recipient &&
			f.ChainId == want.ChainID &&
			f.Amount != nil && want.Amount != nil && f.Amount.Cmp(want.Amount) == 0 {
			return true
		}
	}
	return false
}
