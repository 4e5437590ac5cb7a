package order

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"signet-swap/pkg/tokens"
)

var (
	fixedNow  = time.Unix(1700000000, 0)
	recipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func usdcRequest(t *testing.T) Request {
	t.Helper()
	usdc, err := tokens.BySymbol("USDC")
	require.NoError(t, err)
	return Request{
		SourceToken:   usdc,
		TargetToken:   usdc,
		SourceChainID: tokens.HostChainID,
		TargetChainID: tokens.RollupChainID,
		Amount:        big.NewInt(1000000),
		TargetAmount:  big.NewInt(1000000),
		Recipient:     recipient,
	}
}

func TestBuildHostToRollupUSDC(t *testing.T) {
	b := NewBuilder(0).WithClock(func() time.Time { return fixedNow })

	o, err := b.Build(usdcRequest(t))
	require.NoError(t, err)

	require.Len(t, o.Inputs, 1)
	require.Len(t, o.Outputs, 1)
	require.Equal(t, common.HexToAddress("0x885F8DB528dC8a38aA3DDad9D3F619746B4a6A81"), o.Inputs[0].Token)
	require.Equal(t, "1000000", o.Inputs[0].Amount.String())

	out := o.Outputs[0]
	require.Equal(t, common.HexToAddress("0x0B8BC5e60EE10957E0d1A0d95598fA63E65605e2"), out.Token)
	require.Equal(t, "1000000", out.Amount.String())
	require.Equal(t, recipient, out.Recipient)
	require.Equal(t, uint32(14174), out.ChainID)
	require.Equal(t, uint64(1700000300), o.Deadline)
}

func TestBuildCopiesAmounts(t *testing.T) {
	req := usdcRequest(t)
	o, err := NewBuilder(time.Minute).Build(req)
	require.NoError(t, err)

	req.Amount.SetInt64(1)
	require.Equal(t, "1000000", o.Inputs[0].Amount.String())
}

func TestBuildValidation(t *testing.T) {
	b := NewBuilder(0).WithClock(func() time.Time { return fixedNow })

	cases := map[string]func(r *Request){
		"zero amount":     func(r *Request) { r.Amount = big.NewInt(0) },
		"negative amount": func(r *Request) { r.Amount = big.NewInt(-5) },
		"nil target":      func(r *Request) { r.TargetAmount = nil },
		"same chain":      func(r *Request) { r.TargetChainID = r.SourceChainID },
		"unknown chain":   func(r *Request) { r.SourceChainID = 1 },
		"zero recipient":  func(r *Request) { r.Recipient = common.Address{} },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := usdcRequest(t)
			mutate(&req)
			_, err := b.Build(req)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
		})
	}
}
