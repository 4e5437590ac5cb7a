package parser

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"signet-swap/pkg/types"
)

func TestParseSwapCommand(t *testing.T) {
	tests := []struct {
		input  string
		amount string
		src    string
		dst    string
		chain  string
	}{
		{"swap 1 ETH to ETH", "1", "ETH", "ETH", ""},
		{"1.5 usdc to usdt", "1.5", "USDC", "USDT", ""},
		{"swap 100 USDC to BTC on host", "100", "USDC", "WBTC", "host"},
		{"  swap 0.25 weth to usdc  ", "0.25", "ETH", "USDC", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			req, err := ParseSwapCommand(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.amount, req.Amount)
			require.Equal(t, tt.src, req.SourceToken)
			require.Equal(t, tt.dst, req.DestToken)
			require.Equal(t, tt.chain, req.DestChain)
		})
	}
}

func TestParseSwapCommandRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "swap ETH to USDC", "swap 1 ETH USDC", "swap -1 ETH to USDC"} {
		_, err := ParseSwapCommand(input)
		require.Error(t, err, input)
	}
}

func TestValidateSwapRequest(t *testing.T) {
	require.Error(t, ValidateSwapRequest(&types.SwapRequest{SourceToken: "ETH", DestToken: "ETH"}))
	require.Error(t, ValidateSwapRequest(&types.SwapRequest{Amount: "1", SourceToken: "ETH", DestToken: "ETH", SourceChain: "host", DestChain: "host"}))
	require.NoError(t, ValidateSwapRequest(&types.SwapRequest{Amount: "1", SourceToken: "ETH", DestToken: "ETH"}))
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits("1", 6)
	require.NoError(t, err)
	require.Equal(t, "1000000", v.String())

	v, err = ParseUnits("0.000001", 6)
	require.NoError(t, err)
	require.Equal(t, "1", v.String())

	v, err = ParseUnits(".5", 18)
	require.NoError(t, err)
	require.Equal(t, "500000000000000000", v.String())

	_, err = ParseUnits("0.0000001", 6)
	require.Error(t, err)

	_, err = ParseUnits("1e5", 6)
	require.Error(t, err)

	_, err = ParseUnits("-1", 6)
	require.Error(t, err)
}

func TestFormatUnits(t *testing.T) {
	require.Equal(t, "1", FormatUnits(big.NewInt(1000000), 6))
	require.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
	require.Equal(t, "15.5", FormatUnits(big.NewInt(1550000000), 8))
	require.Equal(t, "42", FormatUnits(big.NewInt(42), 0))
	require.Equal(t, "0", FormatUnits(nil, 6))
}
