package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"signet-swap/config"
	"signet-swap/pkg/swap"
	"signet-swap/pkg/tokens"
)

func testConfig() *config.Config {
	return &config.Config{
		Host:   config.ChainConfig{Name: "Pecorino Host", ChainID: tokens.HostChainID},
		Rollup: config.ChainConfig{Name: "Pecorino Signet", ChainID: tokens.RollupChainID},
	}
}

func TestParseSwapArgsDefaultsToCounterpart(t *testing.T) {
	sa, err := parseSwapArgs(testConfig(), []string{"1.5", "usdc", "to", "usdc"}, "host", "", "", "")
	require.NoError(t, err)
	require.Equal(t, tokens.HostChainID, sa.request.SourceChainID)
	require.Equal(t, tokens.RollupChainID, sa.request.TargetChainID)
	require.Equal(t, "1500000", sa.request.Amount.String())
	require.Nil(t, sa.request.TargetAmount)
}

func TestParseSwapArgsOnClause(t *testing.T) {
	sa, err := parseSwapArgs(testConfig(), []string{"0.5", "ETH", "to", "USDC", "on", "host"}, "rollup", "", "1000", "")
	require.NoError(t, err)
	require.Equal(t, tokens.RollupChainID, sa.request.SourceChainID)
	require.Equal(t, tokens.HostChainID, sa.request.TargetChainID)
	require.Equal(t, "1000000000", sa.request.TargetAmount.String())
}

func TestParseSwapArgsRejectsTokenChangeIntoRollup(t *testing.T) {
	_, err := parseSwapArgs(testConfig(), []string{"1", "ETH", "to", "USDC"}, "host", "rollup", "", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "same token")
}

func TestParseSwapArgsRejectsSameChain(t *testing.T) {
	_, err := parseSwapArgs(testConfig(), []string{"1", "USDC", "to", "USDC"}, "host", "host", "", "")
	require.Error(t, err)
}

func TestParseSwapArgsRecipient(t *testing.T) {
	_, err := parseSwapArgs(testConfig(), []string{"1", "USDC", "to", "USDC"}, "host", "", "", "not-an-address")
	require.Error(t, err)

	sa, err := parseSwapArgs(testConfig(), []string{"1", "USDC", "to", "USDC"}, "host", "", "", "0x0A4f505364De0Aa46c66b15aBae44eBa12ab0380")
	require.NoError(t, err)
	require.Equal(t, "0x0A4f505364De0Aa46c66b15aBae44eBa12ab0380", sa.request.Recipient.Hex())
}

func TestStateLabelShowsApprovalReason(t *testing.T) {
	st := swap.State{Status: swap.StatusWaitingForConfirmation, Phase: swap.PhaseApproval}
	require.Equal(t, "Waiting for token approval...", stateLabel(st))

	st.Error = "Could not read the current allowance, requesting approval: rpc down"
	require.Contains(t, stateLabel(st), "rpc down")
	require.Equal(t, "Signing order...", stateLabel(swap.State{Status: swap.StatusWaitingForConfirmation, Phase: swap.PhaseSigning}))
}
