package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"signet-swap/config"
	"signet-swap/pkg/approval"
	"signet-swap/pkg/parser"
	"signet-swap/pkg/swap"
	"signet-swap/pkg/tokens"
)

var (
	approveChain string
	approveCheck bool
)

var approveCmd = &cobra.Command{
	Use:   "approve <token>",
	Short: "Approve Permit2 to move a token",
	Long: `Grant Permit2 an unlimited allowance for a token so orders can be signed
without an approval step. With --check the allowance is only reported.

Examples:
  signet-swap approve USDC
  signet-swap approve USDT --chain rollup --check`,
	Args: cobra.ExactArgs(1),
	Run:  runApprove,
}

func init() {
	rootCmd.AddCommand(approveCmd)

	approveCmd.Flags().StringVar(&approveChain, "chain", "host", "Chain to approve on (host or rollup)")
	approveCmd.Flags().BoolVar(&approveCheck, "check", false, "Only show the current allowance")
}

func runApprove(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	c, err := resolveChain(cfg, approveChain)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	token, err := tokens.BySymbol(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	addr, ok := token.AddressOn(c.ChainID)
	if !ok {
		printError(fmt.Errorf("%s is not available on %s", token.Symbol, c.Name))
		os.Exit(1)
	}
	if tokens.IsNative(addr) {
		printSuccess(fmt.Sprintf("%s is native on %s and needs no approval.", token.Symbol, c.Name))
		return
	}

	wallet, _, err := newSigningWallet(cfg, c.ChainID)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer wallet.Close()

	permit2 := common.HexToAddress(cfg.Permit2)
	checker := approval.NewChecker(wallet, wallet, slog.Default()).WithReceiptTimeout(cfg.ApprovalWait)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ApprovalWait+30*time.Second)
	defer cancel()

	allowance, err := checker.Allowance(ctx, addr, wallet.Address(), permit2)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if approveCheck {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"token":     token.Symbol,
				"chain":     c.Name,
				"owner":     wallet.Address().Hex(),
				"spender":   permit2.Hex(),
				"allowance": allowance.String(),
			})
			return
		}
		amount := parser.FormatUnits(allowance, token.Decimals)
		if allowance.Cmp(approval.MaxAllowance()) == 0 {
			amount = "unlimited"
		}
		fmt.Printf("\n  Permit2 allowance for %s on %s: %s\n\n", color.YellowString(token.Symbol), c.Name, color.CyanString(amount))
		return
	}

	if allowance.Cmp(approval.MaxAllowance()) == 0 {
		printSuccess(fmt.Sprintf("%s is already approved for Permit2 on %s.", token.Symbol, c.Name))
		return
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Waiting for approval transaction..."
		s.Start()
	}
	hash, err := checker.Approve(ctx, addr, permit2, approval.MaxAllowance())
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(fmt.Errorf("%s", swap.UserMessage(err)))
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"token": token.Symbol, "chain": c.Name, "tx_hash": hash.Hex()})
		return
	}
	color.Green("\nApproval confirmed")
	fmt.Printf("  Transaction: %s\n", color.CyanString(hash.Hex()))
	printTxSummary(ctx, wallet, c, hash)
	fmt.Println()
}
