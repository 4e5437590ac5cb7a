package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "signet-swap",
	Short: "A CLI for cross-chain swaps between Ethereum and Signet using signed orders",
	Long: `signet-swap moves tokens between the Pecorino host chain and the Signet
rollup. It prices the swap, builds an order, signs it as a Permit2 batch
witness permit and hands it to the Signet transaction cache, where fillers
pick it up.

Examples:
  signet-swap swap 1 USDC to USDC
  signet-swap swap 0.5 ETH to USDC --from rollup --to host
  signet-swap quote 100 USDC to WBTC --from rollup
  signet-swap tokens
  signet-swap status <order-id>`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
