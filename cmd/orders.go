package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"signet-swap/config"
	"signet-swap/pkg/parser"
	"signet-swap/pkg/tokens"
	"signet-swap/pkg/types"
)

var (
	showBundles      bool
	showTransactions bool
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List what the transaction cache is holding",
	Long: `List the signed orders currently held by the transaction cache.

Examples:
  signet-swap orders
  signet-swap orders --bundles
  signet-swap orders --transactions --json`,
	Run: runOrders,
}

func init() {
	rootCmd.AddCommand(ordersCmd)

	ordersCmd.Flags().BoolVar(&showBundles, "bundles", false, "List bundles instead of orders")
	ordersCmd.Flags().BoolVar(&showTransactions, "transactions", false, "List raw transactions instead of orders")
}

func runOrders(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	txCache := newTxCacheClient(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Querying transaction cache..."
		s.Start()
	}

	var result interface{}
	switch {
	case showBundles:
		result, err = txCache.GetBundles(ctx)
	case showTransactions:
		result, err = txCache.GetTransactions(ctx)
	default:
		result, err = txCache.GetOrders(ctx)
	}
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(result)
		return
	}

	switch v := result.(type) {
	case []types.SignedOrder:
		displayOrders(v)
	case []types.CachedBundle:
		fmt.Printf("\nThe transaction cache holds %d bundle(s).\n", len(v))
		for _, b := range v {
			fmt.Printf("  %s\n", color.CyanString(b.ID))
		}
		fmt.Println()
	default:
		printJSON(v)
	}
}

func displayOrders(orders []types.SignedOrder) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	color.Green("                              CACHED ORDERS")
	fmt.Println(strings.Repeat("=", 80))

	if len(orders) == 0 {
		fmt.Println("\n  No orders in the cache.")
	}

	for i := range orders {
		o := &orders[i]
		fmt.Printf("\n  Order:    %s\n", color.CyanString(o.ID()))
		fmt.Printf("  Owner:    %s\n", o.Permit.Owner.Hex())
		fmt.Printf("  Deadline: %s\n", time.Unix(int64(o.Deadline()), 0).Format("2006-01-02 15:04:05"))
		for _, out := range o.Outputs {
			symbol, decimals := out.Token.Hex(), uint8(0)
			if t, ok := tokens.ByAddress(uint64(out.ChainID), out.Token); ok {
				symbol, decimals = t.Symbol, t.Decimals
			}
			fmt.Printf("  Output:   %s %s on chain %d\n",
				parser.FormatUnits(out.Amount, decimals), color.YellowString(symbol), out.ChainID)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Printf("Total orders: %d\n\n", len(orders))
}
