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
	"signet-swap/pkg/price"
	"signet-swap/pkg/swap"
	"signet-swap/pkg/tokens"
)

var (
	quoteFrom string
	quoteTo   string
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <source-token> to <dest-token> [on <host|rollup>]",
	Short: "Price a swap without signing anything",
	Long: `Show what a swap would request without touching the wallet.

Examples:
  signet-swap quote 1 USDC to USDC
  signet-swap quote 0.5 ETH to USDC --from rollup --to host`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

var priceCmd = &cobra.Command{
	Use:   "price [token...]",
	Short: "Show USD prices for supported tokens",
	Long: `Resolve USD prices from DefiLlama, CryptoCompare and CoinGecko, falling
back to cached or static prices when every feed is down.

Examples:
  signet-swap price
  signet-swap price ETH WBTC`,
	Run: runPrice,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(priceCmd)

	quoteCmd.Flags().StringVar(&quoteFrom, "from", "host", "Source chain (host or rollup)")
	quoteCmd.Flags().StringVar(&quoteTo, "to", "", "Destination chain (defaults to the other side)")
}

func runQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	sa, err := parseSwapArgs(cfg, args, quoteFrom, quoteTo, "", "")
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching prices..."
		s.Start()
	}
	quote, err := swap.Quote(context.Background(), newResolver(cfg), sa.request)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(fmt.Errorf("%s", swap.UserMessage(err)))
		os.Exit(1)
	}

	display := quoteDisplay(sa, quote)
	if jsonOutput {
		printJSON(display)
		return
	}
	displayQuote(display)
	if quote.Degraded() {
		color.Yellow("  Warning: live prices unavailable, using %s prices\n", display.PriceOrigin)
	}
}

func runPrice(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	list := tokens.All()
	if len(args) > 0 {
		list = list[:0]
		for _, symbol := range args {
			t, err := tokens.BySymbol(symbol)
			if err != nil {
				printError(err)
				os.Exit(1)
			}
			list = append(list, t)
		}
	}

	resolver := newResolver(cfg)
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching prices..."
		s.Start()
	}
	quotes := make([]price.Quote, len(list))
	for i, t := range list {
		quotes[i] = resolver.Resolve(context.Background(), t)
	}
	if !jsonOutput {
		s.Stop()
	}

	if jsonOutput {
		out := make([]map[string]interface{}, len(list))
		for i, t := range list {
			out[i] = map[string]interface{}{
				"symbol": t.Symbol,
				"price":  quotes[i].Price,
				"source": quotes[i].Source,
				"origin": quotes[i].Origin,
			}
		}
		printJSON(out)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     TOKEN PRICES")
	fmt.Println(strings.Repeat("=", 60) + "\n")
	for i, t := range list {
		q := quotes[i]
		if q.Origin == price.OriginNone {
			fmt.Printf("  %-8s %s\n", color.YellowString(t.Symbol), color.RedString("unavailable"))
			continue
		}
		line := fmt.Sprintf("  %-8s $%-14.4f %s", color.YellowString(t.Symbol), q.Price, q.Origin)
		if q.Source != "" {
			line += color.HiBlackString(" (%s)", q.Source)
		}
		fmt.Println(line)
	}
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
