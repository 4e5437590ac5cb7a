package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"signet-swap/config"
	"signet-swap/pkg/tokens"
)

var (
	filterChain  string
	filterSymbol string
)

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List all supported tokens",
	Long: `List the tokens that can be moved between the host chain and the rollup.

You can filter tokens by chain or symbol.

Examples:
  signet-swap list-tokens
  signet-swap list-tokens --chain rollup
  signet-swap list-tokens --symbol USDC`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by chain (host or rollup)")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	chains := []config.ChainConfig{cfg.Host, cfg.Rollup}
	if filterChain != "" {
		c, err := resolveChain(cfg, filterChain)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		chains = []config.ChainConfig{c}
	}

	var list []tokens.Token
	for _, t := range tokens.All() {
		if filterSymbol != "" && !strings.EqualFold(t.Symbol, filterSymbol) {
			continue
		}
		list = append(list, t)
	}

	if len(list) == 0 {
		fmt.Println("\nNo tokens found matching the specified filters.")
		return
	}

	if jsonOutput {
		out := make(map[string][]map[string]interface{})
		for _, c := range chains {
			for _, t := range list {
				addr, ok := t.AddressOn(c.ChainID)
				if !ok {
					continue
				}
				out[c.Name] = append(out[c.Name], map[string]interface{}{
					"symbol":   t.Symbol,
					"name":     t.Name,
					"decimals": t.Decimals,
					"address":  addr.Hex(),
					"native":   tokens.IsNative(addr),
				})
			}
		}
		printJSON(out)
		return
	}

	displayTokens(list, chains)
}

func displayTokens(list []tokens.Token, chains []config.ChainConfig) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	color.Green("                              SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 80))

	for _, c := range chains {
		fmt.Printf("\n%s %s\n", color.CyanString(c.Name), color.HiBlackString("(chain %d)", c.ChainID))
		fmt.Println(strings.Repeat("-", 80))

		for _, t := range list {
			addr, ok := t.AddressOn(c.ChainID)
			if !ok {
				continue
			}
			location := addr.Hex()
			if tokens.IsNative(addr) {
				location = "native"
			}
			fmt.Printf("  %-8s %-22s %2d decimals  %s\n",
				color.YellowString(t.Symbol), t.Name, t.Decimals, color.HiBlackString(location))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Printf("Total tokens: %d\n\n", len(list))
}
