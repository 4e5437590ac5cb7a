package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"signet-swap/config"
	"signet-swap/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List orders submitted from this machine",
	Long: `List orders submitted from this machine, newest first. Pending orders
past their deadline are marked expired.

Examples:
  signet-swap history
  signet-swap history --limit 5 --json`,
	Run: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of orders to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	store, err := history.NewFileStore(cfg.HistoryFile)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	records, err := store.List()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}

	if jsonOutput {
		printJSON(records)
		return
	}

	if len(records) == 0 {
		fmt.Println("\nNo orders yet.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	color.Green("                              ORDER HISTORY")
	fmt.Println(strings.Repeat("=", 80) + "\n")

	for _, r := range records {
		source, _ := cfg.ChainByID(r.SourceChainID)
		target, _ := cfg.ChainByID(r.TargetChainID)
		fmt.Printf("  %s  %-8s %s %s -> %s %s  %s\n",
			color.HiBlackString(r.Timestamp.Local().Format("2006-01-02 15:04")),
			getColoredStatus(string(r.Status)),
			r.SourceAmount, color.YellowString(r.SourceToken),
			r.TargetAmount, color.YellowString(r.TargetToken),
			color.HiBlackString("%s -> %s", source.Name, target.Name))
		fmt.Printf("  %s\n\n", color.CyanString(r.OrderID))
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Stored in %s\n\n", store.FilePath())
}
