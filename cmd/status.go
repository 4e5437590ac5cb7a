package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"signet-swap/config"
	"signet-swap/pkg/chain"
	"signet-swap/pkg/history"
	"signet-swap/pkg/monitor"
	"signet-swap/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <order-id | signed-order.json>",
	Short: "Check whether an order has been filled",
	Long: `Check whether a submitted order has been filled on its destination chain.

The order can be given by its id (or a unique prefix) from the local
history, or as a JSON file holding the signed order.

Examples:
  signet-swap status 0x1234abcd
  signet-swap status 0x1234abcd --watch
  signet-swap status order.json --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch until the order is filled or expires")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 30, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
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

	signed, record, err := lookupOrder(cfg, store, args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if signed == nil {
		// Gone from the cache; history is all we have
		if jsonOutput {
			printJSON(record)
		} else {
			displayRecord(record)
		}
		return
	}

	wallet, err := chain.NewWallet(rpcURLs(cfg), cfg.Host.ChainID, nil, chain.DialRPC, slog.Default())
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer wallet.Close()

	if watchStatus {
		if jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}
		watchOrder(cfg, wallet, store, signed)
		return
	}

	readers := func(ctx context.Context, chainID uint64) (monitor.LogReader, error) {
		return wallet.Reader(ctx, chainID)
	}
	checker := monitor.NewLogFillChecker(readers, ordersContracts(cfg))

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking fill status..."
		s.Start()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	filled, err := checker.Filled(ctx, signed)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	status := monitor.StatusPending
	switch {
	case filled:
		status = monitor.StatusFilled
		_ = store.UpdateStatus(signed.ID(), history.StatusFilled)
	case time.Now().Unix() > int64(signed.Deadline()):
		status = monitor.StatusExpired
		_ = store.UpdateStatus(signed.ID(), history.StatusExpired)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"order_id": signed.ID(),
			"status":   string(status),
			"deadline": signed.Deadline(),
		})
		return
	}
	displayStatus(signed, status)
}

// lookupOrder resolves arg to a signed order. A nil order with a record means
// the cache no longer holds it.
func lookupOrder(cfg *config.Config, store *history.FileStore, arg string) (*types.SignedOrder, history.Record, error) {
	if data, err := os.ReadFile(arg); err == nil {
		var signed types.SignedOrder
		if err := json.Unmarshal(data, &signed); err != nil {
			return nil, history.Record{}, fmt.Errorf("failed to parse signed order: %w", err)
		}
		return &signed, history.Record{}, nil
	}

	record, err := store.Get(arg)
	if err != nil {
		return nil, history.Record{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	orders, err := newTxCacheClient(cfg).GetOrders(ctx)
	if err != nil {
		return nil, record, err
	}
	for i := range orders {
		if strings.EqualFold(orders[i].ID(), record.OrderID) {
			return &orders[i], record, nil
		}
	}
	return nil, record, nil
}

func watchOrder(cfg *config.Config, wallet *chain.Wallet, store *history.FileStore, signed *types.SignedOrder) {
	interval := time.Duration(watchInterval) * time.Second

	fmt.Printf("\nWatching order %s\n", color.CyanString(signed.ID()))
	fmt.Printf("Checking every %s. Press Ctrl+C to stop.\n\n", interval)

	readers := func(ctx context.Context, chainID uint64) (monitor.LogReader, error) {
		return wallet.Reader(ctx, chainID)
	}
	mon := monitor.New(monitor.NewLogFillChecker(readers, ordersContracts(cfg)),
		monitor.WithInterval(interval),
		monitor.WithLogger(slog.Default()),
	)
	defer mon.StopAll()

	done := make(chan struct{})
	mon.Monitor(signed, func(u monitor.Update) {
		fmt.Printf("  [%s] %s\n", u.Timestamp.Format("15:04:05"), getColoredStatus(string(u.Status)))
		if !u.Status.Terminal() {
			return
		}
		if status, ok := map[monitor.Status]history.Status{
			monitor.StatusFilled:  history.StatusFilled,
			monitor.StatusExpired: history.StatusExpired,
			monitor.StatusFailed:  history.StatusFailed,
		}[u.Status]; ok {
			_ = store.UpdateStatus(signed.ID(), status)
		}
		if u.Err != nil {
			color.Red("  Error: %v", u.Err)
		}
		close(done)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-done:
	case <-sig:
		fmt.Println("\nStopped watching.")
	}
}

func displayStatus(signed *types.SignedOrder, status monitor.Status) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        ORDER STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Order ID:        %s\n", color.CyanString(signed.ID()))
	fmt.Printf("  Owner:           %s\n", signed.Permit.Owner.Hex())
	fmt.Printf("  Status:          %s\n", getColoredStatus(string(status)))
	fmt.Printf("  Deadline:        %s\n", time.Unix(int64(signed.Deadline()), 0).Format("2006-01-02 15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func displayRecord(r history.Record) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        ORDER STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Order ID:        %s\n", color.CyanString(r.OrderID))
	fmt.Printf("  Swap:            %s %s -> %s %s\n", r.SourceAmount, r.SourceToken, r.TargetAmount, r.TargetToken)
	fmt.Printf("  Status:          %s\n", getColoredStatus(string(r.Status)))
	fmt.Printf("  Submitted:       %s\n", r.Timestamp.Local().Format("2006-01-02 15:04:05"))
	color.HiBlack("  No longer held by the transaction cache")

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "FILLED", "COMPLETED":
		return color.GreenString(status)
	case "PENDING":
		return color.YellowString(status)
	case "FAILED":
		return color.RedString(status)
	case "EXPIRED":
		return color.MagentaString(status)
	default:
		return status
	}
}
