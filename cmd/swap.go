package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"signet-swap/config"
	"signet-swap/pkg/monitor"
	"signet-swap/pkg/order"
	"signet-swap/pkg/parser"
	"signet-swap/pkg/swap"
	"signet-swap/pkg/tokens"
	"signet-swap/pkg/types"
)

var (
	fromChain     string
	toChain       string
	recipientAddr string
	targetAmount  string
	noConfirm     bool
	watchFill     bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token> [on <host|rollup>]",
	Short: "Perform a cross-chain token swap",
	Long: `Swap tokens between the host chain and the Signet rollup with a signed order.

The order is priced from public feeds, signed as a Permit2 batch witness
permit and submitted to the transaction cache. If the source token has not
been approved for Permit2 yet, an approval transaction is sent first.

Moves from host to rollup must keep the same token; rollup to host moves
may convert between any supported tokens.

Examples:
  # Bridge USDC from host to rollup
  signet-swap swap 1 USDC to USDC

  # Sell ETH for USDC on the way back to the host
  signet-swap swap 0.5 ETH to USDC --from rollup --to host

  # Fix the output amount yourself and wait for a filler
  signet-swap swap 100 USDC to USDT on host --from rollup --target-amount 99.5 --watch`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&fromChain, "from", "host", "Source chain (host or rollup)")
	swapCmd.Flags().StringVar(&toChain, "to", "", "Destination chain (defaults to the other side)")
	swapCmd.Flags().StringVar(&recipientAddr, "recipient", "", "Recipient address (defaults to your own address)")
	swapCmd.Flags().StringVar(&targetAmount, "target-amount", "", "Output amount to request instead of the market quote")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	swapCmd.Flags().BoolVarP(&watchFill, "watch", "w", false, "Wait until the order is filled or expires")
}

// swapArgs is a parsed swap command resolved against the token registry
type swapArgs struct {
	command *types.SwapRequest
	request order.Request
	source  config.ChainConfig
	target  config.ChainConfig
}

func parseSwapArgs(cfg *config.Config, args []string, from, to, target, recipient string) (*swapArgs, error) {
	swapReq, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return nil, err
	}
	swapReq.SourceChain = from
	if to != "" {
		swapReq.DestChain = to
	}
	swapReq.Recipient = recipient

	source, err := resolveChain(cfg, swapReq.SourceChain)
	if err != nil {
		return nil, err
	}
	var dest config.ChainConfig
	if swapReq.DestChain == "" {
		dest, _ = cfg.ChainByID(tokens.Counterpart(source.ChainID))
	} else if dest, err = resolveChain(cfg, swapReq.DestChain); err != nil {
		return nil, err
	}
	swapReq.SourceChain = source.Name
	swapReq.DestChain = dest.Name

	if err := parser.ValidateSwapRequest(swapReq); err != nil {
		return nil, err
	}

	sourceToken, err := tokens.BySymbol(swapReq.SourceToken)
	if err != nil {
		return nil, err
	}
	destToken, err := tokens.BySymbol(swapReq.DestToken)
	if err != nil {
		return nil, err
	}
	if tokens.IsHostToRollup(source.ChainID, dest.ChainID) && sourceToken.Symbol != destToken.Symbol {
		return nil, fmt.Errorf("host to rollup moves must keep the same token (got %s to %s)", sourceToken.Symbol, destToken.Symbol)
	}

	amount, err := parser.ParseUnits(swapReq.Amount, sourceToken.Decimals)
	if err != nil {
		return nil, err
	}

	req := order.Request{
		SourceToken:   sourceToken,
		TargetToken:   destToken,
		SourceChainID: source.ChainID,
		TargetChainID: dest.ChainID,
		Amount:        amount,
	}
	if target != "" {
		if req.TargetAmount, err = parser.ParseUnits(target, destToken.Decimals); err != nil {
			return nil, fmt.Errorf("invalid target amount: %w", err)
		}
	}
	if recipient != "" {
		if !common.IsHexAddress(recipient) {
			return nil, fmt.Errorf("invalid recipient address '%s'", recipient)
		}
		req.Recipient = common.HexToAddress(recipient)
	}

	return &swapArgs{command: swapReq, request: req, source: source, target: dest}, nil
}

func quoteDisplay(sa *swapArgs, quote *swap.QuoteResult) types.QuoteDisplay {
	origin := "par"
	if !quote.OneToOne {
		origin = fmt.Sprintf("%s/%s", quote.SourcePrice.Origin, quote.TargetPrice.Origin)
	}
	return types.QuoteDisplay{
		SourceAmount: parser.FormatUnits(sa.request.Amount, sa.request.SourceToken.Decimals),
		SourceToken:  sa.request.SourceToken.Symbol,
		SourceChain:  sa.source.Name,
		DestAmount:   parser.FormatUnits(quote.TargetAmount, sa.request.TargetToken.Decimals),
		DestToken:    sa.request.TargetToken.Symbol,
		DestChain:    sa.target.Name,
		Rate:         quote.Rate,
		PriceOrigin:  origin,
	}
}

func runSwap(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	sa, err := parseSwapArgs(cfg, args, fromChain, toChain, targetAmount, recipientAddr)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Price the swap with spinner
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching prices..."
		s.Start()
	}
	quote, err := swap.Quote(ctx, newResolver(cfg), sa.request)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil && sa.request.TargetAmount == nil {
		printError(fmt.Errorf("%s", swap.UserMessage(err)))
		os.Exit(1)
	}

	display := types.QuoteDisplay{
		SourceAmount: parser.FormatUnits(sa.request.Amount, sa.request.SourceToken.Decimals),
		SourceToken:  sa.request.SourceToken.Symbol,
		SourceChain:  sa.source.Name,
		DestChain:    sa.target.Name,
	}
	if quote != nil {
		display = quoteDisplay(sa, quote)
	}
	if sa.request.TargetAmount != nil {
		display.DestAmount = parser.FormatUnits(sa.request.TargetAmount, sa.request.TargetToken.Decimals)
		display.DestToken = sa.request.TargetToken.Symbol
	} else {
		sa.request.TargetAmount = quote.TargetAmount
	}

	if !jsonOutput {
		displayQuote(display)
		if quote != nil && quote.Degraded() {
			color.Yellow("  Warning: live prices unavailable, using %s prices\n", display.PriceOrigin)
		}
	}

	// Ask for confirmation
	if !noConfirm && !jsonOutput {
		if !confirmSwap() {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	wallet, signer, err := newSigningWallet(cfg, sa.source.ChainID)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer wallet.Close()

	fills := make(chan monitor.Update, 4)
	machine, err := newMachine(cfg, wallet, signer, func(u monitor.Update) {
		if u.Status.Terminal() {
			select {
			case fills <- u:
			default:
			}
		}
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer machine.Close()

	if !jsonOutput {
		s.Suffix = " Preparing order..."
		s.Start()
		machine.OnChange(func(st swap.State) {
			s.Lock()
			s.Suffix = " " + stateLabel(st)
			s.Unlock()
		})
	}
	err = machine.Submit(ctx, sa.request)
	if !jsonOutput {
		s.Stop()
	}

	st := machine.State()
	if err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"status": string(st.Status),
				"error":  st.Error,
			})
		} else {
			printError(fmt.Errorf("%s", st.Error))
		}
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"status":   string(swap.StatusCompleted),
			"order_id": st.OrderID,
			"quote":    display,
		})
	} else {
		color.Green("\nOrder submitted to the transaction cache")
		fmt.Printf("  Order ID: %s\n", color.CyanString(st.OrderID))
		if st.ApprovalTx != (common.Hash{}) {
			fmt.Printf("\n  Approval:    %s\n", color.HiBlackString(st.ApprovalTx.Hex()))
			printTxSummary(ctx, wallet, sa.source, st.ApprovalTx)
		}
	}

	if !watchFill {
		if !jsonOutput {
			fmt.Println("\nYou can monitor the order using:")
			color.Cyan("  signet-swap status %s --watch\n", st.OrderID)
		}
		return
	}

	if !jsonOutput {
		s.Suffix = " Waiting for a filler..."
		s.Start()
	}
	select {
	case u := <-fills:
		if !jsonOutput {
			s.Stop()
			fmt.Printf("\n  Status: %s\n\n", getColoredStatus(string(u.Status)))
		} else {
			printJSON(map[string]interface{}{"order_id": u.OrderID, "status": string(u.Status)})
		}
	case <-ctx.Done():
		if !jsonOutput {
			s.Stop()
			fmt.Println("\nStopped watching. The order stays in the cache until it expires.")
		}
	}
}

func stateLabel(st swap.State) string {
	switch st.Status {
	case swap.StatusCreatingOrder:
		return "Creating order..."
	case swap.StatusOrderCreated:
		return "Order created"
	case swap.StatusWaitingForConfirmation:
		if st.Phase == swap.PhaseApproval {
			if st.Error != "" {
				return "Waiting for token approval... (" + st.Error + ")"
			}
			return "Waiting for token approval..."
		}
		return "Signing order..."
	case swap.StatusSendingBundle:
		return "Submitting order..."
	case swap.StatusCompleted:
		return "Done"
	case swap.StatusFailed:
		return "Failed"
	}
	return "Preparing order..."
}

func displayQuote(q types.QuoteDisplay) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s on %s\n", q.SourceAmount, color.YellowString(q.SourceToken), q.SourceChain)
	fmt.Printf("  To:                %s %s on %s\n", q.DestAmount, color.YellowString(q.DestToken), q.DestChain)
	if q.Rate != "" {
		fmt.Printf("  Rate:              1 %s = %s %s\n", q.SourceToken, q.Rate, q.DestToken)
	}
	if q.PriceOrigin != "" {
		fmt.Printf("  Prices:            %s\n", q.PriceOrigin)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func printJSON(v interface{}) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}
