package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"signet-swap/config"
	"signet-swap/pkg/signing"
	"signet-swap/pkg/types"
)

var verifyChain string

var verifyCmd = &cobra.Command{
	Use:   "verify <signed-order.json>",
	Short: "Check the signature on a signed order",
	Long: `Recover the signer of a signed order and compare it with the permit owner.
Without --chain both the host and the rollup Orders contracts are tried.

Examples:
  signet-swap verify order.json
  signet-swap verify order.json --chain rollup`,
	Args: cobra.ExactArgs(1),
	Run:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyChain, "chain", "", "Chain the order was signed for (host or rollup)")
}

func runVerify(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	var signed types.SignedOrder
	if err := json.Unmarshal(data, &signed); err != nil {
		printError(fmt.Errorf("failed to parse signed order: %w", err))
		os.Exit(1)
	}

	candidates := []config.ChainConfig{cfg.Host, cfg.Rollup}
	if verifyChain != "" {
		c, err := resolveChain(cfg, verifyChain)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		candidates = []config.ChainConfig{c}
	}

	contracts := ordersContracts(cfg)
	var lastErr error
	for _, c := range candidates {
		if lastErr = signing.Verify(&signed, c.ChainID, contracts[c.ChainID]); lastErr != nil {
			continue
		}
		if jsonOutput {
			printJSON(map[string]interface{}{
				"order_id": signed.ID(),
				"owner":    signed.Permit.Owner.Hex(),
				"chain":    c.Name,
				"valid":    true,
			})
			return
		}
		color.Green("\nSignature valid")
		fmt.Printf("  Order ID: %s\n", color.CyanString(signed.ID()))
		fmt.Printf("  Owner:    %s\n", signed.Permit.Owner.Hex())
		fmt.Printf("  Chain:    %s\n\n", c.Name)
		return
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"order_id": signed.ID(),
			"valid":    false,
			"error":    lastErr.Error(),
		})
	} else {
		printError(fmt.Errorf("invalid signature: %w", lastErr))
	}
	os.Exit(1)
}
