package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"

	"signet-swap/config"
	"signet-swap/pkg/approval"
	"signet-swap/pkg/chain"
	"signet-swap/pkg/client"
	"signet-swap/pkg/history"
	"signet-swap/pkg/metrics"
	"signet-swap/pkg/monitor"
	"signet-swap/pkg/order"
	"signet-swap/pkg/price"
	"signet-swap/pkg/signing"
	"signet-swap/pkg/swap"
)

func newResolver(cfg *config.Config) *price.Resolver {
	sources := price.DefaultSources(http.DefaultClient,
		cfg.Price.DefiLlamaURL, cfg.Price.CryptoCompareURL, cfg.Price.CoinGeckoURL)
	return price.NewResolver(sources, price.Options{
		Freshness:         cfg.Price.Freshness,
		Timeout:           cfg.Price.Timeout,
		MaxRetries:        cfg.Price.MaxRetries,
		InitialBackoff:    cfg.Price.InitialBackoff,
		RequestsPerMinute: cfg.Price.RequestsPerMinute,
		Logger:            slog.Default(),
		Metrics:           metrics.Default(),
	})
}

func newTxCacheClient(cfg *config.Config) *client.TxCacheClient {
	opts := []client.Option{
		client.WithLogger(slog.Default()),
		client.WithMetrics(metrics.Default()),
	}
	if cfg.ProxyURL != "" {
		opts = append(opts, client.WithProxy(cfg.ProxyURL))
	}
	return client.NewTxCacheClient(cfg.TxCacheURL, opts...)
}

func rpcURLs(cfg *config.Config) map[uint64]string {
	return map[uint64]string{
		cfg.Host.ChainID:   cfg.Host.RPCURL,
		cfg.Rollup.ChainID: cfg.Rollup.RPCURL,
	}
}

func ordersContracts(cfg *config.Config) map[uint64]common.Address {
	return map[uint64]common.Address{
		cfg.Host.ChainID:   common.HexToAddress(cfg.Host.Orders),
		cfg.Rollup.ChainID: common.HexToAddress(cfg.Rollup.Orders),
	}
}

func chainNames(cfg *config.Config) map[uint64]string {
	return map[uint64]string{
		cfg.Host.ChainID:   cfg.Host.Name,
		cfg.Rollup.ChainID: cfg.Rollup.Name,
	}
}

func resolveChain(cfg *config.Config, name string) (config.ChainConfig, error) {
	c, ok := cfg.ChainByName(strings.ToLower(strings.TrimSpace(name)))
	if !ok {
		return config.ChainConfig{}, fmt.Errorf("unknown chain '%s' (use host or rollup)", name)
	}
	return c, nil
}

// newSigningWallet opens a wallet for the configured key, connected to the
// initial chain.
func newSigningWallet(cfg *config.Config, initial uint64) (*chain.Wallet, *signing.KeySigner, error) {
	if err := cfg.RequirePrivateKey(); err != nil {
		return nil, nil, err
	}
	signer, err := signing.KeySignerFromHex(cfg.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	wallet, err := chain.NewWallet(rpcURLs(cfg), initial, signer.PrivateKey(), chain.DialRPC, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	if cfg.GasLimit > 0 {
		wallet.SetGasLimit(cfg.GasLimit)
	}
	return wallet, signer, nil
}

// printTxSummary shows where a sent transaction landed
func printTxSummary(ctx context.Context, wallet *chain.Wallet, c config.ChainConfig, hash common.Hash) {
	summary, err := wallet.Summarize(ctx, c.ChainID, hash)
	if err != nil {
		slog.Debug("transaction lookup failed", "tx", hash.Hex(), "error", err)
		return
	}
	if summary.Pending {
		fmt.Printf("  Status:      %s\n", color.YellowString("pending"))
	} else {
		status := color.GreenString("success")
		if !summary.Succeeded {
			status = color.RedString("reverted")
		}
		fmt.Printf("  Status:      %s\n", status)
		fmt.Printf("  Block:       %d\n", summary.Block)
		fmt.Printf("  Gas used:    %d / %d\n", summary.GasUsed, summary.GasLimit)
	}
	if c.ExplorerURL != "" {
		fmt.Printf("  Explorer:    %s/tx/%s\n", c.ExplorerURL, hash.Hex())
	}
}

// newFillMonitor watches destination chains through wallet's readers
func newFillMonitor(cfg *config.Config, wallet *chain.Wallet) *monitor.Monitor {
	readers := func(ctx context.Context, chainID uint64) (monitor.LogReader, error) {
		return wallet.Reader(ctx, chainID)
	}
	checker := monitor.NewLogFillChecker(readers, ordersContracts(cfg))
	return monitor.New(checker,
		monitor.WithInterval(cfg.MonitorEvery),
		monitor.WithLogger(slog.Default()),
		monitor.WithMetrics(metrics.Default()),
	)
}

// newMachine wires the full swap pipeline
func newMachine(cfg *config.Config, wallet *chain.Wallet, signer *signing.KeySigner, onFill monitor.UpdateFunc) (*swap.Machine, error) {
	store, err := history.NewFileStore(cfg.HistoryFile)
	if err != nil {
		return nil, err
	}

	permit2 := common.HexToAddress(cfg.Permit2)
	return swap.New(swap.Deps{
		Network:        wallet,
		Approver:       approval.NewChecker(wallet, wallet, slog.Default()).WithReceiptTimeout(cfg.ApprovalWait),
		Builder:        order.NewBuilder(cfg.OrderHorizon),
		Engine:         signing.NewEngine(signing.NewMonotonicNonces(), slog.Default()),
		Signer:         signer,
		Submitter:      newTxCacheClient(cfg),
		Prices:         newResolver(cfg),
		Monitor:        newFillMonitor(cfg, wallet),
		History:        store,
		Orders:         ordersContracts(cfg),
		Permit2:        permit2,
		ChainNames:     chainNames(cfg),
		AutoResetDelay: cfg.AutoResetDelay,
		Logger:         slog.Default(),
		Metrics:        metrics.Default(),
		OnFill:         onFill,
	})
}
