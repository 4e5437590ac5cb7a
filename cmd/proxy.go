package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"signet-swap/config"
	"signet-swap/pkg/metrics"
	"signet-swap/pkg/proxy"
)

var proxyListen string

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run the transaction cache relay",
	Long: `Serve a small HTTP relay in front of the transaction cache. Orders POSTed
to /api/tx-cache are forwarded unchanged; GET on the same path reports
whether the cache is reachable. Metrics are exposed on /metrics.

Point clients at it with proxy_url (or SIGNET_SWAP_PROXY_URL).

Examples:
  signet-swap proxy
  signet-swap proxy --listen 127.0.0.1:9000`,
	Run: runProxy,
}

func init() {
	rootCmd.AddCommand(proxyCmd)

	proxyCmd.Flags().StringVar(&proxyListen, "listen", "", "Address to listen on (defaults to proxy_listen)")
}

func runProxy(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	listen := cfg.ProxyListen
	if proxyListen != "" {
		listen = proxyListen
	}

	srv := proxy.New(proxy.Config{
		Listen:   listen,
		Upstream: cfg.TxCacheURL,
		Logger:   slog.Default(),
		Metrics:  metrics.Default(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	color.Green("\nRelaying %s%s -> %s", listen, proxy.Route, cfg.TxCacheURL)
	color.HiBlack("Press Ctrl+C to stop.\n")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			printError(err)
			os.Exit(1)
		}
	case <-sig:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			printError(err)
			os.Exit(1)
		}
		printSuccess("Proxy stopped.")
	}
}
