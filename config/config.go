package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ChainConfig describes one side of the host/rollup pair
type ChainConfig struct {
	Name        string
	ChainID     uint64
	RPCURL      string
	ExplorerURL string
	Orders      string // Orders contract address
	Passage     string
}

// PriceConfig controls the external price feeds
type PriceConfig struct {
	Freshness         time.Duration
	Timeout           time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	RequestsPerMinute int
	DefiLlamaURL      string
	CryptoCompareURL  string
	CoinGeckoURL      string
}

// Config holds the application configuration
type Config struct {
	PrivateKey     string
	TxCacheURL     string
	ProxyURL       string
	ProxyListen    string
	HistoryFile    string
	Permit2        string
	OrderHorizon   time.Duration
	AutoResetDelay time.Duration
	MonitorEvery   time.Duration
	ApprovalWait   time.Duration
	GasLimit       uint64 // 0 estimates per transaction
	Host           ChainConfig
	Rollup         ChainConfig
	Price          PriceConfig
}

var globalConfig *Config

func setDefaults() {
	viper.SetDefault("tx_cache_url", "https://transactions.pecorino.signet.sh")
	viper.SetDefault("proxy_url", "")
	viper.SetDefault("proxy_listen", ":8787")
	viper.SetDefault("history_file", "")
	viper.SetDefault("permit2", "0x000000000022D473030F116dDEE9F6B43aC78BA3")
	viper.SetDefault("order_horizon", "300s")
	viper.SetDefault("auto_reset_delay", "3s")
	viper.SetDefault("monitor_interval", "30s")
	viper.SetDefault("approval_wait", "2m")
	viper.SetDefault("gas_limit", 0)

	viper.SetDefault("chains.host.name", "Pecorino Host")
	viper.SetDefault("chains.host.chain_id", 3151908)
	viper.SetDefault("chains.host.rpc_url", "https://host-rpc.pecorino.signet.sh")
	viper.SetDefault("chains.host.explorer_url", "https://host-explorer.pecorino.signet.sh")
	viper.SetDefault("chains.host.orders", "0x4E8cC181805aFC307C83298242271142b8e2f249")
	viper.SetDefault("chains.host.passage", "0xd553C4CA4792Af71F4B61231409eaB321c1Dd2Ce")

	viper.SetDefault("chains.rollup.name", "Pecorino Signet")
	viper.SetDefault("chains.rollup.chain_id", 14174)
	viper.SetDefault("chains.rollup.rpc_url", "https://rpc.pecorino.signet.sh/rpc")
	viper.SetDefault("chains.rollup.explorer_url", "https://explorer.pecorino.signet.sh")
	viper.SetDefault("chains.rollup.orders", "0x8e9806fFF56d0660683F0A8157cE70F541A49dD0")
	viper.SetDefault("chains.rollup.passage", "0x862c10E42B7D07dfDE6F74af61B20A55ca5243FE")

	viper.SetDefault("price.freshness", "30s")
	viper.SetDefault("price.timeout", "3s")
	viper.SetDefault("price.max_retries", 3)
	viper.SetDefault("price.initial_backoff", "1s")
	viper.SetDefault("price.requests_per_minute", 30)
	viper.SetDefault("price.defillama_url", "https://coins.llama.fi")
	viper.SetDefault("price.cryptocompare_url", "https://min-api.cryptocompare.com")
	viper.SetDefault("price.coingecko_url", "https://api.coingecko.com")
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".signet-swap")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from environment variables
	viper.SetEnvPrefix("SIGNET_SWAP")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		PrivateKey:     viper.GetString("private_key"),
		TxCacheURL:     viper.GetString("tx_cache_url"),
		ProxyURL:       viper.GetString("proxy_url"),
		ProxyListen:    viper.GetString("proxy_listen"),
		HistoryFile:    viper.GetString("history_file"),
		Permit2:        viper.GetString("permit2"),
		OrderHorizon:   viper.GetDuration("order_horizon"),
		AutoResetDelay: viper.GetDuration("auto_reset_delay"),
		MonitorEvery:   viper.GetDuration("monitor_interval"),
		ApprovalWait:   viper.GetDuration("approval_wait"),
		GasLimit:       viper.GetUint64("gas_limit"),
		Host:           loadChain("host"),
		Rollup:         loadChain("rollup"),
		Price: PriceConfig{
			Freshness:         viper.GetDuration("price.freshness"),
			Timeout:           viper.GetDuration("price.timeout"),
			MaxRetries:        viper.GetInt("price.max_retries"),
			InitialBackoff:    viper.GetDuration("price.initial_backoff"),
			RequestsPerMinute: viper.GetInt("price.requests_per_minute"),
			DefiLlamaURL:      viper.GetString("price.defillama_url"),
			CryptoCompareURL:  viper.GetString("price.cryptocompare_url"),
			CoinGeckoURL:      viper.GetString("price.coingecko_url"),
		},
	}

	if cfg.TxCacheURL == "" {
		return nil, fmt.Errorf("transaction cache URL not set. Please set SIGNET_SWAP_TX_CACHE_URL or tx_cache_url in .signet-swap.yaml")
	}
	if cfg.Host.ChainID == cfg.Rollup.ChainID {
		return nil, fmt.Errorf("host and rollup chain ids must differ (both %d)", cfg.Host.ChainID)
	}

	globalConfig = cfg
	return cfg, nil
}

func loadChain(key string) ChainConfig {
	prefix := "chains." + key + "."
	return ChainConfig{
		Name:        viper.GetString(prefix + "name"),
		ChainID:     viper.GetUint64(prefix + "chain_id"),
		RPCURL:      viper.GetString(prefix + "rpc_url"),
		ExplorerURL: viper.GetString(prefix + "explorer_url"),
		Orders:      viper.GetString(prefix + "orders"),
		Passage:     viper.GetString(prefix + "passage"),
	}
}

// RequirePrivateKey fails when no signing key has been configured
func (c *Config) RequirePrivateKey() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("private key not found. Please set SIGNET_SWAP_PRIVATE_KEY environment variable or private_key in .signet-swap.yaml")
	}
	return nil
}

// ChainByID returns the chain configuration for a chain id
func (c *Config) ChainByID(id uint64) (ChainConfig, bool) {
	switch id {
	case c.Host.ChainID:
		return c.Host, true
	case c.Rollup.ChainID:
		return c.Rollup, true
	}
	return ChainConfig{}, false
}

// ChainByName resolves "host" or "rollup" (or the configured display name)
func (c *Config) ChainByName(name string) (ChainConfig, bool) {
	switch name {
	case "host", "h", "ethereum", c.Host.Name:
		return c.Host, true
	case "rollup", "r", "signet", c.Rollup.Name:
		return c.Rollup, true
	}
	return ChainConfig{}, false
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
