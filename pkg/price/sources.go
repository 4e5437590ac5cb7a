package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"signet-swap/pkg/tokens"
)

var (
	// ErrRateLimited is returned when a source answers 429
	ErrRateLimited = errors.New("price source rate limited")
	// ErrNoPrice means the source answered but had no usable price
	ErrNoPrice = errors.New("price source returned no price")
)

// HTTPDoer abstracts http.Client for ease of testing
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source fetches a USD spot price for a token
type Source interface {
	Name() string
	FetchUSD(ctx context.Context, token tokens.Token) (float64, error)
}

const (
	defaultDefiLlamaURL     = "https://coins.llama.fi"
	defaultCryptoCompareURL = "https://min-api.cryptocompare.com"
	defaultCoinGeckoURL     = "https://api.coingecko.com"
)

func getJSON(ctx context.Context, client HTTPDoer, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrNoPrice, err)
	}
	return nil
}

func baseOrDefault(base, fallback string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return fallback
	}
	return base
}

func clientOrDefault(client HTTPDoer) HTTPDoer {
	if client == nil {
		return http.DefaultClient
	}
	return client
}

// DefiLlama reads prices from the coins.llama.fi current-price endpoint
type DefiLlama struct {
	client  HTTPDoer
	baseURL string
}

// NewDefiLlama creates a DefiLlama source. Empty baseURL uses the public API.
func NewDefiLlama(client HTTPDoer, baseURL string) *DefiLlama {
	return &DefiLlama{client: clientOrDefault(client), baseURL: baseOrDefault(baseURL, defaultDefiLlamaURL)}
}

func (s *DefiLlama) Name() string { return "defillama" }

func (s *DefiLlama) FetchUSD(ctx context.Context, token tokens.Token) (float64, error) {
	key := "coingecko:" + token.PriceFeedID
	var body struct {
		Coins map[string]struct {
			Price float64 `json:"price"`
		} `json:"coins"`
	}
	if err := getJSON(ctx, s.client, s.baseURL+"/prices/current/"+url.PathEscape(key), &body); err != nil {
		return 0, err
	}
	coin, ok := body.Coins[key]
	if !ok {
		return 0, ErrNoPrice
	}
	return coin.Price, nil
}

// CryptoCompare reads prices from the min-api single-price endpoint
type CryptoCompare struct {
	client  HTTPDoer
	baseURL string
}

// NewCryptoCompare creates a CryptoCompare source. Empty baseURL uses the public API.
func NewCryptoCompare(client HTTPDoer, baseURL string) *CryptoCompare {
	return &CryptoCompare{client: clientOrDefault(client), baseURL: baseOrDefault(baseURL, defaultCryptoCompareURL)}
}

func (s *CryptoCompare) Name() string { return "cryptocompare" }

func (s *CryptoCompare) FetchUSD(ctx context.Context, token tokens.Token) (float64, error) {
	if token.Symbol == "" {
		return 0, fmt.Errorf("%w: token has no symbol", ErrNoPrice)
	}
	values := url.Values{}
	values.Set("fsym", strings.ToUpper(token.Symbol))
	values.Set("tsyms", "USD")

	var body map[string]float64
	if err := getJSON(ctx, s.client, s.baseURL+"/data/price?"+values.Encode(), &body); err != nil {
		return 0, err
	}
	usd, ok := body["USD"]
	if !ok {
		return 0, ErrNoPrice
	}
	return usd, nil
}

// CoinGecko reads prices from the v3 simple-price endpoint
type CoinGecko struct {
	client  HTTPDoer
	baseURL string
}

// NewCoinGecko creates a CoinGecko source. Empty baseURL uses the public API.
func NewCoinGecko(client HTTPDoer, baseURL string) *CoinGecko {
	return &CoinGecko{client: clientOrDefault(client), baseURL: baseOrDefault(baseURL, defaultCoinGeckoURL)}
}

func (s *CoinGecko) Name() string { return "coingecko" }

func (s *CoinGecko) FetchUSD(ctx context.Context, token tokens.Token) (float64, error) {
	values := url.Values{}
	values.Set("ids", token.PriceFeedID)
	values.Set("vs_currencies", "usd")

	var body map[string]map[string]float64
	if err := getJSON(ctx, s.client, s.baseURL+"/api/v3/simple/price?"+values.Encode(), &body); err != nil {
		return 0, err
	}
	usd, ok := body[token.PriceFeedID]["usd"]
	if !ok {
		return 0, ErrNoPrice
	}
	return usd, nil
}

// DefaultSources returns the public sources in preference order
func DefaultSources(client HTTPDoer, defiLlamaURL, cryptoCompareURL, coinGeckoURL string) []Source {
	return []Source{
		NewDefiLlama(client, defiLlamaURL),
		NewCryptoCompare(client, cryptoCompareURL),
		NewCoinGecko(client, coinGeckoURL),
	}
}
