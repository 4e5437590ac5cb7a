package price

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signet-swap/pkg/tokens"
)

type fakeSource struct {
	name   string
	prices []float64
	errs   []error
	calls  atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchUSD(ctx context.Context, token tokens.Token) (float64, error) {
	i := int(f.calls.Add(1)) - 1
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	} else if len(f.errs) > 0 && len(f.prices) == 0 {
		err = f.errs[len(f.errs)-1]
	}
	if err != nil {
		return 0, err
	}
	if i < len(f.prices) {
		return f.prices[i], nil
	}
	return f.prices[len(f.prices)-1], nil
}

func failing(name string) *fakeSource {
	return &fakeSource{name: name, errs: []error{errors.New("connection refused")}}
}

func testResolver(sources ...Source) (*Resolver, *time.Time) {
	now := time.Unix(1700000000, 0)
	r := NewResolver(sources, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	r.now = func() time.Time { return now }
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r, &now
}

func mustToken(t *testing.T, symbol string) tokens.Token {
	t.Helper()
	tok, err := tokens.BySymbol(symbol)
	require.NoError(t, err)
	return tok
}

func TestResolveFallsThroughToThirdSource(t *testing.T) {
	a, b := failing("a"), failing("b")
	c := &fakeSource{name: "c", prices: []float64{2500}}
	r, _ := testResolver(a, b, c)

	q := r.Resolve(context.Background(), mustToken(t, "ETH"))
	require.Equal(t, 2500.0, q.Price)
	require.Equal(t, OriginLive, q.Origin)
	require.Equal(t, "c", q.Source)

	// each failing source is tried once plus MaxRetries
	require.Equal(t, int32(DefaultMaxRetries+1), a.calls.Load())
	require.Equal(t, int32(DefaultMaxRetries+1), b.calls.Load())
}

func TestResolveRetriesTransientFailure(t *testing.T) {
	a := &fakeSource{name: "a", errs: []error{ErrRateLimited, nil}, prices: []float64{0, 1.0001}}
	r, _ := testResolver(a)

	var delays []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	price, ok := r.ResolvePrice(context.Background(), mustToken(t, "USDC"))
	require.True(t, ok)
	require.Equal(t, 1.0001, price)
	require.Equal(t, []time.Duration{time.Second}, delays)
}

func TestResolveBackoffDoubles(t *testing.T) {
	a := failing("a")
	r, _ := testResolver(a)

	var delays []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	r.Resolve(context.Background(), mustToken(t, "ETH"))
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
}

func TestResolveInvalidPriceIsSourceFailure(t *testing.T) {
	for _, bad := range []float64{0, -3, math.NaN(), math.Inf(1)} {
		a := &fakeSource{name: "a", prices: []float64{bad}}
		b := &fakeSource{name: "b", prices: []float64{42}}
		r, _ := testResolver(a, b)

		q := r.Resolve(context.Background(), mustToken(t, "ETH"))
		require.Equal(t, 42.0, q.Price)
		require.Equal(t, int32(1), a.calls.Load(), "invalid prices are not retried")
	}
}

func TestResolveUsesFreshCache(t *testing.T) {
	a := &fakeSource{name: "a", prices: []float64{1999}}
	r, now := testResolver(a)
	eth := mustToken(t, "ETH")

	r.Resolve(context.Background(), eth)
	*now = now.Add(29 * time.Second)

	q := r.Resolve(context.Background(), eth)
	require.Equal(t, OriginCached, q.Origin)
	require.Equal(t, 1999.0, q.Price)
	require.Equal(t, int32(1), a.calls.Load())
}

func TestResolveStaleCacheWhenSourcesDown(t *testing.T) {
	a := &fakeSource{name: "a", prices: []float64{1999}}
	r, now := testResolver(a)
	eth := mustToken(t, "ETH")
	r.Resolve(context.Background(), eth)

	a.errs = []error{nil, errors.New("down")}
	a.prices = nil
	*now = now.Add(time.Hour)

	q := r.Resolve(context.Background(), eth)
	require.Equal(t, OriginStale, q.Origin)
	require.Equal(t, 1999.0, q.Price)
	require.True(t, q.Degraded())
}

func TestResolveStaticFallback(t *testing.T) {
	r, _ := testResolver(failing("a"), failing("b"), failing("c"))

	q := r.Resolve(context.Background(), mustToken(t, "WBTC"))
	require.Equal(t, OriginStatic, q.Origin)
	require.Equal(t, 30000.0, q.Price)
}

func TestResolveUnknownTokenHasNoPrice(t *testing.T) {
	r, _ := testResolver(failing("a"))

	price, ok := r.ResolvePrice(context.Background(), tokens.Token{Symbol: "XYZ", PriceFeedID: "xyz"})
	require.False(t, ok)
	require.Zero(t, price)
}

func TestResolveCancelledContextStillFallsBack(t *testing.T) {
	a := failing("a")
	r, _ := testResolver(a)
	r.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := r.Resolve(ctx, mustToken(t, "USDT"))
	require.Equal(t, OriginStatic, q.Origin)
	require.Equal(t, 1.0, q.Price)
}

func TestNewResolverRetryDefaults(t *testing.T) {
	r := NewResolver(nil, Options{})
	require.Equal(t, DefaultMaxRetries, r.opts.MaxRetries)
	require.Equal(t, DefaultInitialBackoff, r.opts.InitialBackoff)

	a := failing("a")
	r = NewResolver([]Source{a}, Options{MaxRetries: -1})
	r.sleep = func(context.Context, time.Duration) error { return nil }
	require.Equal(t, 0, r.opts.MaxRetries)

	q := r.Resolve(context.Background(), mustToken(t, "ETH"))
	require.NotEqual(t, OriginLive, q.Origin)
	require.Equal(t, int32(1), a.calls.Load())
}
