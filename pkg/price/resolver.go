package price

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"signet-swap/pkg/metrics"
	"signet-swap/pkg/tokens"
)

// Origin says how a quote was obtained
type Origin string

const (
	OriginLive   Origin = "live"
	OriginCached Origin = "cached"
	OriginStale  Origin = "stale"
	OriginStatic Origin = "static"
	OriginNone   Origin = "none"
)

const (
	DefaultFreshness      = 30 * time.Second
	DefaultTimeout        = 3 * time.Second
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = time.Second
)

// StaticPrices is the last-resort table, keyed by price feed id
var StaticPrices = map[string]float64{
	"ethereum":        2000,
	"usd-coin":        1,
	"tether":          1,
	"wrapped-bitcoin": 30000,
}

// Quote is a resolved USD price
type Quote struct {
	Price  float64   `json:"price"`
	Source string    `json:"source,omitempty"`
	Origin Origin    `json:"origin"`
	At     time.Time `json:"at"`
}

// Degraded reports whether the price did not come from a live or fresh source
func (q Quote) Degraded() bool {
	return q.Origin == OriginStale || q.Origin == OriginStatic
}

// CachedPrice is a previously fetched live price
type CachedPrice struct {
	Price     float64
	Source    string
	Timestamp time.Time
}

// Options tunes the resolver; zero values take the defaults. A negative
// MaxRetries disables retries.
type Options struct {
	Freshness         time.Duration
	Timeout           time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	RequestsPerMinute int
	Static            map[string]float64
	Logger            *slog.Logger
	Metrics           *metrics.Swap
}

// Resolver returns a USD price per token from a prioritised list of sources,
// falling back to cached, stale and static prices. It never returns an error.
type Resolver struct {
	sources  []Source
	limiters map[string]*rate.Limiter
	opts     Options
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]CachedPrice

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResolver creates a resolver over sources, consulted in the given order
func NewResolver(sources []Source, opts Options) *Resolver {
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.Static == nil {
		opts.Static = StaticPrices
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limiters := make(map[string]*rate.Limiter, len(sources))
	for _, s := range sources {
		limit := rate.Inf
		if opts.RequestsPerMinute > 0 {
			limit = rate.Limit(float64(opts.RequestsPerMinute) / 60.0)
		}
		limiters[s.Name()] = rate.NewLimiter(limit, opts.MaxRetries+1)
	}

	return &Resolver{
		sources:  sources,
		limiters: limiters,
		opts:     opts,
		logger:   logger.With("component", "price"),
		cache:    make(map[string]CachedPrice),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ResolvePrice returns the token's USD price, or false when nothing at all is known
func (r *Resolver) ResolvePrice(ctx context.Context, token tokens.Token) (float64, bool) {
	q := r.Resolve(ctx, token)
	if q.Origin == OriginNone {
		return 0, false
	}
	return q.Price, true
}

// Resolve returns a quote together with where it came from
func (r *Resolver) Resolve(ctx context.Context, token tokens.Token) Quote {
	key := token.PriceFeedID
	if key == "" {
		key = token.Symbol
	}

	if cached, ok := r.cached(key); ok && r.now().Sub(cached.Timestamp) < r.opts.Freshness {
		r.opts.Metrics.PriceResolved(string(OriginCached))
		return Quote{Price: cached.Price, Source: cached.Source, Origin: OriginCached, At: cached.Timestamp}
	}

	for _, src := range r.sources {
		price, err := r.fetch(ctx, src, token)
		if err != nil {
			r.logger.Warn("price source failed, trying next", "source", src.Name(), "token", token.Symbol, "error", err)
			continue
		}
		at := r.now()
		r.store(key, CachedPrice{Price: price, Source: src.Name(), Timestamp: at})
		r.opts.Metrics.PriceResolved(string(OriginLive))
		r.logger.Debug("price resolved", "source", src.Name(), "token", token.Symbol, "price", price)
		return Quote{Price: price, Source: src.Name(), Origin: OriginLive, At: at}
	}

	if cached, ok := r.cached(key); ok {
		r.logger.Warn("all price sources failed, using stale price", "token", token.Symbol, "age", r.now().Sub(cached.Timestamp).String())
		r.opts.Metrics.PriceResolved(string(OriginStale))
		return Quote{Price: cached.Price, Source: cached.Source, Origin: OriginStale, At: cached.Timestamp}
	}

	if p, ok := r.opts.Static[key]; ok && valid(p) {
		r.logger.Warn("all price sources failed, using static fallback", "token", token.Symbol, "price", p)
		r.opts.Metrics.PriceResolved(string(OriginStatic))
		return Quote{Price: p, Source: "static", Origin: OriginStatic, At: r.now()}
	}

	r.logger.Error("no price available", "token", token.Symbol)
	r.opts.Metrics.PriceResolved(string(OriginNone))
	return Quote{Origin: OriginNone}
}

// fetch asks one source, retrying transient failures with exponential backoff
func (r *Resolver) fetch(ctx context.Context, src Source, token tokens.Token) (float64, error) {
	backoff := r.opts.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, backoff); err != nil {
				return 0, err
			}
			backoff *= 2
		}
		if lim := r.limiters[src.Name()]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return 0, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		price, err := src.FetchUSD(callCtx, token)
		cancel()

		if err == nil && !valid(price) {
			err = ErrNoPrice
		}
		if err == nil {
			return price, nil
		}

		lastErr = err
		r.opts.Metrics.PriceSourceFailed(src.Name())
		if errors.Is(err, ErrNoPrice) || ctx.Err() != nil {
			break
		}
		r.logger.Debug("price fetch attempt failed", "source", src.Name(), "attempt", attempt+1, "error", err)
	}
	return 0, lastErr
}

func valid(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

func (r *Resolver) cached(key string) (CachedPrice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cache[key]
	return c, ok
}

func (r *Resolver) store(key string, c CachedPrice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = c
}
