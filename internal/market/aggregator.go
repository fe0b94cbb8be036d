package market

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/solswarm/guardian/internal/metrics"
)

// registeredSource pairs a source adapter with its priority and rate budget
type registeredSource struct {
	source   Source
	priority int
	limiter  *rate.Limiter
}

// AggregatorConfig configures the market data aggregator
type AggregatorConfig struct {
	PriceTTL time.Duration
	DexTTL   time.Duration
}

// Aggregator produces one canonical PriceRecord per symbol from an ordered
// set of sources with per-source rate limits and a TTL cache.
type Aggregator struct {
	cfg      AggregatorConfig
	sources  map[SourceName]*registeredSource
	ordered  []SourceName // priority desc, stable by name
	store    Store
	dexStats *DexStatsClient
	log      zerolog.Logger
}

// NewAggregator creates an aggregator backed by store. Sources are added with
// Register; an aggregator with no sources fails every query.
func NewAggregator(cfg AggregatorConfig, store Store, dexStats *DexStatsClient, log zerolog.Logger) *Aggregator {
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = 30 * time.Second
	}
	if cfg.DexTTL <= 0 {
		cfg.DexTTL = 60 * time.Second
	}
	return &Aggregator{
		cfg:      cfg,
		sources:  make(map[SourceName]*registeredSource),
		store:    store,
		dexStats: dexStats,
		log:      log.With().Str("component", "market_aggregator").Logger(),
	}
}

// Register adds a source with its priority (higher = preferred) and rate
// budget in requests per minute.
func (a *Aggregator) Register(src Source, priority, requestsPerMinute int) {
	perSecond := rate.Limit(float64(requestsPerMinute) / 60.0)
	burst := requestsPerMinute
	if burst < 1 {
		burst = 1
	}
	a.sources[src.Name()] = &registeredSource{
		source:   src,
		priority: priority,
		limiter:  rate.NewLimiter(perSecond, burst),
	}
	a.reorder()
}

func (a *Aggregator) reorder() {
	a.ordered = a.ordered[:0]
	for name := range a.sources {
		a.ordered = append(a.ordered, name)
	}
	sort.Slice(a.ordered, func(i, j int) bool {
		pi, pj := a.sources[a.ordered[i]].priority, a.sources[a.ordered[j]].priority
		if pi != pj {
			return pi > pj
		}
		return a.ordered[i] < a.ordered[j]
	})
}

// order returns the requested subset in priority order, or all sources
func (a *Aggregator) order(subset []SourceName) []*registeredSource {
	names := a.ordered
	if len(subset) > 0 {
		allowed := make(map[SourceName]bool, len(subset))
		for _, n := range subset {
			allowed[n] = true
		}
		filtered := make([]SourceName, 0, len(subset))
		for _, n := range a.ordered {
			if allowed[n] {
				filtered = append(filtered, n)
			}
		}
		names = filtered
	}
	out := make([]*registeredSource, 0, len(names))
	for _, n := range names {
		out = append(out, a.sources[n])
	}
	return out
}

// GetTokenPrice returns a fresh or cached price record for symbol. Sources
// are tried in priority order; the first valid record wins and is cached.
// When every source fails the cache is left untouched and AllSourcesFailed
// carries the last error.
func (a *Aggregator) GetTokenPrice(ctx context.Context, symbol string, sources ...SourceName) (*PriceRecord, error) {
	key := priceKey(symbol)
	if raw, ok := a.store.Get(ctx, key, a.cfg.PriceTTL); ok {
		var record PriceRecord
		if err := json.Unmarshal(raw, &record); err == nil {
			metrics.CacheHits.WithLabelValues("price").Inc()
			return &record, nil
		}
		// A corrupt entry falls through to a live fetch.
	}
	metrics.CacheMisses.WithLabelValues("price").Inc()

	var lastErr error
	for _, reg := range a.order(sources) {
		if err := reg.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				// The caller's deadline passed while waiting on this budget.
				if lastErr == nil {
					lastErr = err
				}
				break
			}
			// This source's budget cannot serve the request before the
			// deadline; a drained bucket must not take alternates down with it.
			a.log.Debug().Err(err).Str("source", string(reg.source.Name())).Str("symbol", symbol).Msg("Source budget exhausted")
			lastErr = err
			continue
		}

		record, err := reg.source.Fetch(ctx, symbol)
		if err != nil {
			metrics.SourceFetches.WithLabelValues(string(reg.source.Name()), "error").Inc()
			a.log.Debug().Err(err).Str("source", string(reg.source.Name())).Str("symbol", symbol).Msg("Source fetch failed")
			lastErr = err
			continue
		}
		metrics.SourceFetches.WithLabelValues(string(reg.source.Name()), "success").Inc()

		if record == nil || record.Price.Sign() <= 0 {
			lastErr = &AllSourcesFailedError{Symbol: symbol, Last: lastErr}
			continue
		}
		if err := record.Validate(); err != nil {
			lastErr = err
			continue
		}

		// Downstream risk math needs a total function, so a missing change
		// stays an explicit zero rather than an absent field.
		a.cacheRecord(ctx, key, record)
		return record, nil
	}

	return nil, &AllSourcesFailedError{Symbol: symbol, Last: lastErr}
}

// cacheRecord publishes a whole record; zero-confidence records are never
// cached.
func (a *Aggregator) cacheRecord(ctx context.Context, key string, record *PriceRecord) {
	if record.Confidence == 0 {
		return
	}
	raw, err := json.Marshal(record)
	if err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("Failed to marshal record for cache")
		return
	}
	if err := a.store.Set(ctx, key, raw, a.cfg.PriceTTL); err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("Failed to cache record")
	}
}

// GetDexStats returns a fresh or cached snapshot for one DEX venue
func (a *Aggregator) GetDexStats(ctx context.Context, name string) (*DexSnapshot, error) {
	key := dexKey(name)
	if raw, ok := a.store.Get(ctx, key, a.cfg.DexTTL); ok {
		var snap DexSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			metrics.CacheHits.WithLabelValues("dex").Inc()
			return &snap, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("dex").Inc()

	snap, err := a.dexStats.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(snap); err == nil {
		a.store.Set(ctx, key, raw, a.cfg.DexTTL)
	}
	return snap, nil
}
