package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a scriptable source for aggregator tests
type fakeSource struct {
	name   SourceName
	record *PriceRecord
	err    error
	calls  int
}

func (f *fakeSource) Name() SourceName { return f.name }

func (f *fakeSource) Fetch(_ context.Context, symbol string) (*PriceRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.record == nil {
		return nil, nil
	}
	r := *f.record
	r.Symbol = symbol
	return &r, nil
}

func record(source SourceName, price float64, confidence float64) *PriceRecord {
	return &PriceRecord{
		Price:      decimal.NewFromFloat(price),
		Timestamp:  time.Now(),
		Source:     source,
		Confidence: confidence,
	}
}

func newTestAggregator(t *testing.T) (*Aggregator, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	agg := NewAggregator(AggregatorConfig{}, store, nil, zerolog.Nop())
	return agg, store
}

func TestGetTokenPriceHigherPriorityWins(t *testing.T) {
	agg, _ := newTestAggregator(t)

	pyth := &fakeSource{name: SourcePyth, record: record(SourcePyth, 100.5, 0.95)}
	gecko := &fakeSource{name: SourceCoinGecko, record: record(SourceCoinGecko, 99.9, 0.9)}
	agg.Register(gecko, 1, 600)
	agg.Register(pyth, 10, 600)

	got, err := agg.GetTokenPrice(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, SourcePyth, got.Source)
	assert.Equal(t, 1, pyth.calls)
	assert.Equal(t, 0, gecko.calls, "lower priority source must not be queried")
}

func TestGetTokenPriceFailover(t *testing.T) {
	agg, _ := newTestAggregator(t)

	primary := &fakeSource{name: SourceJupiter, err: errors.New("boom")}
	backup := &fakeSource{name: SourceCoinGecko, record: record(SourceCoinGecko, 101.25, 0.9)}
	agg.Register(primary, 10, 600)
	agg.Register(backup, 1, 600)

	got, err := agg.GetTokenPrice(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, SourceCoinGecko, got.Source)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, backup.calls)

	// Second query must be a cache hit within the TTL.
	got2, err := agg.GetTokenPrice(context.Background(), "SOL")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(got2.Price))
	assert.Equal(t, 1, primary.calls, "cache hit must not reach any source")
	assert.Equal(t, 1, backup.calls)
}

func TestGetTokenPriceAllSourcesFail(t *testing.T) {
	agg, store := newTestAggregator(t)

	lastErr := errors.New("rate limited")
	agg.Register(&fakeSource{name: SourceJupiter, err: errors.New("down")}, 10, 600)
	agg.Register(&fakeSource{name: SourceCoinGecko, err: lastErr}, 1, 600)

	_, err := agg.GetTokenPrice(context.Background(), "SOL")
	var allFailed *AllSourcesFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Equal(t, "SOL", allFailed.Symbol)
	assert.ErrorIs(t, err, lastErr)

	_, cached := store.Get(context.Background(), priceKey("SOL"), time.Minute)
	assert.False(t, cached, "failed queries must not populate the cache")
}

func TestGetTokenPriceZeroConfidenceNotCached(t *testing.T) {
	agg, store := newTestAggregator(t)

	src := &fakeSource{name: SourceCoinbase, record: record(SourceCoinbase, 50, 0)}
	agg.Register(src, 1, 600)

	got, err := agg.GetTokenPrice(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Zero(t, got.Confidence)

	_, cached := store.Get(context.Background(), priceKey("SOL"), time.Minute)
	assert.False(t, cached)

	_, err = agg.GetTokenPrice(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestGetTokenPriceZeroPriceSkipped(t *testing.T) {
	agg, _ := newTestAggregator(t)

	empty := &fakeSource{name: SourceJupiter, record: record(SourceJupiter, 0, 0.95)}
	good := &fakeSource{name: SourceCoinGecko, record: record(SourceCoinGecko, 42, 0.9)}
	agg.Register(empty, 10, 600)
	agg.Register(good, 1, 600)

	got, err := agg.GetTokenPrice(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, SourceCoinGecko, got.Source)
}

func TestGetTokenPriceDrainedBudgetFailsOver(t *testing.T) {
	agg, _ := newTestAggregator(t)

	jupiter := &fakeSource{name: SourceJupiter, record: record(SourceJupiter, 100, 0.95)}
	gecko := &fakeSource{name: SourceCoinGecko, record: record(SourceCoinGecko, 99.5, 0.9)}
	agg.Register(jupiter, 10, 1)
	agg.Register(gecko, 1, 600)

	// First query spends jupiter's only token for the next minute.
	got, err := agg.GetTokenPrice(context.Background(), "SOL")
	require.NoError(t, err)
	require.Equal(t, SourceJupiter, got.Source)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	got, err = agg.GetTokenPrice(ctx, "RAY")
	require.NoError(t, err, "a drained bucket on the preferred source must not fail the query")
	assert.Equal(t, SourceCoinGecko, got.Source)
	assert.Equal(t, 1, jupiter.calls, "jupiter has no budget left and must not be fetched")
	assert.Equal(t, 1, gecko.calls)
}

func TestGetTokenPriceSourceSubset(t *testing.T) {
	agg, _ := newTestAggregator(t)

	pyth := &fakeSource{name: SourcePyth, record: record(SourcePyth, 100, 0.95)}
	gecko := &fakeSource{name: SourceCoinGecko, record: record(SourceCoinGecko, 99, 0.9)}
	agg.Register(pyth, 10, 600)
	agg.Register(gecko, 1, 600)

	got, err := agg.GetTokenPrice(context.Background(), "SOL", SourceCoinGecko)
	require.NoError(t, err)
	assert.Equal(t, SourceCoinGecko, got.Source)
	assert.Equal(t, 0, pyth.calls)
}

func TestGetTokenPriceNoSources(t *testing.T) {
	agg, _ := newTestAggregator(t)

	_, err := agg.GetTokenPrice(context.Background(), "SOL")
	var allFailed *AllSourcesFailedError
	require.ErrorAs(t, err, &allFailed)
}

func TestGetTokenPriceExpiredCacheRefetches(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	agg := NewAggregator(AggregatorConfig{PriceTTL: 30 * time.Second}, store, nil, zerolog.Nop())
	src := &fakeSource{name: SourceCoinGecko, record: record(SourceCoinGecko, 75, 0.9)}
	agg.Register(src, 1, 600)

	_, err := agg.GetTokenPrice(context.Background(), "SOL")
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	current = current.Add(31 * time.Second)
	_, err = agg.GetTokenPrice(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}
