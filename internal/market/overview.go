package market

import (
	"context"
	"sync"
	"time"
)

// Overview token and venue sets. Every overview carries one entry per slot
// even when the underlying fetch fails.
var (
	OverviewTokens = []string{"SOL", "USDC", "RAY", "ORCA"}
	OverviewDexes  = []string{"raydium", "orca", "jupiter"}
)

// TokenEntry is one token slot of an overview
type TokenEntry struct {
	Symbol string       `json:"symbol"`
	Record *PriceRecord `json:"record,omitempty"`
	Err    error        `json:"-"`
}

// DexEntry is one venue slot of an overview
type DexEntry struct {
	Name     string       `json:"name"`
	Snapshot *DexSnapshot `json:"snapshot,omitempty"`
	Err      error        `json:"-"`
}

// Overview is a point-in-time picture of the watched market
type Overview struct {
	Tokens    []TokenEntry `json:"tokens"`
	Dexes     []DexEntry   `json:"dexes"`
	Timestamp time.Time    `json:"timestamp"`
}

// MarketOverview fetches all tracked tokens and venues concurrently. Slots
// fail independently; the overview itself never errors.
func (a *Aggregator) MarketOverview(ctx context.Context, symbols []string) *Overview {
	if len(symbols) == 0 {
		symbols = OverviewTokens
	}

	overview := &Overview{
		Tokens:    make([]TokenEntry, len(symbols)),
		Dexes:     make([]DexEntry, len(OverviewDexes)),
		Timestamp: time.Now(),
	}

	var wg sync.WaitGroup
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			record, err := a.GetTokenPrice(ctx, symbol)
			overview.Tokens[i] = TokenEntry{Symbol: symbol, Record: record, Err: err}
		}(i, symbol)
	}
	for i, name := range OverviewDexes {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			snap, err := a.GetDexStats(ctx, name)
			overview.Dexes[i] = DexEntry{Name: name, Snapshot: snap, Err: err}
		}(i, name)
	}
	wg.Wait()

	return overview
}
