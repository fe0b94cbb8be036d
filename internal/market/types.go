// Package market aggregates token prices from competing sources with
// priority ordering, failover, per-source rate limits and TTL caching.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SourceName identifies one price source
type SourceName string

const (
	SourceJupiter     SourceName = "jupiter"
	SourceCoinGecko   SourceName = "coingecko"
	SourceBinance     SourceName = "binance"
	SourceCoinbase    SourceName = "coinbase"
	SourcePyth        SourceName = "pyth"
	SourceSwitchboard SourceName = "switchboard"
)

// PriceRecord is a normalized quote from one source
type PriceRecord struct {
	Symbol      string           `json:"symbol"`
	MintAddress string           `json:"mint_address,omitempty"`
	Price       decimal.Decimal  `json:"price"`
	Volume24h   decimal.Decimal  `json:"volume_24h"`
	Change24h   decimal.Decimal  `json:"change_24h"` // percent, signed; zero when the source omits it
	MarketCap   *decimal.Decimal `json:"market_cap,omitempty"`
	Timestamp   time.Time        `json:"timestamp"` // when this record was fetched, drives cache freshness
	PublishTime time.Time        `json:"publish_time,omitempty"` // oracle publish time, when the source reports one
	Source      SourceName       `json:"source"`
	Confidence  float64          `json:"confidence"` // 0..1
}

// Validate enforces the record invariants
func (r *PriceRecord) Validate() error {
	if r.Price.Sign() <= 0 {
		return fmt.Errorf("price must be positive, got %s", r.Price)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %f", r.Confidence)
	}
	return nil
}

// DexSnapshot is the aggregate state of one DEX venue
type DexSnapshot struct {
	Name       string          `json:"name"`
	TVL        decimal.Decimal `json:"tvl"`
	Volume24h  decimal.Decimal `json:"volume_24h"`
	Volume7d   decimal.Decimal `json:"volume_7d"`
	Fees24h    decimal.Decimal `json:"fees_24h"`
	PoolsCount int             `json:"pools_count"`
	Timestamp  time.Time       `json:"timestamp"`
	Source     string          `json:"source"`
}

// Quote is a pre-swap estimate from the routing aggregator
type Quote struct {
	InputMint      string          `json:"input_mint"`
	OutputMint     string          `json:"output_mint"`
	InAmount       decimal.Decimal `json:"in_amount"`
	ExpectedOut    decimal.Decimal `json:"expected_out"`
	MinimumOut     decimal.Decimal `json:"minimum_out"` // after slippage
	PriceImpactPct decimal.Decimal `json:"price_impact_pct"`
	RoutePlan      json.RawMessage `json:"route_plan,omitempty"` // opaque to the core
}

// Source fetches a price for one symbol. A (nil, nil) return means the source
// has no data for the symbol; that is treated as a failure by the aggregator.
type Source interface {
	Name() SourceName
	Fetch(ctx context.Context, symbol string) (*PriceRecord, error)
}

// AllSourcesFailedError reports that every configured source failed for a
// symbol, carrying the last underlying error.
type AllSourcesFailedError struct {
	Symbol string
	Last   error
}

func (e *AllSourcesFailedError) Error() string {
	return fmt.Sprintf("all sources failed for %s: %v", e.Symbol, e.Last)
}

func (e *AllSourcesFailedError) Unwrap() error { return e.Last }

// Well-known Solana mint addresses
var MintAddresses = map[string]string{
	"SOL":  "So11111111111111111111111111111111111111112",
	"USDC": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"USDT": "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
	"RAY":  "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R",
	"ORCA": "orcaEKTdK7LKz57vaAYr9QeNsVEPfiu6QeMU1kektZE",
}

// CoinGecko coin ids by symbol
var coinGeckoIDs = map[string]string{
	"SOL":  "solana",
	"USDC": "usd-coin",
	"USDT": "tether",
	"RAY":  "raydium",
	"ORCA": "orca",
}

// Pyth Hermes price feed ids by symbol
var pythFeedIDs = map[string]string{
	"SOL":  "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
	"USDC": "eaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a",
	"RAY":  "91568baa8beb53db23eb3fb7f22c6e8bd303d103919e19733f2bb642d3e7987a",
	"ORCA": "37505261e557e251290b8c8899453064e8d760ed5c65a779726f2490980da74c",
}

func priceKey(symbol string) string { return "price:" + symbol }
func dexKey(name string) string     { return "dex:" + name }
