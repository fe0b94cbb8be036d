package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultJupiterPriceURL = "https://price.jup.ag/v3"
	defaultJupiterQuoteURL = "https://quote-api.jup.ag/v6"

	// usdcMint and its decimals anchor quote-derived prices.
	usdcMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	usdcDecimals = 6
	solDecimals  = 9
)

// JupiterSource fetches prices from the Jupiter aggregator. Prices come from
// the price API; swap quotes come from the quote API.
type JupiterSource struct {
	priceURL   string
	quoteURL   string
	httpClient *http.Client
}

// NewJupiterSource creates a Jupiter source. Empty URLs select the public APIs.
func NewJupiterSource(priceURL, quoteURL string, timeout time.Duration) *JupiterSource {
	if priceURL == "" {
		priceURL = defaultJupiterPriceURL
	}
	if quoteURL == "" {
		quoteURL = defaultJupiterQuoteURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &JupiterSource{
		priceURL:   priceURL,
		quoteURL:   quoteURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Source
func (s *JupiterSource) Name() SourceName { return SourceJupiter }

type jupiterPriceResponse struct {
	Data map[string]struct {
		Price decimal.Decimal `json:"price"`
	} `json:"data"`
}

// Fetch implements Source
func (s *JupiterSource) Fetch(ctx context.Context, symbol string) (*PriceRecord, error) {
	mint, ok := MintAddresses[symbol]
	if !ok {
		return nil, fmt.Errorf("no mint address known for %s", symbol)
	}

	var out jupiterPriceResponse
	if err := httpGetJSON(ctx, s.httpClient, s.priceURL+"/price?ids="+url.QueryEscape(mint), &out); err != nil {
		return nil, err
	}

	entry, ok := out.Data[mint]
	if !ok {
		return nil, fmt.Errorf("jupiter returned no price for %s", symbol)
	}

	return &PriceRecord{
		Symbol:      symbol,
		MintAddress: mint,
		Price:       entry.Price,
		Timestamp:   time.Now(),
		Source:      SourceJupiter,
		Confidence:  0.95,
	}, nil
}

type jupiterQuoteResponse struct {
	InAmount             string          `json:"inAmount"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	PriceImpactPct       decimal.Decimal `json:"priceImpactPct"`
	RoutePlan            json.RawMessage `json:"routePlan"`
}

// GetQuote asks the routing aggregator for a pre-swap estimate. amount is in
// the input mint's base units; slippageBps bounds the minimum output.
func (s *JupiterSource) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", fmt.Sprintf("%d", amount))
	q.Set("slippageBps", fmt.Sprintf("%d", slippageBps))

	var out jupiterQuoteResponse
	if err := httpGetJSON(ctx, s.httpClient, s.quoteURL+"/quote?"+q.Encode(), &out); err != nil {
		return nil, err
	}

	expectedOut, err := decimal.NewFromString(out.OutAmount)
	if err != nil {
		return nil, fmt.Errorf("malformed outAmount %q: %w", out.OutAmount, err)
	}
	minimumOut, err := decimal.NewFromString(out.OtherAmountThreshold)
	if err != nil {
		return nil, fmt.Errorf("malformed otherAmountThreshold %q: %w", out.OtherAmountThreshold, err)
	}

	return &Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       decimal.NewFromUint64(amount),
		ExpectedOut:    expectedOut,
		MinimumOut:     minimumOut,
		PriceImpactPct: out.PriceImpactPct,
		RoutePlan:      out.RoutePlan,
	}, nil
}

// DerivePrice converts a quote into a per-unit price: output quantity divided
// by input quantity, each normalized at its declared decimals.
func DerivePrice(q *Quote, inputDecimals, outputDecimals int32) (decimal.Decimal, error) {
	in := q.InAmount.Shift(-inputDecimals)
	if in.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("quote input amount must be positive")
	}
	out := q.ExpectedOut.Shift(-outputDecimals)
	return out.DivRound(in, 12), nil
}
