package market

import (
	"context"
	"fmt"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// BinanceSource fetches 24h ticker statistics from the Binance spot API.
// Quotes are against USDT, which is close enough to USD for portfolio math.
type BinanceSource struct {
	client *binance.Client
}

// NewBinanceSource creates a Binance source. Market data endpoints need no
// API key. A non-empty baseURL overrides the public endpoint for tests.
func NewBinanceSource(baseURL string) *BinanceSource {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinanceSource{client: client}
}

// Name implements Source
func (s *BinanceSource) Name() SourceName { return SourceBinance }

// Fetch implements Source
func (s *BinanceSource) Fetch(ctx context.Context, symbol string) (*PriceRecord, error) {
	pair := symbol + "USDT"
	stats, err := s.client.NewListPriceChangeStatsService().Symbol(pair).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance ticker for %s: %w", pair, err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("binance returned no ticker for %s", pair)
	}
	t := stats[0]

	price, err := decimal.NewFromString(t.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("malformed binance price %q: %w", t.LastPrice, err)
	}
	volume, err := decimal.NewFromString(t.QuoteVolume)
	if err != nil {
		return nil, fmt.Errorf("malformed binance volume %q: %w", t.QuoteVolume, err)
	}
	change, err := decimal.NewFromString(t.PriceChangePercent)
	if err != nil {
		return nil, fmt.Errorf("malformed binance change %q: %w", t.PriceChangePercent, err)
	}

	return &PriceRecord{
		Symbol:      symbol,
		MintAddress: MintAddresses[symbol],
		Price:       price,
		Volume24h:   volume,
		Change24h:   change,
		Timestamp:   time.Now(),
		Source:      SourceBinance,
		Confidence:  0.85,
	}, nil
}
